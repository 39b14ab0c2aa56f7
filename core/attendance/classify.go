package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/session"
)

var (
	// errors
	ErrInvalidBatch     = errors.New("invalid sample batch")
	ErrInvalidEntry     = errors.New("invalid manual entry")
	ErrRecordNotFound   = errors.New("attendance record not found")
	ErrAlreadySubmitted = errors.New("attendance already submitted for this session")
	ErrMissingRequester = errors.New("an authenticated requester is required")
	ErrNotStudent       = errors.New("only students can submit attendance")
)

// checkBatch rejects batches that cannot be classified whatever the session.
// Sample values are checked by SampleBatch.Validate before a batch gets here.
func checkBatch(p Policy, batch SampleBatch) error {
	if n := len(batch.Samples); n != p.TargetSampleCount {
		return errors.Wrapf(ErrInvalidBatch, "got %d samples, want %d", n, p.TargetSampleCount)
	}
	if !session.ValidToken(batch.SessionToken) {
		return errors.Wrap(ErrInvalidBatch, "malformed session token")
	}
	return nil
}

// Classify turns a batch into a Verdict. It reads nothing but its arguments.
// Submissions before StartsAt are on time.
func Classify(p Policy, sess session.Session, batch SampleBatch, submittedAt time.Time) (Verdict, error) {
	if err := checkBatch(p, batch); err != nil {
		return Verdict{}, err
	}
	if batch.SessionToken != sess.Token {
		return Verdict{}, errors.Wrap(ErrInvalidBatch, "batch does not reference this session")
	}
	if err := sess.Geofence.Validate(); err != nil {
		return Verdict{}, err
	}
	if !sess.ActiveAt(submittedAt) {
		return Verdict{}, session.ErrExpired
	}

	v := Verdict{TotalSamples: len(batch.Samples)}
	for _, s := range batch.Samples {
		if sess.Geofence.Contains(s.Point()) {
			v.InsideCount++
		}
		if p.LowAccuracyMeters > 0 && s.AccuracyMeters > p.LowAccuracyMeters {
			v.LowAccuracyCount++
		}
	}

	switch {
	case p.Present.Reached(v.InsideCount, v.TotalSamples):
		v.Status = StatusPresent
		if submittedAt.After(sess.StartsAt.Add(p.LateAfter)) {
			v.Status = StatusLate
		}
	case v.InsideCount > 0 && p.Short.Reached(v.InsideCount, v.TotalSamples):
		v.Status = StatusShort
	default:
		v.Status = StatusInvalid
	}
	return v, nil
}

// SessionResolver finds the session a token refers to, checking it is open at `at`.
type SessionResolver interface {
	Resolve(ctx context.Context, token string, at time.Time) (session.Session, error)
}

// Classifier resolves the referenced session and classifies batches against it.
// It holds no mutable state and can be shared between goroutines.
type Classifier struct {
	policy   Policy
	sessions SessionResolver
}

func NewClassifier(policy Policy, sessions SessionResolver) (*Classifier, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{policy: policy, sessions: sessions}, nil
}

func (c *Classifier) Policy() Policy { return c.policy }

func (c *Classifier) Classify(ctx context.Context, batch SampleBatch, submittedAt time.Time) (Verdict, session.Session, error) {
	if err := checkBatch(c.policy, batch); err != nil {
		return Verdict{}, session.Session{}, err
	}
	sess, err := c.sessions.Resolve(ctx, batch.SessionToken, submittedAt)
	if err != nil {
		return Verdict{}, session.Session{}, err
	}
	v, err := Classify(c.policy, sess, batch, submittedAt)
	if err != nil {
		return Verdict{}, session.Session{}, err
	}
	return v, sess, nil
}
