package attendance

import (
	"context"
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/geofence"
	"github.com/trezcool/hazira/core/identity"
	"github.com/trezcool/hazira/core/session"
)

var NowFunc = time.Now // mockable

// rejection reasons, also used as metric labels
const (
	ReasonInvalidBatch      = "invalid_batch"
	ReasonSessionNotFound   = "session_not_found"
	ReasonSessionExpired    = "session_expired"
	ReasonMalformedGeofence = "malformed_geofence"
)

// historyOrderings are the fields a history may be sorted by.
var historyOrderings = []string{"submitted_at", "status", "subject_name", "inside_count"}

type (
	Repository interface {
		// CreateRecord returns ErrAlreadySubmitted when the student already has a record for the session.
		CreateRecord(ctx context.Context, rec Record) (Record, error)
		GetRecord(ctx context.Context, sessionID uuid.UUID, studentID string) (Record, error)
		ListRecordsBySession(ctx context.Context, sessionID uuid.UUID) ([]Record, error)
		ListHistory(ctx context.Context, studentID string, ordering []core.DBOrdering) ([]HistoryEntry, error)
		CreateManualEntry(ctx context.Context, entry ManualEntry) (ManualEntry, error)
		ListManualEntries(ctx context.Context, sessionID uuid.UUID) ([]ManualEntry, error)
		CreateInvalidAttempt(ctx context.Context, attempt InvalidAttempt) error
	}

	Sessions interface {
		SessionResolver
		GetOwned(ctx context.Context, teacherID string, id uuid.UUID) (session.Session, error)
	}

	Metrics interface {
		ObserveClassification(d time.Duration)
		IncVerdict(status Status)
		IncRejected(reason string)
	}

	Deps struct {
		Repo      Repository
		Sessions  Sessions
		Policy    Policy
		Publisher core.Publisher
		Metrics   Metrics
		Logger    core.Logger
		// Validate and Translator check incoming batches; a fresh english validator is used when nil.
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Service struct {
		repo       Repository
		sessions   Sessions
		classifier *Classifier
		publisher  core.Publisher
		metrics    Metrics
		logger     core.Logger
		validate   *validator.Validate
		translator ut.Translator
	}
)

type nopMetrics struct{}

func (nopMetrics) ObserveClassification(time.Duration) {}
func (nopMetrics) IncVerdict(Status)                   {}
func (nopMetrics) IncRejected(string)                  {}

func NewService(deps Deps) (*Service, error) {
	classifier, err := NewClassifier(deps.Policy, deps.Sessions)
	if err != nil {
		return nil, err
	}
	svc := &Service{
		repo:       deps.Repo,
		sessions:   deps.Sessions,
		classifier: classifier,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		validate:   deps.Validate,
		translator: deps.Translator,
	}
	if svc.validate == nil {
		svc.validate = validator.New()
		svc.translator = core.NewTranslator()
		core.InitValidators(svc.validate, svc.translator)
		session.InitValidators(svc.validate, svc.translator)
		InitValidators(svc.validate, svc.translator)
	}
	if svc.metrics == nil {
		svc.metrics = nopMetrics{}
	}
	if svc.logger == nil {
		svc.logger = core.NopLogger{}
	}
	return svc, nil
}

// RejectionReason names the category of a submission error, or "" if it is not a rejection.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidBatch):
		return ReasonInvalidBatch
	case errors.Is(err, session.ErrNotFound):
		return ReasonSessionNotFound
	case errors.Is(err, session.ErrExpired):
		return ReasonSessionExpired
	case errors.Is(err, geofence.ErrMalformed):
		return ReasonMalformedGeofence
	}
	return ""
}

// Submit classifies and stores a student's batch.
// A second submission for the same session returns the first verdict unchanged.
func (svc *Service) Submit(ctx context.Context, requester identity.Requester, batch SampleBatch) (SubmitResult, error) {
	if requester.IsAnonymous() {
		return SubmitResult{}, ErrMissingRequester
	}
	if !requester.IsStudent() {
		return SubmitResult{}, ErrNotStudent
	}
	now := NowFunc().UTC()

	if err := batch.Validate(svc.validate, svc.translator); err != nil {
		if reason := RejectionReason(err); reason != "" {
			svc.reject(ctx, requester, batch.SessionToken, reason, now)
			return SubmitResult{}, err
		}
		return SubmitResult{}, errors.Wrap(err, "validating batch")
	}

	start := time.Now()
	verdict, sess, err := svc.classifier.Classify(ctx, batch, now)
	svc.metrics.ObserveClassification(time.Since(start))
	if err != nil {
		if reason := RejectionReason(err); reason != "" {
			svc.reject(ctx, requester, batch.SessionToken, reason, now)
			return SubmitResult{}, err
		}
		return SubmitResult{}, errors.Wrap(err, "classifying batch")
	}

	existing, err := svc.repo.GetRecord(ctx, sess.ID, requester.ID)
	switch {
	case err == nil:
		return SubmitResult{Verdict: existing.Verdict, SessionID: sess.ID, AlreadySubmitted: true}, nil
	case !errors.Is(err, ErrRecordNotFound):
		return SubmitResult{}, errors.Wrap(err, "checking previous submission")
	}

	rec, err := svc.repo.CreateRecord(ctx, Record{
		ID:          uuid.New(),
		SessionID:   sess.ID,
		StudentID:   requester.ID,
		Verdict:     verdict,
		Samples:     append([]GeoSample(nil), batch.Samples...),
		SubmittedAt: now,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySubmitted) { // lost a race with a concurrent submission
			existing, gErr := svc.repo.GetRecord(ctx, sess.ID, requester.ID)
			if gErr != nil {
				return SubmitResult{}, errors.Wrap(gErr, "fetching concurrent submission")
			}
			return SubmitResult{Verdict: existing.Verdict, SessionID: sess.ID, AlreadySubmitted: true}, nil
		}
		return SubmitResult{}, errors.Wrap(err, "storing attendance record")
	}

	svc.metrics.IncVerdict(rec.Status)
	svc.publish(ctx, TopicVerdictRecorded, VerdictRecorded{
		RecordID:    rec.ID,
		SessionID:   rec.SessionID,
		StudentID:   rec.StudentID,
		Verdict:     rec.Verdict,
		SubmittedAt: rec.SubmittedAt,
	})
	svc.logger.Info(
		fmt.Sprintf("attendance recorded: %s %d/%d", rec.Status, rec.InsideCount, rec.TotalSamples),
		map[string]interface{}{"session_id": rec.SessionID.String()},
		requester,
	)
	return SubmitResult{Verdict: rec.Verdict, SessionID: rec.SessionID}, nil
}

func (svc *Service) reject(ctx context.Context, requester identity.Requester, token, reason string, at time.Time) {
	svc.metrics.IncRejected(reason)

	attempt := InvalidAttempt{
		ID:           uuid.New(),
		StudentID:    requester.ID,
		SessionToken: token,
		Reason:       reason,
		AttemptedAt:  at,
	}
	if err := svc.repo.CreateInvalidAttempt(ctx, attempt); err != nil {
		svc.logger.Error("storing invalid attempt", errors.Wrap(err, "storing invalid attempt"), requester)
	}
	svc.publish(ctx, TopicAttemptRejected, AttemptRejected{
		AttemptID:    attempt.ID,
		StudentID:    attempt.StudentID,
		SessionToken: attempt.SessionToken,
		Reason:       attempt.Reason,
		AttemptedAt:  attempt.AttemptedAt,
	})
}

// History returns the student's verdicts. Unknown ordering fields are ignored.
func (svc *Service) History(ctx context.Context, studentID string, ordering []core.DBOrdering) ([]HistoryEntry, error) {
	ordering = core.AllowedOrderings(ordering, core.DBOrdering{Field: "submitted_at"}, historyOrderings...)
	return svc.repo.ListHistory(ctx, studentID, ordering)
}

// SessionReport summarizes a session for the teacher who opened it.
// Manual entries count as present.
func (svc *Service) SessionReport(ctx context.Context, teacherID string, sessionID uuid.UUID) (SessionReport, error) {
	sess, err := svc.sessions.GetOwned(ctx, teacherID, sessionID)
	if err != nil {
		return SessionReport{}, err
	}
	records, err := svc.repo.ListRecordsBySession(ctx, sess.ID)
	if err != nil {
		return SessionReport{}, errors.Wrap(err, "listing records")
	}
	manual, err := svc.repo.ListManualEntries(ctx, sess.ID)
	if err != nil {
		return SessionReport{}, errors.Wrap(err, "listing manual entries")
	}

	report := SessionReport{
		SessionID:     sess.ID,
		ClassroomName: sess.ClassroomName,
		SubjectName:   sess.SubjectName,
		StartsAt:      sess.StartsAt,
		EndsAt:        sess.EndsAt,
		Records:       make([]Record, 0, len(records)),
		Manual:        manual,
	}
	for _, rec := range records {
		rec.Samples = nil
		report.Records = append(report.Records, rec)
		report.Stats.add(rec.Status)
	}
	for range manual {
		report.Stats.add(StatusPresent)
	}
	return report, nil
}

// AddManual records attendance on behalf of a student. `nm` must have been validated.
func (svc *Service) AddManual(ctx context.Context, teacherID string, sessionID uuid.UUID, nm NewManualEntry) (ManualEntry, error) {
	sess, err := svc.sessions.GetOwned(ctx, teacherID, sessionID)
	if err != nil {
		return ManualEntry{}, err
	}
	entry, err := svc.repo.CreateManualEntry(ctx, ManualEntry{
		ID:          uuid.New(),
		SessionID:   sess.ID,
		StudentName: nm.StudentName,
		RollNumber:  nm.RollNumber,
		Remarks:     nm.Remarks,
		RecordedBy:  teacherID,
		RecordedAt:  NowFunc().UTC(),
	})
	if err != nil {
		return ManualEntry{}, errors.Wrap(err, "storing manual entry")
	}
	svc.publish(ctx, TopicManualRecorded, ManualRecorded{Entry: entry})
	return entry, nil
}

func (svc *Service) publish(ctx context.Context, topic string, event interface{}) {
	if svc.publisher == nil {
		return
	}
	if err := svc.publisher.Publish(ctx, topic, event); err != nil {
		svc.logger.Warn("publishing "+topic, err)
	}
}
