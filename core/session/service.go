package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
)

const TopicCreated = "hazira.session.created"

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound       = errors.New("session not found")
	ErrExpired        = errors.New("session has expired")
	ErrNotOwner       = errors.New("session belongs to another teacher")
	ErrInvalidSession = errors.New("invalid session")
)

type (
	Repository interface {
		CreateSession(ctx context.Context, sess Session) (Session, error)
		GetSessionByID(ctx context.Context, id uuid.UUID) (Session, error)
		GetSessionByToken(ctx context.Context, token string) (Session, error)
		// ListSessionsByTeacher returns the teacher's sessions, most recent first.
		ListSessionsByTeacher(ctx context.Context, teacherID string) ([]Session, error)
	}

	// Created is published once a Session has been stored.
	Created struct {
		Session   View   `json:"session"`
		TeacherID string `json:"teacher_id"`
	}

	Service struct {
		repo      Repository
		publisher core.Publisher
		logger    core.Logger
		duration  time.Duration
		tokenTTL  time.Duration
	}
)

func NewService(repo Repository, conf *core.Config, publisher core.Publisher, logger core.Logger) *Service {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		duration:  conf.Attendance.SessionDuration,
		tokenTTL:  conf.Attendance.TokenTTL,
	}
}

// Create opens a new Session owned by `teacherID`. `ns` must have been validated.
func (svc *Service) Create(ctx context.Context, teacherID string, ns NewSession) (Session, error) {
	now := NowFunc().UTC()

	startsAt := now
	if ns.StartsAt != nil {
		startsAt = ns.StartsAt.UTC()
	}
	endsAt := startsAt.Add(svc.duration)
	if ns.EndsAt != nil {
		endsAt = ns.EndsAt.UTC()
	}
	if !endsAt.After(startsAt) {
		return Session{}, core.NewValidationError(ErrInvalidSession, core.FieldError{Field: "ends_at", Error: errEndsBeforeStart})
	}

	// the token lives for tokenTTL from whichever comes last: now or the start
	issuedFrom := now
	if startsAt.After(now) {
		issuedFrom = startsAt
	}
	tokenExpiresAt := issuedFrom.Add(svc.tokenTTL)
	if tokenExpiresAt.After(endsAt) {
		tokenExpiresAt = endsAt
	}

	token, err := GenerateToken()
	if err != nil {
		return Session{}, err
	}

	sess, err := svc.repo.CreateSession(ctx, Session{
		ID:             uuid.New(),
		TeacherID:      teacherID,
		ClassroomName:  ns.ClassroomName,
		SubjectName:    ns.SubjectName,
		Geofence:       ns.Geofence,
		Token:          token,
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		TokenExpiresAt: tokenExpiresAt,
		CreatedAt:      now,
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "storing session")
	}

	svc.publish(ctx, TopicCreated, Created{Session: sess.View(), TeacherID: teacherID})
	return sess, nil
}

func (svc *Service) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	return svc.repo.GetSessionByID(ctx, id)
}

// GetOwned returns the Session only when `teacherID` opened it.
func (svc *Service) GetOwned(ctx context.Context, teacherID string, id uuid.UUID) (Session, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.TeacherID != teacherID {
		return Session{}, ErrNotOwner
	}
	return sess, nil
}

func (svc *Service) ListByTeacher(ctx context.Context, teacherID string) ([]Session, error) {
	return svc.repo.ListSessionsByTeacher(ctx, teacherID)
}

// Resolve looks the Session up by token and checks it is still open at `at`.
// It always reads through to the repository.
func (svc *Service) Resolve(ctx context.Context, token string, at time.Time) (Session, error) {
	if !ValidToken(token) {
		return Session{}, ErrNotFound
	}
	sess, err := svc.repo.GetSessionByToken(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if !sess.ActiveAt(at) {
		return Session{}, ErrExpired
	}
	return sess, nil
}

// Lookup returns the Session behind `token` without checking its window.
func (svc *Service) Lookup(ctx context.Context, token string) (Session, error) {
	if !ValidToken(token) {
		return Session{}, ErrNotFound
	}
	return svc.repo.GetSessionByToken(ctx, token)
}

func (svc *Service) publish(ctx context.Context, topic string, event interface{}) {
	if svc.publisher == nil {
		return
	}
	if err := svc.publisher.Publish(ctx, topic, event); err != nil {
		svc.logger.Warn("publishing "+topic, err)
	}
}
