package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/session"
)

type sessionRepository struct {
	db *sessionTable
}

var _ session.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db *DB) session.Repository {
	return &sessionRepository{db: db.session}
}

func (repo *sessionRepository) CreateSession(_ context.Context, sess session.Session) (session.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[sess.ID]; ok {
		return session.Session{}, errors.Errorf("session %s already exists", sess.ID)
	}
	if _, ok := repo.db.byToken[sess.Token]; ok {
		return session.Session{}, errors.New("session token already in use")
	}
	repo.db.table[sess.ID] = &sess
	repo.db.byToken[sess.Token] = sess.ID
	return sess, nil
}

func (repo *sessionRepository) GetSessionByID(_ context.Context, id uuid.UUID) (session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sess, ok := repo.db.table[id]; ok {
		return *sess, nil
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) GetSessionByToken(_ context.Context, token string) (session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if id, ok := repo.db.byToken[token]; ok {
		return *repo.db.table[id], nil
	}
	return session.Session{}, session.ErrNotFound
}

func (repo *sessionRepository) ListSessionsByTeacher(_ context.Context, teacherID string) ([]session.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sessions := make([]session.Session, 0)
	for _, sess := range repo.db.table {
		if sess.TeacherID == teacherID {
			sessions = append(sessions, *sess)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
	return sessions, nil
}
