package pgrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/hazira/core/session"
)

const sessionColumns = `id, teacher_id, classroom_name, subject_name, geofence, token,
	starts_at, ends_at, token_expires_at, created_at`

type sessionRow struct {
	ID             uuid.UUID `db:"id"`
	TeacherID      string    `db:"teacher_id"`
	ClassroomName  string    `db:"classroom_name"`
	SubjectName    string    `db:"subject_name"`
	Geofence       null.JSON `db:"geofence"`
	Token          string    `db:"token"`
	StartsAt       time.Time `db:"starts_at"`
	EndsAt         time.Time `db:"ends_at"`
	TokenExpiresAt time.Time `db:"token_expires_at"`
	CreatedAt      time.Time `db:"created_at"`
}

func newSessionRow(sess session.Session) (sessionRow, error) {
	fence, err := json.Marshal(sess.Geofence)
	if err != nil {
		return sessionRow{}, errors.Wrap(err, "encoding geofence")
	}
	return sessionRow{
		ID:             sess.ID,
		TeacherID:      sess.TeacherID,
		ClassroomName:  sess.ClassroomName,
		SubjectName:    sess.SubjectName,
		Geofence:       null.JSONFrom(fence),
		Token:          sess.Token,
		StartsAt:       sess.StartsAt.UTC(),
		EndsAt:         sess.EndsAt.UTC(),
		TokenExpiresAt: sess.TokenExpiresAt.UTC(),
		CreatedAt:      sess.CreatedAt.UTC(),
	}, nil
}

func (row sessionRow) session() (session.Session, error) {
	sess := session.Session{
		ID:             row.ID,
		TeacherID:      row.TeacherID,
		ClassroomName:  row.ClassroomName,
		SubjectName:    row.SubjectName,
		Token:          row.Token,
		StartsAt:       row.StartsAt.UTC(),
		EndsAt:         row.EndsAt.UTC(),
		TokenExpiresAt: row.TokenExpiresAt.UTC(),
		CreatedAt:      row.CreatedAt.UTC(),
	}
	// a stored geofence that no longer validates is reported by the classifier, not here
	if row.Geofence.Valid {
		if err := row.Geofence.Unmarshal(&sess.Geofence); err != nil {
			return session.Session{}, errors.Wrap(err, "decoding geofence")
		}
	}
	return sess, nil
}

type sessionRepository struct {
	db *sqlx.DB
}

var _ session.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db *sql.DB) session.Repository {
	return &sessionRepository{db: newDB(db)}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, sess session.Session) (session.Session, error) {
	row, err := newSessionRow(sess)
	if err != nil {
		return session.Session{}, err
	}
	q := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES (:id, :teacher_id, :classroom_name, :subject_name, :geofence, :token,
			:starts_at, :ends_at, :token_expires_at, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return session.Session{}, errors.Wrap(err, "inserting session")
	}
	return row.session()
}

func (repo *sessionRepository) get(ctx context.Context, where string, arg interface{}) (session.Session, error) {
	var row sessionRow
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE ` + where
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, errors.Wrap(err, "selecting session")
	}
	return row.session()
}

func (repo *sessionRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (session.Session, error) {
	return repo.get(ctx, "id = $1", id)
}

func (repo *sessionRepository) GetSessionByToken(ctx context.Context, token string) (session.Session, error) {
	return repo.get(ctx, "token = $1", token)
}

func (repo *sessionRepository) ListSessionsByTeacher(ctx context.Context, teacherID string) ([]session.Session, error) {
	var rows []sessionRow
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE teacher_id = $1 ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, teacherID); err != nil {
		return nil, errors.Wrap(err, "selecting sessions")
	}
	sessions := make([]session.Session, 0, len(rows))
	for _, row := range rows {
		sess, err := row.session()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}
