package pgrepos

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/geofence"
	"github.com/trezcool/hazira/core/session"
)

var (
	t0 = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

	sessionRowColumns = []string{
		"id", "teacher_id", "classroom_name", "subject_name", "geofence", "token",
		"starts_at", "ends_at", "token_expires_at", "created_at",
	}
	recordRowColumns = []string{
		"id", "session_id", "student_id", "status", "inside_count", "total_samples",
		"low_accuracy_count", "samples", "submitted_at",
	}
	fenceJSON = []byte(`[[18.7765,73.6944],[18.7579,73.6673],[18.7438,73.6876],[18.7629,73.7194]]`)
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		_ = db.Close()
	})
	return db, mock
}

func addSessionRow(rows *sqlmock.Rows, id uuid.UUID, teacherID, token string) *sqlmock.Rows {
	return rows.AddRow(
		id.String(), teacherID, "Lab 1", "Physics", fenceJSON, token,
		t0, t0.Add(time.Hour), t0.Add(10*time.Minute), t0,
	)
}

func TestOrderBy(t *testing.T) {
	tests := []struct {
		name     string
		ordering []core.DBOrdering
		want     string
	}{
		{name: "none", want: ""},
		{name: "unknown only", ordering: []core.DBOrdering{{Field: "evil; DROP TABLE x"}}, want: ""},
		{
			name:     "mapped",
			ordering: []core.DBOrdering{{Field: "subject_name", Ascending: true}, {Field: "lol"}, {Field: "submitted_at"}},
			want:     " ORDER BY s.subject_name ASC, r.submitted_at DESC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderBy(tt.ordering, historyColumns))
		})
	}
}

func TestSessionRepository_CreateSession(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	sess := session.Session{
		ID:            uuid.New(),
		TeacherID:     "teacher-1",
		ClassroomName: "Lab 1",
		SubjectName:   "Physics",
		Geofence: geofence.MustNew(
			geofence.Point{Lat: 18.7765, Lng: 73.6944},
			geofence.Point{Lat: 18.7579, Lng: 73.6673},
			geofence.Point{Lat: 18.7438, Lng: 73.6876},
			geofence.Point{Lat: 18.7629, Lng: 73.7194},
		),
		Token:          "hz_abcdefghijklmnopqrstuvwx",
		StartsAt:       t0,
		EndsAt:         t0.Add(time.Hour),
		TokenExpiresAt: t0.Add(10 * time.Minute),
		CreatedAt:      t0,
	}

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(
			sess.ID, "teacher-1", "Lab 1", "Physics", fenceJSON, sess.Token,
			t0, t0.Add(time.Hour), t0.Add(10*time.Minute), t0,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.CreateSession(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.Geofence.Vertices(), got.Geofence.Vertices())
}

func TestSessionRepository_get(t *testing.T) {
	id := uuid.New()
	token := "hz_abcdefghijklmnopqrstuvwx"

	t.Run("by token", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE token = $1")).
			WithArgs(token).
			WillReturnRows(addSessionRow(sqlmock.NewRows(sessionRowColumns), id, "teacher-1", token))

		sess, err := NewSessionRepository(db).GetSessionByToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, id, sess.ID)
		assert.Equal(t, 4, sess.Geofence.Len())
		assert.NoError(t, sess.Geofence.Validate())
		assert.Equal(t, t0.Add(10*time.Minute), sess.TokenExpiresAt)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1")).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		_, err := NewSessionRepository(db).GetSessionByID(context.Background(), id)
		assert.Equal(t, session.ErrNotFound, err)
	})

	t.Run("driver error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1")).
			WithArgs(id).
			WillReturnError(errors.New("connection reset"))

		_, err := NewSessionRepository(db).GetSessionByID(context.Background(), id)
		require.Error(t, err)
		assert.NotEqual(t, session.ErrNotFound, errors.Cause(err))
	})
}

func TestSessionRepository_ListSessionsByTeacher(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows(sessionRowColumns)
	addSessionRow(rows, uuid.New(), "teacher-1", "hz_abcdefghijklmnopqrstuvwx")
	addSessionRow(rows, uuid.New(), "teacher-1", "hz_bcdefghijklmnopqrstuvwxy")
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE teacher_id = $1 ORDER BY created_at DESC")).
		WithArgs("teacher-1").
		WillReturnRows(rows)

	sessions, err := NewSessionRepository(db).ListSessionsByTeacher(context.Background(), "teacher-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestAttendanceRepository_CreateRecord(t *testing.T) {
	rec := attendance.Record{
		ID:          uuid.New(),
		SessionID:   uuid.New(),
		StudentID:   "student-1",
		Verdict:     attendance.Verdict{Status: attendance.StatusLate, InsideCount: 9, TotalSamples: 12, LowAccuracyCount: 1},
		Samples:     []attendance.GeoSample{{Latitude: 18.76, Longitude: 73.69, AccuracyMeters: 120, CapturedAt: t0}},
		SubmittedAt: t0,
	}

	tests := []struct {
		name    string
		dbErr   error
		wantErr error
	}{
		{name: "stored"},
		{name: "duplicate", dbErr: &pq.Error{Code: "23505"}, wantErr: attendance.ErrAlreadySubmitted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			exp := mock.ExpectExec("INSERT INTO attendance_records").
				WithArgs(rec.ID, rec.SessionID, "student-1", "Late", 9, 12, 1, sqlmock.AnyArg(), t0)
			if tt.dbErr != nil {
				exp.WillReturnError(tt.dbErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			got, err := NewAttendanceRepository(db).CreateRecord(context.Background(), rec)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, rec, got)
		})
	}
}

func TestAttendanceRepository_GetRecord(t *testing.T) {
	sessionID := uuid.New()
	q := regexp.QuoteMeta("FROM attendance_records WHERE session_id = $1 AND student_id = $2")

	t.Run("legacy status", func(t *testing.T) {
		db, mock := newMockDB(t)
		rows := sqlmock.NewRows(recordRowColumns).AddRow(
			uuid.New().String(), sessionID.String(), "student-1", "Invalid Attempt", 0, 12, 0,
			[]byte(`[{"latitude":1,"longitude":2,"accuracy_meters":3,"captured_at":"2024-03-04T09:00:00Z"}]`), t0,
		)
		mock.ExpectQuery(q).WithArgs(sessionID, "student-1").WillReturnRows(rows)

		rec, err := NewAttendanceRepository(db).GetRecord(context.Background(), sessionID, "student-1")
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusInvalid, rec.Status)
		require.Len(t, rec.Samples, 1)
		assert.Equal(t, 3.0, rec.Samples[0].AccuracyMeters)
		assert.True(t, t0.Equal(rec.Samples[0].CapturedAt))
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(q).WithArgs(sessionID, "student-2").WillReturnError(sql.ErrNoRows)

		_, err := NewAttendanceRepository(db).GetRecord(context.Background(), sessionID, "student-2")
		assert.Equal(t, attendance.ErrRecordNotFound, err)
	})
}

func TestAttendanceRepository_ListHistory(t *testing.T) {
	db, mock := newMockDB(t)
	sessionID := uuid.New()

	rows := sqlmock.NewRows([]string{
		"session_id", "classroom_name", "subject_name", "status", "inside_count",
		"total_samples", "low_accuracy_count", "submitted_at",
	}).AddRow(sessionID.String(), "Lab 1", "Physics", "Present", 12, 12, 0, t0)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.student_id = $1 ORDER BY r.submitted_at DESC")).
		WithArgs("student-1").
		WillReturnRows(rows)

	entries, err := NewAttendanceRepository(db).ListHistory(
		context.Background(), "student-1", []core.DBOrdering{{Field: "submitted_at"}},
	)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Physics", entries[0].SubjectName)
	assert.Equal(t, attendance.StatusPresent, entries[0].Status)
}

func TestAttendanceRepository_manualEntries(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAttendanceRepository(db)
	sessionID := uuid.New()
	entry := attendance.ManualEntry{
		ID:          uuid.New(),
		SessionID:   sessionID,
		StudentName: "Baraka",
		RollNumber:  "R-07",
		RecordedBy:  "teacher-1",
		RecordedAt:  t0,
	}

	mock.ExpectExec("INSERT INTO manual_attendance").
		WithArgs(entry.ID, sessionID, "Baraka", "R-07", nil, "teacher-1", t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM manual_attendance WHERE session_id = $1")).
		WithArgs(sessionID).
		WillReturnRows(
			sqlmock.NewRows([]string{"id", "session_id", "student_name", "roll_number", "remarks", "recorded_by", "recorded_at"}).
				AddRow(entry.ID.String(), sessionID.String(), "Baraka", "R-07", nil, "teacher-1", t0),
		)

	got, err := repo.CreateManualEntry(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	entries, err := repo.ListManualEntries(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, []attendance.ManualEntry{entry}, entries)
}

func TestAttendanceRepository_CreateInvalidAttempt(t *testing.T) {
	db, mock := newMockDB(t)
	attempt := attendance.InvalidAttempt{
		ID:          uuid.New(),
		StudentID:   "student-1",
		Reason:      attendance.ReasonInvalidBatch,
		AttemptedAt: t0,
	}

	mock.ExpectExec("INSERT INTO invalid_attempts").
		WithArgs(attempt.ID, "student-1", nil, attendance.ReasonInvalidBatch, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, NewAttendanceRepository(db).CreateInvalidAttempt(context.Background(), attempt))
}
