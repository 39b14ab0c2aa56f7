package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
)

const recordColumns = `id, session_id, student_id, status, inside_count, total_samples,
	low_accuracy_count, samples, submitted_at`

var historyColumns = map[string]string{
	"submitted_at": "r.submitted_at",
	"status":       "r.status",
	"subject_name": "s.subject_name",
	"inside_count": "r.inside_count",
}

type recordRow struct {
	ID               uuid.UUID `db:"id"`
	SessionID        uuid.UUID `db:"session_id"`
	StudentID        string    `db:"student_id"`
	Status           string    `db:"status"`
	InsideCount      int       `db:"inside_count"`
	TotalSamples     int       `db:"total_samples"`
	LowAccuracyCount int       `db:"low_accuracy_count"`
	Samples          null.JSON `db:"samples"`
	SubmittedAt      time.Time `db:"submitted_at"`
}

func (row recordRow) record() (attendance.Record, error) {
	status, err := attendance.ParseStatus(row.Status)
	if err != nil {
		return attendance.Record{}, err
	}
	rec := attendance.Record{
		ID:        row.ID,
		SessionID: row.SessionID,
		StudentID: row.StudentID,
		Verdict: attendance.Verdict{
			Status:           status,
			InsideCount:      row.InsideCount,
			TotalSamples:     row.TotalSamples,
			LowAccuracyCount: row.LowAccuracyCount,
		},
		SubmittedAt: row.SubmittedAt.UTC(),
	}
	if row.Samples.Valid {
		if err := row.Samples.Unmarshal(&rec.Samples); err != nil {
			return attendance.Record{}, errors.Wrap(err, "decoding samples")
		}
	}
	return rec, nil
}

type historyRow struct {
	SessionID        uuid.UUID `db:"session_id"`
	ClassroomName    string    `db:"classroom_name"`
	SubjectName      string    `db:"subject_name"`
	Status           string    `db:"status"`
	InsideCount      int       `db:"inside_count"`
	TotalSamples     int       `db:"total_samples"`
	LowAccuracyCount int       `db:"low_accuracy_count"`
	SubmittedAt      time.Time `db:"submitted_at"`
}

type manualRow struct {
	ID          uuid.UUID   `db:"id"`
	SessionID   uuid.UUID   `db:"session_id"`
	StudentName string      `db:"student_name"`
	RollNumber  string      `db:"roll_number"`
	Remarks     null.String `db:"remarks"`
	RecordedBy  string      `db:"recorded_by"`
	RecordedAt  time.Time   `db:"recorded_at"`
}

func (row manualRow) entry() attendance.ManualEntry {
	return attendance.ManualEntry{
		ID:          row.ID,
		SessionID:   row.SessionID,
		StudentName: row.StudentName,
		RollNumber:  row.RollNumber,
		Remarks:     row.Remarks.String,
		RecordedBy:  row.RecordedBy,
		RecordedAt:  row.RecordedAt.UTC(),
	}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *sql.DB) attendance.Repository {
	return &attendanceRepository{db: newDB(db)}
}

func (repo *attendanceRepository) CreateRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	row := recordRow{
		ID:               rec.ID,
		SessionID:        rec.SessionID,
		StudentID:        rec.StudentID,
		Status:           string(rec.Status),
		InsideCount:      rec.InsideCount,
		TotalSamples:     rec.TotalSamples,
		LowAccuracyCount: rec.LowAccuracyCount,
		SubmittedAt:      rec.SubmittedAt.UTC(),
	}
	if err := row.Samples.Marshal(rec.Samples); err != nil {
		return attendance.Record{}, errors.Wrap(err, "encoding samples")
	}

	q := `INSERT INTO attendance_records (` + recordColumns + `)
		VALUES (:id, :session_id, :student_id, :status, :inside_count, :total_samples,
			:low_accuracy_count, :samples, :submitted_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err) {
			return attendance.Record{}, attendance.ErrAlreadySubmitted
		}
		return attendance.Record{}, errors.Wrap(err, "inserting attendance record")
	}
	return rec, nil
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, sessionID uuid.UUID, studentID string) (attendance.Record, error) {
	var row recordRow
	q := `SELECT ` + recordColumns + ` FROM attendance_records WHERE session_id = $1 AND student_id = $2`
	if err := repo.db.GetContext(ctx, &row, q, sessionID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.Record{}, attendance.ErrRecordNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "selecting attendance record")
	}
	return row.record()
}

func (repo *attendanceRepository) ListRecordsBySession(ctx context.Context, sessionID uuid.UUID) ([]attendance.Record, error) {
	var rows []recordRow
	q := `SELECT ` + recordColumns + ` FROM attendance_records WHERE session_id = $1 ORDER BY submitted_at`
	if err := repo.db.SelectContext(ctx, &rows, q, sessionID); err != nil {
		return nil, errors.Wrap(err, "selecting attendance records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (repo *attendanceRepository) ListHistory(ctx context.Context, studentID string, ordering []core.DBOrdering) ([]attendance.HistoryEntry, error) {
	var rows []historyRow
	q := `SELECT r.session_id, s.classroom_name, s.subject_name, r.status, r.inside_count,
			r.total_samples, r.low_accuracy_count, r.submitted_at
		FROM attendance_records r
		JOIN sessions s ON s.id = r.session_id
		WHERE r.student_id = $1` + orderBy(ordering, historyColumns)
	if err := repo.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "selecting attendance history")
	}

	entries := make([]attendance.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		status, err := attendance.ParseStatus(row.Status)
		if err != nil {
			return nil, err
		}
		entries = append(entries, attendance.HistoryEntry{
			SessionID:     row.SessionID,
			ClassroomName: row.ClassroomName,
			SubjectName:   row.SubjectName,
			Verdict: attendance.Verdict{
				Status:           status,
				InsideCount:      row.InsideCount,
				TotalSamples:     row.TotalSamples,
				LowAccuracyCount: row.LowAccuracyCount,
			},
			SubmittedAt: row.SubmittedAt.UTC(),
		})
	}
	return entries, nil
}

func (repo *attendanceRepository) CreateManualEntry(ctx context.Context, entry attendance.ManualEntry) (attendance.ManualEntry, error) {
	row := manualRow{
		ID:          entry.ID,
		SessionID:   entry.SessionID,
		StudentName: entry.StudentName,
		RollNumber:  entry.RollNumber,
		Remarks:     null.NewString(entry.Remarks, entry.Remarks != ""),
		RecordedBy:  entry.RecordedBy,
		RecordedAt:  entry.RecordedAt.UTC(),
	}
	q := `INSERT INTO manual_attendance (id, session_id, student_name, roll_number, remarks, recorded_by, recorded_at)
		VALUES (:id, :session_id, :student_name, :roll_number, :remarks, :recorded_by, :recorded_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return attendance.ManualEntry{}, errors.Wrap(err, "inserting manual entry")
	}
	return row.entry(), nil
}

func (repo *attendanceRepository) ListManualEntries(ctx context.Context, sessionID uuid.UUID) ([]attendance.ManualEntry, error) {
	var rows []manualRow
	q := `SELECT id, session_id, student_name, roll_number, remarks, recorded_by, recorded_at
		FROM manual_attendance WHERE session_id = $1 ORDER BY recorded_at`
	if err := repo.db.SelectContext(ctx, &rows, q, sessionID); err != nil {
		return nil, errors.Wrap(err, "selecting manual entries")
	}
	entries := make([]attendance.ManualEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}

func (repo *attendanceRepository) CreateInvalidAttempt(ctx context.Context, attempt attendance.InvalidAttempt) error {
	q := `INSERT INTO invalid_attempts (id, student_id, session_token, reason, attempted_at)
		VALUES ($1, $2, $3, $4, $5)`
	token := null.NewString(attempt.SessionToken, attempt.SessionToken != "")
	if _, err := repo.db.ExecContext(ctx, q, attempt.ID, attempt.StudentID, token, attempt.Reason, attempt.AttemptedAt.UTC()); err != nil {
		return errors.Wrap(err, "inserting invalid attempt")
	}
	return nil
}
