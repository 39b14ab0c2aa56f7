package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
)

type attendanceRepository struct {
	db       *attendanceTable
	sessions *sessionTable
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.attendance, sessions: db.session}
}

func (repo *attendanceRepository) CreateRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, r := range repo.db.records {
		if r.SessionID == rec.SessionID && r.StudentID == rec.StudentID {
			return attendance.Record{}, attendance.ErrAlreadySubmitted
		}
	}
	rec.Samples = append([]attendance.GeoSample(nil), rec.Samples...)
	repo.db.records = append(repo.db.records, rec)
	return rec, nil
}

func (repo *attendanceRepository) GetRecord(_ context.Context, sessionID uuid.UUID, studentID string) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range repo.db.records {
		if r.SessionID == sessionID && r.StudentID == studentID {
			return r, nil
		}
	}
	return attendance.Record{}, attendance.ErrRecordNotFound
}

func (repo *attendanceRepository) ListRecordsBySession(_ context.Context, sessionID uuid.UUID) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	records := make([]attendance.Record, 0)
	for _, r := range repo.db.records {
		if r.SessionID == sessionID {
			records = append(records, r)
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].SubmittedAt.Before(records[j].SubmittedAt) })
	return records, nil
}

func (repo *attendanceRepository) ListHistory(_ context.Context, studentID string, ordering []core.DBOrdering) ([]attendance.HistoryEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.sessions.RLock()
	defer repo.sessions.RUnlock()

	entries := make([]attendance.HistoryEntry, 0)
	for _, r := range repo.db.records {
		if r.StudentID != studentID {
			continue
		}
		entry := attendance.HistoryEntry{
			SessionID:   r.SessionID,
			Verdict:     r.Verdict,
			SubmittedAt: r.SubmittedAt,
		}
		if sess, ok := repo.sessions.table[r.SessionID]; ok {
			entry.ClassroomName = sess.ClassroomName
			entry.SubjectName = sess.SubjectName
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool { return historyLess(entries[i], entries[j], ordering) })
	return entries, nil
}

func historyLess(a, b attendance.HistoryEntry, ordering []core.DBOrdering) bool {
	for _, ord := range ordering {
		var cmp int
		switch ord.Field {
		case "submitted_at":
			switch {
			case a.SubmittedAt.Before(b.SubmittedAt):
				cmp = -1
			case a.SubmittedAt.After(b.SubmittedAt):
				cmp = 1
			}
		case "status":
			cmp = strings.Compare(string(a.Status), string(b.Status))
		case "subject_name":
			cmp = strings.Compare(a.SubjectName, b.SubjectName)
		case "inside_count":
			cmp = a.InsideCount - b.InsideCount
		}
		if cmp == 0 {
			continue
		}
		if ord.Ascending {
			return cmp < 0
		}
		return cmp > 0
	}
	return false
}

func (repo *attendanceRepository) CreateManualEntry(_ context.Context, entry attendance.ManualEntry) (attendance.ManualEntry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.manual = append(repo.db.manual, entry)
	return entry, nil
}

func (repo *attendanceRepository) ListManualEntries(_ context.Context, sessionID uuid.UUID) ([]attendance.ManualEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]attendance.ManualEntry, 0)
	for _, e := range repo.db.manual {
		if e.SessionID == sessionID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (repo *attendanceRepository) CreateInvalidAttempt(_ context.Context, attempt attendance.InvalidAttempt) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.attempts = append(repo.db.attempts, attempt)
	return nil
}

// InvalidAttempts returns every rejected submission stored so far.
func (db *DB) InvalidAttempts() []attendance.InvalidAttempt {
	db.attendance.RLock()
	defer db.attendance.RUnlock()
	return append([]attendance.InvalidAttempt(nil), db.attendance.attempts...)
}
