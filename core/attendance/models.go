package attendance

import (
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/geofence"
)

// Status is the attendance verdict category.
type Status string

const (
	StatusPresent Status = "Present"
	StatusLate    Status = "Late"
	StatusShort   Status = "Short"
	StatusInvalid Status = "Invalid"

	// legacyInvalid is how older records spell StatusInvalid.
	legacyInvalid = "Invalid Attempt"
)

var AllStatuses = []Status{StatusPresent, StatusLate, StatusShort, StatusInvalid}

func ParseStatus(s string) (Status, error) {
	s = core.CleanString(s)
	if strings.EqualFold(s, legacyInvalid) {
		return StatusInvalid, nil
	}
	for _, st := range AllStatuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", errors.Errorf("unknown attendance status %q", s)
}

// GeoSample is one location reading. It is never modified once captured.
type GeoSample struct {
	Latitude       float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude      float64   `json:"longitude" validate:"gte=-180,lte=180"`
	AccuracyMeters float64   `json:"accuracy_meters" validate:"accuracy"`
	CapturedAt     time.Time `json:"captured_at" validate:"required"`
}

func (s GeoSample) Point() geofence.Point {
	return geofence.Point{Lat: s.Latitude, Lng: s.Longitude}
}

// SampleBatch is what a student submits: the session reference and the samples in capture order.
type SampleBatch struct {
	SessionToken string      `json:"session_token" validate:"required,sessiontoken"`
	Samples      []GeoSample `json:"samples" validate:"required,min=1,dive"`
}

func (b *SampleBatch) Validate(validate *validator.Validate, translator ut.Translator) error {
	b.SessionToken = core.CleanString(b.SessionToken)
	return core.ValidateStruct(validate, translator, b, ErrInvalidBatch)
}

// Verdict is the outcome of classifying one SampleBatch.
type Verdict struct {
	Status       Status `json:"status"`
	InsideCount  int    `json:"inside_count"`
	TotalSamples int    `json:"total_samples"`
	// LowAccuracyCount is reporting only; accuracy never decides inside/outside.
	LowAccuracyCount int `json:"low_accuracy_count"`
}

// SubmitResult is returned to the submitting student.
type SubmitResult struct {
	Verdict
	SessionID        uuid.UUID `json:"session_id"`
	AlreadySubmitted bool      `json:"already_submitted"`
}

// Record is a stored verdict.
type Record struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	StudentID string    `json:"student_id"`
	Verdict
	Samples     []GeoSample `json:"samples,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"` // UTC
}

// InvalidAttempt is a submission that was rejected before a verdict could be produced.
type InvalidAttempt struct {
	ID           uuid.UUID `json:"id"`
	StudentID    string    `json:"student_id"`
	SessionToken string    `json:"session_token,omitempty"`
	Reason       string    `json:"reason"`
	AttemptedAt  time.Time `json:"attempted_at"` // UTC
}

// ManualEntry is attendance recorded by the teacher on a student's behalf.
type ManualEntry struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	StudentName string    `json:"student_name"`
	RollNumber  string    `json:"roll_number"`
	Remarks     string    `json:"remarks,omitempty"`
	RecordedBy  string    `json:"recorded_by"`
	RecordedAt  time.Time `json:"recorded_at"` // UTC
}

type NewManualEntry struct {
	StudentName string `json:"student_name" validate:"notblank,max=120"`
	RollNumber  string `json:"roll_number" validate:"notblank,max=40"`
	Remarks     string `json:"remarks" validate:"max=500"`
}

func (nm *NewManualEntry) Validate(validate *validator.Validate, translator ut.Translator) error {
	nm.StudentName = core.CleanString(nm.StudentName)
	nm.RollNumber = core.CleanString(nm.RollNumber)
	nm.Remarks = core.CleanString(nm.Remarks)
	return core.ValidateStruct(validate, translator, nm, ErrInvalidEntry)
}

// HistoryEntry is one line of a student's attendance history.
type HistoryEntry struct {
	SessionID     uuid.UUID `json:"session_id"`
	ClassroomName string    `json:"classroom_name"`
	SubjectName   string    `json:"subject_name"`
	Verdict
	SubmittedAt time.Time `json:"submitted_at"`
}

type ReportStats struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Late    int `json:"late"`
	Short   int `json:"short"`
	Invalid int `json:"invalid"`
}

func (st *ReportStats) add(status Status) {
	st.Total++
	switch status {
	case StatusPresent:
		st.Present++
	case StatusLate:
		st.Late++
	case StatusShort:
		st.Short++
	default:
		st.Invalid++
	}
}

// SessionReport is the teacher's view of one session.
type SessionReport struct {
	SessionID     uuid.UUID     `json:"session_id"`
	ClassroomName string        `json:"classroom_name"`
	SubjectName   string        `json:"subject_name"`
	StartsAt      time.Time     `json:"starts_at"`
	EndsAt        time.Time     `json:"ends_at"`
	Records       []Record      `json:"records"`
	Manual        []ManualEntry `json:"manual"`
	Stats         ReportStats   `json:"stats"`
}
