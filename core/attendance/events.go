package attendance

import (
	"time"

	"github.com/google/uuid"
)

// Event topics
const (
	TopicVerdictRecorded = "hazira.attendance.recorded"
	TopicAttemptRejected = "hazira.attendance.rejected"
	TopicManualRecorded  = "hazira.attendance.manual"
)

// Event types

type VerdictRecorded struct {
	RecordID    uuid.UUID `json:"record_id"`
	SessionID   uuid.UUID `json:"session_id"`
	StudentID   string    `json:"student_id"`
	Verdict     Verdict   `json:"verdict"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type AttemptRejected struct {
	AttemptID    uuid.UUID `json:"attempt_id"`
	StudentID    string    `json:"student_id"`
	SessionToken string    `json:"session_token,omitempty"`
	Reason       string    `json:"reason"`
	AttemptedAt  time.Time `json:"attempted_at"`
}

type ManualRecorded struct {
	Entry ManualEntry `json:"entry"`
}
