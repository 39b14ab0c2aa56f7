package session

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/geofence"
)

// Session is a class or event during which attendance can be claimed.
// The attendance core only reads it.
type Session struct {
	ID             uuid.UUID         `json:"id"`
	TeacherID      string            `json:"teacher_id"`
	ClassroomName  string            `json:"classroom_name"`
	SubjectName    string            `json:"subject_name"`
	Geofence       geofence.Geofence `json:"geofence"`
	Token          string            `json:"token"`
	StartsAt       time.Time         `json:"starts_at"`        // UTC
	EndsAt         time.Time         `json:"ends_at"`          // UTC
	TokenExpiresAt time.Time         `json:"token_expires_at"` // UTC
	CreatedAt      time.Time         `json:"created_at"`       // UTC
}

// ActiveAt reports whether attendance may still be submitted at `at`.
func (s Session) ActiveAt(at time.Time) bool {
	return at.Before(s.TokenExpiresAt) && !at.After(s.EndsAt)
}

// View is what a student needs for local inside/outside feedback.
type View struct {
	ID             uuid.UUID         `json:"id"`
	ClassroomName  string            `json:"classroom_name"`
	SubjectName    string            `json:"subject_name"`
	Geofence       geofence.Geofence `json:"geofence"`
	StartsAt       time.Time         `json:"starts_at"`
	EndsAt         time.Time         `json:"ends_at"`
	TokenExpiresAt time.Time         `json:"token_expires_at"`
}

func (s Session) View() View {
	return View{
		ID:             s.ID,
		ClassroomName:  s.ClassroomName,
		SubjectName:    s.SubjectName,
		Geofence:       s.Geofence,
		StartsAt:       s.StartsAt,
		EndsAt:         s.EndsAt,
		TokenExpiresAt: s.TokenExpiresAt,
	}
}

// NewSession contains information needed to open a new Session.
type NewSession struct {
	ClassroomName string            `json:"classroom_name" validate:"notblank,max=120"`
	SubjectName   string            `json:"subject_name" validate:"notblank,max=120"`
	Geofence      geofence.Geofence `json:"geofence"`
	StartsAt      *time.Time        `json:"starts_at"`
	EndsAt        *time.Time        `json:"ends_at"`
}

func (ns *NewSession) Validate(validate *validator.Validate, translator ut.Translator) error {
	ns.ClassroomName = core.CleanString(ns.ClassroomName)
	ns.SubjectName = core.CleanString(ns.SubjectName)

	if err := core.ValidateStruct(validate, translator, ns, ErrInvalidSession); err != nil {
		return err
	}
	if err := ns.Geofence.Validate(); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "geofence", Error: err.Error()})
	}
	if ns.StartsAt != nil && ns.EndsAt != nil && !ns.EndsAt.After(*ns.StartsAt) {
		return core.NewValidationError(ErrInvalidSession, core.FieldError{Field: "ends_at", Error: errEndsBeforeStart})
	}
	return nil
}
