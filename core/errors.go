package core

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// TranslateFieldErrors turns validator errors into FieldErrors keyed by JSON field path.
func TranslateFieldErrors(verrs validator.ValidationErrors, translator ut.Translator) []FieldError {
	flds := make([]FieldError, 0, len(verrs))
	for _, vErr := range verrs {
		msg := vErr.Error()
		if translator != nil {
			msg = vErr.Translate(translator)
		}
		flds = append(flds, FieldError{Field: fieldPath(vErr), Error: msg})
	}
	return flds
}

// fieldPath is the namespace of the failing field without the root struct name,
// so nested fields read "samples[3].accuracy_meters".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// ValidateStruct runs the validator against `s` and reports failures as a ValidationError wrapping `kind`.
func ValidateStruct(validate *validator.Validate, translator ut.Translator, s interface{}, kind error) error {
	if err := validate.Struct(s); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return errors.Wrap(err, "validating struct")
		}
		return NewValidationError(kind, TranslateFieldErrors(verrs, translator)...)
	}
	return nil
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

// Error kinds reported to API clients.
const (
	KindValidation        = "validation"
	KindInvalidBatch      = "invalid_batch"
	KindMalformedGeofence = "malformed_geofence"
	KindSessionNotFound   = "session_not_found"
	KindSessionExpired    = "session_expired"
	KindUnauthorized      = "unauthorized"
	KindForbidden         = "forbidden"
	KindNotFound          = "not_found"
	KindInternal          = "internal"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Kind    string            `json:"error_kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
