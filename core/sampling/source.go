package sampling

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Source is the device positioning subsystem.
// Acquire should return an *AcquireError on failure and give up once ctx is done.
type Source interface {
	Acquire(ctx context.Context, req Request) (Fix, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, req Request) (Fix, error)

func (f SourceFunc) Acquire(ctx context.Context, req Request) (Fix, error) { return f(ctx, req) }

// Request describes the fix wanted from a Source.
type Request struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaximumAge is how old a cached fix may be and still be returned.
	MaximumAge time.Duration
}

// Fix is a position reported by a Source.
type Fix struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	CapturedAt     time.Time
}

// ErrorKind classifies acquisition failures.
type ErrorKind int

const (
	KindUnavailable ErrorKind = iota
	KindPermissionDenied
	KindTimeout
	KindUnsupported
)

var kindNames = map[ErrorKind]string{
	KindUnavailable:      "unavailable",
	KindPermissionDenied: "permission_denied",
	KindTimeout:          "timeout",
	KindUnsupported:      "unsupported",
}

var kindMessages = map[ErrorKind]string{
	KindUnavailable:      "your position is currently unavailable, move to an open area and try again",
	KindPermissionDenied: "location permission was denied, allow location access and try again",
	KindTimeout:          "timed out waiting for your position, try again",
	KindUnsupported:      "location services are not available on this device",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// retryable reports whether a low accuracy attempt may follow a failure of this kind.
func (k ErrorKind) retryable() bool {
	return k == KindUnavailable || k == KindTimeout
}

// AcquireError is a typed acquisition failure. Its message never includes the provider's text.
type AcquireError struct {
	Kind  ErrorKind
	cause error
}

func NewAcquireError(kind ErrorKind, cause error) *AcquireError {
	return &AcquireError{Kind: kind, cause: cause}
}

func (e *AcquireError) Error() string {
	if msg, ok := kindMessages[e.Kind]; ok {
		return msg
	}
	return kindMessages[KindUnavailable]
}

// Unwrap returns the raw provider error, for logs only.
func (e *AcquireError) Unwrap() error { return e.cause }

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, &AcquireError{Kind: KindTimeout}).
func (e *AcquireError) Is(target error) bool {
	t, ok := target.(*AcquireError)
	return ok && t.Kind == e.Kind
}

// asAcquireError normalizes any Source error into an *AcquireError.
func asAcquireError(err error) *AcquireError {
	var aErr *AcquireError
	if errors.As(err, &aErr) {
		return aErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewAcquireError(KindTimeout, err)
	}
	return NewAcquireError(KindUnavailable, err)
}
