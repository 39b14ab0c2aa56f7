package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/geofence"
	"github.com/trezcool/hazira/core/session"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, resp := errorResponse(err)

		if code == http.StatusInternalServerError {
			requester, _ := getRequester(ctx)
			logger.Error(resp.Message, errors.Wrap(err, resp.Message), requester)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			resp.Message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// errorResponse maps an error returned by a handler to a status code and a stable error kind.
func errorResponse(err error) (int, core.ErrorResponse) {
	switch origErr := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if origErr == middleware.ErrJWTMissing {
			return http.StatusUnauthorized, core.ErrorResponse{Kind: core.KindUnauthorized, Message: fmt.Sprint(origErr.Message)}
		}
		if origErr.Internal != nil {
			if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
		}
		return origErr.Code, core.ErrorResponse{Kind: kindForStatus(origErr.Code), Message: fmt.Sprint(origErr.Message)}

	case *core.ValidationError:
		code, kind := http.StatusBadRequest, core.KindValidation
		switch {
		case errors.Is(origErr.Err, geofence.ErrMalformed):
			code, kind = http.StatusUnprocessableEntity, core.KindMalformedGeofence
		case errors.Is(origErr.Err, attendance.ErrInvalidBatch):
			kind = core.KindInvalidBatch
		}
		resp := core.ErrorResponse{Kind: kind, Message: origErr.Error()}
		if len(origErr.Fields) > 0 {
			resp.Fields = make(map[string]string, len(origErr.Fields))
			for _, fErr := range origErr.Fields {
				resp.Fields[fErr.Field] = fErr.Error
			}
		}
		return code, resp
	}

	switch cause := errors.Cause(err); cause {
	case session.ErrNotFound:
		return http.StatusNotFound, core.ErrorResponse{Kind: core.KindSessionNotFound, Message: cause.Error()}
	case session.ErrExpired:
		return http.StatusGone, core.ErrorResponse{Kind: core.KindSessionExpired, Message: cause.Error()}
	case session.ErrNotOwner, attendance.ErrNotStudent:
		return http.StatusForbidden, core.ErrorResponse{Kind: core.KindForbidden, Message: cause.Error()}
	case attendance.ErrMissingRequester:
		return http.StatusUnauthorized, core.ErrorResponse{Kind: core.KindUnauthorized, Message: cause.Error()}
	case attendance.ErrInvalidBatch:
		return http.StatusBadRequest, core.ErrorResponse{Kind: core.KindInvalidBatch, Message: err.Error()}
	case geofence.ErrMalformed:
		return http.StatusUnprocessableEntity, core.ErrorResponse{Kind: core.KindMalformedGeofence, Message: cause.Error()}
	case attendance.ErrInvalidEntry, session.ErrInvalidSession:
		return http.StatusBadRequest, core.ErrorResponse{Kind: core.KindValidation, Message: cause.Error()}
	}

	// any other error is a server error
	return http.StatusInternalServerError, core.ErrorResponse{
		Kind:    core.KindInternal,
		Message: http.StatusText(http.StatusInternalServerError),
	}
}

func kindForStatus(code int) string {
	switch {
	case code == http.StatusUnauthorized:
		return core.KindUnauthorized
	case code == http.StatusForbidden:
		return core.KindForbidden
	case code == http.StatusNotFound:
		return core.KindNotFound
	case code >= http.StatusInternalServerError:
		return core.KindInternal
	}
	return core.KindValidation
}

