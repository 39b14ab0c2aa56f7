package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/identity"
)

type attendanceApi struct {
	svc *attendance.Service
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attendance.Service) {
	api := attendanceApi{svc: svc}

	ag := g.Group("/attendance", jwt, roleMiddleware(identity.RoleStudent))
	ag.POST("/submit", api.submit)
	ag.GET("/history", api.history)
}

// Handlers

// submit leaves batch validation to the service, which records rejected batches as invalid attempts.
func (api *attendanceApi) submit(ctx echo.Context) error {
	var data attendance.SampleBatch
	if err := ctx.Bind(&data); err != nil {
		return core.NewValidationError(attendance.ErrInvalidBatch, core.FieldError{Field: "body", Error: "malformed sample batch"})
	}
	data.SessionToken = core.CleanString(data.SessionToken)

	requester, err := getRequester(ctx)
	if err != nil {
		return errors.Wrap(err, "getting requester")
	}
	res, err := api.svc.Submit(ctx.Request().Context(), requester, data)
	if err != nil {
		if attendance.RejectionReason(err) != "" {
			return err
		}
		return errors.Wrap(err, "submitting attendance")
	}

	if res.AlreadySubmitted {
		return ctx.JSON(http.StatusOK, res)
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *attendanceApi) history(ctx echo.Context) error {
	var ordering Ordering
	ordering.Bind(ctx)

	requester, err := getRequester(ctx)
	if err != nil {
		return errors.Wrap(err, "getting requester")
	}
	entries, err := api.svc.History(ctx.Request().Context(), requester.ID, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing attendance history")
	}
	if entries == nil {
		entries = []attendance.HistoryEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
