package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/identity"
	"github.com/trezcool/hazira/core/session"
)

type sessionApi struct {
	svc           *session.Service
	attendanceSvc *attendance.Service
	validate      *validator.Validate
	translator    ut.Translator
}

func registerSessionAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *session.Service,
	attendanceSvc *attendance.Service,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := sessionApi{
		svc:           svc,
		attendanceSvc: attendanceSvc,
		validate:      validate,
		translator:    translator,
	}

	sg := g.Group("/sessions", jwt)

	// any authenticated user holding a token may look the session up
	sg.GET("/token/:token", api.lookup, roleMiddleware())

	tg := sg.Group("", roleMiddleware(identity.RoleTeacher))
	tg.POST("", api.create)
	tg.GET("", api.query)
	tg.GET("/:id", api.retrieve)
	tg.GET("/:id/report", api.report)
	tg.POST("/:id/manual", api.addManual)
}

// Handlers

func (api *sessionApi) create(ctx echo.Context) error {
	var data session.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err := data.Validate(api.validate, api.translator); err != nil {
		return err
	}

	requester, err := getRequester(ctx)
	if err != nil {
		return errors.Wrap(err, "getting requester")
	}
	sess, err := api.svc.Create(ctx.Request().Context(), requester.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}

	return ctx.JSON(http.StatusCreated, sess)
}

func (api *sessionApi) query(ctx echo.Context) error {
	requester, err := getRequester(ctx)
	if err != nil {
		return errors.Wrap(err, "getting requester")
	}
	sessions, err := api.svc.ListByTeacher(ctx.Request().Context(), requester.ID)
	if err != nil {
		return errors.Wrap(err, "listing sessions")
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	id, requester, err := api.detailParams(ctx)
	if err != nil {
		return err
	}
	sess, err := api.svc.GetOwned(ctx.Request().Context(), requester.ID, id)
	if err != nil {
		return errors.Wrap(err, "getting session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *sessionApi) report(ctx echo.Context) error {
	id, requester, err := api.detailParams(ctx)
	if err != nil {
		return err
	}
	report, err := api.attendanceSvc.SessionReport(ctx.Request().Context(), requester.ID, id)
	if err != nil {
		return errors.Wrap(err, "building session report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *sessionApi) addManual(ctx echo.Context) error {
	id, requester, err := api.detailParams(ctx)
	if err != nil {
		return err
	}

	var data attendance.NewManualEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewManualEntry")
	}
	if err := data.Validate(api.validate, api.translator); err != nil {
		return err
	}

	entry, err := api.attendanceSvc.AddManual(ctx.Request().Context(), requester.ID, id, data)
	if err != nil {
		return errors.Wrap(err, "adding manual entry")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *sessionApi) lookup(ctx echo.Context) error {
	sess, err := api.svc.Lookup(ctx.Request().Context(), ctx.Param("token"))
	if err != nil {
		return errors.Wrap(err, "looking up session")
	}
	return ctx.JSON(http.StatusOK, sess.View())
}

func (api *sessionApi) detailParams(ctx echo.Context) (uuid.UUID, identity.Requester, error) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return uuid.Nil, identity.Requester{}, errHttpNotFound
	}
	requester, err := getRequester(ctx)
	if err != nil {
		return uuid.Nil, identity.Requester{}, errors.Wrap(err, "getting requester")
	}
	return id, requester, nil
}
