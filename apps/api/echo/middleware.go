package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/services/metrics"
)

// roleMiddleware lets the request through when the requester holds any of `roles`.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getRequester(ctx); err != nil {
				return errors.Wrap(err, "getting requester")
			}
			if contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// metricsMiddleware counts requests per route template, after the error handler has written the response.
func metricsMiddleware(collector *metrics.Collector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}
			req := ctx.Request()
			collector.ObserveRequest(req.Method, ctx.Path(), ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
