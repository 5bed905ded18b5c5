package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// Deadline caps each request's context at d. Database acquires and queries
// inherit the deadline, so a saturated pool fails the request with
// context.DeadlineExceeded instead of blocking indefinitely.
func Deadline(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
