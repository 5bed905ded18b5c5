package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/rcm/priorauth/internal/platform/apierror"
)

// RequireRole returns middleware that allows the request iff the principal
// holds the required role. Admin always passes.
func RequireRole(required string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromContext(c.Request().Context())
			if p.Role == required || p.Role == RoleAdmin {
				return next(c)
			}
			return apierror.PermissionDenied(required)
		}
	}
}
