package middleware

import (
	"fmt"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/domain"
)

// RequireRoles lets the request through only when the caller's role is one
// of roles. It runs after JWTMiddleware.
// Usage: api.POST("/orders/:id/bid", h.PlaceBid, RequireRoles(auth.RoleChef))
func RequireRoles(roles ...auth.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := auth.FromContext(c)
			if !id.Authenticated || !slices.Contains(roles, id.Role) {
				return WriteError(c, fmt.Errorf("%s requires role %v: %w", c.Path(), roles, domain.ErrNotAuthorized))
			}
			return next(c)
		}
	}
}
