package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/chefbid/internal/auth"
)

// JWTMiddleware resolves the bearer token into an identity and stores it on
// the context. Requests without a valid token are rejected with 401.
func JWTMiddleware(resolver auth.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := auth.TokenFromRequest(c.Request())
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
			}
			id, err := resolver.Resolve(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
			}
			auth.Set(c, id)
			return next(c)
		}
	}
}
