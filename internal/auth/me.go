package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Set stores id on the echo context under the keys handlers read.
func Set(c echo.Context, id Identity) {
	c.Set(ctxUserID, id.UserID)
	c.Set(ctxRole, string(id.Role))
}

// FromContext returns the identity the JWT middleware stored on c.
func FromContext(c echo.Context) Identity {
	uid, _ := c.Get(ctxUserID).(string)
	role, _ := c.Get(ctxRole).(string)
	return Identity{UserID: uid, Role: Role(role), Authenticated: uid != ""}
}

// Me returns the authenticated caller's identity.
func Me(c echo.Context) error {
	id := FromContext(c)
	if !id.Authenticated {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": id.UserID,
		"role":    id.Role,
	})
}
