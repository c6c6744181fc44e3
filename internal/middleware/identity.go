package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// Context keys set by JWTAuth and RefreshAuth.  user_id and role are kept
// as plain strings for request logging; the rate limiter reads the identity
// and so has to be mounted after authentication.
const (
	ctxIdentity   = "identity"
	ctxCredential = "credential"
	ctxUserID     = "user_id"
	ctxRole       = "role"
)

func setIdentity(c echo.Context, id model.Identity, raw string) {
	c.Set(ctxIdentity, id)
	c.Set(ctxCredential, raw)
	c.Set(ctxUserID, id.ID)
	c.Set(ctxRole, string(id.Role))
}

// IdentityFrom returns the authenticated caller, if any.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(ctxIdentity).(model.Identity)
	return id, ok
}

// CredentialFrom returns the raw bearer token JWTAuth accepted.
func CredentialFrom(c echo.Context) string {
	s, _ := c.Get(ctxCredential).(string)
	return s
}

// userID returns the caller's id, or "guest" before authentication.
func userID(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok && id.ID != "" {
		return id.ID
	}
	return "guest"
}
