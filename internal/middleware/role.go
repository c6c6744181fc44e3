package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parcel-marketplace/internal/gate"
	"github.com/iliyamo/parcel-marketplace/internal/model"
)

// RequireRole admits callers whose role is one of roles; with no roles it
// admits any authenticated caller.  It runs after JWTAuth and answers with
// the same decision table the client-side gate uses: 401 without an
// identity, 403 plus the caller's landing path for a role mismatch.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var id *model.Identity
			if v, ok := IdentityFrom(c); ok {
				id = &v
			}
			d := gate.Decide(false, id, roles...)
			switch d.Outcome {
			case gate.Allow:
				return next(c)
			case gate.Forbidden:
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "landing": d.Landing})
			default:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "login": gate.LoginPath})
			}
		}
	}
}
