package middleware // reusable echo middleware: credential auth, role gate, rate limiting

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parcel-marketplace/internal/utils"
)

// CredentialValidator reports whether a credential (by hash) is still live
// and who owns it.  repository.CredentialRepo satisfies it.
type CredentialValidator interface {
	Validate(ctx context.Context, tokenHash string) (string, error)
}

// CredentialRenewer reports whether a credential may still be exchanged for
// a new one and who owns it.
type CredentialRenewer interface {
	Renewable(ctx context.Context, tokenHash string, grace time.Duration) (string, error)
}

// CredentialTable is the full credential lookup the authority routes need.
type CredentialTable interface {
	CredentialValidator
	CredentialRenewer
}

// ErrMissingBearer is returned by BearerToken when the header is absent or
// not a bearer scheme.
var ErrMissingBearer = errors.New("missing bearer token")

// BearerToken extracts the raw token from the Authorization header.
func BearerToken(c echo.Context) (string, error) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", ErrMissingBearer
	}
	return strings.TrimSpace(auth[len(prefix):]), nil
}

// JWTAuth validates the bearer credential and stores the caller's identity
// in the context (see IdentityFrom).  When creds is non-nil the credential
// must also be live in the credential table, so logout and refresh revoke
// it immediately.
func JWTAuth(secret string, creds CredentialValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := BearerToken(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseCredential(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			if creds != nil {
				uid, err := creds.Validate(c.Request().Context(), utils.HashCredential(raw))
				if err != nil || uid != claims.Identity.ID {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "credential revoked or expired"})
				}
			}
			setIdentity(c, claims.Identity, raw)
			return next(c)
		}
	}
}

// RefreshAuth guards the refresh endpoint.  The bearer must carry a valid
// signature, but its expiry may have passed up to grace ago; when creds is
// non-nil the row must exist, be unrevoked and lie inside the same window.
// A revoked credential is never renewed.
func RefreshAuth(secret string, creds CredentialRenewer, grace time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := BearerToken(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseRenewable(secret, raw, grace, time.Now())
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			if creds != nil {
				uid, err := creds.Renewable(c.Request().Context(), utils.HashCredential(raw), grace)
				if err != nil || uid != claims.Identity.ID {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "credential revoked or too old to renew"})
				}
			}
			setIdentity(c, claims.Identity, raw)
			return next(c)
		}
	}
}
