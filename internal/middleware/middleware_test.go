package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parcel-marketplace/internal/config"
	"github.com/iliyamo/parcel-marketplace/internal/model"
	"github.com/iliyamo/parcel-marketplace/internal/repository"
	"github.com/iliyamo/parcel-marketplace/internal/utils"
)

const secret = "test-secret"

var rita = model.Identity{ID: "u-rider", DisplayName: "Rita Rider", Email: "rita@example.com", Role: model.RoleDeliveryRider}

func whoami(c echo.Context) error {
	id, _ := IdentityFrom(c)
	return c.JSON(http.StatusOK, id)
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestJWTAuth(t *testing.T) {
	creds := repository.NewMemoryCredentials()
	cred, err := utils.NewCredential(secret, rita, time.Hour)
	require.NoError(t, err)
	require.NoError(t, creds.Store(context.Background(), rita.ID, utils.HashCredential(cred.Token), cred.Exp))

	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret, creds))

	rec := serve(e, http.MethodGet, "/me", cred.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Identity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, rita, got)

	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "not-a-jwt").Code)

	other, err := utils.NewCredential("other-secret", rita, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", other.Token).Code)

	require.NoError(t, creds.Revoke(context.Background(), utils.HashCredential(cred.Token)))
	rec = serve(e, http.MethodGet, "/me", cred.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "credential revoked or expired", decode(t, rec)["error"])
}

func TestJWTAuthWithoutCredentialTable(t *testing.T) {
	cred, err := utils.NewCredential(secret, rita, time.Hour)
	require.NoError(t, err)

	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret, nil))
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/me", cred.Token).Code)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	auth := JWTAuth(secret, nil)
	e.GET("/admin", whoami, auth, RequireRole(model.RoleAdmin))
	e.GET("/work", whoami, auth, RequireRole(model.RoleDeliveryRider, model.RoleAdmin))
	e.GET("/any", whoami, auth, RequireRole())
	e.GET("/open", whoami, RequireRole())

	cred, err := utils.NewCredential(secret, rita, time.Hour)
	require.NoError(t, err)

	rec := serve(e, http.MethodGet, "/admin", cred.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "/rider/deliveries", decode(t, rec)["landing"])

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/work", cred.Token).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/any", cred.Token).Code)

	rec = serve(e, http.MethodGet, "/open", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", decode(t, rec)["login"])
}

func TestLocalTokenBucket(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
		LocalFallback:  true,
	}
	e := echo.New()
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, nil))

	for i := 0; i < 2; i++ {
		rec := serve(e, http.MethodGet, "/ping", "")
		require.Equal(t, http.StatusNoContent, rec.Code, "request %d", i)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := serve(e, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "too_many_requests", decode(t, rec)["error"])

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	other := httptest.NewRecorder()
	e.ServeHTTP(other, req)
	assert.Equal(t, http.StatusNoContent, other.Code)
}

func TestTokenBucketDisabled(t *testing.T) {
	for name, cfg := range map[string]config.RateLimitConfig{
		"disabled":    {Enabled: false, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour},
		"no fallback": {Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour},
	} {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, nil))
			for i := 0; i < 5; i++ {
				assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/ping", "").Code)
			}
		})
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/deliveries", nil)
	req.Header.Set(echo.HeaderXRealIP, "1.2.3.4")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/deliveries")

	assert.Equal(t, "rl:ip:1.2.3.4:user:guest:route:GET /v1/deliveries",
		buildRateKey(config.RateLimitConfig{Prefix: "rl"}, c))

	setIdentity(c, rita, "tok")
	assert.Equal(t, "rl:user:u-rider", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c))
}
