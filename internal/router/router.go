// Package router registers the HTTP routes on an echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parcel-marketplace/internal/handler"
	"github.com/iliyamo/parcel-marketplace/internal/middleware"
	"github.com/iliyamo/parcel-marketplace/internal/model"
	"github.com/iliyamo/parcel-marketplace/internal/obs"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
	e.GET("/metrics", echo.WrapHandler(obs.Handler()))
}

// RegisterAuth registers the authority endpoints the session client talks
// to.  login and register are open; logout and profile need a live
// credential.  refresh also takes one that expired within the configured
// grace window, so a lapsed session can still be renewed.  limit runs after
// authentication, so per-user rate limit keys see the caller.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, creds middleware.CredentialTable, limit ...echo.MiddlewareFunc) {
	g := e.Group("/auth")
	g.POST("/register", a.Register, limit...)
	g.POST("/login", a.Login, limit...)

	auth := middleware.JWTAuth(jwtSecret, creds)
	g.POST("/refresh", a.Refresh, chain(middleware.RefreshAuth(jwtSecret, creds, a.Cfg.RefreshGrace), limit)...)
	g.POST("/logout", a.Logout, chain(auth, limit)...)
	e.GET("/user/profile", a.Profile, chain(auth, limit)...)
}

// RegisterDeliveries registers the delivery request endpoints under
// /v1/deliveries.  Role checks here only short-circuit obvious mismatches;
// the registry enforces ownership and status rules itself.
func RegisterDeliveries(e *echo.Echo, h *handler.DeliveryHandler, jwtSecret string, creds middleware.CredentialValidator, limit ...echo.MiddlewareFunc) {
	mw := append([]echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret, creds), middleware.RequireRole()}, limit...)
	g := e.Group("/v1/deliveries", mw...)

	g.POST("", h.Create, middleware.RequireRole(model.RoleCustomer))
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/accept", h.Accept, middleware.RequireRole(model.RoleDeliveryRider, model.RoleAdmin))
	g.PATCH("/:id/status", h.UpdateStatus, middleware.RequireRole(model.RoleDeliveryRider, model.RoleAdmin))
	g.POST("/:id/cancel", h.Cancel)
	g.PATCH("/:id", h.UpdateDetails)
}

// chain puts auth in front of the rest.
func chain(auth echo.MiddlewareFunc, rest []echo.MiddlewareFunc) []echo.MiddlewareFunc {
	return append([]echo.MiddlewareFunc{auth}, rest...)
}

// NotFound answers unknown routes with the JSON error shape the API uses.
func NotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, echo.Map{"error": "route not found"})
}
