package router // package router registers the HTTP routes of the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/gym-roster/internal/handler"
	"github.com/iliyamo/gym-roster/internal/middleware"
	"github.com/iliyamo/gym-roster/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints. db
// may be nil when running on the memory store.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the session endpoints. Register, login, refresh
// and logout by refresh token need no access token; /v1/me and /v1/logout
// (revoke every session of the caller) do.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	authed := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleMember, model.RoleAdmin),
	}
	e.GET("/v1/me", a.Me, authed...)
	e.POST("/v1/logout", a.Logout, authed...)
}

// RegisterPublic registers the catalog reads. cache wraps them so repeated
// reads are served from Redis until the next catalog or enrollment change.
func RegisterPublic(e *echo.Echo, h *handler.ActivityHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/activities", h.List, cache)
	e.GET("/v1/activities/:id", h.Get, cache)
}
