package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-roster/internal/handler"
	"github.com/iliyamo/gym-roster/internal/middleware"
	"github.com/iliyamo/gym-roster/internal/model"
)

// RegisterMember registers the enrollment endpoints. Any authenticated
// caller reaches the handlers; ownership is decided by the access policy.
func RegisterMember(e *echo.Echo, h *handler.EnrollmentHandler, jwtSecret string) {
	authed := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleMember, model.RoleAdmin),
	}
	e.POST("/v1/enrollments", h.Create, authed...)
	e.DELETE("/v1/enrollments/:id", h.Delete, authed...)
	e.GET("/v1/users/:id/enrollments", h.ListForUser, authed...)
}
