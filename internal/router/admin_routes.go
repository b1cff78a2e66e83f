package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-roster/internal/handler"
	"github.com/iliyamo/gym-roster/internal/middleware"
	"github.com/iliyamo/gym-roster/internal/model"
)

// RegisterAdmin registers catalog mutations under /v1/admin. The role check
// here is repeated by the access policy inside each handler.
func RegisterAdmin(e *echo.Echo, h *handler.ActivityHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/activities", h.Create)
	g.POST("/activities/bulk", h.Bulk)
	g.PUT("/activities/:id", h.Update)
	g.PATCH("/activities/:id", h.Update)
	g.DELETE("/activities/:id", h.Delete)
}
