package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-roster/internal/middleware"
	"github.com/iliyamo/gym-roster/internal/service"
)

// EnrollmentHandler exposes the enrollment coordinator.
type EnrollmentHandler struct {
	Coordinator *service.Coordinator
}

func NewEnrollmentHandler(coord *service.Coordinator) *EnrollmentHandler {
	if coord == nil {
		panic("nil coordinator passed to NewEnrollmentHandler")
	}
	return &EnrollmentHandler{Coordinator: coord}
}

type enrollReq struct {
	UserID     uint64 `json:"user_id"`
	ActivityID uint64 `json:"activity_id"`
}

type enrollmentResp struct {
	ID         uint64    `json:"id"`
	UserID     uint64    `json:"user_id"`
	ActivityID uint64    `json:"activity_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type enrollmentDetailResp struct {
	enrollmentResp
	Activity        *activityResp `json:"activity,omitempty"`
	ActivityMissing bool          `json:"activity_missing,omitempty"`
}

// Create handles POST /v1/enrollments. A missing user_id means the caller.
func (h *EnrollmentHandler) Create(c echo.Context) error {
	var req enrollReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ActivityID == 0 {
		return badRequest(c, "activity_id is required")
	}
	id := middleware.IdentityFrom(c)
	if req.UserID == 0 {
		req.UserID = id.UserID
	}
	e, err := h.Coordinator.EnrollAs(c.Request().Context(), id, req.UserID, req.ActivityID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, enrollmentResp{ID: e.ID, UserID: e.UserID, ActivityID: e.ActivityID, CreatedAt: e.CreatedAt})
}

// Delete handles DELETE /v1/enrollments/:id.
func (h *EnrollmentHandler) Delete(c echo.Context) error {
	enrollmentID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid enrollment id")
	}
	if err := h.Coordinator.WithdrawAs(c.Request().Context(), middleware.IdentityFrom(c), enrollmentID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListForUser handles GET /v1/users/:id/enrollments.
func (h *EnrollmentHandler) ListForUser(c echo.Context) error {
	userID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	list, err := h.Coordinator.ListForUser(c.Request().Context(), middleware.IdentityFrom(c), userID)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]enrollmentDetailResp, 0, len(list))
	for _, d := range list {
		r := enrollmentDetailResp{
			enrollmentResp:  enrollmentResp{ID: d.ID, UserID: d.UserID, ActivityID: d.ActivityID, CreatedAt: d.CreatedAt},
			ActivityMissing: d.ActivityMissing,
		}
		if d.Activity != nil {
			a := toActivityResp(*d.Activity)
			r.Activity = &a
		}
		out = append(out, r)
	}
	return c.JSON(http.StatusOK, out)
}
