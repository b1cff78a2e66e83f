package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-roster/internal/model"
)

// IdentityFrom returns the caller authenticated by JWTAuth, or the
// anonymous identity on routes without it.
func IdentityFrom(c echo.Context) model.Identity {
	uid, _ := c.Get(ctxUserID).(uint64)
	role, _ := c.Get(ctxRole).(string)
	if uid == 0 {
		return model.Identity{}
	}
	return model.Identity{UserID: uid, Role: role}
}

// callerKey identifies the caller for rate limiting.
func callerKey(c echo.Context) string {
	if id := IdentityFrom(c); id.Authenticated() {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "anon"
}
