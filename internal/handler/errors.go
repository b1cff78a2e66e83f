package handler // handler translates HTTP requests into catalog, enrollment and identity calls

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/repository"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = "1"

// errorStatus maps the error taxonomy to a status and a stable code.
func errorStatus(err error) (int, string) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrAlreadyEnrolled):
		return http.StatusConflict, "already_enrolled"
	case errors.Is(err, repository.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, repository.ErrCapacityConflict):
		return http.StatusConflict, "capacity_conflict"
	case errors.Is(err, repository.ErrEmailExists):
		return http.StatusConflict, "email_exists"
	case errors.Is(err, repository.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, repository.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError answers with the status for err. Internal errors are logged
// and their text is not sent to the client.
func writeError(c echo.Context, err error) error {
	status, code := errorStatus(err)
	body := errorBody{Error: code, Message: err.Error()}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		body.Message = "validation failed"
		body.Fields = ve.Fields
	}
	switch status {
	case http.StatusServiceUnavailable:
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
		body.Message = "storage temporarily unavailable, retry"
	case http.StatusInternalServerError:
		slog.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
		body.Message = "internal error"
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}

// pathID parses the :name path parameter as a positive id.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}
