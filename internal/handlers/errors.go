package handlers

import (
	"errors"
	"net/http"

	"reflow_oven/internal/device"
	"reflow_oven/internal/repository"
	"reflow_oven/internal/service"

	"github.com/gin-gonic/gin"
)

const errInternal = "internal error"

// statusFor maps service and device errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidProfile),
		errors.Is(err, service.ErrInvalidTimeRange),
		errors.Is(err, service.ErrUnknownEventType),
		errors.Is(err, device.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrProfileNotFound),
		errors.Is(err, device.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrProfileInUse),
		errors.Is(err, service.ErrRunActive),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrNoProfileSelected),
		errors.Is(err, device.ErrNoDeviceSelected),
		errors.Is(err, repository.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, device.ErrRescanThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrDeviceUnavailable),
		errors.Is(err, device.ErrDisconnected),
		errors.Is(err, device.ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err under logKey and writes a JSON error. Internal
// errors are logged at error level and hidden from the client.
func (h *Handler) respondError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	code := statusFor(err)
	fields := append([]interface{}{"err", err}, kv...)
	if code == http.StatusInternalServerError {
		h.log.Errorw(logKey, fields...)
		c.JSON(code, gin.H{"error": errInternal})
		return
	}
	h.log.Infow(logKey, fields...)
	c.JSON(code, gin.H{"error": err.Error()})
}
