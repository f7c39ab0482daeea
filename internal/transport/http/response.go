package httptransport

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"proscan-server-go/internal/app/services"
	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/platform/errors"
)

// APIResponse is the envelope of every JSON endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(httpStatus, APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondErr maps a domain error onto a status code.
func RespondErr(c *gin.Context, err error) {
	_ = c.Error(err)
	RespondError(c, statusFor(err), err.Error(), nil)
}

func statusFor(err error) int {
	switch {
	case stderrors.Is(err, scan.ErrAlreadyRunning), stderrors.Is(err, scan.ErrNotRunning):
		return http.StatusConflict
	case stderrors.Is(err, scan.ErrInvalidConfig):
		return http.StatusBadRequest
	case stderrors.Is(err, services.ErrNoScans):
		return http.StatusNotFound
	}
	switch errors.KindOf(err) {
	case errors.KindConfig:
		return http.StatusBadRequest
	case errors.KindCapture:
		return http.StatusBadGateway
	case errors.KindStorage:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
