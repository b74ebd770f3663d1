package http

import (
	"net/http"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-gonic/gin"
)

// Response is the envelope of every JSON route.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func failure(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	})
}

// fail maps a domain error to its status code.
func fail(c *gin.Context, err error) {
	failure(c, statusOf(err), domain.CodeOf(err), err.Error())
}

func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindValidation, domain.KindProtocol:
		return http.StatusBadRequest
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
