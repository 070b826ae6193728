// Package response writes the devbackend's JSON envelope.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes carried in ErrorInfo.Code.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
)

// Response is the envelope every devbackend JSON endpoint answers with.
// The client unwraps Data on success and surfaces Error otherwise.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(data interface{}) Response {
	return Response{Success: true, Data: data}
}

func fail(code, message string) Response {
	return Response{Error: &ErrorInfo{Code: code, Message: message}}
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, ok(data))
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, ok(data))
}

// Error writes a failure envelope with an explicit status and code.
func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, fail(code, message))
}

// Abort writes a failure envelope and stops the handler chain. Middleware
// uses it so later handlers never run.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, fail(code, message))
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, CodeForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, CodeConflict, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeInternal, message)
}
