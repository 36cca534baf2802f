// Package handlers provides HTTP handler implementations for the directory API.
//
// This file defines the response envelope shared by every endpoint. Clients
// decide success from the body, never from the status code:
//
//	HTTP/1.1 200 OK
//	{ "success": true, "data": [{"mailId": "ann@example.com", "name": "Ann"}] }
//
//	HTTP/1.1 404 Not Found
//	{
//	  "success": false,
//	  "data": null,
//	  "message": "not in your favorites",
//	  "code": "not_friend",
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	}
//
// Conventions:
//   - All failures carry a stable `code` (see errors.go) and a message that is
//     safe to show to users.
//   - `fail()` centralizes error logging and formatting, ensuring 5xx responses
//     are logged with request context for observability.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-billsplit/internal/http/middleware"
)

// Envelope is the success body returned by all endpoints.
type Envelope struct {
	Success bool   `json:"success" example:"true"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty" example:"Added to favorites."`
}

// ErrorResponse is the failure body returned by all endpoints.
//
// Fields:
//   - Message: human-readable, safe to display.
//   - Code: stable, machine-readable string (see errors.go constants).
//   - RequestID: echoed from X-Request-ID to correlate logs with client errors.
type ErrorResponse struct {
	Success   bool   `json:"success" example:"false"`
	Data      any    `json:"data" swaggertype:"object"`
	Message   string `json:"message" example:"resource not found"`
	Code      string `json:"code" example:"not_found"`
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// fail aborts the request with a failure envelope and logs server-side errors
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		Success:   false,
		Message:   msg,
		Code:      code,
		RequestID: c.Writer.Header().Get("X-Request-ID"),
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success envelope around data.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

// okMessage writes a success envelope with a user-facing confirmation.
func okMessage(c *gin.Context, status int, data any, msg string) {
	c.JSON(status, Envelope{Success: true, Data: data, Message: msg})
}
