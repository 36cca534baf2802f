// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case. Generic codes mirror HTTP status semantics;
// domain codes name the business rule that rejected the request so clients
// can branch without parsing messages.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-billsplit/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeInvalidEmail     = "invalid_email"
	ErrCodeSelfFriend       = "self_friend"
	ErrCodeNotFriend        = "not_friend"
	ErrCodeQueryTooShort    = "query_too_short"
	ErrCodeInvalidGroup     = "invalid_group"
	ErrCodeUnknownMember    = "unknown_member"
	ErrCodeInvalidExpense   = "invalid_expense"
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// serviceError maps a service error to (status, code, message). Unknown
// errors become a 500 with fallback as the code; their text is not exposed.
func serviceError(err error, fallback string) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound, ErrCodeNotFound, err.Error()
	case errors.Is(err, services.ErrGroupNotFound):
		return http.StatusNotFound, ErrCodeNotFound, err.Error()
	case errors.Is(err, services.ErrNotFriend):
		return http.StatusNotFound, ErrCodeNotFriend, err.Error()
	case errors.Is(err, services.ErrInvalidEmail):
		return http.StatusBadRequest, ErrCodeInvalidEmail, err.Error()
	case errors.Is(err, services.ErrSelfFriend):
		return http.StatusBadRequest, ErrCodeSelfFriend, err.Error()
	case errors.Is(err, services.ErrQueryTooShort):
		return http.StatusBadRequest, ErrCodeQueryTooShort, err.Error()
	case errors.Is(err, services.ErrTooManyEmails):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, services.ErrEmptyGroupName),
		errors.Is(err, services.ErrNoMembers),
		errors.Is(err, services.ErrInvalidGroupSize):
		return http.StatusBadRequest, ErrCodeInvalidGroup, err.Error()
	case errors.Is(err, services.ErrUnknownMember):
		return http.StatusBadRequest, ErrCodeUnknownMember, err.Error()
	case errors.Is(err, services.ErrInvalidExpense):
		return http.StatusBadRequest, ErrCodeInvalidExpense, err.Error()
	}
	return http.StatusInternalServerError, fallback, "internal error"
}

// failErr writes the envelope serviceError maps err to.
func failErr(c *gin.Context, err error, fallback string) {
	status, code, msg := serviceError(err, fallback)
	fail(c, status, code, msg)
}
