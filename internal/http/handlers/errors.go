// Package handlers defines the HTTP status mapping of the callable error
// taxonomy.
//
// Every error response carries one of the services.Code values (or one of
// the transport-only codes below) so clients can branch on it without
// parsing messages:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "already-exists",
//	  "message": "you have already reported this content"
//	}
package handlers

import (
	"net/http"

	"github.com/tbourn/go-meal-backend/internal/services"
)

// Transport-level codes that no callable function returns.
const (
	ErrCodeNotFound         = string(services.CodeNotFound)
	ErrCodeInvalidArgument  = string(services.CodeInvalidArgument)
	ErrCodeMethodNotAllowed = "method-not-allowed"
)

// statusFor maps a callable error code to its HTTP status.
func statusFor(code services.Code) int {
	switch code {
	case services.CodeUnauthenticated:
		return http.StatusUnauthorized
	case services.CodeInvalidArgument:
		return http.StatusBadRequest
	case services.CodePermissionDenied:
		return http.StatusForbidden
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeAlreadyExists:
		return http.StatusConflict
	case services.CodeResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
