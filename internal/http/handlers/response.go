// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response utilities shared by every endpoint: the
// error envelope, the mapping from service errors to responses, and the
// success writers.
//
// Conventions:
//   - All error responses return an ErrorResponse with a stable code.
//   - failErr classifies service errors. Internal errors are logged in full,
//     written to the durable error log, and answered with a generic message.
//   - ok keeps success responses uniform.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-meal-backend/internal/http/middleware"
	"github.com/tbourn/go-meal-backend/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code
	Code string `json:"code" example:"not-found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"post not found"`
}

var callableCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "callable_calls_total",
		Help: "Callable function invocations by function and result code.",
	},
	[]string{"function", "code"},
)

func init() {
	prometheus.MustRegister(callableCalls)
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// fail aborts the request with a structured error. Server errors (>=500)
// are logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	writeError(c, status, code, msg)
}

// Fail is the exported variant of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr answers err on behalf of function. Expected errors pass through
// with their code and message; anything else becomes "internal error" after
// being logged and recorded.
func (h *Handlers) failErr(c *gin.Context, function string, err error) {
	code, msg := services.Classify(err)
	callableCalls.WithLabelValues(function, string(code)).Inc()

	if code == services.CodeInternal {
		uid := ""
		if id := middleware.IdentityFrom(c); id != nil {
			uid = id.UID
		}
		middleware.LoggerFrom(c).Error().Err(err).
			Str("function", function).
			Msg("callable failed")
		h.errors.Record(c.Request.Context(), function, uid, middleware.RequestIDFrom(c), err)
	}
	writeError(c, statusFor(code), string(code), msg)
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
