// Package middleware contains the Gin middleware shared by every route:
// correlation IDs, request-scoped logging with redaction, panic recovery,
// authentication, idempotency, edge throttling, metrics and security
// headers.
//
// Recommended order: RequestID, RedactingLogger, Recovery, then the rest.
// The request-scoped zerolog.Logger is stored both in the Gin context (key
// "logger") and in the request's context.Context, so services can log with
// zerolog.Ctx(ctx) without knowing about Gin.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxRequestIDLen bounds client-supplied correlation IDs.
	maxRequestIDLen = 128
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

var panicsRecovered = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "panics_recovered_total",
		Help:      "Handler panics turned into 500 responses, by route.",
	},
	[]string{"route"},
)

func init() {
	prometheus.MustRegister(panicsRecovered)
}

// RequestID reuses a well-formed incoming X-Request-ID or generates a UUIDv4,
// echoes it on the response and stores it under "requestID". IDs that are too
// long or carry non-printable bytes are replaced so they cannot forge log
// lines.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// RequestIDFrom returns the correlation ID of the request, if any.
func RequestIDFrom(c *gin.Context) string {
	v, _ := c.Get(requestIDKey)
	return asString(v)
}

// Recovery turns a panic into the standard JSON error envelope with status
// 500 and logs the stack with the request-scoped logger. A panic after the
// body started only aborts.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			route := c.FullPath()
			if route == "" {
				route = unmatchedRoute
			}
			panicsRecovered.WithLabelValues(route).Inc()

			rid := RequestIDFrom(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("route", route).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal",
				"message":    "internal error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// none was attached.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.Logger
	return &l
}

// setLogger installs l as the request-scoped logger in both contexts.
func setLogger(c *gin.Context, l *zerolog.Logger) {
	c.Set(loggerKey, l)
	if c.Request != nil {
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate caps s at max bytes and appends an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
