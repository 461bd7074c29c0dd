package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are masked in addition to Authorization, Cookie and
	// Set-Cookie. Matching is case-insensitive.
	MaskHeaders []string
	// QuietPaths are not logged when they succeed (probes, scrapes).
	QuietPaths []string
	// SlowThreshold raises non-streaming requests slower than this to warn.
	// Zero disables it.
	SlowThreshold time.Duration
}

// Patterns are applied in order; the phone pattern is the loosest.
var redactions = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`), "[REDACTED:token]"},
	{regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`), "[REDACTED:id]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
	// Digits only, so hex runs inside IDs never match.
	{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
}

func redact(s string) string {
	for _, r := range redactions {
		if s == "" {
			break
		}
		s = r.re.ReplaceAllString(s, r.with)
	}
	return s
}

// RedactingLogger attaches a request-scoped logger and writes one access log
// line per request with PII scrubbed from the query string and headers.
// When a span is active (otelgin runs first) its trace ID joins every line.
// The level follows the outcome: error for 5xx, warn for 4xx and slow
// requests, info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	mask := lowerSet(append([]string{"Authorization", "Cookie", "Set-Cookie"}, opts.MaskHeaders...))
	quiet := make(map[string]struct{}, len(opts.QuietPaths))
	for _, p := range opts.QuietPaths {
		quiet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		lc := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path)
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			lc = lc.Str("trace_id", sc.TraceID().String())
		}
		scoped := lc.Logger()
		setLogger(c, &scoped)

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		if _, ok := quiet[c.Request.URL.Path]; ok && status < 400 {
			return
		}

		lg := LoggerFrom(c)
		ev := accessEvent(lg, status, len(c.Errors) > 0)
		if opts.SlowThreshold > 0 && latency > opts.SlowThreshold && status < 400 &&
			!strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			ev = lg.Warn().Bool("slow", true)
		}
		if fn := c.Param("name"); fn != "" {
			ev = ev.Str("function", fn)
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.
			Str("query", truncate(redact(c.Request.URL.RawQuery), maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", latency).
			Interface("headers", scrubHeaders(c.Request.Header, mask)).
			Msg("http_request")
	}
}

func accessEvent(lg *zerolog.Logger, status int, hasErrors bool) *zerolog.Event {
	switch {
	case status >= 500 || hasErrors:
		return lg.Error()
	case status >= 400:
		return lg.Warn()
	default:
		return lg.Info()
	}
}

func scrubHeaders(h map[string][]string, mask map[string]struct{}) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := mask[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = redact(strings.Join(vv, ", "))
	}
	return out
}

func lowerSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}
