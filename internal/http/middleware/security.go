package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests only.
	// Enable it only when traffic is HTTPS end-to-end.
	EnableHSTS bool
	HSTSMaxAge time.Duration // defaults to 180 days
	// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
	// PublicPrefixes are path prefixes of immutable public files (uploaded
	// photos under random keys) that browsers may cache for a day.
	PublicPrefixes []string
}

const (
	cachePublic     = "public, max-age=86400, immutable"
	cacheRevalidate = "private, no-cache"
	cacheNone       = "no-store"
)

// SecurityHeaders adds conservative headers for a JSON API: nosniff,
// DENY framing and no-referrer always; the rest per opt.
//
// Cache-Control defaults by request kind: reads must revalidate (list
// endpoints answer If-None-Match), writes are never stored, and public
// files are cacheable. Handlers may override it. X-Request-ID is exposed to
// browser clients.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", cacheControl(c.Request, opt.PublicPrefixes))

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			const hdr = "Access-Control-Expose-Headers"
			switch cur := h.Get(hdr); {
			case cur == "":
				h.Set(hdr, requestIDHeader)
			case !strings.Contains(cur, requestIDHeader):
				h.Set(hdr, cur+", "+requestIDHeader)
			}
		}

		c.Next()
	}
}

func cacheControl(r *http.Request, public []string) string {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return cacheNone
	}
	for _, p := range public {
		if p != "" && strings.HasPrefix(r.URL.Path, strings.TrimRight(p, "/")+"/") {
			return cachePublic
		}
	}
	return cacheRevalidate
}

// isHTTPS reports TLS directly or via X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
