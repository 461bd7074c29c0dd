// Package httpapi wires the HTTP transport (Gin) to the application
// services, middleware, and route handlers. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, logging/redaction, panic
// recovery, metrics, compression, authentication, idempotency, edge
// throttling, CORS, and security headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-meal-backend/docs"
	"github.com/tbourn/go-meal-backend/internal/blob"
	"github.com/tbourn/go-meal-backend/internal/config"
	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/feed"
	"github.com/tbourn/go-meal-backend/internal/http/handlers"
	"github.com/tbourn/go-meal-backend/internal/http/middleware"
	"github.com/tbourn/go-meal-backend/internal/ratelimit"
	"github.com/tbourn/go-meal-backend/internal/services"
)

const (
	defaultBodyLimit = 1 << 20
	// multipart framing on top of the photo itself
	uploadOverhead = 64 << 10

	slowRequest = 2 * time.Second
)

// Backends are the external collaborators selected at startup.
type Backends struct {
	Store    services.Store
	Verifier middleware.TokenVerifier

	// Blob enables photo uploads and post photo cleanup. Nil disables both.
	Blob blob.Store
	// Notifier is told about new reports. Optional.
	Notifier services.ReportNotifier
	// Feed powers /feed/stream. Optional.
	Feed feed.Source
	// Limiter defaults to the sliding-window limiter over Store.
	Limiter services.Limiter
}

// RegisterRoutes attaches all middleware and HTTP endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics and gzip
//  7. Authenticate: bearer token to identity
//  8. Idempotency lookup (needs the identity; marks replays)
//  9. Edge rate limiter (per user/IP, bypass on replay)
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, b Backends, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	base := cfg.APIBasePath

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:   []string{"X-Api-Key"},
		QuietPaths:    []string{"/health", "/metrics"},
		SlowThreshold: slowRequest,
	}))
	r.Use(middleware.Recovery())

	overrides := map[string]int64{}
	if b.Blob != nil {
		overrides[joinPath(base, "/photos")] = cfg.Blob.MaxUploadBytes + uploadOverhead
	}
	r.Use(limitBody(defaultBodyLimit, overrides))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics", joinPath(base, "/feed/stream")})))

	r.Use(middleware.Authenticate(b.Verifier))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyLookup(b.Store)))

	rl := middleware.NewRateLimiter(cfg.EdgeRPS, cfg.EdgeBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS)...)
	var public []string
	if serveDiskBlobs(cfg, b) {
		public = append(public, cfg.Blob.PublicBaseURL)
	}
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:     cfg.Security.EnableHSTS,
		HSTSMaxAge:     cfg.Security.HSTSMaxAge,
		EnablePolicy:   true,
		PublicPrefixes: public,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = base
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if serveDiskBlobs(cfg, b) {
		r.Static(cfg.Blob.PublicBaseURL, cfg.Blob.Dir)
	}

	h := newHandlers(b, cfg)
	api := groupWithPrefix(r, base)
	{
		api.POST("/functions/:name", h.Call)

		api.GET("/posts", h.ListPosts)
		api.GET("/posts/:id/comments", h.ListComments)

		api.GET("/feed", h.ListFeed)
		if h.HasStream() {
			api.GET("/feed/stream", h.StreamFeed)
		}
		if h.HasPhotos() {
			api.POST("/photos", h.UploadPhoto)
		}
	}
}

// newHandlers builds the services over b and hands them to the handlers.
func newHandlers(b Backends, cfg config.Config) *handlers.Handlers {
	st := b.Store
	lim := b.Limiter
	if lim == nil {
		lim = ratelimit.New(st)
	}

	board := services.NewBoardService(st, st, lim)
	reports := &services.ReportService{Store: st, Limiter: lim}
	if b.Notifier != nil {
		reports.Notifier = b.Notifier
	}

	d := handlers.Deps{
		Board:    board,
		Reports:  reports,
		Shares:   &services.ShareService{Store: st, Meals: st, Settings: st, Limiter: lim},
		Settings: &services.SettingsService{Store: st, Meals: st, TermsVersion: cfg.TermsVersion},
		Meals:    &services.MealService{Store: st, Limiter: lim},

		Feed:      st,
		Resources: st,
		Idem:      st,

		IdempotencyTTL: cfg.IdempotencyTTL,
		Errors:         &services.ErrorRecorder{Store: st},
	}
	if b.Blob != nil {
		board.Blob = b.Blob
		d.Photos = &services.PhotoService{Blob: b.Blob, MaxBytes: cfg.Blob.MaxUploadBytes}
	}
	if b.Feed != nil {
		d.Source = b.Feed
	}
	if stats, ok := st.(handlers.StatsReader); ok {
		d.Stats = stats
	}
	return handlers.New(d)
}

// idempotencyLookup answers the middleware from the store. A missing or
// expired record is a miss, not an error.
func idempotencyLookup(st services.IdempotencyStore) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scope, key string, now time.Time) (string, error) {
		rec, err := st.GetIdempotency(ctx, userID, scope, key, now)
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return rec.ResourceID, nil
	}
}

// corsMiddleware returns the CORS posture: allow all origins when none are
// configured, otherwise echo allowlisted origins.
func corsMiddleware(cfg config.CORSConfig) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	expose := []string{"X-Request-ID", "Content-Length", "ETag", handlers.HeaderIdempotencyReplayed, "Retry-After"}
	methods := []string{"GET", "POST", "OPTIONS"}

	if len(cfg.AllowedOrigins) == 0 {
		return []gin.HandlerFunc{
			// Set ACAO even without an Origin header (health checks, tests).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    expose,
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    expose,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody caps request bodies at maxBytes, or at the per-route override
// keyed by the matched route path.
func limitBody(maxBytes int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		n := maxBytes
		if o, ok := overrides[c.FullPath()]; ok {
			n = o
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// serveDiskBlobs reports whether uploaded files are served by this process.
func serveDiskBlobs(cfg config.Config, b Backends) bool {
	return cfg.Blob.Backend == config.BlobDisk && b.Blob != nil && strings.HasPrefix(cfg.Blob.PublicBaseURL, "/")
}

func joinPath(base, p string) string {
	return strings.TrimRight(base, "/") + p
}
