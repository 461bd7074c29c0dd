// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, logging, the document and blob stores, identity, moderation
// notifications, throttling, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreSQL       = "sql"
	StoreFirestore = "firestore"
)

// Blob backends.
const (
	BlobNone = "none"
	BlobDisk = "disk"
	BlobS3   = "s3"
	BlobGCS  = "gcs"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Backend            string // sql|firestore
	Driver             string // sqlite|postgres|mysql (sql backend only)
	DSN                string // sqlite path or driver DSN
	FirestoreProjectID string
}

// S3Config configures the S3 (or S3-compatible) blob backend.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, e.g. a MinIO URL
	AccessKey string
	SecretKey string
}

// BlobConfig selects and configures the blob store used for photo uploads.
type BlobConfig struct {
	Backend       string // none|disk|s3|gcs
	Dir           string // disk backend root
	PublicBaseURL string // URL prefix for stored objects
	S3            S3Config
	GCSBucket     string
	// MaxUploadBytes caps a single photo upload.
	MaxUploadBytes int64
}

// AuthConfig configures verification of caller identity tokens.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// MailConfig configures moderator notifications for new reports.
type MailConfig struct {
	SendGridAPIKey string
	From           string
	Moderators     []string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	// Storage
	Store StoreConfig
	Blob  BlobConfig

	// Identity
	Auth AuthConfig

	// Product
	TermsVersion     string        // current terms-of-service version
	FeedPollInterval time.Duration // SQL feed subscription poll period

	// Edge throttle (token bucket in front of every route)
	EdgeRPS   float64
	EdgeBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration

	// Notifications
	Mail MailConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result. A set but unparsable variable
// is an error rather than a silent fallback to the default.
func Load() (Config, error) {
	e := &env{}
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.bool("LOG_PRETTY", false),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		Store: StoreConfig{
			Backend:            strings.ToLower(e.str("STORE_BACKEND", StoreSQL)),
			Driver:             strings.ToLower(e.str("DB_DRIVER", "sqlite")),
			DSN:                e.str("DB_DSN", "meals.db"),
			FirestoreProjectID: e.str("FIRESTORE_PROJECT_ID", ""),
		},
		Blob: BlobConfig{
			Backend:       strings.ToLower(e.str("BLOB_BACKEND", BlobDisk)),
			Dir:           e.str("BLOB_DIR", "uploads"),
			PublicBaseURL: strings.TrimRight(e.str("BLOB_PUBLIC_BASE_URL", "/uploads"), "/"),
			S3: S3Config{
				Bucket:    e.str("S3_BUCKET", ""),
				Region:    e.str("S3_REGION", "us-east-1"),
				Endpoint:  e.str("S3_ENDPOINT", ""),
				AccessKey: e.str("S3_ACCESS_KEY", ""),
				SecretKey: e.str("S3_SECRET_KEY", ""),
			},
			GCSBucket:      e.str("GCS_BUCKET", ""),
			MaxUploadBytes: int64(e.int("MAX_UPLOAD_BYTES", 10<<20)),
		},

		Auth: AuthConfig{
			JWTSecret: e.str("JWT_SECRET", ""),
			Issuer:    e.str("JWT_ISSUER", ""),
		},

		TermsVersion:     e.str("TERMS_VERSION", "2024-01"),
		FeedPollInterval: e.dur("FEED_POLL_INTERVAL", 2*time.Second),

		EdgeRPS:   e.float("EDGE_RPS", 10.0),
		EdgeBurst: e.int("EDGE_BURST", 20),

		CORS: CORSConfig{
			AllowedOrigins: e.csv("CORS_ALLOWED_ORIGINS"),
		},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: e.dur("IDEMPOTENCY_TTL", 24*time.Hour),

		Mail: MailConfig{
			SendGridAPIKey: e.str("SENDGRID_API_KEY", ""),
			From:           e.str("MAIL_FROM", "no-reply@localhost"),
			Moderators:     e.csv("MODERATOR_EMAILS"),
		},

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "go-meal-backend"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	if err := errors.Join(e.errs...); err != nil {
		return cfg, err
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Store.Driver == "postgresql" {
		cfg.Store.Driver = "postgres"
	}

	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting, if any.
func (cfg Config) Validate() error {
	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return errors.New("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal, panic, disabled")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}

	switch cfg.Store.Backend {
	case StoreSQL:
		switch cfg.Store.Driver {
		case "sqlite", "postgres", "mysql":
		default:
			return errors.New("DB_DRIVER must be one of: sqlite, postgres, mysql")
		}
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			return errors.New("DB_DSN must not be empty")
		}
	case StoreFirestore:
		if strings.TrimSpace(cfg.Store.FirestoreProjectID) == "" {
			return errors.New("FIRESTORE_PROJECT_ID is required when STORE_BACKEND=firestore")
		}
	default:
		return errors.New("STORE_BACKEND must be one of: sql, firestore")
	}

	switch cfg.Blob.Backend {
	case BlobNone:
	case BlobDisk:
		if strings.TrimSpace(cfg.Blob.Dir) == "" {
			return errors.New("BLOB_DIR must not be empty when BLOB_BACKEND=disk")
		}
	case BlobS3:
		if cfg.Blob.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required when BLOB_BACKEND=s3")
		}
	case BlobGCS:
		if cfg.Blob.GCSBucket == "" {
			return errors.New("GCS_BUCKET is required when BLOB_BACKEND=gcs")
		}
	default:
		return errors.New("BLOB_BACKEND must be one of: none, disk, s3, gcs")
	}

	if len(cfg.Auth.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 bytes")
	}
	if strings.TrimSpace(cfg.TermsVersion) == "" {
		return errors.New("TERMS_VERSION must not be empty")
	}
	if cfg.FeedPollInterval <= 0 {
		return errors.New("FEED_POLL_INTERVAL must be > 0")
	}
	if cfg.EdgeRPS < 0 {
		return errors.New("EDGE_RPS must be >= 0")
	}
	if cfg.EdgeBurst < 1 {
		return errors.New("EDGE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// env reads typed variables and remembers every malformed value.
type env struct {
	errs []error
}

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) fail(k, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", k, v, want))
}

func (e *env) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, "number")
		return def
	}
	return f
}

func (e *env) int(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, "integer")
		return def
	}
	return i
}

func (e *env) bool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(k, v, "boolean")
	return def
}

func (e *env) dur(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, "duration")
		return def
	}
	return d
}

// csv splits a comma-separated list, dropping blanks.
func (e *env) csv(k string) []string {
	v, ok := e.lookup(k)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
