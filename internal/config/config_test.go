package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef-test"

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
	if cfg.Store.Backend != StoreSQL || cfg.Store.Driver != "sqlite" || cfg.Blob.Backend != BlobDisk {
		t.Fatalf("unexpected storage defaults: %+v %+v", cfg.Store, cfg.Blob)
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // normalizes to "release"

	t.Setenv("LOG_LEVEL", "warning") // normalizes to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v2/")

	t.Setenv("STORE_BACKEND", "SQL")
	t.Setenv("DB_DRIVER", "postgresql") // normalizes to "postgres"
	t.Setenv("DB_DSN", "postgres://u:p@db/meals")

	t.Setenv("BLOB_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "photos")
	t.Setenv("S3_ENDPOINT", "http://minio:9000")
	t.Setenv("BLOB_PUBLIC_BASE_URL", "https://cdn.example.com/")

	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("TERMS_VERSION", "2025-03")
	t.Setenv("FEED_POLL_INTERVAL", "500ms")

	t.Setenv("EDGE_RPS", "2.5")

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	t.Setenv("SENDGRID_API_KEY", "SG.key")
	t.Setenv("MODERATOR_EMAILS", "mod1@example.com, mod2@example.com")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.Store.Backend != StoreSQL || cfg.Store.Driver != "postgres" || cfg.Store.DSN != "postgres://u:p@db/meals" {
		t.Fatalf("store unexpected: %+v", cfg.Store)
	}
	if cfg.Blob.Backend != BlobS3 || cfg.Blob.S3.Bucket != "photos" || cfg.Blob.S3.Endpoint != "http://minio:9000" ||
		cfg.Blob.PublicBaseURL != "https://cdn.example.com" {
		t.Fatalf("blob unexpected: %+v", cfg.Blob)
	}
	if cfg.TermsVersion != "2025-03" || cfg.FeedPollInterval != 500*time.Millisecond {
		t.Fatalf("product fields unexpected: %+v", cfg)
	}
	if cfg.EdgeRPS != 2.5 || cfg.EdgeBurst != 20 {
		t.Fatalf("edge throttle unexpected: %v/%v", cfg.EdgeRPS, cfg.EdgeBurst)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}
	if cfg.Mail.SendGridAPIKey != "SG.key" ||
		!reflect.DeepEqual(cfg.Mail.Moderators, []string{"mod1@example.com", "mod2@example.com"}) {
		t.Fatalf("mail unexpected: %+v", cfg.Mail)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"unknown store backend", map[string]string{"STORE_BACKEND": "redis"}, "STORE_BACKEND"},
		{"unknown db driver", map[string]string{"DB_DRIVER": "oracle"}, "DB_DRIVER"},
		{"firestore without project", map[string]string{"STORE_BACKEND": "firestore"}, "FIRESTORE_PROJECT_ID"},
		{"unknown blob backend", map[string]string{"BLOB_BACKEND": "ftp"}, "BLOB_BACKEND"},
		{"s3 without bucket", map[string]string{"BLOB_BACKEND": "s3"}, "S3_BUCKET"},
		{"gcs without bucket", map[string]string{"BLOB_BACKEND": "gcs"}, "GCS_BUCKET"},
		{"short jwt secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"non-positive feed poll", map[string]string{"FEED_POLL_INTERVAL": "0s"}, "FEED_POLL_INTERVAL"},
		{"edge rps negative", map[string]string{"EDGE_RPS": "-1"}, "EDGE_RPS"},
		{"edge burst < 1", map[string]string{"EDGE_BURST": "0"}, "EDGE_BURST"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl non-positive", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"otel sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", testSecret)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected %s validation error, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoad_FirestoreBackend_OK(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_BACKEND", "firestore")
	t.Setenv("FIRESTORE_PROJECT_ID", "meal-app")
	t.Setenv("BLOB_BACKEND", "gcs")
	t.Setenv("GCS_BUCKET", "meal-app.appspot.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.FirestoreProjectID != "meal-app" || cfg.Blob.GCSBucket != "meal-app.appspot.com" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoad_MalformedValuesAreErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("EDGE_RPS", "x")
	t.Setenv("EDGE_BURST", "nope")
	t.Setenv("LOG_PRETTY", "maybe")
	t.Setenv("IDEMPOTENCY_TTL", "a day")

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error for malformed values")
	}
	for _, want := range []string{
		`EDGE_RPS="x" is not a valid number`,
		`EDGE_BURST="nope" is not a valid integer`,
		`LOG_PRETTY="maybe" is not a valid boolean`,
		`IDEMPOTENCY_TTL="a day" is not a valid duration`,
	} {
		if !containsErr(err, want) {
			t.Errorf("error %q lacks %q", err, want)
		}
	}
}

func TestValidate_DirectFields(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	base, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	cfg := base
	cfg.Port = " "
	if err := cfg.Validate(); !containsErr(err, "PORT must not be empty") {
		t.Fatalf("blank port: %v", err)
	}
	cfg = base
	cfg.Store.DSN = ""
	if err := cfg.Validate(); !containsErr(err, "DB_DSN") {
		t.Fatalf("blank dsn: %v", err)
	}
	cfg = base
	cfg.TermsVersion = ""
	if err := cfg.Validate(); !containsErr(err, "TERMS_VERSION") {
		t.Fatalf("blank terms version: %v", err)
	}
}

func TestEnv_Readers(t *testing.T) {
	e := &env{}

	t.Setenv("X_EMPTY", "   ")
	t.Setenv("X_SET", " val ")
	if e.str("X_EMPTY", "d") != "d" || e.str("X_SET", "d") != "val" || e.str("X_UNSET", "d") != "d" {
		t.Fatal("str fallback or trimming wrong")
	}

	t.Setenv("F", "3.14")
	t.Setenv("I", "42")
	t.Setenv("D", "150ms")
	if e.float("F", 0) != 3.14 || e.int("I", 0) != 42 || e.dur("D", time.Second) != 150*time.Millisecond {
		t.Fatal("numeric parse failed")
	}

	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		t.Setenv("B", v)
		if !e.bool("B", false) {
			t.Fatalf("bool(%q) = false; want true", v)
		}
	}
	for _, v := range []string{"0", "false", "FALSE", " no ", "N", "off"} {
		t.Setenv("B", v)
		if e.bool("B", true) {
			t.Fatalf("bool(%q) = true; want false", v)
		}
	}
	if len(e.errs) != 0 {
		t.Fatalf("unexpected errors: %v", e.errs)
	}

	t.Setenv("I", "x")
	if e.int("I", 7) != 7 || len(e.errs) != 1 {
		t.Fatalf("bad int: default not kept or error not recorded (%v)", e.errs)
	}
}

func TestEnv_CSVAndBasePath(t *testing.T) {
	e := &env{}
	if out := e.csv("CSV_UNSET"); out != nil {
		t.Fatalf("csv unset should return nil, got %#v", out)
	}
	t.Setenv("CSV", " a, ,b ,  c  ,")
	if got := e.csv("CSV"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("csv mismatch: got %#v", got)
	}

	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Unsetenv("JWT_SECRET")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
