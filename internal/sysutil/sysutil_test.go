package sysutil

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"  DeBuG  ", zerolog.DebugLevel},
		{"trace", zerolog.TraceLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"Warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"loud", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func restoreLogging(t *testing.T) {
	t.Helper()
	lvl, lg, def := zerolog.GlobalLevel(), log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(lvl)
		log.Logger = lg
		zerolog.DefaultContextLogger = def
	})
}

func TestSetupLogger_JSONFields(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	SetupLogger(&buf, LoggerOptions{Level: "info", Service: "meal-api", Version: "1.2.3"})
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if m["service"] != "meal-api" || m["version"] != "1.2.3" || m["message"] != "shown" || m["time"] == nil {
		t.Fatalf("unexpected entry: %v", m)
	}
}

func TestSetupLogger_ContextFallback(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	SetupLogger(&buf, LoggerOptions{Service: "svc"})
	zerolog.Ctx(context.Background()).Info().Msg("from ctx")

	if !bytes.Contains(buf.Bytes(), []byte(`"service":"svc"`)) {
		t.Fatalf("context logger did not fall back to the global one: %q", buf.String())
	}
}

func TestSetupLogger_Pretty(t *testing.T) {
	restoreLogging(t)

	var buf bytes.Buffer
	SetupLogger(&buf, LoggerOptions{Pretty: true})
	log.Info().Msg("hello")
	if json.Valid(bytes.TrimSpace(buf.Bytes())) || !bytes.Contains(buf.Bytes(), []byte("hello")) {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "  ", "a", "b"); got != "a" {
		t.Fatalf("FirstNonEmpty = %q; want a", got)
	}
	if got := FirstNonEmpty("", " "); got != "" {
		t.Fatalf("FirstNonEmpty(all blank) = %q; want empty", got)
	}
}
