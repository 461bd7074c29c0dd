package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/moderation"
	"github.com/tbourn/go-meal-backend/internal/ratelimit"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code Code
		msg  string
	}{
		{"typed", NotFound("post not found"), CodeNotFound, "post not found"},
		{"wrapped typed", fmt.Errorf("ctx: %w", ErrNotOwner), CodePermissionDenied, ErrNotOwner.Message},
		{"rate limit", &ratelimit.ExceededError{Action: "post", Window: "minute", Limit: 3}, CodeResourceExhausted,
			"rate limit exceeded: at most 3 post actions per minute, please try again later"},
		{"duplicate report", moderation.ErrAlreadyReported, CodeAlreadyExists, moderation.ErrAlreadyReported.Error()},
		{"grouping key", fmt.Errorf("%w: daily share requires date", domain.ErrInvalidGroupingKey), CodeInvalidArgument,
			"invalid grouping key: daily share requires date"},
		{"unknown", errors.New("sql: connection refused"), CodeInternal, InternalMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, msg := Classify(tc.err)
			if code != tc.code || msg != tc.msg {
				t.Fatalf("Classify() = (%q, %q); want (%q, %q)", code, msg, tc.code, tc.msg)
			}
		})
	}
}

func TestError_Format(t *testing.T) {
	e := Errorf(CodeInvalidArgument, "%s must be at most %d characters", "content", 10)
	if e.Error() != "invalid-argument: content must be at most 10 characters" {
		t.Fatalf("unexpected Error(): %q", e.Error())
	}
	if CodeOf(e) != CodeInvalidArgument {
		t.Fatalf("unexpected CodeOf")
	}
}

func TestRequireUser(t *testing.T) {
	if err := requireUser(nil); err != ErrSignInRequired {
		t.Fatalf("nil identity: %v", err)
	}
	if err := requireUser(guest("g1")); err != ErrGuestDenied {
		t.Fatalf("guest: %v", err)
	}
	if err := requireUser(user("u1")); err != nil {
		t.Fatalf("user: %v", err)
	}
}

func TestRequireText(t *testing.T) {
	if s, err := requireText("content", "  hi  ", 5); err != nil || s != "hi" {
		t.Fatalf("expected trimmed value, got %q %v", s, err)
	}
	if _, err := requireText("content", "   ", 5); CodeOf(err) != CodeInvalidArgument {
		t.Fatalf("blank should be invalid-argument, got %v", err)
	}
	if _, err := requireText("content", "ごはんごはん", 5); err == nil {
		t.Fatalf("expected rune-length violation")
	}
}
