package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/moderation"
)

// Limiter is the rate limiter consulted before each recorded action.
type Limiter interface {
	CheckAndRecord(ctx context.Context, userID, action string) error
}

// requireUser admits only signed-in, non-anonymous callers.
func requireUser(id *auth.Identity) error {
	if id == nil || id.UID == "" {
		return ErrSignInRequired
	}
	if id.Anonymous {
		return ErrGuestDenied
	}
	return nil
}

// requireText trims s and checks it is present and at most max runes
// (max <= 0 disables the length check).
func requireText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", InvalidArgument(field + " is required")
	}
	if max > 0 && utf8.RuneCountInString(s) > max {
		return "", Errorf(CodeInvalidArgument, "%s must be at most %d characters", field, max)
	}
	return s, nil
}

// screen runs the moderation gate over text.
func screen(field, text string) error {
	if v := moderation.Evaluate(text); v.IsSpam {
		return Errorf(CodeInvalidArgument, "%s was rejected by the spam filter (%s)", field, v.Reason)
	}
	return nil
}

// authorOf returns the caller's public profile for denormalizing onto
// posts and shares. Lookup failures degrade to an empty profile.
func authorOf(ctx context.Context, st SettingsStore, uid string) domain.Profile {
	if st == nil {
		return domain.Profile{}
	}
	s, err := st.GetSettings(ctx, uid)
	if err != nil {
		logFrom(ctx).Warn().Err(err).Str("user_id", uid).Msg("author profile lookup failed")
		return domain.Profile{}
	}
	if s == nil {
		return domain.Profile{}
	}
	return s.Profile
}

func nowUTC(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}

// logFrom returns the request-scoped logger carried by ctx, or the global
// logger when none is attached.
func logFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
