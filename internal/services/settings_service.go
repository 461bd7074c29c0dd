// Package services – SettingsService
//
// SettingsService owns the per-user settings document: terms consent, the
// public profile, and the readiness facts the client auth flow runs on.
// Documents are migrated to the current layout by the store on load.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/authflow"
	"github.com/tbourn/go-meal-backend/internal/domain"
)

// SettingsService provides agreeToTerms, updateProfile and getReadiness.
type SettingsService struct {
	Store SettingsStore
	Meals MealStore
	// TermsVersion is the terms revision users must have agreed to.
	TermsVersion string
	Now          func() time.Time
}

// ProfileInput is the payload of updateProfile.
type ProfileInput struct {
	Nickname string `json:"nickname"`
	Icon     string `json:"icon,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

// Readiness is the response of getReadiness.
type Readiness struct {
	domain.ReadinessFacts
	TermsVersion string `json:"termsVersion"`
	NextStep     string `json:"nextStep"`
}

func (s *SettingsService) tracer(ctx context.Context, name string, id *auth.Identity) (context.Context, trace.Span) {
	uid := ""
	if id != nil {
		uid = id.UID
	}
	return otel.Tracer("services/SettingsService").Start(ctx, name,
		trace.WithAttributes(attribute.String("user.id", uid)))
}

// AgreeToTerms records the caller's consent to the current terms.
func (s *SettingsService) AgreeToTerms(ctx context.Context, id *auth.Identity) (*domain.UserSettings, error) {
	ctx, span := s.tracer(ctx, "AgreeToTerms", id)
	defer span.End()

	if err := requireUser(id); err != nil {
		return nil, err
	}
	st, err := s.load(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	now := nowUTC(s.Now)
	st.TermsAgreed = true
	st.TermsVersion = s.TermsVersion
	st.TermsAgreedAt = &now
	st.UpdatedAt = now
	if err := s.Store.SaveSettings(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// UpdateProfile sets the caller's public profile. The nickname is required
// and moderated.
func (s *SettingsService) UpdateProfile(ctx context.Context, id *auth.Identity, in ProfileInput) (*domain.UserSettings, error) {
	ctx, span := s.tracer(ctx, "UpdateProfile", id)
	defer span.End()

	if err := requireUser(id); err != nil {
		return nil, err
	}
	nick, err := requireText("nickname", in.Nickname, 30)
	if err != nil {
		return nil, err
	}
	if err := screen("nickname", nick); err != nil {
		return nil, err
	}
	st, err := s.load(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	st.Profile = domain.Profile{Nickname: nick, Icon: in.Icon, PhotoURL: in.PhotoURL}
	st.UpdatedAt = nowUTC(s.Now)
	if err := s.Store.SaveSettings(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// GetReadiness derives the caller's readiness facts. Anonymous callers are
// guests and get no facts.
func (s *SettingsService) GetReadiness(ctx context.Context, id *auth.Identity) (*Readiness, error) {
	ctx, span := s.tracer(ctx, "GetReadiness", id)
	defer span.End()

	if id == nil || id.UID == "" {
		return nil, ErrSignInRequired
	}
	if id.Anonymous {
		return &Readiness{TermsVersion: s.TermsVersion, NextStep: authflow.Guest.String()}, nil
	}

	st, err := s.Store.GetSettings(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	existing, err := s.Meals.HasMeals(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	facts := domain.FactsFrom(st, s.TermsVersion, existing)
	return &Readiness{
		ReadinessFacts: facts,
		TermsVersion:   s.TermsVersion,
		NextStep:       authflow.NextStep(facts).String(),
	}, nil
}

// load returns the caller's settings, or a fresh current-layout document.
func (s *SettingsService) load(ctx context.Context, uid string) (*domain.UserSettings, error) {
	st, err := s.Store.GetSettings(ctx, uid)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &domain.UserSettings{UserID: uid, SchemaVersion: domain.SettingsSchemaVersion}
	}
	return st, nil
}
