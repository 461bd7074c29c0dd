// Package authflow sequences a signed-in session through the gating steps
// the client must pass before the main app is shown:
//
//	UNKNOWN -> GUEST
//	UNKNOWN -> NEEDS_TERMS -> NEEDS_PROFILE -> READY
//	UNKNOWN -> READY
//
// GUEST and READY are terminal for a session. The Manager holds the session
// state in memory only and is driven by auth-state events.
package authflow

import "github.com/tbourn/go-meal-backend/internal/domain"

// State is a step of the gating flow.
type State int

const (
	Unknown State = iota
	Guest
	NeedsTerms
	NeedsProfile
	Ready
)

func (s State) String() string {
	switch s {
	case Guest:
		return "GUEST"
	case NeedsTerms:
		return "NEEDS_TERMS"
	case NeedsProfile:
		return "NEEDS_PROFILE"
	case Ready:
		return "READY"
	}
	return "UNKNOWN"
}

// Terminal reports whether s ends the flow for the session.
func (s State) Terminal() bool { return s == Guest || s == Ready }

// NextStep maps readiness facts to the step the user must complete next.
// Existing users are not asked for a profile.
func NextStep(f domain.ReadinessFacts) State {
	switch {
	case !f.TermsAgreed:
		return NeedsTerms
	case !f.HasProfile && !f.IsExistingUser:
		return NeedsProfile
	default:
		return Ready
	}
}
