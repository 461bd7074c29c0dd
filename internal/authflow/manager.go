package authflow

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/domain"
)

// DefaultRecheckDelay is the pause before the fresh re-read that precedes
// showing the terms modal.
const DefaultRecheckDelay = 200 * time.Millisecond

// GenericErrorToast is shown when processing fails.
const GenericErrorToast = "Something went wrong. Please reload and try again."

// Source supplies readiness facts. With fresh=false the result may come
// from a local cache and lag behind the user's own writes; fresh=true
// must read from the server.
type Source interface {
	Facts(ctx context.Context, uid string, fresh bool) (domain.ReadinessFacts, error)
}

// UI receives the exit actions of each state.
type UI interface {
	ShowTerms(ctx context.Context)
	ShowProfile(ctx context.Context)
	CloseModals(ctx context.Context)
	RevealApp(ctx context.Context)
	Toast(ctx context.Context, msg string)
}

// Manager is the per-session state machine. It is safe for concurrent use;
// an event arriving while another is being processed is dropped. A sign-out
// starts a new session generation, and work still in flight for the old one
// no longer touches the state or the UI.
type Manager struct {
	Source       Source
	UI           UI
	RecheckDelay time.Duration
	Logger       *zerolog.Logger

	// Sleep waits between the cached and the fresh re-check.
	Sleep func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	state      State
	uid        string
	processing bool
	completed  bool
	lastUID    string
	gen        uint64
}

// NewManager returns a Manager with DefaultRecheckDelay.
func NewManager(src Source, ui UI) *Manager {
	return &Manager{Source: src, UI: ui, RecheckDelay: DefaultRecheckDelay}
}

// State returns the current step.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Completed reports whether the session reached a terminal state.
func (m *Manager) Completed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

// HandleAuthChange processes an auth-state event. A nil identity is a
// sign-out and resets the session. Repeated events for a user whose flow
// already completed are ignored.
func (m *Manager) HandleAuthChange(ctx context.Context, id *auth.Identity) error {
	if id == nil {
		m.mu.Lock()
		m.state, m.uid, m.completed, m.lastUID = Unknown, "", false, ""
		m.processing = false
		m.gen++
		m.mu.Unlock()
		return nil
	}
	gen, ok := m.begin(id.UID)
	if !ok {
		return nil
	}
	defer m.end(gen)

	if id.Anonymous {
		m.finish(ctx, gen, id.UID, Guest)
		return nil
	}
	return m.run(ctx, gen, id.UID, false)
}

// Resume re-evaluates the current user after a gating step was completed
// (terms accepted, profile saved). It reads fresh facts so the user's own
// write is visible.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	uid := m.uid
	m.mu.Unlock()
	if uid == "" {
		return nil
	}
	gen, ok := m.begin(uid)
	if !ok {
		return nil
	}
	defer m.end(gen)
	return m.run(ctx, gen, uid, true)
}

// begin claims the processing flag and returns the session generation the
// event belongs to. It reports false when another event is in flight or the
// flow already completed for uid.
func (m *Manager) begin(uid string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processing {
		m.logger().Debug().Str("uid", uid).Msg("authflow: busy, dropping event")
		return 0, false
	}
	if m.completed && m.lastUID == uid {
		return 0, false
	}
	if m.uid != uid {
		m.completed = false
	}
	m.processing = true
	m.uid = uid
	return m.gen, true
}

func (m *Manager) end(gen uint64) {
	m.mu.Lock()
	if m.gen == gen {
		m.processing = false
	}
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, gen uint64, uid string, fresh bool) error {
	facts, err := m.Source.Facts(ctx, uid, fresh)
	if err != nil {
		return m.fail(ctx, gen, uid, err)
	}

	step := NextStep(facts)
	if step == NeedsTerms {
		step, err = m.recheckTerms(ctx, uid)
		if err != nil {
			return m.fail(ctx, gen, uid, err)
		}
	}

	switch step {
	case NeedsTerms:
		if m.setState(gen, uid, NeedsTerms) {
			m.UI.ShowTerms(ctx)
		}
	case NeedsProfile:
		if m.setState(gen, uid, NeedsProfile) {
			m.UI.ShowProfile(ctx)
		}
	default:
		m.finish(ctx, gen, uid, Ready)
	}
	return nil
}

// recheckTerms guards against a stale cached "not agreed": it re-reads the
// cache, and if that still says not agreed, waits RecheckDelay and reads
// from the server once before conceding NeedsTerms.
func (m *Manager) recheckTerms(ctx context.Context, uid string) (State, error) {
	facts, err := m.Source.Facts(ctx, uid, false)
	if err != nil {
		return Unknown, err
	}
	if facts.TermsAgreed {
		return NextStep(facts), nil
	}

	if err := m.sleep(ctx, m.RecheckDelay); err != nil {
		return Unknown, err
	}
	facts, err = m.Source.Facts(ctx, uid, true)
	if err != nil {
		return Unknown, err
	}
	if facts.TermsAgreed {
		m.logger().Info().Str("uid", uid).Msg("authflow: terms agreement visible after fresh read")
	}
	return NextStep(facts), nil
}

func (m *Manager) finish(ctx context.Context, gen uint64, uid string, s State) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.logger().Debug().Str("uid", uid).Msg("authflow: session ended, dropping result")
		return
	}
	m.state, m.uid = s, uid
	m.completed, m.lastUID = true, uid
	m.mu.Unlock()

	m.UI.CloseModals(ctx)
	m.UI.RevealApp(ctx)
	m.logger().Info().Str("uid", uid).Str("state", s.String()).Msg("authflow: session ready")
}

// setState reports false when gen is no longer the live session.
func (m *Manager) setState(gen uint64, uid string, s State) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.logger().Debug().Str("uid", uid).Msg("authflow: session ended, dropping result")
		return false
	}
	m.state, m.uid = s, uid
	m.mu.Unlock()
	m.logger().Debug().Str("uid", uid).Str("state", s.String()).Msg("authflow: transition")
	return true
}

func (m *Manager) fail(ctx context.Context, gen uint64, uid string, err error) error {
	m.logger().Error().Err(err).Str("uid", uid).Msg("authflow: processing failed")
	m.mu.Lock()
	live := m.gen == gen
	m.mu.Unlock()
	if live {
		m.UI.Toast(ctx, GenericErrorToast)
	}
	return err
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) error {
	if m.Sleep != nil {
		return m.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *Manager) logger() *zerolog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return &log.Logger
}
