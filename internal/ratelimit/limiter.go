// Package ratelimit implements the per-user, per-action sliding-window
// limiter that guards every mutating callable function.
//
// Each user owns a single rate-limit document holding one timestamp array
// per action type ("{action}_actions"). A check loads the array, prunes
// entries older than one hour, counts the last minute against PerMinute and
// the pruned set against PerHour, and only on success appends now and
// writes the array back. Rejected attempts are never recorded.
//
// The read-check-write is not atomic: two concurrent requests from the same
// user can both pass the check before either writes. That gap is accepted;
// Store implementations are free to serialize writes but are not required to.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	// Window lengths.
	Minute = time.Minute
	Hour   = time.Hour
)

// Limit is the ceiling pair for one action type.
type Limit struct {
	PerMinute int
	PerHour   int
}

// DefaultLimits is the static limit table.
var DefaultLimits = map[string]Limit{
	"post":        {PerMinute: 3, PerHour: 20},
	"comment":     {PerMinute: 10, PerHour: 50},
	"share":       {PerMinute: 5, PerHour: 30},
	"report":      {PerMinute: 2, PerHour: 10},
	"like":        {PerMinute: 30, PerHour: 200},
	"interaction": {PerMinute: 20, PerHour: 100},
}

// Store persists the per-user rate-limit document. Field is the
// "{action}_actions" key; SaveActions replaces the whole array.
type Store interface {
	LoadActions(ctx context.Context, userID, field string) ([]time.Time, error)
	SaveActions(ctx context.Context, userID, field string, ts []time.Time) error
}

// ExceededError is returned when a ceiling is reached. Its message is
// user-facing and names the window and the numeric limit.
type ExceededError struct {
	Action string
	Window string // "minute" or "hour"
	Limit  int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: at most %d %s actions per %s, please try again later",
		e.Limit, e.Action, e.Window)
}

var rejections = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ratelimit_rejections_total",
		Help: "Actions rejected by the per-user rate limiter.",
	},
	[]string{"action", "window"},
)

func init() {
	prometheus.MustRegister(rejections)
}

// Limiter enforces Limits against Store.
type Limiter struct {
	Store  Store
	Limits map[string]Limit
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// New returns a Limiter over store using DefaultLimits.
func New(store Store) *Limiter {
	return &Limiter{Store: store, Limits: DefaultLimits, Now: time.Now}
}

// Field returns the document key holding timestamps for action.
func Field(action string) string { return action + "_actions" }

// CheckAndRecord admits or rejects one action by userID. Unknown action
// types pass unconditionally.
func (l *Limiter) CheckAndRecord(ctx context.Context, userID, action string) error {
	lim, ok := l.Limits[action]
	if !ok {
		log.Warn().Str("action", action).Str("user_id", userID).Msg("ratelimit: no limits configured for action, allowing")
		return nil
	}

	now := l.now()
	field := Field(action)
	ts, err := l.Store.LoadActions(ctx, userID, field)
	if err != nil {
		return fmt.Errorf("load rate limit: %w", err)
	}

	kept, lastMinute := Prune(ts, now)
	if lastMinute >= lim.PerMinute {
		rejections.WithLabelValues(action, "minute").Inc()
		return &ExceededError{Action: action, Window: "minute", Limit: lim.PerMinute}
	}
	if len(kept) >= lim.PerHour {
		rejections.WithLabelValues(action, "hour").Inc()
		return &ExceededError{Action: action, Window: "hour", Limit: lim.PerHour}
	}

	kept = append(kept, now)
	if err := l.Store.SaveActions(ctx, userID, field, kept); err != nil {
		return fmt.Errorf("save rate limit: %w", err)
	}
	return nil
}

// Prune drops timestamps older than one hour before now and returns the
// survivors (in their original order) with the number younger than one
// minute.
func Prune(ts []time.Time, now time.Time) (kept []time.Time, lastMinute int) {
	hourAgo := now.Add(-Hour)
	minuteAgo := now.Add(-Minute)
	kept = make([]time.Time, 0, len(ts)+1)
	for _, t := range ts {
		if !t.After(hourAgo) {
			continue
		}
		kept = append(kept, t)
		if t.After(minuteAgo) {
			lastMinute++
		}
	}
	return kept, lastMinute
}

func (l *Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}
