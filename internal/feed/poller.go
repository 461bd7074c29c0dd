package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// Lister reads the newest feed rows.
type Lister interface {
	ListFeed(ctx context.Context, before time.Time, limit int) ([]domain.SharedPhoto, error)
}

// Poller turns a Lister into a Source by re-reading the window every
// Interval and emitting the diff. Empty diffs are not delivered.
type Poller struct {
	Lister   Lister
	Interval time.Duration
}

// Subscribe implements Source.
func (p *Poller) Subscribe(ctx context.Context, limit int, fn func(Batch) error) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	lg := logger(ctx)

	prev, err := p.Lister.ListFeed(ctx, time.Time{}, limit)
	if err != nil {
		return err
	}
	initial := Batch{Initial: true, Changes: make([]Change, 0, len(prev))}
	for _, r := range prev {
		initial.Changes = append(initial.Changes, Change{Kind: Added, Photo: r})
	}
	if err := fn(initial); err != nil {
		return err
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		next, err := p.Lister.ListFeed(ctx, time.Time{}, limit)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient read failures skip one tick.
			lg.Warn().Err(err).Msg("feed poll failed")
			continue
		}
		changes := Diff(prev, next)
		prev = next
		if len(changes) == 0 {
			continue
		}
		if err := fn(Batch{Changes: changes}); err != nil {
			return err
		}
	}
}

func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
