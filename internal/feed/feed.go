// Package feed delivers the public shared-photo feed as a two-phase
// subscription: one initial batch holding the whole window, then batches of
// incremental changes. View folds those batches into an ordered, bounded
// list the way a client renders it.
package feed

import (
	"context"
	"sort"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// Kind classifies one change.
type Kind string

const (
	Added    Kind = "added"
	Modified Kind = "modified"
	Removed  Kind = "removed"
)

// Change is one row-level delta.
type Change struct {
	Kind  Kind               `json:"kind"`
	Photo domain.SharedPhoto `json:"photo"`
}

// Batch is delivered to subscribers. The first batch of a subscription has
// Initial set and lists every row in the window as Added.
type Batch struct {
	Initial bool     `json:"initial"`
	Changes []Change `json:"changes"`
}

// Source streams feed batches to fn until ctx is done or fn returns an
// error. Implementations: Poller (SQL) and fsstore.Store (Firestore
// snapshots).
type Source interface {
	Subscribe(ctx context.Context, limit int, fn func(Batch) error) error
}

// View is the merged client-side list, newest first and at most Limit long.
// A zero Limit means unbounded.
type View struct {
	Limit int
	rows  map[string]domain.SharedPhoto
}

// NewView returns an empty view.
func NewView(limit int) *View {
	return &View{Limit: limit, rows: map[string]domain.SharedPhoto{}}
}

// Apply merges b. An initial batch replaces the current contents.
func (v *View) Apply(b Batch) {
	if v.rows == nil || b.Initial {
		v.rows = map[string]domain.SharedPhoto{}
	}
	for _, ch := range b.Changes {
		switch ch.Kind {
		case Added, Modified:
			v.rows[ch.Photo.ID] = ch.Photo
		case Removed:
			delete(v.rows, ch.Photo.ID)
		}
	}
	if v.Limit > 0 && len(v.rows) > v.Limit {
		for _, r := range v.sorted()[v.Limit:] {
			delete(v.rows, r.ID)
		}
	}
}

// Items returns the rows, newest first.
func (v *View) Items() []domain.SharedPhoto {
	return v.sorted()
}

// Len is the number of rows in view.
func (v *View) Len() int { return len(v.rows) }

func (v *View) sorted() []domain.SharedPhoto {
	out := make([]domain.SharedPhoto, 0, len(v.rows))
	for _, r := range v.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Diff computes the changes that turn prev into next. Rows are compared by
// ID; a row present in both with different content is Modified.
func Diff(prev, next []domain.SharedPhoto) []Change {
	old := make(map[string]domain.SharedPhoto, len(prev))
	for _, r := range prev {
		old[r.ID] = r
	}
	var out []Change
	seen := make(map[string]struct{}, len(next))
	for _, r := range next {
		seen[r.ID] = struct{}{}
		o, ok := old[r.ID]
		switch {
		case !ok:
			out = append(out, Change{Kind: Added, Photo: r})
		case !samePhoto(o, r):
			out = append(out, Change{Kind: Modified, Photo: r})
		}
	}
	for _, r := range prev {
		if _, ok := seen[r.ID]; !ok {
			out = append(out, Change{Kind: Removed, Photo: r})
		}
	}
	return out
}

func samePhoto(a, b domain.SharedPhoto) bool {
	ae, be := "", ""
	if a.EntryID != nil {
		ae = *a.EntryID
	}
	if b.EntryID != nil {
		be = *b.EntryID
	}
	return a.PhotoURL == b.PhotoURL &&
		a.UserNickname == b.UserNickname &&
		a.UserIcon == b.UserIcon &&
		a.UserPhotoURL == b.UserPhotoURL &&
		a.Comment == b.Comment &&
		a.Timestamp.Equal(b.Timestamp) &&
		ae == be
}
