package fsstore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/tbourn/go-meal-backend/internal/feed"
)

// Subscribe streams the newest limit shared photos as query snapshots: the
// first snapshot becomes the initial batch, later ones their change lists.
func (s *Store) Subscribe(ctx context.Context, limit int, fn func(feed.Batch) error) error {
	it := s.feedQuery(time.Time{}, limit).Snapshots(ctx)
	defer it.Stop()

	first := true
	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("while listening to feed: %w", err)
		}
		b := feed.Batch{Initial: first}
		for _, ch := range snap.Changes {
			row, err := shareFrom(ch.Doc)
			if err != nil {
				return err
			}
			b.Changes = append(b.Changes, feed.Change{Kind: changeKind(ch.Kind), Photo: row})
		}
		if first || len(b.Changes) > 0 {
			if err := fn(b); err != nil {
				return err
			}
		}
		first = false
	}
}

func changeKind(k firestore.DocumentChangeKind) feed.Kind {
	switch k {
	case firestore.DocumentAdded:
		return feed.Added
	case firestore.DocumentRemoved:
		return feed.Removed
	}
	return feed.Modified
}
