package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

var t0 = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func photo(id string, ageMin int) domain.SharedPhoto {
	return domain.SharedPhoto{ID: id, PhotoURL: "https://x/" + id, Type: domain.ShareDaily, Timestamp: t0.Add(-time.Duration(ageMin) * time.Minute)}
}

func ids(rows []domain.SharedPhoto) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func TestView_InitialThenDeltas(t *testing.T) {
	v := NewView(0)
	v.Apply(Batch{Initial: true, Changes: []Change{
		{Kind: Added, Photo: photo("b", 2)},
		{Kind: Added, Photo: photo("a", 1)},
	}})
	if diff := cmp.Diff([]string{"a", "b"}, ids(v.Items())); diff != "" {
		t.Fatalf("initial order (-want +got):\n%s", diff)
	}

	mod := photo("b", 2)
	mod.Comment = "edited"
	v.Apply(Batch{Changes: []Change{
		{Kind: Added, Photo: photo("c", 0)},
		{Kind: Modified, Photo: mod},
		{Kind: Removed, Photo: photo("a", 1)},
	}})
	items := v.Items()
	if diff := cmp.Diff([]string{"c", "b"}, ids(items)); diff != "" {
		t.Fatalf("after deltas (-want +got):\n%s", diff)
	}
	if items[1].Comment != "edited" {
		t.Fatalf("expected modified row to be replaced, got %+v", items[1])
	}

	v.Apply(Batch{Initial: true, Changes: []Change{{Kind: Added, Photo: photo("z", 9)}}})
	if diff := cmp.Diff([]string{"z"}, ids(v.Items())); diff != "" {
		t.Fatalf("re-initial should replace (-want +got):\n%s", diff)
	}
}

func TestView_BoundedKeepsNewest(t *testing.T) {
	v := NewView(2)
	v.Apply(Batch{Initial: true, Changes: []Change{
		{Kind: Added, Photo: photo("old", 10)},
		{Kind: Added, Photo: photo("mid", 5)},
		{Kind: Added, Photo: photo("new", 1)},
	}})
	if diff := cmp.Diff([]string{"new", "mid"}, ids(v.Items())); diff != "" {
		t.Fatalf("bounded view (-want +got):\n%s", diff)
	}
	if v.Len() != 2 {
		t.Fatalf("expected Len 2, got %d", v.Len())
	}
}

func TestView_ZeroValueUsable(t *testing.T) {
	var v View
	v.Apply(Batch{Changes: []Change{{Kind: Added, Photo: photo("a", 0)}}})
	if v.Len() != 1 {
		t.Fatalf("expected zero-value view to accept rows")
	}
}

func TestDiff(t *testing.T) {
	mod := photo("b", 2)
	mod.Comment = "new"
	got := Diff(
		[]domain.SharedPhoto{photo("a", 1), photo("b", 2), photo("c", 3)},
		[]domain.SharedPhoto{photo("d", 0), photo("a", 1), mod},
	)
	want := []Change{
		{Kind: Added, Photo: photo("d", 0)},
		{Kind: Modified, Photo: mod},
		{Kind: Removed, Photo: photo("c", 3)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Diff (-want +got):\n%s", diff)
	}
	if len(Diff([]domain.SharedPhoto{photo("a", 1)}, []domain.SharedPhoto{photo("a", 1)})) != 0 {
		t.Fatalf("identical windows should yield no changes")
	}
}

type fakeLister struct {
	mu    sync.Mutex
	pages [][]domain.SharedPhoto
	calls int
}

func (f *fakeLister) ListFeed(_ context.Context, _ time.Time, _ int) ([]domain.SharedPhoto, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.pages) {
		i = len(f.pages) - 1
	}
	f.calls++
	return f.pages[i], nil
}

func TestPoller_InitialThenDiffs(t *testing.T) {
	l := &fakeLister{pages: [][]domain.SharedPhoto{
		{photo("a", 1)},
		{photo("a", 1)},
		{photo("b", 0), photo("a", 1)},
	}}
	p := &Poller{Lister: l, Interval: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []Batch
	stop := errors.New("stop")
	err := p.Subscribe(ctx, 10, func(b Batch) error {
		got = append(got, b)
		if len(got) == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error to end subscription, got %v", err)
	}
	if !got[0].Initial || len(got[0].Changes) != 1 {
		t.Fatalf("unexpected initial batch: %+v", got[0])
	}
	if got[1].Initial || len(got[1].Changes) != 1 || got[1].Changes[0].Kind != Added || got[1].Changes[0].Photo.ID != "b" {
		t.Fatalf("unexpected delta batch: %+v", got[1])
	}
}

func TestPoller_StopsOnContext(t *testing.T) {
	l := &fakeLister{pages: [][]domain.SharedPhoto{{}}}
	p := &Poller{Lister: l, Interval: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	err := p.Subscribe(ctx, 10, func(b Batch) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
