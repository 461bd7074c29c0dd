package client

import (
	"context"
	"sync"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// ReadinessSource serves readiness facts to the auth flow. Cached reads
// return the last snapshot seen for the user and may be stale; fresh reads
// always go to the server and refresh the cache.
type ReadinessSource struct {
	Client *Client

	mu    sync.Mutex
	cache map[string]domain.ReadinessFacts
}

// NewReadinessSource returns a source backed by c.
func NewReadinessSource(c *Client) *ReadinessSource {
	return &ReadinessSource{Client: c, cache: map[string]domain.ReadinessFacts{}}
}

// Facts implements authflow.Source.
func (s *ReadinessSource) Facts(ctx context.Context, uid string, fresh bool) (domain.ReadinessFacts, error) {
	if !fresh {
		s.mu.Lock()
		f, ok := s.cache[uid]
		s.mu.Unlock()
		if ok {
			return f, nil
		}
	}
	r, err := s.Client.GetReadiness(ctx)
	if err != nil {
		return domain.ReadinessFacts{}, err
	}
	s.Remember(uid, r.ReadinessFacts)
	return r.ReadinessFacts, nil
}

// Remember overwrites the cached snapshot for uid.
func (s *ReadinessSource) Remember(uid string, f domain.ReadinessFacts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		s.cache = map[string]domain.ReadinessFacts{}
	}
	s.cache[uid] = f
}

// Forget drops the cached snapshot for uid.
func (s *ReadinessSource) Forget(uid string) {
	s.mu.Lock()
	delete(s.cache, uid)
	s.mu.Unlock()
}
