package runs

import (
	"context"
	"slices"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe Store used when persistence is disabled.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]Run)}
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)

// Save inserts or replaces a run.
func (s *InMemoryStore) Save(_ context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// Get returns the run with the given ID.
func (s *InMemoryStore) Get(_ context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// List returns summaries, newest first.
func (s *InMemoryStore) List(_ context.Context, opts ListOptions) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	out := make([]Summary, 0, len(s.runs))
	for _, r := range s.runs {
		if opts.Mode != "" && r.Mode != opts.Mode {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		out = append(out, r.Summary())
	}
	slices.SortFunc(out, func(a, b Summary) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Prune deletes runs started before cutoff.
func (s *InMemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.runs {
		if r.StartedAt.Before(cutoff) {
			delete(s.runs, id)
			n++
		}
	}
	return n, nil
}
