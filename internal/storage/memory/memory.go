// Package memory is a RunStore that keeps runs in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chrissnell/wellsim/internal/storage"
	"github.com/chrissnell/wellsim/internal/types"
)

type entry struct {
	rec   storage.RunRecord
	snaps []storage.SnapshotRecord
}

// Store holds encoded runs so callers never share memory with it.
type Store struct {
	mu   sync.RWMutex
	runs map[string]entry
}

// New returns an empty store.
func New() *Store {
	return &Store{runs: make(map[string]entry)}
}

func (s *Store) SaveRun(_ context.Context, res *types.RunResult) error {
	if res.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	rec, snaps, err := storage.EncodeRun(res)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[res.ID] = entry{rec: rec, snaps: snaps}
	return nil
}

func (s *Store) GetRun(_ context.Context, id string) (*types.RunResult, error) {
	s.mu.RLock()
	e, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}
	return storage.DecodeRun(e.rec, e.snaps)
}

// ListRuns returns summaries, newest first.
func (s *Store) ListRuns(_ context.Context) ([]types.Summary, error) {
	s.mu.RLock()
	out := make([]types.Summary, 0, len(s.runs))
	for _, e := range s.runs {
		out = append(out, e.rec.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}
	delete(s.runs, id)
	return nil
}

func (s *Store) Close() error { return nil }

// CheckHealth always reports healthy.
func (s *Store) CheckHealth(context.Context) *storage.HealthData {
	s.mu.RLock()
	n := len(s.runs)
	s.mu.RUnlock()
	return &storage.HealthData{
		LastCheck: time.Now(),
		Status:    storage.StatusHealthy,
		Message:   fmt.Sprintf("in-memory store holding %d runs", n),
	}
}
