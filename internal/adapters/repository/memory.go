package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/pkg/metrics"
)

// MemoryStore keeps results in process memory, in insertion order.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*model.Result
	order    []string
	capacity int

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs a memory store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:                  make(map[string]*model.Result),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Save implements Store.Save.
func (s *MemoryStore) Save(_ context.Context, res *model.Result) error {
	if res == nil || res.ID == "" {
		return ErrMissingID
	}
	cp := cloneResult(res)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[res.ID]; !exists {
		s.order = append(s.order, res.ID)
	}
	s.byID[res.ID] = cp
	for s.capacity > 0 && len(s.order) > s.capacity {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneResult(res), nil
}

// List implements Store.List.
func (s *MemoryStore) List(_ context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, Summarize(s.byID[id]))
	}
	s.mu.RUnlock()

	// Newest first; insertion order breaks ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStoredResults(s.Count(ctx))
			}
		}
	}()
}

func cloneResult(res *model.Result) *model.Result {
	cp := *res
	cp.Task.TestCases = append([]string(nil), res.Task.TestCases...)
	cp.Task.Candidates = append([]string(nil), res.Task.Candidates...)
	cp.Standings = append([]model.Candidate(nil), res.Standings...)
	cp.Matches = append([]model.MatchOutcome(nil), res.Matches...)
	cp.Failures = append([]model.MatchFailure(nil), res.Failures...)
	return &cp
}
