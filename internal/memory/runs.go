// Package memory holds in-process stores used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/run-matchmaker/internal/domain"
)

// RunStore keeps runs in a map. It applies the same version check as the
// Postgres repository.
type RunStore struct {
	mu      sync.RWMutex
	runs    map[string]*domain.Run
	battles []domain.BattleEvent
}

// NewRunStore creates an empty run store
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*domain.Run)}
}

// Create inserts a new run. A player may only have one active run.
func (s *RunStore) Create(ctx context.Context, r *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.runs {
		if existing.PlayerID == r.PlayerID && existing.IsActive() {
			return activeRunExists(r.PlayerID, existing.ID)
		}
	}
	if _, ok := s.runs[r.ID]; ok {
		return domain.NewError(domain.ErrConflict, "run_exists", "run id already used", "run_id", r.ID)
	}
	r.Version = 1
	s.runs[r.ID] = r.Clone()
	return nil
}

// Get returns a copy of the run.
func (s *RunStore) Get(ctx context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, domain.RunNotFound(runID)
	}
	return r.Clone(), nil
}

// GetActiveByPlayer returns the player's active run.
func (s *RunStore) GetActiveByPlayer(ctx context.Context, playerID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.runs {
		if r.PlayerID == playerID && r.IsActive() {
			return r.Clone(), nil
		}
	}
	return nil, noActiveRun(playerID)
}

// ListByPlayer returns the player's runs, newest first.
func (s *RunStore) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Run, 0)
	for _, r := range s.runs {
		if r.PlayerID == playerID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Save writes the run if its version matches the stored one, then bumps it.
func (s *RunStore) Save(ctx context.Context, r *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.runs[r.ID]
	if !ok {
		return domain.RunNotFound(r.ID)
	}
	if existing.Version != r.Version {
		return staleRun(r.ID, r.Version, existing.Version)
	}
	r.Version++
	s.runs[r.ID] = r.Clone()
	return nil
}

// RecordBattle appends a battle audit event.
func (s *RunStore) RecordBattle(ctx context.Context, event domain.BattleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.battles = append(s.battles, event)
	return nil
}

// Battles returns the audit events recorded for a run in write order.
func (s *RunStore) Battles(runID string) []domain.BattleEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.BattleEvent
	for _, e := range s.battles {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

func activeRunExists(playerID, runID string) *domain.Error {
	return domain.NewError(domain.ErrConflict, "active_run_exists", "player already has an active run",
		"player_id", playerID, "run_id", runID)
}

func noActiveRun(playerID string) *domain.Error {
	return domain.NewError(domain.ErrNotFound, "no_active_run", "player has no active run", "player_id", playerID)
}

func staleRun(runID string, have, want int64) *domain.Error {
	return domain.NewError(domain.ErrConflict, "stale_run", "run was modified concurrently",
		"run_id", runID, "version", have, "current_version", want)
}
