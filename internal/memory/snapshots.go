package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/matchmaking"
)

// SnapshotPool is an in-memory matchmaking pool.
type SnapshotPool struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.Snapshot
}

// NewSnapshotPool creates an empty pool
func NewSnapshotPool() *SnapshotPool {
	return &SnapshotPool{snapshots: make(map[string]*domain.Snapshot)}
}

// EvictOldest drops the player's oldest snapshots until at most keep remain.
func (p *SnapshotPool) EvictOldest(ctx context.Context, playerID string, keep int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var owned []*domain.Snapshot
	for _, s := range p.snapshots {
		if s.PlayerID == playerID {
			owned = append(owned, s)
		}
	}
	if len(owned) <= keep {
		return 0, nil
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.Before(owned[j].CreatedAt)
		}
		return owned[i].ID < owned[j].ID
	})
	n := len(owned) - max(keep, 0)
	for _, s := range owned[:n] {
		delete(p.snapshots, s.ID)
	}
	return n, nil
}

// Insert adds a snapshot.
func (p *SnapshotPool) Insert(ctx context.Context, s *domain.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := *s
	p.snapshots[s.ID] = &c
	return nil
}

// Candidates returns snapshots for the round and rating window, ordered by
// rating then id.
func (p *SnapshotPool) Candidates(ctx context.Context, q matchmaking.CandidateQuery) ([]*domain.Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*domain.Snapshot
	for _, s := range p.snapshots {
		if s.Round != q.Round || s.PlayerID == q.ExcludePlayerID {
			continue
		}
		if s.Rating < q.MinRating || s.Rating > q.MaxRating {
			continue
		}
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating < out[j].Rating
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// DeleteOlderThan removes snapshots captured before cutoff.
func (p *SnapshotPool) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for id, s := range p.snapshots {
		if s.CreatedAt.Before(cutoff) {
			delete(p.snapshots, id)
			n++
		}
	}
	return n, nil
}

// CountByPlayer returns how many snapshots a player has in the pool.
func (p *SnapshotPool) CountByPlayer(playerID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, s := range p.snapshots {
		if s.PlayerID == playerID {
			n++
		}
	}
	return n
}

// Len returns the pool size.
func (p *SnapshotPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.snapshots)
}
