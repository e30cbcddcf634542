package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/matchmaking"
)

func newTestPool(t *testing.T) *SnapshotPool {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSnapshotPoolWithClient(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func snap(id, player string, round, rating int, at time.Time) *domain.Snapshot {
	return &domain.Snapshot{
		ID:        id,
		PlayerID:  player,
		FactionID: "humans",
		LeaderID:  "commander_aldric",
		Round:     round,
		Rating:    rating,
		Team:      []domain.TeamUnit{{UnitID: "knight", Tier: 1}},
		CreatedAt: at,
	}
}

func TestCandidatesWindow(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)

	require.NoError(t, pool.Insert(ctx, snap("s1", "p1", 3, 1000, base)))
	require.NoError(t, pool.Insert(ctx, snap("s2", "p2", 3, 1150, base)))
	require.NoError(t, pool.Insert(ctx, snap("s3", "p3", 3, 1300, base)))
	require.NoError(t, pool.Insert(ctx, snap("s4", "p4", 4, 1000, base)))
	require.NoError(t, pool.Insert(ctx, snap("s5", "me", 3, 1000, base)))

	got, err := pool.Candidates(ctx, matchmaking.CandidateQuery{
		Round: 3, MinRating: 900, MaxRating: 1200, ExcludePlayerID: "me", Limit: 10,
	})
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"s1", "s2"}, ids)
	assert.Equal(t, "knight", got[0].Team[0].UnitID)
}

func TestCandidatesLimitSkipsExcludedAcrossPages(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)

	// Two own snapshots sort first and fill the first page.
	require.NoError(t, pool.Insert(ctx, snap("a", "me", 1, 990, base)))
	require.NoError(t, pool.Insert(ctx, snap("b", "me", 1, 995, base)))
	require.NoError(t, pool.Insert(ctx, snap("c", "p1", 1, 1000, base)))
	require.NoError(t, pool.Insert(ctx, snap("d", "p2", 1, 1001, base)))

	got, err := pool.Candidates(ctx, matchmaking.CandidateQuery{
		Round: 1, MinRating: 800, MaxRating: 1200, ExcludePlayerID: "me", Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
}

func TestEvictOldest(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, pool.Insert(ctx, snap(id, "p1", 2, 1000, base.Add(time.Duration(i)*time.Minute))))
	}

	n, err := pool.EvictOldest(ctx, "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = pool.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	kept, err := pool.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "p1", kept.PlayerID)

	got, err := pool.Candidates(ctx, matchmaking.CandidateQuery{Round: 2, MinRating: 0, MaxRating: 5000, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)

	n, err = pool.EvictOldest(ctx, "p1", 5)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)

	require.NoError(t, pool.Insert(ctx, snap("expired", "p1", 1, 1000, base.Add(-25*time.Hour))))
	require.NoError(t, pool.Insert(ctx, snap("fresh", "p2", 1, 1000, base.Add(-time.Hour))))

	n, err := pool.DeleteOlderThan(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := pool.Candidates(ctx, matchmaking.CandidateQuery{Round: 1, MinRating: 0, MaxRating: 5000, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)

	count, err := pool.Client().ZCard(ctx, playerKey("p1")).Result()
	require.NoError(t, err)
	assert.Zero(t, count)
}
