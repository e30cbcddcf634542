package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/run-matchmaker/internal/config"
	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/matchmaking"
)

// sweepBatch bounds how many expired snapshots one sweep pass removes per round trip.
const sweepBatch = 500

// SnapshotPool provides the Redis-backed matchmaking pool.
//
// Layout:
//
//	snapshots:round:<n>      ZSET  member=snapshot id, score=rating
//	snapshots:player:<id>    ZSET  member=snapshot id, score=capture time (ms)
//	snapshots:created        ZSET  member=snapshot id, score=capture time (ms)
//	snapshot:<id>            STRING  JSON body
type SnapshotPool struct {
	client *redis.Client
	logger *slog.Logger
}

// NewSnapshotPool creates a new Redis snapshot pool
func NewSnapshotPool(cfg *config.RedisConfig, logger *slog.Logger) (*SnapshotPool, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewSnapshotPoolWithClient(client, logger), nil
}

// NewSnapshotPoolWithClient wraps an existing client
func NewSnapshotPoolWithClient(client *redis.Client, logger *slog.Logger) *SnapshotPool {
	return &SnapshotPool{client: client, logger: logger}
}

// Close closes the Redis connection
func (p *SnapshotPool) Close() error {
	return p.client.Close()
}

// Client returns the underlying Redis client
func (p *SnapshotPool) Client() *redis.Client {
	return p.client
}

func roundKey(round int) string {
	return fmt.Sprintf("snapshots:round:%d", round)
}

func playerKey(playerID string) string {
	return fmt.Sprintf("snapshots:player:%s", playerID)
}

const createdKey = "snapshots:created"

func bodyKey(snapshotID string) string {
	return fmt.Sprintf("snapshot:%s", snapshotID)
}

// Insert stores a snapshot and indexes it by round, player and capture time.
func (p *SnapshotPool) Insert(ctx context.Context, s *domain.Snapshot) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	captured := float64(s.CreatedAt.UnixMilli())

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, bodyKey(s.ID), body, 0)
	pipe.ZAdd(ctx, roundKey(s.Round), redis.Z{Score: float64(s.Rating), Member: s.ID})
	pipe.ZAdd(ctx, playerKey(s.PlayerID), redis.Z{Score: captured, Member: s.ID})
	pipe.ZAdd(ctx, createdKey, redis.Z{Score: captured, Member: s.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// EvictOldest removes the player's oldest snapshots until at most keep remain.
func (p *SnapshotPool) EvictOldest(ctx context.Context, playerID string, keep int) (int, error) {
	key := playerKey(playerID)
	count, err := p.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("counting player snapshots: %w", err)
	}
	excess := count - int64(max(keep, 0))
	if excess <= 0 {
		return 0, nil
	}

	ids, err := p.client.ZRange(ctx, key, 0, excess-1).Result()
	if err != nil {
		return 0, fmt.Errorf("listing oldest snapshots: %w", err)
	}
	return p.remove(ctx, ids)
}

// Candidates walks the round's rating window in (rating, id) order, skipping
// the requester's own snapshots, until the limit is reached.
func (p *SnapshotPool) Candidates(ctx context.Context, q matchmaking.CandidateQuery) ([]*domain.Snapshot, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = matchmaking.DefaultMaxCandidates
	}
	page := int64(limit * 2)

	var out []*domain.Snapshot
	for offset := int64(0); len(out) < limit; offset += page {
		ids, err := p.client.ZRangeByScore(ctx, roundKey(q.Round), &redis.ZRangeBy{
			Min:    strconv.Itoa(q.MinRating),
			Max:    strconv.Itoa(q.MaxRating),
			Offset: offset,
			Count:  page,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("querying round window: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		snapshots, err := p.load(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, s := range snapshots {
			if s.PlayerID == q.ExcludePlayerID {
				continue
			}
			out = append(out, s)
			if len(out) == limit {
				break
			}
		}
		if int64(len(ids)) < page {
			break
		}
	}
	return out, nil
}

// DeleteOlderThan removes snapshots captured before cutoff.
func (p *SnapshotPool) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	for {
		ids, err := p.client.ZRangeByScore(ctx, createdKey, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
			Count: sweepBatch,
		}).Result()
		if err != nil {
			return total, fmt.Errorf("listing expired snapshots: %w", err)
		}
		if len(ids) == 0 {
			return total, nil
		}
		n, err := p.remove(ctx, ids)
		total += n
		if err != nil {
			return total, err
		}
		if len(ids) < sweepBatch {
			return total, nil
		}
	}
}

// Get returns one snapshot by id.
func (p *SnapshotPool) Get(ctx context.Context, snapshotID string) (*domain.Snapshot, error) {
	body, err := p.client.Get(ctx, bodyKey(snapshotID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.NewError(domain.ErrNotFound, "snapshot_not_found", "snapshot does not exist", "snapshot_id", snapshotID)
		}
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	var s domain.Snapshot
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", snapshotID, err)
	}
	return &s, nil
}

// load fetches bodies in id order. Ids whose body is gone are skipped.
func (p *SnapshotPool) load(ctx context.Context, ids []string) ([]*domain.Snapshot, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = bodyKey(id)
	}
	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}

	out := make([]*domain.Snapshot, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var s domain.Snapshot
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			p.logger.Warn("skipping undecodable snapshot", "snapshot_id", ids[i], "error", err)
			continue
		}
		out = append(out, &s)
	}
	return out, nil
}

// remove deletes snapshots and every index entry pointing at them.
func (p *SnapshotPool) remove(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	snapshots, err := p.load(ctx, ids)
	if err != nil {
		return 0, err
	}

	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	pipe := p.client.TxPipeline()
	for _, s := range snapshots {
		pipe.ZRem(ctx, roundKey(s.Round), s.ID)
		pipe.ZRem(ctx, playerKey(s.PlayerID), s.ID)
	}
	pipe.ZRem(ctx, createdKey, members...)
	bodies := make([]string, len(ids))
	for i, id := range ids {
		bodies[i] = bodyKey(id)
	}
	pipe.Del(ctx, bodies...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("removing snapshots: %w", err)
	}
	return len(snapshots), nil
}
