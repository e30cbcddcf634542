// Package matchmaking pairs a run with a stored snapshot of another player's
// team, falling back to a generated bot when the pool is empty.
package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/run-matchmaker/internal/bot"
	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/metrics"
	"github.com/run-matchmaker/internal/rng"
)

// Defaults for Config.
const (
	DefaultRatingRange           = 200
	DefaultMaxCandidates         = 20
	DefaultMaxSnapshotsPerPlayer = 10
	DifficultyGap                = 100
)

// CandidateQuery selects pool snapshots. Results must be ordered by rating
// then id so that a seeded index pick is reproducible.
type CandidateQuery struct {
	Round           int
	MinRating       int
	MaxRating       int
	ExcludePlayerID string
	Limit           int
}

// SnapshotStore is the persistence the engine needs for the snapshot pool.
type SnapshotStore interface {
	// EvictOldest deletes the player's oldest snapshots until at most keep remain.
	EvictOldest(ctx context.Context, playerID string, keep int) (int, error)
	Insert(ctx context.Context, s *domain.Snapshot) error
	Candidates(ctx context.Context, q CandidateQuery) ([]*domain.Snapshot, error)
	// DeleteOlderThan removes every snapshot captured before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// BotGenerator builds a bot for given run progress.
type BotGenerator interface {
	Generate(wins, losses int, seed uint64) (*domain.BotTeam, error)
}

// Config tunes the pairing window.
type Config struct {
	RatingRange           int
	MaxCandidates         int
	BotFallback           bool
	MaxSnapshotsPerPlayer int
}

// DefaultConfig returns the standard window with bot fallback on.
func DefaultConfig() Config {
	return Config{
		RatingRange:           DefaultRatingRange,
		MaxCandidates:         DefaultMaxCandidates,
		BotFallback:           true,
		MaxSnapshotsPerPlayer: DefaultMaxSnapshotsPerPlayer,
	}
}

// Engine implements snapshot save and opponent search.
type Engine struct {
	store  SnapshotStore
	bots   BotGenerator
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a new matchmaking engine
func NewEngine(store SnapshotStore, bots BotGenerator, cfg Config, logger *slog.Logger) *Engine {
	// Apply defaults
	if cfg.RatingRange < 0 {
		cfg.RatingRange = DefaultRatingRange
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.MaxSnapshotsPerPlayer <= 0 {
		cfg.MaxSnapshotsPerPlayer = DefaultMaxSnapshotsPerPlayer
	}
	return &Engine{store: store, bots: bots, cfg: cfg, logger: logger, now: time.Now}
}

// SetClock replaces time.Now for snapshot capture times.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SaveSnapshot stores the run's deployed team as pool bait. The player's
// oldest snapshots are evicted first so the new one keeps them within the cap.
func (e *Engine) SaveSnapshot(ctx context.Context, run *domain.Run, team []domain.TeamUnit, spells []domain.SpellChoice) (*domain.Snapshot, error) {
	if len(team) == 0 {
		return nil, domain.NewError(domain.ErrInvalidInput, "empty_team", "cannot snapshot an empty team", "run_id", run.ID)
	}

	evicted, err := e.store.EvictOldest(ctx, run.PlayerID, e.cfg.MaxSnapshotsPerPlayer-1)
	if err != nil {
		return nil, fmt.Errorf("evicting snapshots for %s: %w", run.PlayerID, err)
	}

	s := &domain.Snapshot{
		ID:           uuid.NewString(),
		PlayerID:     run.PlayerID,
		RunID:        run.ID,
		FactionID:    run.FactionID,
		LeaderID:     run.LeaderID,
		Round:        run.Round(),
		Wins:         run.Wins,
		Losses:       run.Losses,
		Rating:       run.Rating,
		Team:         append([]domain.TeamUnit(nil), team...),
		SpellTimings: append([]domain.SpellChoice(nil), spells...),
		CreatedAt:    e.now(),
	}
	if err := e.store.Insert(ctx, s); err != nil {
		return nil, fmt.Errorf("inserting snapshot: %w", err)
	}

	metrics.RecordSnapshotSaved(evicted)
	e.logger.Debug("snapshot saved",
		"snapshot_id", s.ID,
		"player_id", s.PlayerID,
		"round", s.Round,
		"rating", s.Rating,
		"evicted", evicted,
	)
	return s, nil
}

// FindOpponent picks an opponent for the run's current round. It only reads
// the run.
func (e *Engine) FindOpponent(ctx context.Context, run *domain.Run, seed uint64) (*domain.Opponent, error) {
	round := run.Round()
	candidates, err := e.store.Candidates(ctx, CandidateQuery{
		Round:           round,
		MinRating:       run.Rating - e.cfg.RatingRange,
		MaxRating:       run.Rating + e.cfg.RatingRange,
		ExcludePlayerID: run.PlayerID,
		Limit:           e.cfg.MaxCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}

	var opp *domain.Opponent
	switch {
	case len(candidates) > 0:
		pick := candidates[rng.New(seed).IntN(len(candidates))]
		opp = domain.HumanOpponent(pick, HumanDifficulty(run.Rating, pick.Rating))
	case e.cfg.BotFallback:
		b, err := e.bots.Generate(run.Wins, run.Losses, seed)
		if err != nil {
			return nil, fmt.Errorf("generating bot: %w", err)
		}
		opp = domain.BotOpponent(b, bot.Label(b.Difficulty))
	default:
		return nil, domain.NewError(domain.ErrNoOpponent, "no_opponent", "no opponent in range and bot fallback is disabled",
			"run_id", run.ID, "round", round, "rating", run.Rating, "rating_range", e.cfg.RatingRange)
	}

	metrics.RecordOpponent(string(opp.Kind), string(opp.Difficulty))
	e.logger.Debug("opponent found",
		"run_id", run.ID,
		"round", round,
		"kind", opp.Kind,
		"difficulty", opp.Difficulty,
		"candidates", len(candidates),
	)
	return opp, nil
}

// Seed adds externally produced snapshots to the pool under the same
// per-player cap as SaveSnapshot. Snapshots without an id get one.
func (e *Engine) Seed(ctx context.Context, snapshots []*domain.Snapshot) (int, error) {
	inserted := 0
	for _, s := range snapshots {
		if len(s.Team) == 0 {
			continue
		}
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = e.now()
		}
		evicted, err := e.store.EvictOldest(ctx, s.PlayerID, e.cfg.MaxSnapshotsPerPlayer-1)
		if err != nil {
			return inserted, fmt.Errorf("evicting snapshots for %s: %w", s.PlayerID, err)
		}
		if err := e.store.Insert(ctx, s); err != nil {
			return inserted, fmt.Errorf("inserting seed snapshot: %w", err)
		}
		metrics.RecordSnapshotSaved(evicted)
		inserted++
	}
	return inserted, nil
}

// Sweep deletes snapshots older than ttl.
func (e *Engine) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	n, err := e.store.DeleteOlderThan(ctx, e.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("sweeping snapshots: %w", err)
	}
	metrics.RecordSnapshotsSwept(n)
	return n, nil
}

// HumanDifficulty labels a snapshot opponent by the signed rating gap.
func HumanDifficulty(runRating, opponentRating int) domain.Difficulty {
	gap := opponentRating - runRating
	switch {
	case gap < -DifficultyGap:
		return domain.DifficultyEasy
	case gap > DifficultyGap:
		return domain.DifficultyHard
	default:
		return domain.DifficultyMedium
	}
}
