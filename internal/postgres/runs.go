package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/run-matchmaker/internal/config"
	"github.com/run-matchmaker/internal/domain"
)

const (
	uniqueViolation     = "23505"
	activeRunConstraint = "idx_runs_active_player"
	defaultHistoryLimit = 50
	runColumns          = `id, player_id, faction_id, leader_id, wins, losses, consecutive_wins, consecutive_losses,
		status, rating, gold, deck, remaining_deck, hand, field, history, version, created_at, updated_at, abandoned_at`
)

// Repository provides PostgreSQL-based run persistence
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id VARCHAR(64) PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			faction_id VARCHAR(64) NOT NULL,
			leader_id VARCHAR(64) NOT NULL,
			wins INT NOT NULL DEFAULT 0 CHECK (wins BETWEEN 0 AND 9),
			losses INT NOT NULL DEFAULT 0 CHECK (losses BETWEEN 0 AND 4),
			consecutive_wins INT NOT NULL DEFAULT 0,
			consecutive_losses INT NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			rating INT NOT NULL,
			gold INT NOT NULL CHECK (gold >= 0),
			deck JSONB NOT NULL,
			remaining_deck JSONB NOT NULL,
			hand JSONB NOT NULL,
			field JSONB NOT NULL,
			history JSONB NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			abandoned_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS battles (
			id VARCHAR(64) PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			player_id VARCHAR(64) NOT NULL,
			round INT NOT NULL,
			result VARCHAR(8) NOT NULL,
			seed BIGINT NOT NULL,
			opponent_kind VARCHAR(8) NOT NULL,
			replay_available BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + activeRunConstraint + ` ON runs(player_id) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_runs_player_created ON runs(player_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_battles_run ON battles(run_id, round)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// runRow carries the JSONB columns between Go values and the database.
type runRow struct {
	deck, remaining, hand, field, history []byte
}

func encodeRun(run *domain.Run) (runRow, error) {
	var row runRow
	var err error
	if row.deck, err = json.Marshal(run.Deck); err != nil {
		return row, fmt.Errorf("marshaling deck: %w", err)
	}
	if row.remaining, err = json.Marshal(run.RemainingDeck); err != nil {
		return row, fmt.Errorf("marshaling remaining deck: %w", err)
	}
	if row.hand, err = json.Marshal(run.Hand); err != nil {
		return row, fmt.Errorf("marshaling hand: %w", err)
	}
	if row.field, err = json.Marshal(run.Field); err != nil {
		return row, fmt.Errorf("marshaling field: %w", err)
	}
	if row.history, err = json.Marshal(run.History); err != nil {
		return row, fmt.Errorf("marshaling history: %w", err)
	}
	return row, nil
}

func (row runRow) decodeInto(run *domain.Run) error {
	targets := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"deck", row.deck, &run.Deck},
		{"remaining deck", row.remaining, &run.RemainingDeck},
		{"hand", row.hand, &run.Hand},
		{"field", row.field, &run.Field},
		{"history", row.history, &run.History},
	}
	for _, t := range targets {
		if err := json.Unmarshal(t.raw, t.dst); err != nil {
			return fmt.Errorf("decoding %s: %w", t.name, err)
		}
	}
	return nil
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var cols runRow
	err := row.Scan(
		&run.ID,
		&run.PlayerID,
		&run.FactionID,
		&run.LeaderID,
		&run.Wins,
		&run.Losses,
		&run.ConsecutiveWins,
		&run.ConsecutiveLosses,
		&run.Status,
		&run.Rating,
		&run.Gold,
		&cols.deck,
		&cols.remaining,
		&cols.hand,
		&cols.field,
		&cols.history,
		&run.Version,
		&run.CreatedAt,
		&run.UpdatedAt,
		&run.AbandonedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := cols.decodeInto(&run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Create inserts a new run at version 1. The partial unique index rejects a
// second active run for the same player.
func (r *Repository) Create(ctx context.Context, run *domain.Run) error {
	cols, err := encodeRun(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17, $18, $19)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.PlayerID,
		run.FactionID,
		run.LeaderID,
		run.Wins,
		run.Losses,
		run.ConsecutiveWins,
		run.ConsecutiveLosses,
		string(run.Status),
		run.Rating,
		run.Gold,
		cols.deck,
		cols.remaining,
		cols.hand,
		cols.field,
		cols.history,
		run.CreatedAt,
		run.UpdatedAt,
		run.AbandonedAt,
	)
	if err != nil {
		if isUniqueViolation(err, activeRunConstraint) {
			return domain.NewError(domain.ErrConflict, "active_run_exists", "player already has an active run",
				"player_id", run.PlayerID)
		}
		return fmt.Errorf("creating run: %w", err)
	}
	run.Version = 1
	return nil
}

// Get retrieves a run by ID
func (r *Repository) Get(ctx context.Context, runID string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	run, err := scanRun(r.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.RunNotFound(runID)
		}
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return run, nil
}

// GetActiveByPlayer retrieves the player's active run
func (r *Repository) GetActiveByPlayer(ctx context.Context, playerID string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE player_id = $1 AND status = 'active'`
	run, err := scanRun(r.pool.QueryRow(ctx, query, playerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewError(domain.ErrNotFound, "no_active_run", "player has no active run", "player_id", playerID)
		}
		return nil, fmt.Errorf("getting active run: %w", err)
	}
	return run, nil
}

// ListByPlayer retrieves the player's runs, newest first
func (r *Repository) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE player_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Save writes the run only if the stored version still matches, then bumps
// the version on the passed run.
func (r *Repository) Save(ctx context.Context, run *domain.Run) error {
	cols, err := encodeRun(run)
	if err != nil {
		return err
	}

	query := `
		UPDATE runs SET
			wins = $3, losses = $4, consecutive_wins = $5, consecutive_losses = $6,
			status = $7, rating = $8, gold = $9,
			deck = $10, remaining_deck = $11, hand = $12, field = $13, history = $14,
			updated_at = $15, abandoned_at = $16, version = version + 1
		WHERE id = $1 AND version = $2
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Version,
		run.Wins,
		run.Losses,
		run.ConsecutiveWins,
		run.ConsecutiveLosses,
		string(run.Status),
		run.Rating,
		run.Gold,
		cols.deck,
		cols.remaining,
		cols.hand,
		cols.field,
		cols.history,
		run.UpdatedAt,
		run.AbandonedAt,
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.saveMiss(ctx, run)
	}
	run.Version++
	return nil
}

// saveMiss tells a missing run apart from a lost version race.
func (r *Repository) saveMiss(ctx context.Context, run *domain.Run) error {
	var current int64
	err := r.pool.QueryRow(ctx, `SELECT version FROM runs WHERE id = $1`, run.ID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RunNotFound(run.ID)
		}
		return fmt.Errorf("checking run version: %w", err)
	}
	r.logger.Warn("rejected stale run write", "run_id", run.ID, "version", run.Version, "current_version", current)
	return domain.NewError(domain.ErrConflict, "stale_run", "run was modified concurrently",
		"run_id", run.ID, "version", run.Version, "current_version", current)
}

// RecordBattle records a battle for auditing
func (r *Repository) RecordBattle(ctx context.Context, event domain.BattleEvent) error {
	query := `
		INSERT INTO battles (id, run_id, player_id, round, result, seed, opponent_kind, replay_available, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		event.BattleID,
		event.RunID,
		event.PlayerID,
		event.Round,
		string(event.Result),
		int64(event.Seed),
		string(event.OpponentKind),
		event.ReplayAvailable,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording battle: %w", err)
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}
