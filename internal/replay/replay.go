// Package replay stores battle logs so a fought battle can be replayed later.
// Writing a log is best effort: the caller retries a bounded number of times
// and reports the replay as unavailable when every attempt fails.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/run-matchmaker/internal/battle"
	"github.com/run-matchmaker/internal/domain"
)

// Log is the stored record of one battle.
type Log struct {
	BattleID  string                 `json:"battle_id"`
	RunID     string                 `json:"run_id"`
	PlayerID  string                 `json:"player_id"`
	Round     int                    `json:"round"`
	Seed      uint32                 `json:"seed"`
	Player    battle.Setup           `json:"player"`
	Opponent  battle.Setup           `json:"opponent"`
	Summary   domain.OpponentSummary `json:"opponent_summary"`
	Result    battle.Result          `json:"result"`
	CreatedAt time.Time              `json:"created_at"`
}

// Key is the object key a log is stored under.
func (l *Log) Key() string {
	return Key(l.RunID, l.BattleID)
}

// Key builds the object key for a run's battle.
func Key(runID, battleID string) string {
	return fmt.Sprintf("battles/%s/%s.json", runID, battleID)
}

// Store persists encoded battle logs.
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Writer encodes logs and writes them with retries.
type Writer struct {
	store    Store
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// NewWriter creates a new replay writer. attempts below 1 are raised to 1.
func NewWriter(store Store, attempts int, delay time.Duration, logger *slog.Logger) *Writer {
	if attempts < 1 {
		attempts = 1
	}
	return &Writer{store: store, attempts: attempts, delay: delay, logger: logger}
}

// Write stores the log, retrying on failure. It returns the last error when
// every attempt fails.
func (w *Writer) Write(ctx context.Context, l *Log) error {
	body, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encoding battle log: %w", err)
	}

	key := l.Key()
	for attempt := 1; ; attempt++ {
		err = w.store.Put(ctx, key, body)
		if err == nil {
			return nil
		}
		w.logger.Warn("battle log write failed",
			"battle_id", l.BattleID,
			"attempt", attempt,
			"error", err,
		)
		if attempt >= w.attempts {
			return fmt.Errorf("writing battle log after %d attempts: %w", attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.delay):
		}
	}
}

// Read loads and decodes a stored log.
func (w *Writer) Read(ctx context.Context, runID, battleID string) (*Log, error) {
	body, err := w.store.Get(ctx, Key(runID, battleID))
	if err != nil {
		return nil, err
	}
	var l Log
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, fmt.Errorf("decoding battle log: %w", err)
	}
	return &l, nil
}
