package domain

import (
	"slices"
	"time"
)

// Run bounds and fixed sizes.
const (
	MaxWins     = 9
	MaxLosses   = 4
	DeckSize    = 12
	MaxHandSize = 12
	GridColumns = 8
	GridRows    = 2
	MaxTier     = 3
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusActive RunStatus = "active"
	RunStatusWon    RunStatus = "won"
	RunStatusLost   RunStatus = "lost"
)

// BattleResult is the outcome of one battle from the run owner's side.
type BattleResult string

const (
	BattleResultWin  BattleResult = "win"
	BattleResultLoss BattleResult = "loss"
)

// Card is one unit instance. InstanceID is stable across deck, hand and field.
type Card struct {
	UnitID     string `json:"unit_id"`
	Tier       int    `json:"tier"`
	InstanceID string `json:"instance_id"`
}

// Position is a cell on the 8x2 field.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// InBounds reports whether the position lies on the grid.
func (p Position) InBounds() bool {
	return p.X >= 0 && p.X < GridColumns && p.Y >= 0 && p.Y < GridRows
}

// FieldUnit is a card placed on the field.
type FieldUnit struct {
	Card
	Position   Position `json:"position"`
	HasBattled bool     `json:"has_battled"`
}

// OpponentSummary is the part of an opponent kept in run history.
type OpponentSummary struct {
	Kind       OpponentKind `json:"kind"`
	PlayerID   string       `json:"player_id,omitempty"`
	SnapshotID string       `json:"snapshot_id,omitempty"`
	FactionID  string       `json:"faction_id"`
	LeaderID   string       `json:"leader_id"`
	Rating     int          `json:"rating,omitempty"`
	Difficulty Difficulty   `json:"difficulty"`
}

// BattleRecord is one entry of run history.
type BattleRecord struct {
	BattleID  string          `json:"battle_id"`
	Result    BattleResult    `json:"result"`
	GoldDelta int             `json:"gold_delta"`
	Opponent  OpponentSummary `json:"opponent"`
	Round     int             `json:"round"`
	Timestamp time.Time       `json:"timestamp"`
}

// Run is the aggregate root for one attempt by a player.
type Run struct {
	ID                string         `json:"id"`
	PlayerID          string         `json:"player_id"`
	FactionID         string         `json:"faction_id"`
	LeaderID          string         `json:"leader_id"`
	Wins              int            `json:"wins"`
	Losses            int            `json:"losses"`
	ConsecutiveWins   int            `json:"consecutive_wins"`
	ConsecutiveLosses int            `json:"consecutive_losses"`
	Status            RunStatus      `json:"status"`
	Rating            int            `json:"rating"`
	Gold              int            `json:"gold"`
	Deck              []Card         `json:"deck"`
	RemainingDeck     []Card         `json:"remaining_deck"`
	Hand              []Card         `json:"hand"`
	Field             []FieldUnit    `json:"field"`
	History           []BattleRecord `json:"history"`
	Version           int64          `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	AbandonedAt       *time.Time     `json:"abandoned_at,omitempty"`
}

// Round is the index of the battle about to be fought.
func (r *Run) Round() int {
	return r.Wins + r.Losses + 1
}

// IsActive reports whether the run still accepts mutations.
func (r *Run) IsActive() bool {
	return r.Status == RunStatusActive
}

// HandIndex returns the index of a hand card or -1.
func (r *Run) HandIndex(instanceID string) int {
	for i, c := range r.Hand {
		if c.InstanceID == instanceID {
			return i
		}
	}
	return -1
}

// FieldIndex returns the index of a field unit or -1.
func (r *Run) FieldIndex(instanceID string) int {
	for i, u := range r.Field {
		if u.InstanceID == instanceID {
			return i
		}
	}
	return -1
}

// OccupantAt returns the field unit index at pos or -1.
func (r *Run) OccupantAt(pos Position) int {
	for i, u := range r.Field {
		if u.Position == pos {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (r *Run) Clone() *Run {
	c := *r
	c.Deck = slices.Clone(r.Deck)
	c.RemainingDeck = slices.Clone(r.RemainingDeck)
	c.Hand = slices.Clone(r.Hand)
	c.Field = slices.Clone(r.Field)
	c.History = slices.Clone(r.History)
	if r.AbandonedAt != nil {
		t := *r.AbandonedAt
		c.AbandonedAt = &t
	}
	return &c
}

// BattleEvent is the audit row written for every resolved battle.
type BattleEvent struct {
	BattleID        string       `json:"battle_id"`
	RunID           string       `json:"run_id"`
	PlayerID        string       `json:"player_id"`
	Round           int          `json:"round"`
	Result          BattleResult `json:"result"`
	Seed            uint32       `json:"seed"`
	OpponentKind    OpponentKind `json:"opponent_kind"`
	ReplayAvailable bool         `json:"replay_available"`
	CreatedAt       time.Time    `json:"created_at"`
}
