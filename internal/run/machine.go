// Package run implements the run progression state machine and the draft,
// placement and upgrade engines that read-modify-write a run.
//
// Functions here operate on an in-memory *domain.Run. Loading, ownership
// checks against storage and persistence belong to the service layer.
package run

import (
	"time"

	"github.com/google/uuid"

	"github.com/run-matchmaker/internal/catalog"
	"github.com/run-matchmaker/internal/domain"
)

// Defaults for a fresh run.
const (
	DefaultStartingGold   = 10
	DefaultStartingRating = 1000
)

// Content is the part of the unit catalog the run engines read.
type Content interface {
	ValidateLeader(factionID, leaderID string) error
	Faction(factionID string) (catalog.Faction, error)
	Cost(unitID string) (int, error)
}

// Machine owns run transitions. It holds no per-run state.
type Machine struct {
	content        Content
	startingGold   int
	startingRating int
	now            func() time.Time
	newID          func() string
}

// Option configures a Machine.
type Option func(*Machine)

// WithStartingGold overrides the gold a new run starts with.
func WithStartingGold(gold int) Option {
	return func(m *Machine) {
		if gold >= 0 {
			m.startingGold = gold
		}
	}
}

// WithStartingRating overrides the rating a new run starts with.
func WithStartingRating(rating int) Option {
	return func(m *Machine) {
		if rating > 0 {
			m.startingRating = rating
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator used for run and card ids.
func WithIDGenerator(newID func() string) Option {
	return func(m *Machine) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// NewMachine creates a Machine over the given content.
func NewMachine(content Content, opts ...Option) *Machine {
	m := &Machine{
		content:        content,
		startingGold:   DefaultStartingGold,
		startingRating: DefaultStartingRating,
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the machine clock's current time.
func (m *Machine) Now() time.Time {
	return m.now()
}

// Create builds a fresh run for the player. The one-active-run rule needs
// storage and is enforced by the caller.
func (m *Machine) Create(playerID, factionID, leaderID string) (*domain.Run, error) {
	if playerID == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, "missing_player", "player id is required")
	}
	if err := m.content.ValidateLeader(factionID, leaderID); err != nil {
		return nil, err
	}
	faction, err := m.content.Faction(factionID)
	if err != nil {
		return nil, err
	}

	deck := make([]domain.Card, 0, len(faction.StarterDeck))
	for _, unitID := range faction.StarterDeck {
		deck = append(deck, domain.Card{UnitID: unitID, Tier: 1, InstanceID: m.newID()})
	}

	now := m.now()
	r := &domain.Run{
		ID:            m.newID(),
		PlayerID:      playerID,
		FactionID:     factionID,
		LeaderID:      leaderID,
		Status:        domain.RunStatusActive,
		Rating:        m.startingRating,
		Gold:          m.startingGold,
		Deck:          deck,
		RemainingDeck: append([]domain.Card(nil), deck...),
		Hand:          []domain.Card{},
		Field:         []domain.FieldUnit{},
		History:       []domain.BattleRecord{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Guard applies the uniform pre-mutation checks in order: not found, not
// owner, already complete.
func Guard(runID string, r *domain.Run, requester string) error {
	if r == nil {
		return domain.RunNotFound(runID)
	}
	if r.PlayerID != requester {
		return domain.NotRunOwner(r.ID, requester)
	}
	if !r.IsActive() {
		return domain.RunCompleted(r.ID, r.Status)
	}
	return nil
}

// Outcome is what a resolved battle contributes to the run.
type Outcome struct {
	BattleID    string
	GoldEarned  int
	RatingDelta int
	Opponent    domain.OpponentSummary
}

// RecordWin applies a won battle.
func (m *Machine) RecordWin(r *domain.Run, o Outcome) error {
	return m.record(r, domain.BattleResultWin, o)
}

// RecordLoss applies a lost battle. RatingDelta is subtracted.
func (m *Machine) RecordLoss(r *domain.Run, o Outcome) error {
	return m.record(r, domain.BattleResultLoss, o)
}

func (m *Machine) record(r *domain.Run, result domain.BattleResult, o Outcome) error {
	if !r.IsActive() {
		return domain.RunCompleted(r.ID, r.Status)
	}
	if o.GoldEarned < 0 || o.RatingDelta < 0 {
		return domain.NewError(domain.ErrInvalidInput, "negative_outcome", "gold and rating deltas must be non-negative",
			"gold", o.GoldEarned, "rating_delta", o.RatingDelta)
	}

	round := r.Round()
	switch result {
	case domain.BattleResultWin:
		r.Wins++
		r.ConsecutiveWins++
		r.ConsecutiveLosses = 0
		r.Rating += o.RatingDelta
	case domain.BattleResultLoss:
		r.Losses++
		r.ConsecutiveLosses++
		r.ConsecutiveWins = 0
		r.Rating -= o.RatingDelta
		if r.Rating < 0 {
			r.Rating = 0
		}
	}
	r.Gold += o.GoldEarned

	now := m.now()
	r.History = append(r.History, domain.BattleRecord{
		BattleID:  o.BattleID,
		Result:    result,
		GoldDelta: o.GoldEarned,
		Opponent:  o.Opponent,
		Round:     round,
		Timestamp: now,
	})
	for i := range r.Field {
		r.Field[i].HasBattled = true
	}
	ApplyStatus(r)
	r.UpdatedAt = now

	return r.Validate()
}

// ApplyStatus flips an active run to won or lost once a bound is reached.
// It only touches Status, so calling it again is a no-op. Reports whether the
// status changed.
func ApplyStatus(r *domain.Run) bool {
	if r.Status != domain.RunStatusActive {
		return false
	}
	switch {
	case r.Wins >= domain.MaxWins:
		r.Status = domain.RunStatusWon
	case r.Losses >= domain.MaxLosses:
		r.Status = domain.RunStatusLost
	default:
		return false
	}
	return true
}

// Abandon ends an active run as lost without recording a battle.
func (m *Machine) Abandon(r *domain.Run) error {
	if !r.IsActive() {
		return domain.RunCompleted(r.ID, r.Status)
	}
	now := m.now()
	r.Status = domain.RunStatusLost
	r.AbandonedAt = &now
	r.UpdatedAt = now
	return r.Validate()
}
