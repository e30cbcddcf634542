package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRun() *Run {
	deck := []Card{
		{UnitID: "a", Tier: 1, InstanceID: "c1"},
		{UnitID: "b", Tier: 1, InstanceID: "c2"},
		{UnitID: "c", Tier: 2, InstanceID: "c3"},
	}
	return &Run{
		ID:            "run-1",
		PlayerID:      "p1",
		Status:        RunStatusActive,
		Rating:        1000,
		Gold:          5,
		Deck:          deck,
		RemainingDeck: []Card{deck[0]},
		Hand:          []Card{deck[1]},
		Field:         []FieldUnit{{Card: deck[2], Position: Position{X: 7, Y: 1}}},
		History:       []BattleRecord{},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validRun().Validate())

	tests := map[string]func(r *Run){
		"too many wins":   func(r *Run) { r.Wins = 10 },
		"too many losses": func(r *Run) { r.Losses = 5 },
		"negative gold":   func(r *Run) { r.Gold = -1 },
		"negative streak": func(r *Run) { r.ConsecutiveLosses = -1 },
		"unknown status":  func(r *Run) { r.Status = "paused" },
		"lost card":       func(r *Run) { r.Hand = nil },
		"bad tier":        func(r *Run) { r.Field[0].Tier = 4 },
		"off grid":        func(r *Run) { r.Field[0].Position = Position{X: 8, Y: 0} },
		"duplicate card":  func(r *Run) { r.Hand[0] = r.RemainingDeck[0] },
		"foreign card": func(r *Run) {
			r.Hand[0] = Card{UnitID: "z", Tier: 1, InstanceID: "c9"}
		},
		"shared cell": func(r *Run) {
			r.Hand = nil
			r.Field = append(r.Field, FieldUnit{Card: r.Deck[1], Position: Position{X: 7, Y: 1}})
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := validRun()
			mutate(r)
			err := r.Validate()
			assert.ErrorIs(t, err, ErrInternalError)
		})
	}
}

func TestRound(t *testing.T) {
	r := validRun()
	assert.Equal(t, 1, r.Round())
	r.Wins, r.Losses = 3, 2
	assert.Equal(t, 6, r.Round())
}

func TestCloneIsDeep(t *testing.T) {
	r := validRun()
	c := r.Clone()
	require.Equal(t, r, c)

	c.Field[0].Tier = 3
	c.Hand = append(c.Hand, Card{})
	assert.Equal(t, 2, r.Field[0].Tier)
	assert.Len(t, r.Hand, 1)
	assert.NotNil(t, c.History, "empty slices stay non-nil")
}

func TestOpponentAccessors(t *testing.T) {
	team := []TeamUnit{{UnitID: "grunt", Tier: 1}}
	spells := []SpellChoice{{SpellID: "bloodlust", Timing: SpellTimingMid}}

	human := HumanOpponent(&Snapshot{ID: "s1", PlayerID: "p2", FactionID: "orcs", Rating: 1040, Team: team, SpellTimings: spells}, DifficultyMedium)
	bot := BotOpponent(&BotTeam{FactionID: "orcs", LeaderID: "warchief_grom", Team: team, SpellTimings: spells, Difficulty: 0.3}, DifficultyEasy)

	for _, o := range []*Opponent{human, bot} {
		assert.Equal(t, team, o.Team())
		assert.Equal(t, spells, o.SpellTimings())
	}

	s := human.Summary()
	assert.Equal(t, OpponentHuman, s.Kind)
	assert.Equal(t, "s1", s.SnapshotID)
	assert.Equal(t, 1040, s.Rating)

	s = bot.Summary()
	assert.Equal(t, OpponentBot, s.Kind)
	assert.Empty(t, s.PlayerID)
	assert.Equal(t, DifficultyEasy, s.Difficulty)
}

func TestErrorKinds(t *testing.T) {
	err := NotEnoughGold(5, 2)
	assert.ErrorIs(t, err, ErrInsufficientResource)
	assert.Equal(t, "insufficient resource: not enough gold", err.Error())
	assert.Equal(t, map[string]any{"required": 5, "actual": 2}, err.Details)

	de, ok := AsError(RunNotFound("r1"))
	require.True(t, ok)
	assert.Equal(t, "run_not_found", de.Code)
	assert.True(t, IsNotFoundError(de))
}
