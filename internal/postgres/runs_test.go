package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-matchmaker/internal/domain"
)

func TestIsUniqueViolation(t *testing.T) {
	active := &pgconn.PgError{Code: uniqueViolation, ConstraintName: activeRunConstraint}
	other := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "runs_pkey"}

	assert.True(t, isUniqueViolation(active, activeRunConstraint))
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", active), activeRunConstraint))
	assert.False(t, isUniqueViolation(other, activeRunConstraint))
	assert.True(t, isUniqueViolation(other, ""))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, isUniqueViolation(errors.New("boom"), ""))
}

func TestRunColumnsRoundTrip(t *testing.T) {
	in := &domain.Run{
		Deck:          []domain.Card{{UnitID: "knight", Tier: 1, InstanceID: "c1"}, {UnitID: "archer", Tier: 1, InstanceID: "c2"}},
		RemainingDeck: []domain.Card{{UnitID: "archer", Tier: 1, InstanceID: "c2"}},
		Hand:          []domain.Card{},
		Field: []domain.FieldUnit{{
			Card:       domain.Card{UnitID: "knight", Tier: 2, InstanceID: "c1"},
			Position:   domain.Position{X: 3, Y: 1},
			HasBattled: true,
		}},
		History: []domain.BattleRecord{{BattleID: "b1", Result: domain.BattleResultWin, GoldDelta: 7, Round: 1}},
	}

	cols, err := encodeRun(in)
	require.NoError(t, err)

	var out domain.Run
	require.NoError(t, cols.decodeInto(&out))
	assert.Equal(t, in.Deck, out.Deck)
	assert.Equal(t, in.RemainingDeck, out.RemainingDeck)
	assert.Equal(t, in.Hand, out.Hand)
	assert.Equal(t, in.Field, out.Field)
	assert.Equal(t, in.History[0].BattleID, out.History[0].BattleID)
}

func TestDecodeRejectsCorruptColumn(t *testing.T) {
	cols, err := encodeRun(&domain.Run{})
	require.NoError(t, err)
	cols.field = []byte("{not json")

	var out domain.Run
	err = cols.decodeInto(&out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding field")
}
