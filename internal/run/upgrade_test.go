package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-matchmaker/internal/domain"
)

func TestUpgradeTiers(t *testing.T) {
	m := newTestMachine(t)
	r := draftedRun(t, m)
	card := r.Hand[0]
	require.NoError(t, m.Place(r, card.InstanceID, domain.Position{X: 0, Y: 0}))
	base, err := m.content.Cost(card.UnitID)
	require.NoError(t, err)
	r.Gold = 100

	check, err := m.Upgrade(r, card.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, 2, check.TargetTier)
	assert.Equal(t, base, check.Cost)
	assert.Equal(t, 2, r.Field[0].Tier)
	assert.Equal(t, 100-base, r.Gold)

	check, err = m.Upgrade(r, card.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Field[0].Tier)
	assert.Equal(t, card.InstanceID, r.Field[0].InstanceID, "instance id is stable across upgrades")

	_, err = m.Upgrade(r, card.InstanceID)
	assert.ErrorIs(t, err, domain.ErrRuleViolation)
	de, _ := domain.AsError(err)
	assert.Equal(t, "max_tier", de.Code)
	assert.Equal(t, 3, r.Field[0].Tier)
}

func TestCanUpgradeReasons(t *testing.T) {
	m := newTestMachine(t)
	r := draftedRun(t, m)
	hand := r.Hand[1]
	field := r.Hand[0]
	require.NoError(t, m.Place(r, field.InstanceID, domain.Position{X: 0, Y: 0}))

	check, err := m.CanUpgrade(r, hand.InstanceID)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, "unit_not_on_field", check.Reason.Code)

	r.Gold = 0
	check, err = m.CanUpgrade(r, field.InstanceID)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.ErrorIs(t, check.Reason, domain.ErrInsufficientResource)

	r.Gold = 50
	r.Field[0].Tier = 3
	check, err = m.CanUpgrade(r, field.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, "max_tier", check.Reason.Code)

	r.Field[0].Tier = 2
	before := r.Clone()
	check, err = m.CanUpgrade(r, field.InstanceID)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Nil(t, check.Reason)
	assert.Equal(t, before, r, "dry run does not mutate")
}

func TestUpgradeRejectsHandCardsAndPoorPlayers(t *testing.T) {
	m := newTestMachine(t)
	r := draftedRun(t, m)

	_, err := m.Upgrade(r, r.Hand[0].InstanceID)
	assert.ErrorIs(t, err, domain.ErrRuleViolation)

	id := r.Hand[0].InstanceID
	require.NoError(t, m.Place(r, id, domain.Position{X: 0, Y: 0}))
	r.Gold = 0
	_, err = m.Upgrade(r, id)
	assert.ErrorIs(t, err, domain.ErrInsufficientResource)
	assert.Equal(t, 1, r.Field[0].Tier)
}
