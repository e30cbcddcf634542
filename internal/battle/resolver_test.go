package battle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-matchmaker/internal/catalog"
	"github.com/run-matchmaker/internal/domain"
)

func setup(t *testing.T, team []domain.TeamUnit, spells ...domain.SpellChoice) Setup {
	t.Helper()
	cat, err := catalog.New(catalog.DefaultVersion)
	require.NoError(t, err)
	s, err := BuildSetup(cat, team, spells)
	require.NoError(t, err)
	return s
}

func unit(id string, tier, x int) domain.TeamUnit {
	return domain.TeamUnit{UnitID: id, Tier: tier, Position: domain.Position{X: x}}
}

func TestSimulateIsDeterministic(t *testing.T) {
	a := setup(t, []domain.TeamUnit{unit("footman", 1, 0), unit("archer", 1, 1)},
		domain.SpellChoice{SpellID: "rally", Timing: domain.SpellTimingMid})
	b := setup(t, []domain.TeamUnit{unit("grunt", 1, 0), unit("axe_thrower", 1, 1)})

	r := NewStrengthResolver()
	first, err := r.Simulate(a, b, 1234)
	require.NoError(t, err)
	second, err := r.Simulate(a, b, 1234)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Contains(t, []string{SideA, SideB}, first.Winner)
	assert.LessOrEqual(t, first.RoundsElapsed, MaxRounds)
	assert.Equal(t, "victory", first.Events[len(first.Events)-1].Kind)
}

func TestSpellFiresOnItsRound(t *testing.T) {
	a := setup(t, []domain.TeamUnit{unit("knight", 3, 0)},
		domain.SpellChoice{SpellID: "holy_light", Timing: domain.SpellTimingEarly})
	b := setup(t, []domain.TeamUnit{unit("ogre", 1, 0)})

	res, err := NewStrengthResolver().Simulate(a, b, 7)
	require.NoError(t, err)
	var fired []Event
	for _, e := range res.Events {
		if e.Kind == "spell" {
			fired = append(fired, e)
		}
	}
	require.Len(t, fired, 1)
	assert.Equal(t, 1, fired[0].Round)
	assert.Equal(t, "holy_light", fired[0].Ref)
}

func TestStrongerTeamWins(t *testing.T) {
	strong := setup(t, []domain.TeamUnit{unit("paladin", 3, 0), unit("knight", 3, 1), unit("griffin_rider", 3, 2)})
	weak := setup(t, []domain.TeamUnit{unit("peon", 1, 0)})

	r := NewStrengthResolver()
	for seed := uint32(0); seed < 20; seed++ {
		res, err := r.Simulate(strong, weak, seed)
		require.NoError(t, err)
		assert.Equal(t, SideA, res.Winner)
		assert.Zero(t, res.RemainingHPB)

		res, err = r.Simulate(weak, strong, seed)
		require.NoError(t, err)
		assert.Equal(t, SideB, res.Winner)
	}
}

func TestSimulateRejectsEmptySide(t *testing.T) {
	a := setup(t, []domain.TeamUnit{unit("footman", 1, 0)})
	_, err := NewStrengthResolver().Simulate(a, Setup{}, 1)
	assert.Error(t, err)
}

func TestBuildSetupResolvesTier(t *testing.T) {
	s := setup(t, []domain.TeamUnit{unit("knight", 2, 4)})
	require.Len(t, s.Units, 1)
	assert.Equal(t, 165, s.Units[0].Stats.HP)
	assert.Equal(t, 4, s.Units[0].Position.X)

	cat, err := catalog.New(catalog.DefaultVersion)
	require.NoError(t, err)
	_, err = BuildSetup(cat, []domain.TeamUnit{unit("dragon", 1, 0)}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
