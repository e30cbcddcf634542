package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-matchmaker/internal/domain"
)

func TestValidateSpells(t *testing.T) {
	m := newTestMachine(t)
	r := newTestRun(t, m)

	tests := []struct {
		name    string
		choices []domain.SpellChoice
		code    string
	}{
		{name: "none", choices: nil},
		{name: "both faction spells", choices: []domain.SpellChoice{
			{SpellID: "holy_light", Timing: domain.SpellTimingEarly},
			{SpellID: "rally", Timing: domain.SpellTimingLate},
		}},
		{name: "foreign spell", choices: []domain.SpellChoice{
			{SpellID: "bloodlust", Timing: domain.SpellTimingMid},
		}, code: "unknown_spell"},
		{name: "cast twice", choices: []domain.SpellChoice{
			{SpellID: "rally", Timing: domain.SpellTimingEarly},
			{SpellID: "rally", Timing: domain.SpellTimingLate},
		}, code: "duplicate_spell"},
		{name: "bad timing", choices: []domain.SpellChoice{
			{SpellID: "rally", Timing: "never"},
		}, code: "invalid_timing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidateSpells(r, tt.choices)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			de, ok := domain.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, de.Code)
		})
	}
}
