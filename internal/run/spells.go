package run

import (
	"slices"

	"github.com/run-matchmaker/internal/domain"
)

// ValidateSpells checks the spell timings a player brings into battle. Each
// spell must belong to the run's faction, be cast at most once and use a
// known timing. No spells at all is allowed.
func (m *Machine) ValidateSpells(r *domain.Run, choices []domain.SpellChoice) error {
	faction, err := m.content.Faction(r.FactionID)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(choices))
	for _, c := range choices {
		if !slices.Contains(faction.Spells, c.SpellID) {
			return domain.NewError(domain.ErrInvalidInput, "unknown_spell", "spell does not belong to the run's faction",
				"spell_id", c.SpellID, "faction_id", r.FactionID)
		}
		if seen[c.SpellID] {
			return domain.NewError(domain.ErrInvalidInput, "duplicate_spell", "spell chosen more than once", "spell_id", c.SpellID)
		}
		if !c.Timing.Valid() {
			return domain.NewError(domain.ErrInvalidInput, "invalid_timing", "spell timing must be early, mid or late",
				"spell_id", c.SpellID, "timing", c.Timing)
		}
		seen[c.SpellID] = true
	}
	return nil
}
