package run

import (
	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/economy"
)

func outOfBounds(pos domain.Position) *domain.Error {
	return domain.NewError(domain.ErrInvalidInput, "position_out_of_bounds", "position is off the grid",
		"x", pos.X, "y", pos.Y, "columns", domain.GridColumns, "rows", domain.GridRows)
}

func occupied(pos domain.Position, by string) *domain.Error {
	return domain.NewError(domain.ErrInvalidInput, "position_occupied", "cell already holds a unit",
		"x", pos.X, "y", pos.Y, "occupant", by)
}

func notOnField(instanceID string) *domain.Error {
	return domain.NewError(domain.ErrRuleViolation, "unit_not_on_field", "unit is not on the field",
		"instance_id", instanceID)
}

// Place deploys a hand card to an empty cell and debits its cost.
func (m *Machine) Place(r *domain.Run, instanceID string, pos domain.Position) error {
	if !r.IsActive() {
		return domain.RunCompleted(r.ID, r.Status)
	}
	if !pos.InBounds() {
		return outOfBounds(pos)
	}
	if i := r.OccupantAt(pos); i >= 0 {
		return occupied(pos, r.Field[i].InstanceID)
	}
	h := r.HandIndex(instanceID)
	if h < 0 {
		return domain.NewError(domain.ErrInvalidInput, "card_not_in_hand", "card is not in hand",
			"instance_id", instanceID)
	}
	card := r.Hand[h]
	cost, err := m.content.Cost(card.UnitID)
	if err != nil {
		return err
	}
	if !economy.CanAfford(r.Gold, cost) {
		return domain.NotEnoughGold(cost, r.Gold)
	}

	r.Hand = append(r.Hand[:h], r.Hand[h+1:]...)
	r.Field = append(r.Field, domain.FieldUnit{Card: card, Position: pos})
	r.Gold -= cost
	r.UpdatedAt = m.now()
	return r.Validate()
}

// Reposition moves a field unit to another cell. It is free and allowed for
// units that have already battled.
func (m *Machine) Reposition(r *domain.Run, instanceID string, pos domain.Position) error {
	if !r.IsActive() {
		return domain.RunCompleted(r.ID, r.Status)
	}
	if !pos.InBounds() {
		return outOfBounds(pos)
	}
	f := r.FieldIndex(instanceID)
	if f < 0 {
		return notOnField(instanceID)
	}
	if i := r.OccupantAt(pos); i >= 0 && i != f {
		return occupied(pos, r.Field[i].InstanceID)
	}
	r.Field[f].Position = pos
	r.UpdatedAt = m.now()
	return r.Validate()
}

// Remove pulls a field unit that has not battled back to hand and refunds its
// base cost.
func (m *Machine) Remove(r *domain.Run, instanceID string) error {
	if !r.IsActive() {
		return domain.RunCompleted(r.ID, r.Status)
	}
	f := r.FieldIndex(instanceID)
	if f < 0 {
		return notOnField(instanceID)
	}
	unit := r.Field[f]
	if unit.HasBattled {
		return domain.NewError(domain.ErrRuleViolation, "unit_committed", "a unit that has battled cannot return to hand",
			"instance_id", instanceID)
	}
	cost, err := m.content.Cost(unit.UnitID)
	if err != nil {
		return err
	}

	r.Field = append(r.Field[:f], r.Field[f+1:]...)
	r.Hand = append(r.Hand, unit.Card)
	r.Gold += cost
	r.UpdatedAt = m.now()
	return r.Validate()
}
