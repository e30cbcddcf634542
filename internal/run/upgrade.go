package run

import (
	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/economy"
)

// UpgradeCheck is the dry-run answer for an upgrade.
type UpgradeCheck struct {
	Allowed    bool          `json:"allowed"`
	Cost       int           `json:"cost"`
	TargetTier int           `json:"target_tier"`
	Reason     *domain.Error `json:"reason,omitempty"`
}

// CanUpgrade reports whether a field unit can be upgraded now, without
// changing the run.
func (m *Machine) CanUpgrade(r *domain.Run, instanceID string) (UpgradeCheck, error) {
	f := r.FieldIndex(instanceID)
	if f < 0 {
		return UpgradeCheck{Reason: notOnField(instanceID)}, nil
	}
	unit := r.Field[f]
	if unit.Tier >= domain.MaxTier {
		return UpgradeCheck{
			TargetTier: unit.Tier,
			Reason: domain.NewError(domain.ErrRuleViolation, "max_tier", "unit is already at max tier",
				"instance_id", instanceID, "tier", unit.Tier),
		}, nil
	}
	baseCost, err := m.content.Cost(unit.UnitID)
	if err != nil {
		return UpgradeCheck{}, err
	}
	check := UpgradeCheck{
		Cost:       economy.UpgradeCost(baseCost, unit.Tier+1),
		TargetTier: unit.Tier + 1,
	}
	if !economy.CanAfford(r.Gold, check.Cost) {
		check.Reason = domain.NotEnoughGold(check.Cost, r.Gold)
		return check, nil
	}
	check.Allowed = true
	return check, nil
}

// Upgrade raises a field unit's tier in place and debits the cost.
func (m *Machine) Upgrade(r *domain.Run, instanceID string) (UpgradeCheck, error) {
	if !r.IsActive() {
		return UpgradeCheck{}, domain.RunCompleted(r.ID, r.Status)
	}
	check, err := m.CanUpgrade(r, instanceID)
	if err != nil {
		return check, err
	}
	if !check.Allowed {
		return check, check.Reason
	}
	f := r.FieldIndex(instanceID)
	r.Field[f].Tier = check.TargetTier
	r.Gold -= check.Cost
	r.UpdatedAt = m.now()
	return check, r.Validate()
}
