// Package economy holds the pure gold formulas of a run.
package economy

import "math"

const (
	// WinBase is paid for every win.
	WinBase = 7
	// StreakStart is the first consecutive win that earns a streak bonus.
	StreakStart = 3
	// StreakStep is the extra gold per win beyond StreakStart-1.
	StreakStep = 2
	// LossReward is paid for every loss, above WinBase so losing players can catch up.
	LossReward = 9
)

// Reward is a gold payout broken into its parts.
type Reward struct {
	Base        int `json:"base"`
	StreakBonus int `json:"streak_bonus"`
	Total       int `json:"total"`
}

// CalculateWinReward returns the payout for a win that brings the streak to consecutiveWins.
func CalculateWinReward(consecutiveWins int) Reward {
	r := Reward{Base: WinBase}
	if consecutiveWins >= StreakStart {
		r.StreakBonus = (consecutiveWins - (StreakStart - 1)) * StreakStep
	}
	r.Total = r.Base + r.StreakBonus
	return r
}

// CalculateLossReward returns the flat payout for a loss.
func CalculateLossReward(consecutiveLosses int) Reward {
	_ = consecutiveLosses
	return Reward{Base: LossReward, Total: LossReward}
}

// CanAfford reports whether gold covers cost.
func CanAfford(gold, cost int) bool {
	return gold >= cost
}

// UpgradeCost is the gold needed to raise a unit with baseCost to targetTier.
// Tier 2 costs baseCost, tier 3 costs baseCost*1.5 rounded half away from zero.
// Any other target returns -1.
func UpgradeCost(baseCost, targetTier int) int {
	switch targetTier {
	case 2:
		return baseCost
	case 3:
		return int(math.Round(float64(baseCost) * 1.5))
	}
	return -1
}
