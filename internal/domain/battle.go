package domain

// BattleReport is what a player sees after submitting a battle.
type BattleReport struct {
	BattleID        string       `json:"battle_id"`
	RunID           string       `json:"run_id"`
	Round           int          `json:"round"`
	Result          BattleResult `json:"result"`
	GoldEarned      int          `json:"gold_earned"`
	StreakBonus     int          `json:"streak_bonus"`
	RatingDelta     int          `json:"rating_delta"`
	Rating          int          `json:"rating"`
	Wins            int          `json:"wins"`
	Losses          int          `json:"losses"`
	Status          RunStatus    `json:"status"`
	Opponent        *Opponent    `json:"opponent"`
	Difficulty      Difficulty   `json:"difficulty"`
	ReplayAvailable bool         `json:"replay_available"`
}
