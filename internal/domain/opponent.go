package domain

import "time"

// SpellTiming is when a faction spell fires during battle.
type SpellTiming string

const (
	SpellTimingEarly SpellTiming = "early"
	SpellTimingMid   SpellTiming = "mid"
	SpellTimingLate  SpellTiming = "late"
)

// SpellTimings lists every timing in draw order.
var SpellTimings = []SpellTiming{SpellTimingEarly, SpellTimingMid, SpellTimingLate}

// Valid reports whether t is a known timing.
func (t SpellTiming) Valid() bool {
	return t == SpellTimingEarly || t == SpellTimingMid || t == SpellTimingLate
}

// SpellChoice pairs a spell with the timing chosen for it.
type SpellChoice struct {
	SpellID string      `json:"spell_id"`
	Timing  SpellTiming `json:"timing"`
}

// Difficulty is the label shown for a matched opponent.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// TeamUnit is one unit of a battle-ready team.
type TeamUnit struct {
	UnitID   string   `json:"unit_id"`
	Tier     int      `json:"tier"`
	Position Position `json:"position"`
}

// Snapshot is an immutable copy of a player's deployed team used as matchmaking bait.
type Snapshot struct {
	ID           string        `json:"id"`
	PlayerID     string        `json:"player_id"`
	RunID        string        `json:"run_id,omitempty"`
	FactionID    string        `json:"faction_id"`
	LeaderID     string        `json:"leader_id"`
	Round        int           `json:"round"`
	Wins         int           `json:"wins"`
	Losses       int           `json:"losses"`
	Rating       int           `json:"rating"`
	Team         []TeamUnit    `json:"team"`
	SpellTimings []SpellChoice `json:"spell_timings"`
	CreatedAt    time.Time     `json:"created_at"`
}

// BotTeam is a generated, unpersisted opponent.
type BotTeam struct {
	FactionID    string        `json:"faction_id"`
	LeaderID     string        `json:"leader_id"`
	Round        int           `json:"round"`
	Team         []TeamUnit    `json:"team"`
	SpellTimings []SpellChoice `json:"spell_timings"`
	Difficulty   float64       `json:"difficulty"`
	Curated      bool          `json:"curated"`
}

// OpponentKind tags the Opponent variant.
type OpponentKind string

const (
	OpponentHuman OpponentKind = "human"
	OpponentBot   OpponentKind = "bot"
)

// Opponent is either a human snapshot or a generated bot. Exactly one of
// Snapshot and Bot is set, matching Kind.
type Opponent struct {
	Kind       OpponentKind `json:"kind"`
	Snapshot   *Snapshot    `json:"snapshot,omitempty"`
	Bot        *BotTeam     `json:"bot,omitempty"`
	Difficulty Difficulty   `json:"difficulty"`
}

// HumanOpponent wraps a snapshot.
func HumanOpponent(s *Snapshot, d Difficulty) *Opponent {
	return &Opponent{Kind: OpponentHuman, Snapshot: s, Difficulty: d}
}

// BotOpponent wraps a generated bot.
func BotOpponent(b *BotTeam, d Difficulty) *Opponent {
	return &Opponent{Kind: OpponentBot, Bot: b, Difficulty: d}
}

// Team returns the opponent's units regardless of variant.
func (o *Opponent) Team() []TeamUnit {
	switch o.Kind {
	case OpponentHuman:
		return o.Snapshot.Team
	case OpponentBot:
		return o.Bot.Team
	}
	return nil
}

// SpellTimings returns the opponent's spell choices regardless of variant.
func (o *Opponent) SpellTimings() []SpellChoice {
	switch o.Kind {
	case OpponentHuman:
		return o.Snapshot.SpellTimings
	case OpponentBot:
		return o.Bot.SpellTimings
	}
	return nil
}

// Summary projects the opponent into a history entry.
func (o *Opponent) Summary() OpponentSummary {
	s := OpponentSummary{Kind: o.Kind, Difficulty: o.Difficulty}
	switch o.Kind {
	case OpponentHuman:
		s.PlayerID = o.Snapshot.PlayerID
		s.SnapshotID = o.Snapshot.ID
		s.FactionID = o.Snapshot.FactionID
		s.LeaderID = o.Snapshot.LeaderID
		s.Rating = o.Snapshot.Rating
	case OpponentBot:
		s.FactionID = o.Bot.FactionID
		s.LeaderID = o.Bot.LeaderID
	}
	return s
}

// TeamFromField converts placed units into a battle team.
func TeamFromField(field []FieldUnit) []TeamUnit {
	team := make([]TeamUnit, len(field))
	for i, u := range field {
		team[i] = TeamUnit{UnitID: u.UnitID, Tier: u.Tier, Position: u.Position}
	}
	return team
}
