// Package battle turns two teams into a battle outcome. StrengthResolver is a
// deterministic attrition model that stands in until the real combat engine
// is plugged in behind Resolver.
package battle

import (
	"fmt"

	"github.com/run-matchmaker/internal/catalog"
	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/rng"
)

// Sides of a battle. The run owner is always SideA.
const (
	SideA = "a"
	SideB = "b"
)

// MaxRounds bounds a simulated battle.
const MaxRounds = 10

// Round each spell timing fires on, and the attack multiplier it gives.
var spellRound = map[domain.SpellTiming]int{
	domain.SpellTimingEarly: 1,
	domain.SpellTimingMid:   3,
	domain.SpellTimingLate:  5,
}

const spellBoost = 1.25

// Combatant is a unit with its tier-resolved stats.
type Combatant struct {
	UnitID   string          `json:"unit_id"`
	Tier     int             `json:"tier"`
	Position domain.Position `json:"position"`
	Stats    catalog.Stats   `json:"stats"`
}

// Setup is one side's input to a battle.
type Setup struct {
	Units  []Combatant          `json:"units"`
	Spells []domain.SpellChoice `json:"spells"`
}

// Event is one step of the battle log.
type Event struct {
	Round  int    `json:"round"`
	Side   string `json:"side"`
	Kind   string `json:"kind"`
	Amount int    `json:"amount,omitempty"`
	Ref    string `json:"ref,omitempty"`
}

// Result is a resolved battle.
type Result struct {
	Winner        string  `json:"winner"`
	Events        []Event `json:"events"`
	RoundsElapsed int     `json:"rounds_elapsed"`
	RemainingHPA  int     `json:"remaining_hp_a"`
	RemainingHPB  int     `json:"remaining_hp_b"`
}

// Resolver simulates a battle between two setups.
type Resolver interface {
	Simulate(a, b Setup, seed uint32) (Result, error)
}

// StatsSource resolves unit stats at a tier.
type StatsSource interface {
	Stats(unitID string, tier int) (catalog.Stats, error)
}

// BuildSetup resolves a team's stats.
func BuildSetup(stats StatsSource, team []domain.TeamUnit, spells []domain.SpellChoice) (Setup, error) {
	s := Setup{
		Units:  make([]Combatant, 0, len(team)),
		Spells: append([]domain.SpellChoice(nil), spells...),
	}
	for _, u := range team {
		st, err := stats.Stats(u.UnitID, u.Tier)
		if err != nil {
			return Setup{}, fmt.Errorf("resolving %s tier %d: %w", u.UnitID, u.Tier, err)
		}
		s.Units = append(s.Units, Combatant{UnitID: u.UnitID, Tier: u.Tier, Position: u.Position, Stats: st})
	}
	return s, nil
}

// StrengthResolver trades pooled damage between the sides each round. Attack
// shrinks with remaining hp, armor soaks a share of incoming damage and each
// spell boosts its side's attack on the round its timing fires.
type StrengthResolver struct{}

// NewStrengthResolver creates a new strength resolver
func NewStrengthResolver() *StrengthResolver {
	return &StrengthResolver{}
}

type pool struct {
	side   string
	hp     int
	maxHP  int
	attack int
	armor  float64
	spells []domain.SpellChoice
}

func newPool(side string, s Setup) *pool {
	p := &pool{side: side, spells: s.Spells}
	armor := 0
	for _, u := range s.Units {
		p.hp += u.Stats.HP
		p.attack += u.Stats.Attack
		armor += u.Stats.Armor
	}
	p.maxHP = p.hp
	if len(s.Units) > 0 {
		p.armor = float64(armor) / float64(len(s.Units))
	}
	return p
}

func (p *pool) alive() bool { return p.hp > 0 }

// strike returns the damage p deals in round and logs spells that fire.
func (p *pool) strike(round int, roll float64, events *[]Event) int {
	if p.maxHP == 0 {
		return 0
	}
	attack := float64(p.attack) * float64(p.hp) / float64(p.maxHP)
	for _, sp := range p.spells {
		if spellRound[sp.Timing] == round {
			attack *= spellBoost
			*events = append(*events, Event{Round: round, Side: p.side, Kind: "spell", Ref: sp.SpellID})
		}
	}
	return int(attack * (0.85 + 0.3*roll))
}

func (p *pool) absorb(dmg int) int {
	taken := int(float64(dmg) * (1 - min(p.armor*0.05, 0.5)))
	taken = max(taken, 1)
	p.hp = max(p.hp-taken, 0)
	return taken
}

// Simulate resolves a battle. Identical inputs and seed give identical results.
func (r *StrengthResolver) Simulate(a, b Setup, seed uint32) (Result, error) {
	if len(a.Units) == 0 || len(b.Units) == 0 {
		return Result{}, fmt.Errorf("both sides need at least one unit")
	}
	src := rng.New(uint64(seed))
	pa, pb := newPool(SideA, a), newPool(SideB, b)
	res := Result{}

	round := 0
	for round < MaxRounds && pa.alive() && pb.alive() {
		round++
		da := pa.strike(round, src.Float64(), &res.Events)
		db := pb.strike(round, src.Float64(), &res.Events)
		res.Events = append(res.Events,
			Event{Round: round, Side: SideA, Kind: "damage", Amount: pb.absorb(da)},
			Event{Round: round, Side: SideB, Kind: "damage", Amount: pa.absorb(db)},
		)
	}
	res.RoundsElapsed = round
	res.RemainingHPA, res.RemainingHPB = pa.hp, pb.hp

	fa := float64(pa.hp) / float64(pa.maxHP)
	fb := float64(pb.hp) / float64(pb.maxHP)
	switch {
	case fa > fb:
		res.Winner = SideA
	case fb > fa:
		res.Winner = SideB
	case src.IntN(2) == 0:
		res.Winner = SideA
	default:
		res.Winner = SideB
	}
	res.Events = append(res.Events, Event{Round: round, Side: res.Winner, Kind: "victory"})
	return res, nil
}
