// Package bot generates seeded opponent teams for when the snapshot pool has
// nobody to offer.
package bot

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/run-matchmaker/internal/catalog"
	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/economy"
	"github.com/run-matchmaker/internal/rng"
)

//go:embed data/compositions.yaml
var defaultCompositions []byte

// MaxUnits caps a generated team at one unit per grid cell.
const MaxUnits = domain.GridColumns * domain.GridRows

// VariantsPerBand is how many curated teams each (faction, round band) holds.
const VariantsPerBand = 3

// Fallback placement order: front row from the centre out, then the back row.
var fillOrder = func() []domain.Position {
	cols := []int{3, 4, 2, 5, 1, 6, 0, 7}
	out := make([]domain.Position, 0, MaxUnits)
	for y := 0; y < domain.GridRows; y++ {
		for _, x := range cols {
			out = append(out, domain.Position{X: x, Y: y})
		}
	}
	return out
}()

// Content is the part of the catalog the generator reads.
type Content interface {
	FactionIDs() []string
	Faction(factionID string) (catalog.Faction, error)
	UnitIDs(factionID string) []string
	Cost(unitID string) (int, error)
}

// Budget is the gold a bot may spend in a round.
func Budget(round int) int {
	switch {
	case round <= 2:
		return 10
	case round <= 4:
		return 20
	case round <= 6:
		return 35
	case round <= 8:
		return 50
	default:
		return 65
	}
}

// Difficulty maps run progress and a uniform draw to a scalar in [0, 1].
func Difficulty(wins, losses int, f float64) float64 {
	d := 0.1 + 0.09*float64(wins) - 0.04*float64(losses) + (f-0.5)*0.1
	return min(max(d, 0), 1)
}

type compositionUnit struct {
	Unit string `yaml:"unit"`
	Tier int    `yaml:"tier"`
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
}

type variant struct {
	Units []compositionUnit `yaml:"units"`
}

type band struct {
	Rounds   []int     `yaml:"rounds"`
	Variants []variant `yaml:"variants"`
}

// Generator builds bot teams. It is safe for concurrent use.
type Generator struct {
	content Content
	curated map[string]map[int][][]domain.TeamUnit
}

// NewGenerator creates a generator over the embedded curated compositions.
func NewGenerator(content Content) (*Generator, error) {
	return newGenerator(content, defaultCompositions)
}

func newGenerator(content Content, data []byte) (*Generator, error) {
	var raw map[string][]band
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing bot compositions: %w", err)
	}

	g := &Generator{
		content: content,
		curated: make(map[string]map[int][][]domain.TeamUnit, len(raw)),
	}
	for factionID, bands := range raw {
		if _, err := content.Faction(factionID); err != nil {
			return nil, fmt.Errorf("compositions for unknown faction %q", factionID)
		}
		byRound := make(map[int][][]domain.TeamUnit)
		for _, b := range bands {
			if len(b.Variants) != VariantsPerBand {
				return nil, fmt.Errorf("faction %q rounds %v: %d variants, want %d", factionID, b.Rounds, len(b.Variants), VariantsPerBand)
			}
			teams := make([][]domain.TeamUnit, 0, len(b.Variants))
			for i, v := range b.Variants {
				team, err := g.buildCurated(factionID, v)
				if err != nil {
					return nil, fmt.Errorf("faction %q rounds %v variant %d: %w", factionID, b.Rounds, i, err)
				}
				for _, round := range b.Rounds {
					if cost := g.teamCost(team); cost > Budget(round) {
						return nil, fmt.Errorf("faction %q round %d variant %d costs %d over budget %d", factionID, round, i, cost, Budget(round))
					}
				}
				teams = append(teams, team)
			}
			for _, round := range b.Rounds {
				if _, dup := byRound[round]; dup {
					return nil, fmt.Errorf("faction %q round %d defined twice", factionID, round)
				}
				byRound[round] = teams
			}
		}
		g.curated[factionID] = byRound
	}
	return g, nil
}

func (g *Generator) buildCurated(factionID string, v variant) ([]domain.TeamUnit, error) {
	if len(v.Units) == 0 || len(v.Units) > MaxUnits {
		return nil, fmt.Errorf("team has %d units", len(v.Units))
	}
	owned := make(map[string]bool)
	for _, id := range g.content.UnitIDs(factionID) {
		owned[id] = true
	}

	cells := make(map[domain.Position]bool, len(v.Units))
	team := make([]domain.TeamUnit, 0, len(v.Units))
	for _, u := range v.Units {
		if !owned[u.Unit] {
			return nil, fmt.Errorf("unit %q is not in the faction", u.Unit)
		}
		tier := u.Tier
		if tier == 0 {
			tier = 1
		}
		if tier < 1 || tier > domain.MaxTier {
			return nil, fmt.Errorf("unit %q has tier %d", u.Unit, tier)
		}
		pos := domain.Position{X: u.X, Y: u.Y}
		if !pos.InBounds() || cells[pos] {
			return nil, fmt.Errorf("unit %q has bad position %+v", u.Unit, pos)
		}
		cells[pos] = true
		team = append(team, domain.TeamUnit{UnitID: u.Unit, Tier: tier, Position: pos})
	}
	return team, nil
}

// teamCost is the gold needed to field a team from scratch, upgrades included.
func (g *Generator) teamCost(team []domain.TeamUnit) int {
	total := 0
	for _, u := range team {
		base, err := g.content.Cost(u.UnitID)
		if err != nil {
			continue
		}
		total += base
		for tier := 2; tier <= u.Tier; tier++ {
			total += economy.UpgradeCost(base, tier)
		}
	}
	return total
}

// Generate builds the bot for a run at the given progress. Draws come from one
// stream in a fixed order: faction, team, spell timings, difficulty. The
// result depends only on (wins, losses, seed).
func (g *Generator) Generate(wins, losses int, seed uint64) (*domain.BotTeam, error) {
	factions := g.content.FactionIDs()
	if len(factions) == 0 {
		return nil, fmt.Errorf("no factions to generate a bot from")
	}
	src := rng.New(seed)
	round := wins + losses + 1

	factionID := factions[src.IntN(len(factions))]
	faction, err := g.content.Faction(factionID)
	if err != nil {
		return nil, err
	}

	bot := &domain.BotTeam{
		FactionID: factionID,
		LeaderID:  faction.LeaderID,
		Round:     round,
	}
	if variants := g.curated[factionID][round]; len(variants) > 0 {
		bot.Team = append([]domain.TeamUnit(nil), variants[src.IntN(len(variants))]...)
		bot.Curated = true
	} else {
		bot.Team, err = g.fill(src, factionID, Budget(round))
		if err != nil {
			return nil, err
		}
	}

	bot.SpellTimings = make([]domain.SpellChoice, 0, len(faction.Spells))
	for _, spellID := range faction.Spells {
		timing := domain.SpellTimings[src.IntN(len(domain.SpellTimings))]
		bot.SpellTimings = append(bot.SpellTimings, domain.SpellChoice{SpellID: spellID, Timing: timing})
	}

	bot.Difficulty = Difficulty(wins, losses, src.Float64())
	return bot, nil
}

// fill greedily spends budget over a shuffled unit list, cycling until a pass
// places nothing, the grid is full or the budget is gone. All units are tier 1.
func (g *Generator) fill(src rng.Source, factionID string, budget int) ([]domain.TeamUnit, error) {
	units := g.content.UnitIDs(factionID)
	rng.Shuffle(src, units)

	costs := make([]int, len(units))
	for i, id := range units {
		c, err := g.content.Cost(id)
		if err != nil {
			return nil, err
		}
		costs[i] = c
	}

	team := make([]domain.TeamUnit, 0, MaxUnits)
	for budget > 0 && len(team) < MaxUnits {
		placed := false
		for i, id := range units {
			if len(team) == MaxUnits || budget == 0 {
				break
			}
			if costs[i] > budget {
				continue
			}
			team = append(team, domain.TeamUnit{UnitID: id, Tier: 1, Position: fillOrder[len(team)]})
			budget -= costs[i]
			placed = true
		}
		if !placed {
			break
		}
	}
	return team, nil
}

// Label turns a bot difficulty scalar into the label shown to the player.
func Label(difficulty float64) domain.Difficulty {
	switch {
	case difficulty < 0.5:
		return domain.DifficultyEasy
	case difficulty > 0.75:
		return domain.DifficultyHard
	default:
		return domain.DifficultyMedium
	}
}
