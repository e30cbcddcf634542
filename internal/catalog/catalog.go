// Package catalog resolves static game content: units, factions, leaders and spells.
package catalog

import (
	_ "embed"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/run-matchmaker/internal/domain"
)

//go:embed data/content.yaml
var defaultContent []byte

// DefaultVersion is the stat table used when none is configured.
const DefaultVersion = "v1"

// tierMultiplier scales hp and attack for upgraded units.
var tierMultiplier = map[int]float64{1: 1.0, 2: 1.5, 3: 2.0}

// Stats are the combat numbers of a unit at a given tier.
type Stats struct {
	HP     int `yaml:"hp" json:"hp"`
	Attack int `yaml:"attack" json:"attack"`
	Armor  int `yaml:"armor" json:"armor"`
	Speed  int `yaml:"speed" json:"speed"`
	Range  int `yaml:"range" json:"range"`
}

// Unit is one catalog entry.
type Unit struct {
	ID        string `yaml:"id" json:"id"`
	FactionID string `yaml:"faction" json:"faction_id"`
	Role      string `yaml:"role" json:"role"`
	BaseCost  int    `yaml:"cost" json:"base_cost"`
	AbilityID string `yaml:"ability,omitempty" json:"ability_id,omitempty"`
	BaseStats Stats  `yaml:"stats" json:"base_stats"`
}

// Faction groups units, a leader and two spells.
type Faction struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	LeaderID    string   `yaml:"leader" json:"leader_id"`
	Spells      []string `yaml:"spells" json:"spells"`
	StarterDeck []string `yaml:"starter_deck" json:"starter_deck"`
}

// Leader belongs to exactly one faction.
type Leader struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	FactionID string `yaml:"faction" json:"faction_id"`
}

// Spell belongs to exactly one faction.
type Spell struct {
	ID        string `yaml:"id" json:"id"`
	FactionID string `yaml:"faction" json:"faction_id"`
}

type statsPatch struct {
	HP     *int `yaml:"hp"`
	Attack *int `yaml:"attack"`
	Armor  *int `yaml:"armor"`
	Speed  *int `yaml:"speed"`
	Range  *int `yaml:"range"`
}

type unitPatch struct {
	Cost  *int        `yaml:"cost"`
	Stats *statsPatch `yaml:"stats"`
}

type content struct {
	Factions []Faction                       `yaml:"factions"`
	Leaders  []Leader                        `yaml:"leaders"`
	Spells   []Spell                         `yaml:"spells"`
	Units    []Unit                          `yaml:"units"`
	Versions map[string]map[string]unitPatch `yaml:"versions"`
}

// Catalog is an immutable, version-resolved view of game content.
type Catalog struct {
	version      string
	units        map[string]Unit
	factions     map[string]Faction
	leaders      map[string]Leader
	factionOrder []string
	factionUnits map[string][]string
}

// New builds the catalog from the embedded content for the given stat table version.
func New(version string) (*Catalog, error) {
	return Parse(defaultContent, version)
}

// Parse builds a catalog from raw YAML content.
func Parse(data []byte, version string) (*Catalog, error) {
	if version == "" {
		version = DefaultVersion
	}

	var raw content
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing catalog content: %w", err)
	}

	patches, ok := raw.Versions[version]
	if !ok {
		return nil, fmt.Errorf("unknown catalog version %q", version)
	}

	c := &Catalog{
		version:      version,
		units:        make(map[string]Unit, len(raw.Units)),
		factions:     make(map[string]Faction, len(raw.Factions)),
		leaders:      make(map[string]Leader, len(raw.Leaders)),
		factionUnits: make(map[string][]string),
	}

	for _, u := range raw.Units {
		if p, ok := patches[u.ID]; ok {
			u = applyPatch(u, p)
		}
		if u.BaseCost <= 0 {
			return nil, fmt.Errorf("unit %q has non-positive cost", u.ID)
		}
		c.units[u.ID] = u
		c.factionUnits[u.FactionID] = append(c.factionUnits[u.FactionID], u.ID)
	}
	for unitID := range patches {
		if _, ok := c.units[unitID]; !ok {
			return nil, fmt.Errorf("version %q patches unknown unit %q", version, unitID)
		}
	}
	for _, l := range raw.Leaders {
		c.leaders[l.ID] = l
	}
	for _, f := range raw.Factions {
		if len(f.StarterDeck) != domain.DeckSize {
			return nil, fmt.Errorf("faction %q starter deck has %d cards, want %d", f.ID, len(f.StarterDeck), domain.DeckSize)
		}
		for _, id := range f.StarterDeck {
			if _, ok := c.units[id]; !ok {
				return nil, fmt.Errorf("faction %q starter deck references unknown unit %q", f.ID, id)
			}
		}
		c.factions[f.ID] = f
		c.factionOrder = append(c.factionOrder, f.ID)
	}

	return c, nil
}

func applyPatch(u Unit, p unitPatch) Unit {
	if p.Cost != nil {
		u.BaseCost = *p.Cost
	}
	if s := p.Stats; s != nil {
		if s.HP != nil {
			u.BaseStats.HP = *s.HP
		}
		if s.Attack != nil {
			u.BaseStats.Attack = *s.Attack
		}
		if s.Armor != nil {
			u.BaseStats.Armor = *s.Armor
		}
		if s.Speed != nil {
			u.BaseStats.Speed = *s.Speed
		}
		if s.Range != nil {
			u.BaseStats.Range = *s.Range
		}
	}
	return u
}

// Version returns the stat table in use.
func (c *Catalog) Version() string {
	return c.version
}

// Lookup returns a unit by id.
func (c *Catalog) Lookup(unitID string) (Unit, error) {
	u, ok := c.units[unitID]
	if !ok {
		return Unit{}, domain.NewError(domain.ErrNotFound, "unit_not_found", "unknown unit", "unit_id", unitID)
	}
	return u, nil
}

// Cost returns the base gold cost of a unit.
func (c *Catalog) Cost(unitID string) (int, error) {
	u, err := c.Lookup(unitID)
	if err != nil {
		return 0, err
	}
	return u.BaseCost, nil
}

// Stats resolves a unit's combat stats at a tier.
func (c *Catalog) Stats(unitID string, tier int) (Stats, error) {
	u, err := c.Lookup(unitID)
	if err != nil {
		return Stats{}, err
	}
	m, ok := tierMultiplier[tier]
	if !ok {
		return Stats{}, domain.NewError(domain.ErrInvalidInput, "invalid_tier", "tier out of range", "tier", tier)
	}
	s := u.BaseStats
	s.HP = int(math.Round(float64(s.HP) * m))
	s.Attack = int(math.Round(float64(s.Attack) * m))
	return s, nil
}

// Faction returns a faction by id.
func (c *Catalog) Faction(factionID string) (Faction, error) {
	f, ok := c.factions[factionID]
	if !ok {
		return Faction{}, domain.NewError(domain.ErrNotFound, "faction_not_found", "unknown faction", "faction_id", factionID)
	}
	return f, nil
}

// Leader returns a leader by id.
func (c *Catalog) Leader(leaderID string) (Leader, error) {
	l, ok := c.leaders[leaderID]
	if !ok {
		return Leader{}, domain.NewError(domain.ErrNotFound, "leader_not_found", "unknown leader", "leader_id", leaderID)
	}
	return l, nil
}

// ValidateLeader checks that both ids resolve and that the leader belongs to the faction.
func (c *Catalog) ValidateLeader(factionID, leaderID string) error {
	if _, err := c.Faction(factionID); err != nil {
		return err
	}
	l, err := c.Leader(leaderID)
	if err != nil {
		return err
	}
	if l.FactionID != factionID {
		return domain.NewError(domain.ErrInvalidInput, "leader_faction_mismatch", "leader does not belong to faction",
			"faction_id", factionID, "leader_id", leaderID, "leader_faction_id", l.FactionID)
	}
	return nil
}

// FactionIDs returns faction ids in content order. The order is stable so that
// seeded draws over it are reproducible.
func (c *Catalog) FactionIDs() []string {
	return append([]string(nil), c.factionOrder...)
}

// UnitIDs returns a faction's unit ids in content order.
func (c *Catalog) UnitIDs(factionID string) []string {
	return append([]string(nil), c.factionUnits[factionID]...)
}
