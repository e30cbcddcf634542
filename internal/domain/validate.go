package domain

import "fmt"

// Validate re-checks every numeric bound and structural invariant of a run.
// It is called before each write regardless of which operation produced the state.
func (r *Run) Validate() error {
	if r.Wins < 0 || r.Wins > MaxWins {
		return invariant("wins out of range", "wins", r.Wins, "max", MaxWins)
	}
	if r.Losses < 0 || r.Losses > MaxLosses {
		return invariant("losses out of range", "losses", r.Losses, "max", MaxLosses)
	}
	if r.ConsecutiveWins < 0 || r.ConsecutiveLosses < 0 {
		return invariant("negative streak", "consecutive_wins", r.ConsecutiveWins, "consecutive_losses", r.ConsecutiveLosses)
	}
	if r.Gold < 0 {
		return invariant("negative gold", "gold", r.Gold)
	}
	if r.Rating < 0 {
		return invariant("negative rating", "rating", r.Rating)
	}
	if len(r.Hand) > MaxHandSize {
		return invariant("hand too large", "hand", len(r.Hand), "max", MaxHandSize)
	}
	switch r.Status {
	case RunStatusActive, RunStatusWon, RunStatusLost:
	default:
		return invariant("unknown status", "status", r.Status)
	}

	held := len(r.RemainingDeck) + len(r.Hand) + len(r.Field)
	if held != len(r.Deck) {
		return invariant("card count mismatch", "deck", len(r.Deck), "held", held)
	}

	seen := make(map[string]struct{}, len(r.Deck))
	check := func(c Card) error {
		if c.Tier < 1 || c.Tier > MaxTier {
			return invariant("tier out of range", "instance_id", c.InstanceID, "tier", c.Tier)
		}
		if _, dup := seen[c.InstanceID]; dup {
			return invariant("duplicate card instance", "instance_id", c.InstanceID)
		}
		seen[c.InstanceID] = struct{}{}
		return nil
	}
	for _, c := range r.RemainingDeck {
		if err := check(c); err != nil {
			return err
		}
	}
	for _, c := range r.Hand {
		if err := check(c); err != nil {
			return err
		}
	}
	cells := make(map[Position]string, len(r.Field))
	for _, u := range r.Field {
		if err := check(u.Card); err != nil {
			return err
		}
		if !u.Position.InBounds() {
			return invariant("field unit out of bounds", "instance_id", u.InstanceID, "x", u.Position.X, "y", u.Position.Y)
		}
		if other, taken := cells[u.Position]; taken {
			return invariant("two units share a cell", "instance_id", u.InstanceID, "other", other)
		}
		cells[u.Position] = u.InstanceID
	}
	for _, c := range r.Deck {
		if _, ok := seen[c.InstanceID]; !ok {
			return invariant("deck card missing", "instance_id", c.InstanceID)
		}
	}
	return nil
}

func invariant(msg string, details ...any) *Error {
	return NewError(ErrInternalError, "invariant_violation", fmt.Sprintf("run invariant broken: %s", msg), details...)
}
