package run

import (
	"github.com/run-matchmaker/internal/domain"
)

// Draft window sizes.
const (
	InitialWindow    = 5
	InitialPicks     = 3
	PostBattleWindow = 3
	PostBattlePicks  = 1
)

// DraftKind names the draft a run is currently offered.
type DraftKind string

const (
	DraftNone       DraftKind = "none"
	DraftInitial    DraftKind = "initial"
	DraftPostBattle DraftKind = "post_battle"
)

// DraftOffer describes the current draft window without changing the run.
type DraftOffer struct {
	Kind      DraftKind     `json:"kind"`
	Available bool          `json:"available"`
	Options   []domain.Card `json:"options"`
	Picks     int           `json:"picks"`
	Reason    string        `json:"reason,omitempty"`
}

// DraftStatus reports which draft, if any, is open. Initial: nothing drafted
// yet (hand and field empty). Post-battle: something drafted and cards left.
func DraftStatus(r *domain.Run) DraftOffer {
	if !r.IsActive() {
		return DraftOffer{Kind: DraftNone, Options: []domain.Card{}, Reason: "run is not active"}
	}

	if len(r.Hand) == 0 && len(r.Field) == 0 {
		if len(r.RemainingDeck) < InitialWindow {
			return DraftOffer{Kind: DraftInitial, Options: []domain.Card{}, Reason: "not enough cards for the initial draft"}
		}
		return DraftOffer{
			Kind:      DraftInitial,
			Available: true,
			Options:   window(r, InitialWindow),
			Picks:     InitialPicks,
		}
	}

	if len(r.RemainingDeck) == 0 {
		return DraftOffer{Kind: DraftNone, Options: []domain.Card{}, Reason: "deck fully drafted"}
	}
	size := min(PostBattleWindow, len(r.RemainingDeck))
	return DraftOffer{
		Kind:      DraftPostBattle,
		Available: true,
		Options:   window(r, size),
		Picks:     min(PostBattlePicks, size),
	}
}

func window(r *domain.Run, size int) []domain.Card {
	return append([]domain.Card(nil), r.RemainingDeck[:size]...)
}

// SubmitDraft moves the picked cards to hand and recycles the rest of the
// window to the tail of the remaining deck.
func SubmitDraft(r *domain.Run, picks []string) error {
	if !r.IsActive() {
		return domain.RunCompleted(r.ID, r.Status)
	}
	offer := DraftStatus(r)
	if !offer.Available {
		return domain.NewError(domain.ErrRuleViolation, "draft_not_available", offer.Reason,
			"remaining_deck", len(r.RemainingDeck), "hand", len(r.Hand))
	}
	if len(picks) != offer.Picks {
		return domain.NewError(domain.ErrInvalidInput, "wrong_pick_count", "wrong number of draft picks",
			"required", offer.Picks, "actual", len(picks))
	}
	if len(r.Hand)+len(picks) > domain.MaxHandSize {
		return domain.NewError(domain.ErrRuleViolation, "hand_full", "hand cannot hold more cards",
			"hand", len(r.Hand), "max", domain.MaxHandSize)
	}

	offered := make(map[string]bool, len(offer.Options))
	for _, c := range offer.Options {
		offered[c.InstanceID] = false
	}
	for _, id := range picks {
		taken, ok := offered[id]
		if !ok {
			return domain.NewError(domain.ErrInvalidInput, "pick_not_offered", "pick is not in the draft window",
				"instance_id", id)
		}
		if taken {
			return domain.NewError(domain.ErrInvalidInput, "duplicate_pick", "card picked twice",
				"instance_id", id)
		}
		offered[id] = true
	}

	rest := r.RemainingDeck[len(offer.Options):]
	remaining := make([]domain.Card, 0, len(rest)+len(offer.Options)-len(picks))
	remaining = append(remaining, rest...)
	for _, c := range offer.Options {
		if offered[c.InstanceID] {
			r.Hand = append(r.Hand, c)
		} else {
			remaining = append(remaining, c)
		}
	}
	r.RemainingDeck = remaining

	return r.Validate()
}
