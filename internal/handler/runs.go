package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/run-matchmaker/internal/domain"
)

// CreateRunRequest starts a run
type CreateRunRequest struct {
	FactionID string `json:"faction_id"`
	LeaderID  string `json:"leader_id"`
}

// DraftRequest submits draft picks by instance id
type DraftRequest struct {
	Picks []string `json:"picks"`
}

// PositionRequest targets a grid cell
type PositionRequest struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

// BattleRequest submits the next battle
type BattleRequest struct {
	Spells []domain.SpellChoice `json:"spells"`
}

// CreateRun handles run creation
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	run, err := h.service.CreateRun(r.Context(), PlayerID(r.Context()), req.FactionID, req.LeaderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    run,
	})
}

// ListRuns returns the player's runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.service.ListRuns(r.Context(), PlayerID(r.Context()), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetActiveRun returns the player's active run
func (h *Handler) GetActiveRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetActiveRun(r.Context(), PlayerID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, run)
}

// GetRun returns one run
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.GetRun(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, run)
}

// GetHistory returns a run's battle history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.GetHistory(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, history)
}

// AbandonRun ends a run as lost
func (h *Handler) AbandonRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Abandon(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, run)
}

// GetDraft returns the open draft
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	offer, err := h.service.DraftStatus(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, offer)
}

// SubmitDraft applies draft picks
func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	run, err := h.service.SubmitDraft(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()), req.Picks)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, run)
}

func decodePosition(r *http.Request) (domain.Position, error) {
	var req PositionRequest
	if err := decode(r, &req); err != nil {
		return domain.Position{}, err
	}
	if req.X == nil || req.Y == nil {
		return domain.Position{}, domain.NewError(domain.ErrInvalidInput, "missing_position", "x and y are required")
	}
	return domain.Position{X: *req.X, Y: *req.Y}, nil
}

// PlaceUnit deploys a hand card
func (h *Handler) PlaceUnit(w http.ResponseWriter, r *http.Request) {
	pos, err := decodePosition(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	run, err := h.service.PlaceUnit(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()), chi.URLParam(r, "instanceID"), pos)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, run)
}

// RepositionUnit moves a field unit
func (h *Handler) RepositionUnit(w http.ResponseWriter, r *http.Request) {
	pos, err := decodePosition(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	run, err := h.service.RepositionUnit(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()), chi.URLParam(r, "instanceID"), pos)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, run)
}

// RemoveUnit returns a field unit to hand
func (h *Handler) RemoveUnit(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.RemoveUnit(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()), chi.URLParam(r, "instanceID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, run)
}

// CanUpgrade reports whether a unit can be upgraded
func (h *Handler) CanUpgrade(w http.ResponseWriter, r *http.Request) {
	check, err := h.service.CanUpgrade(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()), chi.URLParam(r, "instanceID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, check)
}

// UpgradeUnit raises a unit's tier
func (h *Handler) UpgradeUnit(w http.ResponseWriter, r *http.Request) {
	run, check, err := h.service.UpgradeUnit(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()), chi.URLParam(r, "instanceID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, map[string]any{
		"run":     run,
		"upgrade": check,
	})
}

// FindOpponent previews the next opponent
func (h *Handler) FindOpponent(w http.ResponseWriter, r *http.Request) {
	opp, err := h.service.FindOpponent(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, opp)
}

// SubmitBattle fights the next battle
func (h *Handler) SubmitBattle(w http.ResponseWriter, r *http.Request) {
	var req BattleRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	report, err := h.service.SubmitBattle(r.Context(), chi.URLParam(r, "runID"), PlayerID(r.Context()), req.Spells)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, report)
}

// GetReplay returns a stored battle log
func (h *Handler) GetReplay(w http.ResponseWriter, r *http.Request) {
	log, err := h.service.GetReplay(r.Context(), chi.URLParam(r, "runID"), chi.URLParam(r, "battleID"), PlayerID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, log)
}
