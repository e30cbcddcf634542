package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/run-matchmaker/internal/battle"
	"github.com/run-matchmaker/internal/config"
	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/economy"
	"github.com/run-matchmaker/internal/metrics"
	"github.com/run-matchmaker/internal/replay"
	"github.com/run-matchmaker/internal/rng"
	"github.com/run-matchmaker/internal/run"
)

// RunRepository persists runs. Save must reject a run whose version is stale.
type RunRepository interface {
	Create(ctx context.Context, r *domain.Run) error
	Get(ctx context.Context, runID string) (*domain.Run, error)
	GetActiveByPlayer(ctx context.Context, playerID string) (*domain.Run, error)
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]*domain.Run, error)
	Save(ctx context.Context, r *domain.Run) error
	RecordBattle(ctx context.Context, event domain.BattleEvent) error
}

// Matchmaker stores snapshots and finds opponents.
type Matchmaker interface {
	SaveSnapshot(ctx context.Context, r *domain.Run, team []domain.TeamUnit, spells []domain.SpellChoice) (*domain.Snapshot, error)
	FindOpponent(ctx context.Context, r *domain.Run, seed uint64) (*domain.Opponent, error)
}

// ReplayArchive writes and reads battle logs.
type ReplayArchive interface {
	Write(ctx context.Context, l *replay.Log) error
	Read(ctx context.Context, runID, battleID string) (*replay.Log, error)
}

// Broadcaster pushes run changes to the owner's live connections.
type Broadcaster interface {
	PublishRun(r *domain.Run)
	PublishBattle(playerID string, report *domain.BattleReport)
}

// Content is the catalog surface the service needs on top of the run engines.
type Content interface {
	battle.StatsSource
}

// RunService provides business logic for run operations
type RunService struct {
	runs        RunRepository
	machine     *run.Machine
	content     Content
	matcher     Matchmaker
	resolver    battle.Resolver
	replays     ReplayArchive
	broadcaster Broadcaster
	config      *config.RunConfig
	locks       *keyedMutex
	logger      *slog.Logger
}

// NewRunService creates a new run service
func NewRunService(
	runs RunRepository,
	machine *run.Machine,
	content Content,
	matcher Matchmaker,
	resolver battle.Resolver,
	replays ReplayArchive,
	cfg *config.RunConfig,
	logger *slog.Logger,
) *RunService {
	return &RunService{
		runs:     runs,
		machine:  machine,
		content:  content,
		matcher:  matcher,
		resolver: resolver,
		replays:  replays,
		config:   cfg,
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// SetBroadcaster sets the live update sink
func (s *RunService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// CreateRun starts a new run for the player.
func (s *RunService) CreateRun(ctx context.Context, playerID, factionID, leaderID string) (*domain.Run, error) {
	unlock := s.locks.Lock("player:" + playerID)
	defer unlock()

	existing, err := s.runs.GetActiveByPlayer(ctx, playerID)
	switch {
	case err == nil:
		return nil, domain.NewError(domain.ErrConflict, "active_run_exists", "player already has an active run",
			"player_id", playerID, "run_id", existing.ID)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("checking active run: %w", err)
	}

	r, err := s.machine.Create(playerID, factionID, leaderID)
	if err != nil {
		return nil, err
	}
	if err := s.runs.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	metrics.RecordRunCreated(factionID)
	s.logger.Info("run created", "run_id", r.ID, "player_id", playerID, "faction_id", factionID)
	s.publish(r)
	return r, nil
}

// GetRun returns a run owned by the player.
func (s *RunService) GetRun(ctx context.Context, runID, playerID string) (*domain.Run, error) {
	r, err := s.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r.PlayerID != playerID {
		return nil, domain.NotRunOwner(runID, playerID)
	}
	return r, nil
}

// GetActiveRun returns the player's active run.
func (s *RunService) GetActiveRun(ctx context.Context, playerID string) (*domain.Run, error) {
	r, err := s.runs.GetActiveByPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting active run: %w", err)
	}
	return r, nil
}

// GetHistory returns the battle records of a run.
func (s *RunService) GetHistory(ctx context.Context, runID, playerID string) ([]domain.BattleRecord, error) {
	r, err := s.GetRun(ctx, runID, playerID)
	if err != nil {
		return nil, err
	}
	return r.History, nil
}

// ListRuns returns the player's runs, newest first
func (s *RunService) ListRuns(ctx context.Context, playerID string, limit int) ([]*domain.Run, error) {
	// Validate limit
	if limit <= 0 || limit > s.config.HistoryLimit {
		limit = s.config.HistoryLimit
	}
	runs, err := s.runs.ListByPlayer(ctx, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// DraftStatus reports the open draft without changing the run.
func (s *RunService) DraftStatus(ctx context.Context, runID, playerID string) (run.DraftOffer, error) {
	r, err := s.guarded(ctx, runID, playerID)
	if err != nil {
		return run.DraftOffer{}, err
	}
	return run.DraftStatus(r), nil
}

// SubmitDraft applies the player's picks.
func (s *RunService) SubmitDraft(ctx context.Context, runID, playerID string, picks []string) (*domain.Run, error) {
	return s.mutate(ctx, runID, playerID, func(r *domain.Run) error {
		return run.SubmitDraft(r, picks)
	})
}

// PlaceUnit moves a hand card onto the field.
func (s *RunService) PlaceUnit(ctx context.Context, runID, playerID, instanceID string, pos domain.Position) (*domain.Run, error) {
	return s.mutate(ctx, runID, playerID, func(r *domain.Run) error {
		return s.machine.Place(r, instanceID, pos)
	})
}

// RepositionUnit moves a field unit to another cell.
func (s *RunService) RepositionUnit(ctx context.Context, runID, playerID, instanceID string, pos domain.Position) (*domain.Run, error) {
	return s.mutate(ctx, runID, playerID, func(r *domain.Run) error {
		return s.machine.Reposition(r, instanceID, pos)
	})
}

// RemoveUnit returns a field unit to the hand.
func (s *RunService) RemoveUnit(ctx context.Context, runID, playerID, instanceID string) (*domain.Run, error) {
	return s.mutate(ctx, runID, playerID, func(r *domain.Run) error {
		return s.machine.Remove(r, instanceID)
	})
}

// UpgradeUnit raises a field unit's tier.
func (s *RunService) UpgradeUnit(ctx context.Context, runID, playerID, instanceID string) (*domain.Run, run.UpgradeCheck, error) {
	var check run.UpgradeCheck
	r, err := s.mutate(ctx, runID, playerID, func(r *domain.Run) error {
		var err error
		check, err = s.machine.Upgrade(r, instanceID)
		return err
	})
	return r, check, err
}

// CanUpgrade is the dry run of UpgradeUnit.
func (s *RunService) CanUpgrade(ctx context.Context, runID, playerID, instanceID string) (run.UpgradeCheck, error) {
	r, err := s.guarded(ctx, runID, playerID)
	if err != nil {
		return run.UpgradeCheck{}, err
	}
	return s.machine.CanUpgrade(r, instanceID)
}

// FindOpponent previews the opponent for the run's next battle using the same
// seed SubmitBattle will use.
func (s *RunService) FindOpponent(ctx context.Context, runID, playerID string) (*domain.Opponent, error) {
	r, err := s.guarded(ctx, runID, playerID)
	if err != nil {
		return nil, err
	}
	return s.matcher.FindOpponent(ctx, r, uint64(rng.BattleSeed(r.ID, r.Round())))
}

// Abandon ends an active run as lost.
func (s *RunService) Abandon(ctx context.Context, runID, playerID string) (*domain.Run, error) {
	r, err := s.mutate(ctx, runID, playerID, s.machine.Abandon)
	if err != nil {
		return nil, err
	}
	metrics.RecordRunFinished("abandoned")
	s.logger.Info("run abandoned", "run_id", r.ID, "player_id", playerID)
	return r, nil
}

// GetReplay returns a stored battle log of the player's run.
func (s *RunService) GetReplay(ctx context.Context, runID, battleID, playerID string) (*replay.Log, error) {
	if _, err := s.GetRun(ctx, runID, playerID); err != nil {
		return nil, err
	}
	return s.replays.Read(ctx, runID, battleID)
}

// SubmitBattle fights the run's next battle and applies the outcome.
func (s *RunService) SubmitBattle(ctx context.Context, runID, playerID string, spells []domain.SpellChoice) (*domain.BattleReport, error) {
	unlock := s.locks.Lock(runID)
	defer unlock()

	r, err := s.guarded(ctx, runID, playerID)
	if err != nil {
		return nil, err
	}
	if len(r.Field) == 0 {
		return nil, domain.NewError(domain.ErrRuleViolation, "empty_field", "place at least one unit before battling", "run_id", r.ID)
	}
	if err := s.machine.ValidateSpells(r, spells); err != nil {
		return nil, err
	}

	round := r.Round()
	seed := rng.BattleSeed(r.ID, round)
	opp, err := s.matcher.FindOpponent(ctx, r, uint64(seed))
	if err != nil {
		return nil, err
	}

	team := domain.TeamFromField(r.Field)
	playerSide, err := battle.BuildSetup(s.content, team, spells)
	if err != nil {
		return nil, fmt.Errorf("building player setup: %w", err)
	}
	opponentSide, err := battle.BuildSetup(s.content, opp.Team(), opp.SpellTimings())
	if err != nil {
		return nil, fmt.Errorf("building opponent setup: %w", err)
	}
	result, err := s.resolver.Simulate(playerSide, opponentSide, seed)
	if err != nil {
		return nil, fmt.Errorf("simulating battle: %w", err)
	}

	// The snapshot is tagged with the round just fought.
	fought := r.Clone()

	report := &domain.BattleReport{
		BattleID:   uuid.NewString(),
		RunID:      r.ID,
		Round:      round,
		Opponent:   opp,
		Difficulty: opp.Difficulty,
	}
	outcome := run.Outcome{BattleID: report.BattleID, Opponent: opp.Summary()}
	if result.Winner == battle.SideA {
		reward := economy.CalculateWinReward(r.ConsecutiveWins + 1)
		outcome.GoldEarned = reward.Total
		outcome.RatingDelta = s.config.RatingWinDelta
		report.Result = domain.BattleResultWin
		report.StreakBonus = reward.StreakBonus
		err = s.machine.RecordWin(r, outcome)
	} else {
		reward := economy.CalculateLossReward(r.ConsecutiveLosses + 1)
		outcome.GoldEarned = reward.Total
		outcome.RatingDelta = s.config.RatingLossDelta
		report.Result = domain.BattleResultLoss
		err = s.machine.RecordLoss(r, outcome)
	}
	if err != nil {
		return nil, err
	}
	if err := s.runs.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}
	if _, err := s.matcher.SaveSnapshot(ctx, fought, team, spells); err != nil {
		s.logger.Warn("failed to save snapshot", "run_id", r.ID, "round", round, "error", err)
	}

	report.GoldEarned = outcome.GoldEarned
	report.RatingDelta = outcome.RatingDelta
	report.Rating = r.Rating
	report.Wins = r.Wins
	report.Losses = r.Losses
	report.Status = r.Status
	report.ReplayAvailable = s.storeReplay(ctx, r, report, seed, playerSide, opponentSide, result)

	s.recordBattle(ctx, r, report, seed)
	metrics.RecordBattle(string(report.Result), string(opp.Kind))
	if !r.IsActive() {
		metrics.RecordRunFinished(string(r.Status))
	}
	s.logger.Info("battle resolved",
		"run_id", r.ID,
		"battle_id", report.BattleID,
		"round", round,
		"result", report.Result,
		"opponent_kind", opp.Kind,
		"status", r.Status,
	)

	s.publish(r)
	if s.broadcaster != nil {
		s.broadcaster.PublishBattle(r.PlayerID, report)
	}
	return report, nil
}

func (s *RunService) storeReplay(ctx context.Context, r *domain.Run, report *domain.BattleReport, seed uint32, a, b battle.Setup, result battle.Result) bool {
	err := s.replays.Write(ctx, &replay.Log{
		BattleID:  report.BattleID,
		RunID:     r.ID,
		PlayerID:  r.PlayerID,
		Round:     report.Round,
		Seed:      seed,
		Player:    a,
		Opponent:  b,
		Summary:   report.Opponent.Summary(),
		Result:    result,
		CreatedAt: s.machine.Now(),
	})
	if err != nil {
		metrics.RecordReplayFailure()
		s.logger.Warn("battle replay unavailable", "run_id", r.ID, "battle_id", report.BattleID, "error", err)
		return false
	}
	return true
}

func (s *RunService) recordBattle(ctx context.Context, r *domain.Run, report *domain.BattleReport, seed uint32) {
	event := domain.BattleEvent{
		BattleID:        report.BattleID,
		RunID:           r.ID,
		PlayerID:        r.PlayerID,
		Round:           report.Round,
		Result:          report.Result,
		Seed:            seed,
		OpponentKind:    report.Opponent.Kind,
		ReplayAvailable: report.ReplayAvailable,
		CreatedAt:       s.machine.Now(),
	}
	if err := s.runs.RecordBattle(ctx, event); err != nil {
		s.logger.Warn("failed to record battle event", "battle_id", report.BattleID, "error", err)
		// Don't fail the battle if event recording fails
	}
}

// load fetches a run, passing domain errors through and wrapping the rest.
func (s *RunService) load(ctx context.Context, runID string) (*domain.Run, error) {
	r, err := s.runs.Get(ctx, runID)
	if err != nil {
		if _, ok := domain.AsError(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return r, nil
}

// guarded loads a run and applies the not-found, owner and active checks.
func (s *RunService) guarded(ctx context.Context, runID, playerID string) (*domain.Run, error) {
	r, err := s.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := run.Guard(runID, r, playerID); err != nil {
		return nil, err
	}
	return r, nil
}

// mutate is the read-modify-write cycle shared by every run mutation. It
// holds the run's lock across the cycle and relies on the repository's
// version check for writers outside this process.
func (s *RunService) mutate(ctx context.Context, runID, playerID string, apply func(*domain.Run) error) (*domain.Run, error) {
	unlock := s.locks.Lock(runID)
	defer unlock()

	r, err := s.guarded(ctx, runID, playerID)
	if err != nil {
		return nil, err
	}
	if err := apply(r); err != nil {
		return nil, err
	}
	r.UpdatedAt = s.machine.Now()
	if err := s.runs.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}

	s.publish(r)
	return r, nil
}

func (s *RunService) publish(r *domain.Run) {
	if s.broadcaster != nil {
		s.broadcaster.PublishRun(r)
	}
}
