package matchmaking_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-matchmaker/internal/bot"
	"github.com/run-matchmaker/internal/catalog"
	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/matchmaking"
	"github.com/run-matchmaker/internal/memory"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	engine *matchmaking.Engine
	pool   *memory.SnapshotPool
	clock  time.Time
}

func newFixture(t *testing.T, cfg matchmaking.Config) *fixture {
	t.Helper()
	cat, err := catalog.New(catalog.DefaultVersion)
	require.NoError(t, err)
	gen, err := bot.NewGenerator(cat)
	require.NoError(t, err)

	f := &fixture{pool: memory.NewSnapshotPool(), clock: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	f.engine = matchmaking.NewEngine(f.pool, gen, cfg, testLogger)
	f.engine.SetClock(func() time.Time { return f.clock })
	return f
}

func testRun(player string, wins, losses, rating int) *domain.Run {
	return &domain.Run{
		ID:        "run-" + player,
		PlayerID:  player,
		FactionID: "humans",
		LeaderID:  "commander_aldric",
		Wins:      wins,
		Losses:    losses,
		Rating:    rating,
		Status:    domain.RunStatusActive,
	}
}

var team = []domain.TeamUnit{{UnitID: "footman", Tier: 1, Position: domain.Position{X: 3, Y: 0}}}

func (f *fixture) save(t *testing.T, r *domain.Run) *domain.Snapshot {
	t.Helper()
	f.clock = f.clock.Add(time.Minute)
	s, err := f.engine.SaveSnapshot(context.Background(), r, team, []domain.SpellChoice{{SpellID: "rally", Timing: domain.SpellTimingEarly}})
	require.NoError(t, err)
	return s
}

func TestSaveSnapshotRecordsRoundAndRating(t *testing.T) {
	f := newFixture(t, matchmaking.DefaultConfig())

	s := f.save(t, testRun("p1", 3, 2, 1045))
	assert.Equal(t, 6, s.Round)
	assert.Equal(t, 1045, s.Rating)
	assert.Equal(t, 3, s.Wins)
	assert.Equal(t, "run-p1", s.RunID)
	assert.Equal(t, team, s.Team)

	_, err := f.engine.SaveSnapshot(context.Background(), testRun("p1", 0, 0, 1000), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSaveSnapshotEvictsOldest(t *testing.T) {
	f := newFixture(t, matchmaking.DefaultConfig())

	var saved []*domain.Snapshot
	for i := 0; i < 12; i++ {
		saved = append(saved, f.save(t, testRun("p1", i%9, 0, 1000)))
	}
	f.save(t, testRun("p2", 0, 0, 1000))

	assert.Equal(t, 10, f.pool.CountByPlayer("p1"))
	assert.Equal(t, 1, f.pool.CountByPlayer("p2"))

	// the two oldest are gone
	ctx := context.Background()
	for _, gone := range saved[:2] {
		cands, err := f.pool.Candidates(ctx, matchmaking.CandidateQuery{Round: gone.Round, MinRating: 0, MaxRating: 5000})
		require.NoError(t, err)
		for _, c := range cands {
			assert.NotEqual(t, gone.ID, c.ID)
		}
	}
}

func TestFindOpponentMatchesRoundExactly(t *testing.T) {
	f := newFixture(t, matchmaking.Config{RatingRange: 200, MaxCandidates: 20, BotFallback: false})

	for i, progress := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {2, 0}, {1, 1}, {3, 1}} {
		f.save(t, testRun(fmt.Sprintf("other-%d", i), progress[0], progress[1], 1000))
	}

	for seed := uint64(0); seed < 30; seed++ {
		r := testRun("me", 1, 1, 1000)
		opp, err := f.engine.FindOpponent(context.Background(), r, seed)
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrNoOpponent)
			continue
		}
		require.Equal(t, domain.OpponentHuman, opp.Kind)
		assert.Equal(t, r.Round(), opp.Snapshot.Round)
	}
}

func TestFindOpponentFilters(t *testing.T) {
	f := newFixture(t, matchmaking.Config{RatingRange: 100, MaxCandidates: 20, BotFallback: false})
	ctx := context.Background()

	f.save(t, testRun("me", 0, 0, 1000))
	f.save(t, testRun("too-high", 0, 0, 1101))
	f.save(t, testRun("too-low", 0, 0, 899))

	_, err := f.engine.FindOpponent(ctx, testRun("me", 0, 0, 1000), 1)
	require.ErrorIs(t, err, domain.ErrNoOpponent)
	de, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, 1, de.Details["round"])

	f.save(t, testRun("edge", 0, 0, 1100))
	opp, err := f.engine.FindOpponent(ctx, testRun("me", 0, 0, 1000), 1)
	require.NoError(t, err)
	assert.Equal(t, "edge", opp.Snapshot.PlayerID)
	assert.Equal(t, domain.DifficultyMedium, opp.Difficulty)
}

func TestFindOpponentIsSeededAndCapped(t *testing.T) {
	f := newFixture(t, matchmaking.Config{RatingRange: 500, MaxCandidates: 20, BotFallback: false})
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		f.save(t, testRun(fmt.Sprintf("p%d", i), 0, 0, 900+i*25))
	}
	r := testRun("me", 0, 0, 1000)
	before := *r

	picked := map[string]bool{}
	for seed := uint64(0); seed < 40; seed++ {
		a, err := f.engine.FindOpponent(ctx, r, seed)
		require.NoError(t, err)
		b, err := f.engine.FindOpponent(ctx, r, seed)
		require.NoError(t, err)
		assert.Equal(t, a.Snapshot.ID, b.Snapshot.ID)
		picked[a.Snapshot.PlayerID] = true
	}
	assert.Greater(t, len(picked), 1)
	assert.Equal(t, before, *r, "matchmaking does not touch the run")

	capped := newFixture(t, matchmaking.Config{RatingRange: 500, MaxCandidates: 1, BotFallback: false})
	for i := 0; i < 8; i++ {
		capped.save(t, testRun(fmt.Sprintf("p%d", i), 0, 0, 900+i*25))
	}
	for seed := uint64(0); seed < 10; seed++ {
		opp, err := capped.engine.FindOpponent(ctx, r, seed)
		require.NoError(t, err)
		assert.Equal(t, "p0", opp.Snapshot.PlayerID, "cap keeps the lowest rated candidate")
		assert.Equal(t, domain.DifficultyMedium, opp.Difficulty)
	}
}

func TestFindOpponentBotFallback(t *testing.T) {
	f := newFixture(t, matchmaking.DefaultConfig())
	r := testRun("me", 4, 2, 1000)

	a, err := f.engine.FindOpponent(context.Background(), r, 99)
	require.NoError(t, err)
	require.Equal(t, domain.OpponentBot, a.Kind)
	assert.Equal(t, 7, a.Bot.Round)
	assert.Equal(t, bot.Label(a.Bot.Difficulty), a.Difficulty)
	assert.NotEmpty(t, a.Team())

	b, err := f.engine.FindOpponent(context.Background(), r, 99)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHumanDifficulty(t *testing.T) {
	assert.Equal(t, domain.DifficultyEasy, matchmaking.HumanDifficulty(1000, 899))
	assert.Equal(t, domain.DifficultyMedium, matchmaking.HumanDifficulty(1000, 900))
	assert.Equal(t, domain.DifficultyMedium, matchmaking.HumanDifficulty(1000, 1100))
	assert.Equal(t, domain.DifficultyHard, matchmaking.HumanDifficulty(1000, 1101))
}

func TestSweep(t *testing.T) {
	f := newFixture(t, matchmaking.DefaultConfig())
	f.save(t, testRun("old", 0, 0, 1000))
	f.clock = f.clock.Add(25 * time.Hour)
	f.save(t, testRun("new", 0, 0, 1000))

	n, err := f.engine.Sweep(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, f.pool.CountByPlayer("old"))
	assert.Equal(t, 1, f.pool.CountByPlayer("new"))
}

func TestSeedRespectsPlayerCap(t *testing.T) {
	cfg := matchmaking.DefaultConfig()
	cfg.MaxSnapshotsPerPlayer = 2
	f := newFixture(t, cfg)

	seeds := make([]*domain.Snapshot, 0, 5)
	for i := 0; i < 4; i++ {
		seeds = append(seeds, &domain.Snapshot{
			PlayerID:  "seed-bot",
			FactionID: "orcs",
			LeaderID:  "warchief_grom",
			Round:     1,
			Rating:    1000,
			Team:      []domain.TeamUnit{{UnitID: "grunt", Tier: 1}},
		})
	}
	seeds = append(seeds, &domain.Snapshot{PlayerID: "seed-empty", Round: 1})

	n, err := f.engine.Seed(context.Background(), seeds)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 2, f.pool.CountByPlayer("seed-bot"))
	assert.Equal(t, 0, f.pool.CountByPlayer("seed-empty"))
	for _, s := range seeds[:4] {
		assert.NotEmpty(t, s.ID)
	}
}
