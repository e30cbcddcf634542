package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-matchmaker/internal/config"
	"github.com/run-matchmaker/internal/domain"
)

// flakySink fails the first n calls after seeding one snapshot.
type flakySink struct {
	failures int
	calls    int
	seeded   []*domain.Snapshot
}

func (f *flakySink) Seed(ctx context.Context, snapshots []*domain.Snapshot) (int, error) {
	f.calls++
	if f.calls <= f.failures {
		f.seeded = append(f.seeded, snapshots[0])
		return 1, errors.New("pool unavailable")
	}
	f.seeded = append(f.seeded, snapshots...)
	return len(snapshots), nil
}

func testConsumer(sink SeedSink, attempts int) *Consumer {
	cfg := &config.KafkaConfig{BatchSize: 10, BatchTimeout: time.Second, RetryAttempts: attempts}
	return newConsumer(cfg, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func validSeed() SeedMessage {
	return SeedMessage{
		PlayerID:  "seed-1",
		FactionID: "orcs",
		LeaderID:  "warchief_grom",
		Round:     3,
		Wins:      2,
		Rating:    1020,
		Team: []domain.TeamUnit{
			{UnitID: "grunt", Tier: 1, Position: domain.Position{X: 3, Y: 0}},
		},
	}
}

func TestSeedMessageValidation(t *testing.T) {
	s, err := validSeed().Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 3, s.Round)
	assert.Equal(t, 1020, s.Rating)
	assert.Empty(t, s.ID)

	tests := []struct {
		name   string
		mutate func(*SeedMessage)
	}{
		{"no player", func(m *SeedMessage) { m.PlayerID = "" }},
		{"round zero", func(m *SeedMessage) { m.Round = 0 }},
		{"round past end", func(m *SeedMessage) { m.Round = 13 }},
		{"empty team", func(m *SeedMessage) { m.Team = nil }},
		{"off grid", func(m *SeedMessage) { m.Team[0].Position.Y = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validSeed()
			tt.mutate(&m)
			_, err := m.Snapshot()
			assert.Error(t, err)
		})
	}
}

func TestDecode(t *testing.T) {
	c := testConsumer(&flakySink{}, 1)

	raw, err := json.Marshal(validSeed())
	require.NoError(t, err)
	s, ok := c.decode(raw)
	require.True(t, ok)
	assert.Equal(t, "seed-1", s.PlayerID)

	_, ok = c.decode([]byte("garbage"))
	assert.False(t, ok)
}

func TestFlushRetriesRemainder(t *testing.T) {
	sink := &flakySink{failures: 1}
	c := testConsumer(sink, 3)

	a, _ := validSeed().Snapshot()
	b, _ := validSeed().Snapshot()
	b.PlayerID = "seed-2"

	require.NoError(t, c.flush(context.Background(), []*domain.Snapshot{a, b}))
	assert.Equal(t, 2, sink.calls)
	require.Len(t, sink.seeded, 2)
	assert.Equal(t, "seed-2", sink.seeded[1].PlayerID)
}

func TestFlushGivesUp(t *testing.T) {
	sink := &flakySink{failures: 5}
	c := testConsumer(sink, 2)

	a, _ := validSeed().Snapshot()
	b, _ := validSeed().Snapshot()
	c2, _ := validSeed().Snapshot()
	err := c.flush(context.Background(), []*domain.Snapshot{a, b, c2})
	require.Error(t, err)
	assert.Equal(t, 2, sink.calls)
	assert.Contains(t, err.Error(), "seeding 1 snapshots after 2 attempts")
}

// recordingSession keeps the offsets marked by the handler.
type recordingSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *recordingSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.marked = append(s.marked, msg.Offset)
}

func (s *recordingSession) Context() context.Context {
	return s.ctx
}

type staticClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *staticClaim) Messages() <-chan *sarama.ConsumerMessage {
	return c.messages
}

func claimOf(t *testing.T, values ...[]byte) *staticClaim {
	t.Helper()
	ch := make(chan *sarama.ConsumerMessage, len(values))
	for i, v := range values {
		ch <- &sarama.ConsumerMessage{Topic: "snapshot-seeds", Offset: int64(i), Value: v}
	}
	close(ch)
	return &staticClaim{messages: ch}
}

func consumeAll(t *testing.T, sink SeedSink, values ...[]byte) (*recordingSession, error) {
	t.Helper()
	c := testConsumer(sink, 2)
	session := &recordingSession{ctx: context.Background()}
	h := &consumerGroupHandler{consumer: c, ready: make(chan bool)}
	return session, h.ConsumeClaim(session, claimOf(t, values...))
}

func seedBytes(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(validSeed())
	require.NoError(t, err)
	return raw
}

func TestConsumeClaimMarksAfterFlush(t *testing.T) {
	sink := &flakySink{}
	session, err := consumeAll(t, sink, seedBytes(t), []byte("garbage"), seedBytes(t))
	require.NoError(t, err)

	assert.Len(t, sink.seeded, 2)
	assert.Equal(t, []int64{2}, session.marked)
}

func TestConsumeClaimMarksLeadingInvalidImmediately(t *testing.T) {
	sink := &flakySink{}
	session, err := consumeAll(t, sink, []byte("garbage"), seedBytes(t))
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 1}, session.marked)
}

func TestConsumeClaimDoesNotMarkFailedBatch(t *testing.T) {
	sink := &flakySink{failures: 10}
	session, err := consumeAll(t, sink, seedBytes(t), seedBytes(t), []byte("garbage"))
	require.Error(t, err)

	assert.Empty(t, session.marked, "an invalid message behind an unflushed batch must not commit it")
}
