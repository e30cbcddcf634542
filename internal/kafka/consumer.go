package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/run-matchmaker/internal/config"
	"github.com/run-matchmaker/internal/domain"
)

// SeedSink adds seed snapshots to the matchmaking pool
type SeedSink interface {
	Seed(ctx context.Context, snapshots []*domain.Snapshot) (int, error)
}

// SeedMessage is the wire format of one pool seed
type SeedMessage struct {
	PlayerID     string               `json:"player_id"`
	FactionID    string               `json:"faction_id"`
	LeaderID     string               `json:"leader_id"`
	Round        int                  `json:"round"`
	Wins         int                  `json:"wins"`
	Losses       int                  `json:"losses"`
	Rating       int                  `json:"rating"`
	Team         []domain.TeamUnit    `json:"team"`
	SpellTimings []domain.SpellChoice `json:"spell_timings,omitempty"`
}

// maxRound is the last round a run can reach before its status flips.
const maxRound = domain.MaxWins + domain.MaxLosses - 1

// Snapshot validates the message and converts it to a pool snapshot.
func (m SeedMessage) Snapshot() (*domain.Snapshot, error) {
	switch {
	case m.PlayerID == "":
		return nil, fmt.Errorf("missing player_id")
	case m.Round < 1 || m.Round > maxRound:
		return nil, fmt.Errorf("round %d out of range", m.Round)
	case len(m.Team) == 0:
		return nil, fmt.Errorf("empty team")
	case len(m.Team) > domain.GridColumns*domain.GridRows:
		return nil, fmt.Errorf("team of %d does not fit the grid", len(m.Team))
	}
	for _, u := range m.Team {
		if !u.Position.InBounds() {
			return nil, fmt.Errorf("unit %s off the grid", u.UnitID)
		}
	}
	return &domain.Snapshot{
		PlayerID:     m.PlayerID,
		FactionID:    m.FactionID,
		LeaderID:     m.LeaderID,
		Round:        m.Round,
		Wins:         m.Wins,
		Losses:       m.Losses,
		Rating:       m.Rating,
		Team:         m.Team,
		SpellTimings: m.SpellTimings,
	}, nil
}

// Consumer consumes snapshot seed messages from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	sink          SeedSink
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, sink SeedSink, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	c := newConsumer(cfg, sink, logger)
	c.consumerGroup = consumerGroup
	return c, nil
}

func newConsumer(cfg *config.KafkaConfig, sink SeedSink, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config: cfg,
		sink:   sink,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan bool),
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// decode parses a raw message. Invalid messages are logged and dropped.
func (c *Consumer) decode(value []byte) (*domain.Snapshot, bool) {
	var msg SeedMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		c.logger.Warn("failed to unmarshal seed message", "error", err)
		return nil, false
	}
	s, err := msg.Snapshot()
	if err != nil {
		c.logger.Warn("invalid seed message", "player_id", msg.PlayerID, "error", err)
		return nil, false
	}
	return s, true
}

// flush hands a batch to the sink, retrying up to RetryAttempts times.
func (c *Consumer) flush(ctx context.Context, batch []*domain.Snapshot) error {
	if len(batch) == 0 {
		return nil
	}
	attempts := max(c.config.RetryAttempts, 1)
	done := 0
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var n int
		n, err = c.sink.Seed(ctx, batch[done:])
		done += n
		if err == nil {
			c.logger.Debug("processed seed batch", "batch_size", len(batch))
			return nil
		}
		c.logger.Warn("seed batch failed", "attempt", attempt, "remaining", len(batch)-done, "error", err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.RetryDelay):
		}
	}
	return fmt.Errorf("seeding %d snapshots after %d attempts: %w", len(batch)-done, attempts, err)
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition. A batch that cannot
// be flushed ends the claim without marking, so the session resumes from the
// last committed offset.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]*domain.Snapshot, 0, cfg.BatchSize)
	// pending is the highest offset read, valid or not.
	var pending *sarama.ConsumerMessage
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() error {
		if len(batch) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := h.consumer.flush(ctx, batch); err != nil {
				h.consumer.logger.Error("failed to process seed batch", "error", err, "batch_size", len(batch))
				return err
			}
			batch = batch[:0]
		}
		if pending != nil {
			session.MarkMessage(pending, "")
			pending = nil
		}
		return nil
	}

	for {
		select {
		case <-session.Context().Done():
			// Process remaining batch before exit
			return processBatch()

		case <-batchTimer.C:
			if err := processBatch(); err != nil {
				return err
			}
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				return processBatch()
			}
			pending = message

			s, valid := h.consumer.decode(message.Value)
			if !valid {
				if len(batch) == 0 {
					session.MarkMessage(message, "")
					pending = nil
				}
				continue
			}

			batch = append(batch, s)
			if len(batch) >= cfg.BatchSize {
				if err := processBatch(); err != nil {
					return err
				}
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
