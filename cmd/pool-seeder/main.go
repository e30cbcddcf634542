package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/run-matchmaker/internal/bot"
	"github.com/run-matchmaker/internal/catalog"
	"github.com/run-matchmaker/internal/domain"
	"github.com/run-matchmaker/internal/kafka"
	"github.com/run-matchmaker/internal/rng"
)

func seedPlayer(idx int) string {
	return fmt.Sprintf("seed-%04d", idx)
}

// seedMessage builds one pool seed for round (wins+losses+1) from a generated bot.
func seedMessage(gen *bot.Generator, src rng.Source, idx, wins, losses, baseRating, spread int, seed uint64) (kafka.SeedMessage, error) {
	team, err := gen.Generate(wins, losses, seed)
	if err != nil {
		return kafka.SeedMessage{}, err
	}
	rating := baseRating
	if spread > 0 {
		rating += src.IntN(2*spread+1) - spread
	}
	return kafka.SeedMessage{
		PlayerID:     seedPlayer(idx),
		FactionID:    team.FactionID,
		LeaderID:     team.LeaderID,
		Round:        wins + losses + 1,
		Wins:         wins,
		Losses:       losses,
		Rating:       max(rating, 0),
		Team:         team.Team,
		SpellTimings: team.SpellTimings,
	}, nil
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "snapshot-seeds", "Kafka topic")
	version := flag.String("catalog", catalog.DefaultVersion, "Stat table version")
	players := flag.Int("players", 100, "Number of seed players")
	perPlayer := flag.Int("per-player", 5, "Snapshots per seed player")
	rating := flag.Int("rating", 1000, "Centre of the seeded rating spread")
	spread := flag.Int("spread", 150, "Maximum rating offset from the centre")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Generator seed")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	content, err := catalog.New(*version)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}
	gen, err := bot.NewGenerator(content)
	if err != nil {
		log.Fatalf("Failed to load bot compositions: %v", err)
	}

	fmt.Printf("Seeding %d players x %d snapshots to %s on %s (seed %d)\n",
		*players, *perPlayer, *topic, *brokers, *seed)

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	finish := func() {
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	src := rng.New(*seed)
	for i := 0; i < *players; i++ {
		for j := 0; j < *perPlayer; j++ {
			// Spread seeds across every reachable (wins, losses) pair.
			wins := src.IntN(domain.MaxWins)
			losses := src.IntN(domain.MaxLosses)
			msg, err := seedMessage(gen, src, i, wins, losses, *rating, *spread, *seed+uint64(i*(*perPlayer)+j))
			if err != nil {
				log.Printf("Failed to generate seed: %v", err)
				continue
			}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Failed to marshal message: %v", err)
				continue
			}

			select {
			case producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(msg.PlayerID),
				Value: sarama.ByteEncoder(data),
			}:
			case <-sigChan:
				fmt.Println("\nShutting down...")
				finish()
				return
			}
		}
		fmt.Printf("\r  Progress: %d/%d players", i+1, *players)
	}
	finish()
}
