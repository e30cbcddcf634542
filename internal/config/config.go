package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Sweep       SweepConfig       `yaml:"sweep"`
	Matchmaking MatchmakingConfig `yaml:"matchmaking"`
	Run         RunConfig         `yaml:"run"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Replay      ReplayConfig      `yaml:"replay"`
	Auth        AuthConfig        `yaml:"auth"`
	Storage     StorageConfig     `yaml:"storage"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds the snapshot seed consumer configuration
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	GroupID       string        `yaml:"group_id"`
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// SweepConfig holds the snapshot TTL sweep configuration
type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
	TTL      time.Duration `yaml:"ttl"`
	Enabled  bool          `yaml:"enabled"`
}

// MatchmakingConfig holds the opponent search window
type MatchmakingConfig struct {
	RatingRange           int  `yaml:"rating_range"`
	MaxCandidates         int  `yaml:"max_candidates"`
	BotFallback           bool `yaml:"bot_fallback"`
	MaxSnapshotsPerPlayer int  `yaml:"max_snapshots_per_player"`
}

// RunConfig holds run economy settings
type RunConfig struct {
	StartingGold    int `yaml:"starting_gold"`
	StartingRating  int `yaml:"starting_rating"`
	RatingWinDelta  int `yaml:"rating_win_delta"`
	RatingLossDelta int `yaml:"rating_loss_delta"`
	HistoryLimit    int `yaml:"history_limit"`
}

// CatalogConfig selects the unit stat table
type CatalogConfig struct {
	Version string `yaml:"version"`
}

// ReplayConfig holds battle log storage configuration
type ReplayConfig struct {
	Backend         string        `yaml:"backend"`
	Bucket          string        `yaml:"bucket"`
	Endpoint        string        `yaml:"endpoint"`
	Region          string        `yaml:"region"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	Attempts        int           `yaml:"attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// AuthConfig holds requester identity settings. Without a secret the
// X-Player-ID header is trusted.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// StorageConfig selects persistence backends
type StorageConfig struct {
	Runs      string `yaml:"runs"`
	Snapshots string `yaml:"snapshots"`
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendS3       = "s3"
)

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Config{}
	cfg.presetTunables()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// presetTunables fills settings where zero is a valid choice. It runs before
// the file is parsed so an explicit 0 survives.
func (c *Config) presetTunables() {
	c.Matchmaking.RatingRange = 200
	c.Run.StartingGold = 10
	c.Run.RatingWinDelta = 15
	c.Run.RatingLossDelta = 15
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "snapshot-seeds"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "snapshot-seed-consumer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// Sweep defaults
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 10 * time.Minute
	}
	if c.Sweep.TTL == 0 {
		c.Sweep.TTL = 24 * time.Hour
	}

	// Matchmaking defaults
	if c.Matchmaking.MaxCandidates == 0 {
		c.Matchmaking.MaxCandidates = 20
	}
	if c.Matchmaking.MaxSnapshotsPerPlayer == 0 {
		c.Matchmaking.MaxSnapshotsPerPlayer = 10
	}

	// Run defaults
	if c.Run.StartingRating == 0 {
		c.Run.StartingRating = 1000
	}
	if c.Run.HistoryLimit == 0 {
		c.Run.HistoryLimit = 50
	}

	if c.Catalog.Version == "" {
		c.Catalog.Version = "v1"
	}

	// Replay defaults
	if c.Replay.Backend == "" {
		c.Replay.Backend = BackendMemory
	}
	if c.Replay.Region == "" {
		c.Replay.Region = "auto"
	}
	if c.Replay.Attempts == 0 {
		c.Replay.Attempts = 3
	}
	if c.Replay.RetryDelay == 0 {
		c.Replay.RetryDelay = 200 * time.Millisecond
	}

	// Storage defaults
	if c.Storage.Runs == "" {
		c.Storage.Runs = BackendPostgres
	}
	if c.Storage.Snapshots == "" {
		c.Storage.Snapshots = BackendRedis
	}
}

func (c *Config) validate() error {
	switch c.Storage.Runs {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown run storage backend %q", c.Storage.Runs)
	}
	switch c.Storage.Snapshots {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown snapshot storage backend %q", c.Storage.Snapshots)
	}
	switch c.Replay.Backend {
	case BackendS3:
		if c.Replay.Bucket == "" {
			return fmt.Errorf("replay bucket is required for the s3 backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown replay backend %q", c.Replay.Backend)
	}
	return nil
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.presetTunables()
	cfg.applyDefaults()
	cfg.Sweep.Enabled = true
	cfg.Matchmaking.BotFallback = true
	return cfg
}
