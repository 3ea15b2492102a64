// Package config loads and validates application configuration from YAML or
// TOML files with environment-variable overrides. It provides typed structs
// for every subsystem (Server, Indexer, Memory, Merge, Search, Redis, Kafka,
// Postgres, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Indexer  IndexerConfig  `yaml:"indexer" toml:"indexer"`
	Memory   MemoryConfig   `yaml:"memory" toml:"memory"`
	Merge    MergeConfig    `yaml:"merge" toml:"merge"`
	Search   SearchConfig   `yaml:"search" toml:"search"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" toml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" toml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" toml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" toml:"shutdownTimeout"`
	// Requests per minute per client on /api/ routes. Zero disables limiting.
	RateLimit int `yaml:"rateLimit" toml:"rateLimit" validate:"min=0"`
}

// IndexerConfig controls where partitions live, where the corpus is read
// from, and how documents are tokenized.
type IndexerConfig struct {
	DataDir       string `yaml:"dataDir" toml:"dataDir" validate:"required"`
	CorpusDir     string `yaml:"corpusDir" toml:"corpusDir"`
	StopWordsPath string `yaml:"stopWordsPath" toml:"stopWordsPath" validate:"omitempty,stopwords"`
	Stemming      bool   `yaml:"stemming" toml:"stemming"`
	Workers       int    `yaml:"workers" toml:"workers" validate:"min=1"`
	// Memory ceilings at or above this pick the coarse one-character split.
	SplitThresholdMB int    `yaml:"splitThresholdMB" toml:"splitThresholdMB" validate:"min=1"`
	Compression      string `yaml:"compression" toml:"compression" validate:"oneof=none zstd"`
	// Expected corpus size, only used for the remaining-time estimate in lap stats.
	CorpusCountHint int `yaml:"corpusCountHint" toml:"corpusCountHint" validate:"min=0"`
}

// MemoryConfig controls the memory monitor and the producer's first-cycle
// calibration.
type MemoryConfig struct {
	Source              string        `yaml:"source" toml:"source" validate:"oneof=heap rss"`
	CeilingMB           int           `yaml:"ceilingMB" toml:"ceilingMB" validate:"min=0"`
	SampleInterval      time.Duration `yaml:"sampleInterval" toml:"sampleInterval"`
	CalibrationFraction float64       `yaml:"calibrationFraction" toml:"calibrationFraction" validate:"gt=0,lt=1"`
	DefaultBatchSize    int           `yaml:"defaultBatchSize" toml:"defaultBatchSize" validate:"min=1"`
}

// MergeConfig controls the spill projection of the partition merger.
type MergeConfig struct {
	Inflation     float64 `yaml:"inflation" toml:"inflation" validate:"gt=0"`
	MaxSplitLevel int     `yaml:"maxSplitLevel" toml:"maxSplitLevel" validate:"min=2"`
}

// SearchConfig controls query limits and the partition cache residency
// thresholds.
type SearchConfig struct {
	MaxResults    int           `yaml:"maxResults" toml:"maxResults" validate:"min=1"`
	DefaultLimit  int           `yaml:"defaultLimit" toml:"defaultLimit" validate:"min=1"`
	QueryTimeout  time.Duration `yaml:"queryTimeout" toml:"queryTimeout"`
	TermThreshold float64       `yaml:"termThreshold" toml:"termThreshold" validate:"gt=0,lte=1"`
	TermInflation float64       `yaml:"termInflation" toml:"termInflation" validate:"gt=0"`
	DocThreshold  float64       `yaml:"docThreshold" toml:"docThreshold" validate:"gt=0,lte=1"`
	DocInflation  float64       `yaml:"docInflation" toml:"docInflation" validate:"gt=0"`
	MaxEvictions  int           `yaml:"maxEvictions" toml:"maxEvictions" validate:"min=1"`
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled"`
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	PoolSize int           `yaml:"poolSize" toml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL" toml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled" toml:"enabled"`
	Brokers       []string    `yaml:"brokers" toml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup" toml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics" toml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete" toml:"indexComplete"`
}

// PostgresConfig holds PostgreSQL connection parameters for the build journal.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" toml:"enabled"`
	Host            string        `yaml:"host" toml:"host"`
	Port            int           `yaml:"port" toml:"port"`
	Database        string        `yaml:"database" toml:"database"`
	User            string        `yaml:"user" toml:"user"`
	Password        string        `yaml:"password" toml:"password"`
	SSLMode         string        `yaml:"sslMode" toml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns" toml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns" toml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" toml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=json text"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Port    int  `yaml:"port" toml:"port"`
}

// Load reads a YAML or TOML config file (if provided), applies
// environment-variable overrides and validates the result. Missing values
// keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".toml":
			err = toml.Unmarshal(data, cfg)
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, cfg)
		default:
			return nil, fmt.Errorf("%w: unsupported config extension %q", apperrors.ErrConfiguration, ext)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parsing config file %s: %v", apperrors.ErrConfiguration, path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:          "data/index",
			CorpusDir:        "data/corpus",
			Stemming:         true,
			Workers:          4,
			SplitThresholdMB: 910,
			Compression:      "none",
			CorpusCountHint:  3165237,
		},
		Memory: MemoryConfig{
			Source:              "heap",
			SampleInterval:      10 * time.Millisecond,
			CalibrationFraction: 0.20,
			DefaultBatchSize:    50000,
		},
		Merge: MergeConfig{
			Inflation:     10,
			MaxSplitLevel: 4,
		},
		Search: SearchConfig{
			MaxResults:    100,
			DefaultLimit:  10,
			QueryTimeout:  10 * time.Second,
			TermThreshold: 0.60,
			TermInflation: 2.0,
			DocThreshold:  0.50,
			DocInflation:  2.5,
			MaxEvictions:  64,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "adaptive-index-searcher",
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "adaptiveindex",
			User:            "adaptiveindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads AI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AI_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("AI_INDEXER_CORPUS_DIR"); v != "" {
		cfg.Indexer.CorpusDir = v
	}
	if v := os.Getenv("AI_INDEXER_STOP_WORDS"); v != "" {
		cfg.Indexer.StopWordsPath = v
	}
	if v := os.Getenv("AI_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("AI_MEMORY_SOURCE"); v != "" {
		cfg.Memory.Source = v
	}
	if v := os.Getenv("AI_MEMORY_CEILING_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Memory.CeilingMB = n
		}
	}
	if v := os.Getenv("AI_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v, cfg.Redis.Enabled)
	}
	if v := os.Getenv("AI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AI_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v, cfg.Kafka.Enabled)
	}
	if v := os.Getenv("AI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("AI_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v, cfg.Postgres.Enabled)
	}
	if v := os.Getenv("AI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("AI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("AI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
