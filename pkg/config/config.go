// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Search, Redis, Kafka, Postgres, Evaluation, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Index      IndexConfig      `yaml:"index"`
	Search     SearchConfig     `yaml:"search"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimitPerMinute caps requests per client; 0 disables limiting.
	RateLimitPerMinute int      `yaml:"rateLimitPerMinute"`
	CORSOrigins        []string `yaml:"corsOrigins"`
}

// IndexConfig locates the field segments and title store, and controls both
// the startup load and the offline builder.
type IndexConfig struct {
	DataDir        string        `yaml:"dataDir"`
	TitlesPath     string        `yaml:"titlesPath"`
	CorpusSize     int64         `yaml:"corpusSize"`
	LoadTimeout    time.Duration `yaml:"loadTimeout"`
	Shards         int           `yaml:"shards"`
	FlushThreshold int64         `yaml:"flushThreshold"`
}

// Weights are the per-field fusion weights.
type Weights struct {
	Body   float64 `yaml:"body"`
	Title  float64 `yaml:"title"`
	Anchor float64 `yaml:"anchor"`
}

// SearchConfig controls candidate generation, fusion and result limits.
// MaxCandidates <= 0 disables candidate generation entirely.
type SearchConfig struct {
	Weights            Weights       `yaml:"weights"`
	MaxCandidates      int           `yaml:"maxCandidates"`
	MaxPostingsPerTerm int           `yaml:"maxPostingsPerTerm"`
	ResultCap          int           `yaml:"resultCap"`
	SoftBudget         time.Duration `yaml:"softBudget"`
	CacheEnabled       bool          `yaml:"cacheEnabled"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	QueryEvents string `yaml:"queryEvents"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// EvaluationConfig controls the offline evaluation harness.
type EvaluationConfig struct {
	BaseURL         string        `yaml:"baseUrl"`
	K               int           `yaml:"k"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxQueries      int           `yaml:"maxQueries"`
	Retries         int           `yaml:"retries"`
	PseudoDepth     int           `yaml:"pseudoDepth"`
	SanityThreshold float64       `yaml:"sanityThreshold"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging for slow queries.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			DataDir:        "data/index",
			TitlesPath:     "data/titles.db",
			CorpusSize:     6_300_000,
			LoadTimeout:    10 * time.Minute,
			Shards:         8,
			FlushThreshold: 256 << 20,
		},
		Search: SearchConfig{
			Weights:            Weights{Body: 1.0, Title: 2.0, Anchor: 1.5},
			MaxCandidates:      100_000,
			MaxPostingsPerTerm: 50_000,
			ResultCap:          100,
			SoftBudget:         35 * time.Second,
			CacheEnabled:       true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "wikisearch-analytics",
			Topics: KafkaTopics{
				QueryEvents: "query-events",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "wikisearch",
			User:            "wikisearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Evaluation: EvaluationConfig{
			BaseURL:         "http://127.0.0.1:8080",
			K:               10,
			Timeout:         20 * time.Second,
			Retries:         2,
			PseudoDepth:     200,
			SanityThreshold: 0.1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    true,
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the searcher cannot serve with.
func (c *Config) Validate() error {
	if c.Index.CorpusSize <= 0 {
		return fmt.Errorf("index.corpusSize must be positive, got %d", c.Index.CorpusSize)
	}
	w := c.Search.Weights
	if w.Body < 0 || w.Title < 0 || w.Anchor < 0 {
		return fmt.Errorf("search.weights must be non-negative, got %+v", w)
	}
	if c.Index.Shards <= 0 {
		return fmt.Errorf("index.shards must be positive, got %d", c.Index.Shards)
	}
	if c.Evaluation.K < 0 {
		return fmt.Errorf("evaluation.k must not be negative, got %d", c.Evaluation.K)
	}
	return nil
}

// applyEnvOverrides reads WS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WS_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("WS_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("WS_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("WS_INDEX_TITLES_PATH"); v != "" {
		cfg.Index.TitlesPath = v
	}
	if v := os.Getenv("WS_INDEX_CORPUS_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Index.CorpusSize = n
		}
	}
	if v := os.Getenv("WS_SEARCH_MAX_CANDIDATES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxCandidates = n
		}
	}
	if v := os.Getenv("WS_SEARCH_RESULT_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.ResultCap = n
		}
	}
	if v := os.Getenv("WS_SEARCH_WEIGHTS"); v != "" {
		if w, err := parseWeights(v); err == nil {
			cfg.Search.Weights = w
		}
	}
	if v := os.Getenv("WS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("WS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("WS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("WS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("WS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("WS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("WS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("WS_EVALUATION_BASE_URL"); v != "" {
		cfg.Evaluation.BaseURL = v
	}
	if v := os.Getenv("WS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// parseWeights parses "body,title,anchor", e.g. "1,2,1.5".
func parseWeights(s string) (Weights, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Weights{}, fmt.Errorf("expected 3 comma-separated weights, got %d", len(parts))
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Weights{}, fmt.Errorf("parsing weight %q: %w", p, err)
		}
		vals[i] = f
	}
	return Weights{Body: vals[0], Title: vals[1], Anchor: vals[2]}, nil
}
