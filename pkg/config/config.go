// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Indexer, Search, Kafka, Redis, Postgres, Batch, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Batch    BatchConfig    `yaml:"batch"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. RateLimit is the per-client
// request budget per minute on /api/v1; zero disables limiting.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimit       int           `yaml:"rateLimit"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// IndexerConfig controls where the corpus is read from, where snapshots are
// written, and how the build is parallelised.
type IndexerConfig struct {
	HTMLDir      string           `yaml:"htmlDir"`
	DataDir      string           `yaml:"dataDir"`
	Workers      int              `yaml:"workers"`
	DocTimeout   time.Duration    `yaml:"docTimeout"`
	MaxPositions int              `yaml:"maxPositions"`
	Retain       int              `yaml:"retain"`
	Vectorizer   VectorizerConfig `yaml:"vectorizer"`
}

// VectorizerConfig holds the vocabulary selection parameters of the vector
// space model.
type VectorizerConfig struct {
	MaxFeatures    int      `yaml:"maxFeatures"`
	MinDF          int      `yaml:"minDf"`
	MaxDF          float64  `yaml:"maxDf"`
	NgramMin       int      `yaml:"ngramMin"`
	NgramMax       int      `yaml:"ngramMax"`
	StopWords      string   `yaml:"stopWords"`
	ExtraStopWords []string `yaml:"extraStopWords"`
}

// SearchConfig controls query limits, snapshot reloading and the query log.
// AnalyticsWindow is how many recent latencies feed the percentiles and
// AnalyticsMaxQueries caps the distinct queries counted.
type SearchConfig struct {
	DefaultK            int           `yaml:"defaultK"`
	MaxK                int           `yaml:"maxK"`
	WatchSnapshots      bool          `yaml:"watchSnapshots"`
	ReloadDebounce      time.Duration `yaml:"reloadDebounce"`
	AnalyticsWindow     int           `yaml:"analyticsWindow"`
	AnalyticsMaxQueries int           `yaml:"analyticsMaxQueries"`
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables event publishing and consumption.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables the result cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
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

// BatchConfig selects where batch query results are written.
type BatchConfig struct {
	QueriesFile string `yaml:"queriesFile"`
	Sink        string `yaml:"sink"`
	Output      string `yaml:"output"`
	K           int    `yaml:"k"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles span logging around build phases.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. A .env file in the working directory is loaded first so its
// values participate in the overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	v := c.Indexer.Vectorizer
	switch {
	case c.Server.RateLimit < 0:
		return fmt.Errorf("server.rateLimit must be >= 0, got %d", c.Server.RateLimit)
	case c.Indexer.Workers < 1:
		return fmt.Errorf("indexer.workers must be >= 1, got %d", c.Indexer.Workers)
	case c.Indexer.MaxPositions < 0:
		return fmt.Errorf("indexer.maxPositions must be >= 0, got %d", c.Indexer.MaxPositions)
	case v.MaxFeatures < 1:
		return fmt.Errorf("indexer.vectorizer.maxFeatures must be >= 1, got %d", v.MaxFeatures)
	case v.MinDF < 1:
		return fmt.Errorf("indexer.vectorizer.minDf must be >= 1, got %d", v.MinDF)
	case v.MaxDF <= 0 || v.MaxDF > 1:
		return fmt.Errorf("indexer.vectorizer.maxDf must be in (0, 1], got %g", v.MaxDF)
	case v.NgramMin < 1 || v.NgramMax < v.NgramMin:
		return fmt.Errorf("indexer.vectorizer ngram range (%d, %d) is invalid", v.NgramMin, v.NgramMax)
	case c.Search.DefaultK < 1:
		return fmt.Errorf("search.defaultK must be >= 1, got %d", c.Search.DefaultK)
	case c.Search.MaxK < c.Search.DefaultK:
		return fmt.Errorf("search.maxK (%d) must be >= search.defaultK (%d)", c.Search.MaxK, c.Search.DefaultK)
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
		},
		Indexer: IndexerConfig{
			HTMLDir:      "html",
			DataDir:      "data/index",
			Workers:      4,
			DocTimeout:   5 * time.Second,
			MaxPositions: 10,
			Retain:       3,
			Vectorizer: VectorizerConfig{
				MaxFeatures: 5000,
				MinDF:       1,
				MaxDF:       0.95,
				NgramMin:    1,
				NgramMax:    2,
				StopWords:   "english",
			},
		},
		Search: SearchConfig{
			DefaultK:            10,
			MaxK:                100,
			WatchSnapshots:      true,
			ReloadDebounce:      400 * time.Millisecond,
			AnalyticsWindow:     10000,
			AnalyticsMaxQueries: 10000,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "docrank-searcher",
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docrank",
			User:            "docrank",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Batch: BatchConfig{
			QueriesFile: "queries/queries.csv",
			Sink:        "csv",
			Output:      "queries/results.csv",
			K:           10,
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

// applyEnvOverrides reads DOCRANK_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCRANK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DOCRANK_HTML_DIR"); v != "" {
		cfg.Indexer.HTMLDir = v
	}
	if v := os.Getenv("DOCRANK_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("DOCRANK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("DOCRANK_DOC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Indexer.DocTimeout = d
		}
	}
	if v := os.Getenv("DOCRANK_MAX_FEATURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Vectorizer.MaxFeatures = n
		}
	}
	if v := os.Getenv("DOCRANK_MAX_DF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Indexer.Vectorizer.MaxDF = f
		}
	}
	if v := os.Getenv("DOCRANK_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DOCRANK_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DOCRANK_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DOCRANK_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DOCRANK_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DOCRANK_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DOCRANK_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DOCRANK_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DOCRANK_BATCH_SINK"); v != "" {
		cfg.Batch.Sink = v
	}
	if v := os.Getenv("DOCRANK_BATCH_OUTPUT"); v != "" {
		cfg.Batch.Output = v
	}
	if v := os.Getenv("DOCRANK_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOCRANK_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
