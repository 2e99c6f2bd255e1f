package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"order_engine/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 배포별 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Worker struct {
		Enabled         bool `yaml:"enabled"`
		Concurrency     int  `yaml:"concurrency"`
		ShutdownGraceMS int  `yaml:"shutdown_grace_ms"`
	} `yaml:"worker"`

	Queue struct {
		Name        string `yaml:"name"`
		MaxAttempts int    `yaml:"max_attempts"`
		JournalPath string `yaml:"journal_path"` // empty disables the pebble journal
		Backoff     struct {
			BaseMS int     `yaml:"base_ms"`
			MaxMS  int     `yaml:"max_ms"`
			Jitter float64 `yaml:"jitter"`
		} `yaml:"backoff"`
	} `yaml:"queue"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Stream struct {
		SubscriberBuffer int    `yaml:"subscriber_buffer"`
		Bus              string `yaml:"bus"` // "memory" or "kafka"
		Kafka            struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
			GroupID string   `yaml:"group_id"`
		} `yaml:"kafka"`
	} `yaml:"stream"`

	Router struct {
		QuoteTimeoutMS   int `yaml:"quote_timeout_ms"`
		ExecuteTimeoutMS int `yaml:"execute_timeout_ms"`
	} `yaml:"router"`

	Venues []VenueConfig `yaml:"venues"`

	Logging struct {
		Level      string `yaml:"level"`
		Dir        string `yaml:"dir"` // empty logs to stdout only
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"logging"`
}

// RetryBackoff returns the queue's retry delay policy.
func (c *Config) RetryBackoff() Backoff {
	return Backoff{
		Base:   time.Duration(c.Queue.Backoff.BaseMS) * time.Millisecond,
		Max:    time.Duration(c.Queue.Backoff.MaxMS) * time.Millisecond,
		Jitter: c.Queue.Backoff.Jitter,
	}
}

// VenueConfig describes one simulated venue.
type VenueConfig struct {
	Name             string          `yaml:"name"`
	BasePrice        decimal.Decimal `yaml:"base_price"`
	VarianceLow      float64         `yaml:"variance_low"`
	VarianceHigh     float64         `yaml:"variance_high"`
	Fee              decimal.Decimal `yaml:"fee"`
	QuoteLatencyMS   int             `yaml:"quote_latency_ms"`
	ExecuteLatencyMS int             `yaml:"execute_latency_ms"`
	FailQuotes       bool            `yaml:"fail_quotes"`
	FailExecutions   bool            `yaml:"fail_executions"`
}

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "order-execution-engine"
	cfg.App.Version = "dev"
	cfg.Server.Addr = "0.0.0.0:3000"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Worker.Enabled = true
	cfg.Worker.Concurrency = 5
	cfg.Worker.ShutdownGraceMS = 10000
	cfg.Queue.Name = domain.QueueOrderExecution
	cfg.Queue.MaxAttempts = 3
	cfg.Queue.Backoff.BaseMS = int(DefaultBackoff.Base / time.Millisecond)
	cfg.Queue.Backoff.MaxMS = int(DefaultBackoff.Max / time.Millisecond)
	cfg.Queue.Backoff.Jitter = DefaultBackoff.Jitter
	cfg.Queue.JournalPath = "data/queue"
	cfg.Storage.Path = "data/orders.db"
	cfg.Stream.SubscriberBuffer = 64
	cfg.Stream.Bus = "memory"
	cfg.Stream.Kafka.Topic = "order-status"
	cfg.Stream.Kafka.GroupID = "order-engine-api"
	cfg.Router.QuoteTimeoutMS = 5000
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	cfg.Logging.File = "order-engine.log"
	cfg.Logging.MaxSizeMB = 10
	cfg.Logging.MaxBackups = 3
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
// 파일이 없으면 기본값을 사용하고, .env 및 환경 변수로 덮어씁니다.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("Config file not found, using defaults", slog.String("path", path))
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional; real environment variables take precedence over it.
	_ = godotenv.Load()

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return &domain.ConfigError{Field: "server.addr", Err: errors.New("must not be empty")}
	}
	if c.Worker.Concurrency <= 0 {
		return &domain.ConfigError{Field: "worker.concurrency", Err: errors.New("must be positive")}
	}
	if c.Queue.MaxAttempts <= 0 {
		return &domain.ConfigError{Field: "queue.max_attempts", Err: errors.New("must be positive")}
	}
	if c.Queue.Backoff.BaseMS <= 0 || c.Queue.Backoff.MaxMS < c.Queue.Backoff.BaseMS {
		return &domain.ConfigError{Field: "queue.backoff", Err: errors.New("need 0 < base_ms <= max_ms")}
	}
	if c.Queue.Backoff.Jitter < 0 || c.Queue.Backoff.Jitter > 1 {
		return &domain.ConfigError{Field: "queue.backoff.jitter", Err: errors.New("must be in [0,1]")}
	}
	if c.Storage.Path == "" {
		return &domain.ConfigError{Field: "storage.path", Err: errors.New("must not be empty")}
	}
	if c.Stream.SubscriberBuffer <= 0 {
		return &domain.ConfigError{Field: "stream.subscriber_buffer", Err: errors.New("must be positive")}
	}

	switch c.Stream.Bus {
	case "memory":
	case "kafka":
		if len(c.Stream.Kafka.Brokers) == 0 {
			return &domain.ConfigError{Field: "stream.kafka.brokers", Err: errors.New("at least one broker is required")}
		}
		if c.Stream.Kafka.Topic == "" {
			return &domain.ConfigError{Field: "stream.kafka.topic", Err: errors.New("must not be empty")}
		}
	default:
		return &domain.ConfigError{Field: "stream.bus", Err: fmt.Errorf("unknown bus %q", c.Stream.Bus)}
	}

	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		field := fmt.Sprintf("venues[%d]", i)
		if v.Name == "" {
			return &domain.ConfigError{Field: field + ".name", Err: errors.New("must not be empty")}
		}
		if seen[v.Name] {
			return &domain.ConfigError{Field: field + ".name", Err: fmt.Errorf("duplicate venue %q", v.Name)}
		}
		seen[v.Name] = true
		if !v.BasePrice.IsPositive() {
			return &domain.ConfigError{Field: field + ".base_price", Err: errors.New("must be positive")}
		}
		if v.Fee.IsNegative() || v.Fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return &domain.ConfigError{Field: field + ".fee", Err: errors.New("must be in [0,1)")}
		}
	}

	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("ENABLE_WORKER"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Worker.Enabled = enabled
		}
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	} else if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = "0.0.0.0:" + port
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v, ok := os.LookupEnv("QUEUE_JOURNAL_PATH"); ok {
		cfg.Queue.JournalPath = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Stream.Bus = "kafka"
		cfg.Stream.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("LOG_DIR"); ok {
		cfg.Logging.Dir = v
	}
}
