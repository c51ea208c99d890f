// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. Secrets are never read from YAML; they
// come from the process environment and are checked per request with
// Secrets.Check.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "CSS_"

// Names of the secret environment variables.
const (
	EnvAlgoliaAPIKey         = "ALGOLIA_API_KEY"
	EnvWebhookSecret         = "KONTENT_WEBHOOK_SECRET"
	EnvKontentDeliveryAPIKey = "KONTENT_DELIVERY_API_KEY"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Kontent   KontentConfig   `yaml:"kontent"`
	Algolia   AlgoliaConfig   `yaml:"algolia"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Secrets   Secrets         `yaml:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// KontentConfig controls access to the content platform's Delivery API.
type KontentConfig struct {
	DeliveryURL     string        `yaml:"deliveryUrl"`
	Depth           int           `yaml:"depth"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerReset    time.Duration `yaml:"breakerReset"`
}

// AlgoliaConfig controls calls to the search service.
type AlgoliaConfig struct {
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	HitsPerPage    int           `yaml:"hitsPerPage"`
}

// WebhookConfig controls webhook delivery processing.
type WebhookConfig struct {
	MaxBodyBytes   int64 `yaml:"maxBodyBytes"`
	MaxConcurrency int   `yaml:"maxConcurrency"`
}

// RedisConfig holds Redis connection parameters for the sync status store.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	StatusTTL time.Duration `yaml:"statusTTL"`
}

// KafkaConfig holds Kafka broker and topic settings for the sync audit trail.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SyncEvents string `yaml:"syncEvents"`
}

// PostgresConfig holds PostgreSQL connection parameters for the auditor.
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

// RateLimitConfig bounds how often a project may trigger a full sync.
type RateLimitConfig struct {
	InitPerWindow int           `yaml:"initPerWindow"`
	Window        time.Duration `yaml:"window"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles span logging for sync runs.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Secrets holds credentials sourced from the environment.
type Secrets struct {
	AlgoliaAPIKey         string
	WebhookSecret         string
	KontentDeliveryAPIKey string
}

// SecretCheck is the result of validating the presence of secrets.
type SecretCheck struct {
	Missing []string
}

// OK reports whether every requested secret was present.
func (c SecretCheck) OK() bool {
	return len(c.Missing) == 0
}

// Check reports which of the named secrets are empty. Unknown names are
// reported as missing.
func (s Secrets) Check(names ...string) SecretCheck {
	var check SecretCheck
	for _, name := range names {
		var value string
		switch name {
		case EnvAlgoliaAPIKey:
			value = s.AlgoliaAPIKey
		case EnvWebhookSecret:
			value = s.WebhookSecret
		case EnvKontentDeliveryAPIKey:
			value = s.KontentDeliveryAPIKey
		}
		if strings.TrimSpace(value) == "" {
			check.Missing = append(check.Missing, name)
		}
	}
	return check
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
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
	cfg.Secrets = secretsFromEnv()
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5*time.Minute + 30*time.Second,
			RequestTimeout:  5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Kontent: KontentConfig{
			DeliveryURL:     "https://deliver.kontent.ai",
			Depth:           50,
			RequestTimeout:  30 * time.Second,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Algolia: AlgoliaConfig{
			RequestTimeout: 60 * time.Second,
			HitsPerPage:    1000,
		},
		Webhook: WebhookConfig{
			MaxBodyBytes:   1 << 20,
			MaxConcurrency: 8,
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			PoolSize:  10,
			StatusTTL: 7 * 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "content-search-sync-auditor",
			Topics: KafkaTopics{
				SyncEvents: "search-sync-events",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchsync",
			User:            "searchsync",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			InitPerWindow: 5,
			Window:        time.Minute,
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

// applyEnvOverrides reads CSS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := env("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := env("SERVER_ALLOW_ORIGINS"); v != "" {
		cfg.Server.AllowOrigins = strings.Split(v, ",")
	}
	if v := env("KONTENT_DELIVERY_URL"); v != "" {
		cfg.Kontent.DeliveryURL = v
	}
	if v := env("KONTENT_DEPTH"); v != "" {
		if depth, err := strconv.Atoi(v); err == nil {
			cfg.Kontent.Depth = depth
		}
	}
	if v := env("REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v, cfg.Redis.Enabled)
	}
	if v := env("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := env("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := env("KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v, cfg.Kafka.Enabled)
	}
	if v := env("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := env("POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := env("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := env("POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := env("POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := env("POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := env("LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := env("LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := env("TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = parseBool(v, cfg.Tracing.Enabled)
	}
}

func secretsFromEnv() Secrets {
	return Secrets{
		AlgoliaAPIKey:         os.Getenv(EnvAlgoliaAPIKey),
		WebhookSecret:         os.Getenv(EnvWebhookSecret),
		KontentDeliveryAPIKey: os.Getenv(EnvKontentDeliveryAPIKey),
	}
}

func env(name string) string {
	return os.Getenv(envPrefix + name)
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
