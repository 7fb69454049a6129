// Package config loads the mercury-plugin process configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Invoker backends.
const (
	BackendLog      = "log"
	BackendTemporal = "temporal"
	BackendKafka    = "kafka"
	BackendRabbitMQ = "rabbitmq"
	BackendHTTP     = "http"
)

// Store backends.
const (
	StoreNone      = "none"
	StoreMemory    = "memory"
	StoreRedis     = "redis"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
	StoreTiered    = "tiered"
)

// Config is the process configuration.
type Config struct {
	Address         string        `env:"ADDRESS" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`

	Log     Log     `envPrefix:"LOG_"`
	Webhook Webhook `envPrefix:"WEBHOOK_"`
	Mercury Mercury `envPrefix:"MERCURY_"`
	Invoker Invoker `envPrefix:"INVOKER_"`
	Store   Store   `envPrefix:"STORE_"`

	MetricsEnabled   bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"gomercury"`
}

// Log configures zerolog and optional file rotation.
type Log struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Pretty     bool   `env:"PRETTY" envDefault:"false"`
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"28"`
	Compress   bool   `env:"COMPRESS" envDefault:"true"`
}

// Webhook configures the inbound endpoint.
type Webhook struct {
	// Name is the endpoint name under /endpoints/{name}.
	Name string `env:"NAME" envDefault:"mercury"`

	// Secret and Target form the static binding used when no store is configured.
	Secret string `env:"SECRET"`
	Target string `env:"TARGET"`

	Mode            string        `env:"MODE" envDefault:"workflow"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"262144"`
	DispatchTimeout time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"15s"`
	RateLimit       int           `env:"RATE_LIMIT" envDefault:"0"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RedactErrors    bool          `env:"REDACT_ERRORS" envDefault:"false"`

	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// PublicURL is the externally reachable base of /endpoints/{name}; new
	// subscriptions register PublicURL/{subscription id} with Mercury.
	PublicURL string `env:"PUBLIC_URL"`
}

// Mercury configures the banking API client.
type Mercury struct {
	Environment string        `env:"ENVIRONMENT" envDefault:"production"`
	BaseURL     string        `env:"BASE_URL"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

// Invoker selects and configures the dispatch backend.
type Invoker struct {
	Backend string `env:"BACKEND" envDefault:"log"`

	TemporalHostPort  string `env:"TEMPORAL_HOST_PORT" envDefault:"localhost:7233"`
	TemporalNamespace string `env:"TEMPORAL_NAMESPACE" envDefault:"default"`
	TemporalTaskQueue string `env:"TEMPORAL_TASK_QUEUE"`
	TemporalIDPrefix  string `env:"TEMPORAL_ID_PREFIX"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"mercury.transactions"`

	RabbitMQURL        string `env:"RABBITMQ_URL"`
	RabbitMQQueue      string `env:"RABBITMQ_QUEUE"`
	RabbitMQExchange   string `env:"RABBITMQ_EXCHANGE"`
	RabbitMQRoutingKey string `env:"RABBITMQ_ROUTING_KEY"`

	HTTPBaseURL string `env:"HTTP_BASE_URL"`
	HTTPAPIKey  string `env:"HTTP_API_KEY"`
}

// Store selects and configures the subscription store.
type Store struct {
	Backend string `env:"BACKEND" envDefault:"none"`

	// Hot and Cold name the tiers when Backend is "tiered".
	Hot  string `env:"HOT" envDefault:"redis"`
	Cold string `env:"COLD" envDefault:"postgres"`

	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string        `env:"REDIS_KEY_PREFIX" envDefault:"mercury:subscription:"`
	RedisTTL       time.Duration `env:"REDIS_TTL" envDefault:"0s"`

	PostgresDSN string `env:"POSTGRES_DSN"`

	FirestoreProject    string `env:"FIRESTORE_PROJECT"`
	FirestoreCollection string `env:"FIRESTORE_COLLECTION" envDefault:"mercury_subscriptions"`
}

// Load reads files (default ".env" when present) into the process
// environment without overriding it, then parses and validates Config.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	}
	return Parse()
}

// Parse reads Config from the current environment.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend names and the settings each backend needs.
func (c *Config) Validate() error {
	var errs []error

	switch c.Webhook.Mode {
	case "workflow", "event":
	default:
		errs = append(errs, fmt.Errorf("unknown webhook mode %q", c.Webhook.Mode))
	}

	switch c.Mercury.Environment {
	case "production", "sandbox":
	default:
		errs = append(errs, fmt.Errorf("unknown Mercury environment %q", c.Mercury.Environment))
	}

	switch strings.ToLower(c.Invoker.Backend) {
	case BackendLog:
	case BackendTemporal:
		if c.Invoker.TemporalTaskQueue == "" {
			errs = append(errs, errors.New("temporal backend needs INVOKER_TEMPORAL_TASK_QUEUE"))
		}
	case BackendKafka:
		if len(c.Invoker.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka backend needs INVOKER_KAFKA_BROKERS"))
		}
	case BackendRabbitMQ:
		if c.Invoker.RabbitMQURL == "" {
			errs = append(errs, errors.New("rabbitmq backend needs INVOKER_RABBITMQ_URL"))
		}
	case BackendHTTP:
		if c.Invoker.HTTPBaseURL == "" {
			errs = append(errs, errors.New("http backend needs INVOKER_HTTP_BASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown invoker backend %q", c.Invoker.Backend))
	}

	errs = append(errs, c.validateStore(c.Store.Backend, true)...)

	return errors.Join(errs...)
}

func (c *Config) validateStore(backend string, allowTiered bool) []error {
	switch backend {
	case StoreNone, StoreMemory:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return []error{errors.New("redis store needs STORE_REDIS_ADDR")}
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return []error{errors.New("postgres store needs STORE_POSTGRES_DSN")}
		}
	case StoreFirestore:
		if c.Store.FirestoreProject == "" {
			return []error{errors.New("firestore store needs STORE_FIRESTORE_PROJECT")}
		}
	case StoreTiered:
		if !allowTiered {
			return []error{errors.New("tiered store cannot nest")}
		}
		var errs []error
		for _, tier := range []string{c.Store.Hot, c.Store.Cold} {
			if tier == StoreNone {
				errs = append(errs, errors.New("tiered store needs real hot and cold backends"))
				continue
			}
			errs = append(errs, c.validateStore(tier, false)...)
		}
		return errs
	default:
		return []error{fmt.Errorf("unknown store backend %q", backend)}
	}
	return nil
}
