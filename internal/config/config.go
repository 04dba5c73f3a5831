package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type HTTPConfig struct {
	Port            string        `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is requests per second allowed per user, 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type GRPCConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type SQLiteConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type StripeConfig struct {
	SecretKey     string        `mapstructure:"secret_key"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	SuccessURL    string        `mapstructure:"success_url"`
	CancelURL     string        `mapstructure:"cancel_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// Breaker
	BreakerFailures    uint32        `mapstructure:"breaker_failures"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo.uri is required"))
		}
	case StorePostgres:
		if c.Postgres.Host == "" || c.Postgres.Name == "" {
			errs = append(errs, errors.New("postgres.host and postgres.name are required"))
		}
	case StoreSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be one of %q, %q, %q, got %q",
			StoreMongo, StorePostgres, StoreSQLite, c.Store.Driver))
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.HTTP.Port == "" {
		errs = append(errs, errors.New("http.port is required"))
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("http.rate_limit must not be negative"))
	}
	if c.Stripe.Timeout <= 0 {
		errs = append(errs, errors.New("stripe.timeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
