package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TAVROS"

// legacyEnv keeps the plain variable names used by the docker-compose setup
// working next to the TAVROS_ prefixed ones.
var legacyEnv = map[string]string{
	"http.port":                "HTTP_PORT",
	"grpc.port":                "GRPC_PORT",
	"mongo.uri":                "MONGO_URI",
	"mongo.database":           "MONGO_DB_NAME",
	"postgres.host":            "DB_HOST",
	"postgres.port":            "DB_PORT",
	"postgres.user":            "DB_USER",
	"postgres.password":        "DB_PASSWORD",
	"postgres.name":            "DB_NAME",
	"postgres.migrations_path": "MIGRATIONS_PATH",
	"sqlite.path":              "SQLITE_PATH",
	"redis.addr":               "REDIS_ADDR",
	"redis.password":           "REDIS_PASSWORD",
	"kafka.brokers":            "KAFKA_BROKERS",
	"stripe.secret_key":        "STRIPE_SECRET_KEY",
	"stripe.webhook_secret":    "STRIPE_WEBHOOK_SECRET",
	"auth.jwt_secret":          "JWT_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.rate_limit", 5.0)
	v.SetDefault("http.rate_burst", 10)
	v.SetDefault("grpc.port", "50057")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", StoreMongo)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "checkoutdb")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.name", "ecommerce")
	v.SetDefault("postgres.migrations_path", "./internal/repository/migrations")
	v.SetDefault("sqlite.path", "tavros-checkout.db")
	v.SetDefault("sqlite.migrations_path", "./internal/repository/migrations_sqlite")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "checkout-outbox")
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.success_url", "http://localhost:3000/checkout/success?order={ORDER_ID}")
	v.SetDefault("stripe.cancel_url", "http://localhost:3000/checkout/cancel?order={ORDER_ID}")
	v.SetDefault("stripe.timeout", 10*time.Second)
	v.SetDefault("stripe.breaker_failures", 5)
	v.SetDefault("stripe.breaker_open_timeout", 30*time.Second)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
}

// Load reads defaults, then the optional YAML file at path, then the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Kafka.Brokers = splitBrokers(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitBrokers accepts both a YAML list and a comma separated env value.
func splitBrokers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, b := range strings.Split(item, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
