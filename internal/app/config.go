package app

import (
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage driver: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	Redis        RedisConfig
	Auth         AuthConfig
	Telegram     TelegramConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig controls the product read-through cache. An empty address
// disables caching.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address (host:port)"`
	Password string        `default:"" usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	TTL      time.Duration `default:"5m" usage:"Base TTL of cached products"`
}

// AuthConfig controls access tokens.
type AuthConfig struct {
	JWTSecret    string        `env:"JWT_SECRET" usage:"HMAC secret for access tokens" flag:"jwt-secret"`
	TokenTTL     time.Duration `default:"24h" usage:"Access token lifetime" flag:"token-ttl"`
	SecureCookie bool          `default:"false" usage:"Send the access token cookie over HTTPS only" flag:"secure-cookie"`
}

// TelegramConfig controls the Telegram notification channel. An empty bot
// token disables it.
type TelegramConfig struct {
	BotToken    string        `default:"" usage:"Telegram bot token"`
	APIURL      string        `default:"https://api.telegram.org" usage:"Telegram Bot API base URL"`
	Timeout     time.Duration `default:"5s" usage:"Telegram request timeout"`
	MaxFailures int           `default:"5" usage:"Consecutive failures that open the circuit breaker"`
	OpenTimeout time.Duration `default:"30s" usage:"How long the circuit breaker stays open"`
}

// KafkaConfig controls the Kafka notification channel. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"storefront.notifications" usage:"Topic for customer notifications"`
}

// RateLimitConfig controls the per-client token bucket limiter. A zero rate
// disables limiting.
type RateLimitConfig struct {
	Rate  float64 `default:"10" usage:"Sustained requests per second per client"`
	Burst int     `default:"20" usage:"Maximum burst per client"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads a local .env file if present, then configuration from
// environment variables, YAML config files and flags, and applies
// platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(os.Args[1:], []string{"config.yaml", "/etc/storefront/config.yaml"})
}

func loadConfig(args, files []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Args:      args,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first configuration problem.
func (c *Config) Validate() error {
	if !slices.Contains([]string{StoragePostgres, StorageMemory}, c.Storage) {
		return errors.Errorf("unknown storage driver %q: use %s or %s", c.Storage, StoragePostgres, StorageMemory)
	}
	if c.Storage == StoragePostgres && c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required: set STOREFRONT_AUTH_JWT_SECRET")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.Errorf("token ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	if c.RateLimit.Rate < 0 {
		return errors.Errorf("rate limit must not be negative, got %v", c.RateLimit.Rate)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
