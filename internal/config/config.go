package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

type Config struct {
	Port                  string `envconfig:"PORT" default:"8080"`
	AllowedOrigin         string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	StoreName             string `envconfig:"STORE_NAME" default:"Loja PDV"`
	DatabaseURL           string `envconfig:"DATABASE_URL"`
	SQLitePath            string `envconfig:"SQLITE_PATH"`
	RedisAddr             string `envconfig:"REDIS_ADDR"`
	RedisPassword         string `envconfig:"REDIS_PASSWORD"`
	RedisDB               int    `envconfig:"REDIS_DB" default:"0"`
	SaleCacheTTLSeconds   int    `envconfig:"SALE_CACHE_TTL_SECONDS" default:"300"`
	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`
	LowStockThreshold     int    `envconfig:"LOW_STOCK_THRESHOLD" default:"5"`
	SessionIdleMinutes    int    `envconfig:"SESSION_IDLE_MINUTES" default:"120"`
	LogLevel              string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat             string `envconfig:"LOG_FORMAT" default:"text"`
	SeedFile              string `envconfig:"SEED_FILE"`
	SeedAdminPassword     string `envconfig:"SEED_ADMIN_PASSWORD"`
	SeedCashierPassword   string `envconfig:"SEED_CASHIER_PASSWORD"`
	MetricsEnabled        bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		// A missing .env is normal outside local development.
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return Config{}, errors.Wrapf(err, "load %s", file)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "process env")
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.SaleCacheTTLSeconds < 1 {
		cfg.SaleCacheTTLSeconds = 300
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.LowStockThreshold < 0 {
		cfg.LowStockThreshold = 5
	}
	if cfg.SessionIdleMinutes < 1 {
		cfg.SessionIdleMinutes = 120
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) SaleCacheTTL() time.Duration {
	return time.Duration(c.SaleCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// StoreKind names the backing store selected by the environment:
// postgres when DATABASE_URL is set, else sqlite when SQLITE_PATH is set,
// else the in-memory demo store.
func (c Config) StoreKind() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.SQLitePath != "":
		return "sqlite"
	default:
		return "memory"
	}
}
