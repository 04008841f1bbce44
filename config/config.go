// Package config loads daemon configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config aggregates all configuration knobs for the copy-trading daemon.
type Config struct {
	// Wallets
	TargetUser  string `env:"TARGET_USER_ADDRESS,required"` // trader we replicate
	ProxyWallet string `env:"PROXY_WALLET,required"`        // our Polymarket profile address
	PrivateKey  string `env:"POLYMARKET_PRIVATE_KEY,required"`

	// Polling
	FetchInterval time.Duration `env:"FETCH_INTERVAL" envDefault:"5s"`
	TooOld        time.Duration `env:"TOO_OLD_CUTOFF" envDefault:"1h"`
	EnableLiveWS  bool          `env:"ENABLE_LIVE_WS" envDefault:"true"`

	// Execution
	RetryLimit        int           `env:"RETRY_LIMIT" envDefault:"3"`
	SlippageTolerance float64       `env:"SLIPPAGE_TOLERANCE" envDefault:"0.05"`
	SettleDelay       time.Duration `env:"ORDER_SETTLE_DELAY" envDefault:"500ms"`
	RetryDelay        time.Duration `env:"RETRY_DELAY" envDefault:"2s"`
	QueueCapacity     int           `env:"QUEUE_CAPACITY" envDefault:"256"`

	// Endpoints
	ClobURL string `env:"POLYMARKET_CLOB_URL" envDefault:"https://clob.polymarket.com"`
	DataURL string `env:"POLYMARKET_DATA_URL" envDefault:"https://data-api.polymarket.com"`

	// Status server
	Port string `env:"PORT" envDefault:"8080"`

	// Storage
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"copytrader"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"copytrader"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"copytrader"`
	RedisHost        string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort        string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword    string `env:"REDIS_PASSWORD" envDefault:""`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	cfg.TargetUser = strings.ToLower(strings.TrimSpace(cfg.TargetUser))
	cfg.ProxyWallet = strings.TrimSpace(cfg.ProxyWallet)

	if cfg.RetryLimit <= 0 {
		return nil, fmt.Errorf("config: RETRY_LIMIT must be positive, got %d", cfg.RetryLimit)
	}
	if cfg.SlippageTolerance < 0 {
		return nil, fmt.Errorf("config: SLIPPAGE_TOLERANCE must be non-negative, got %f", cfg.SlippageTolerance)
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}

	return &cfg, nil
}

// PostgresURL builds the pgx connection string.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB)
}

// RedisAddr returns the host:port address for Redis.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
