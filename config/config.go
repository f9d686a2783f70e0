package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BackendRiot   = "riot"
	BackendMemory = "memory"
)

// Config is read once at startup from the environment (and an optional .env).
type Config struct {
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`
	HTTPPort       int    `env:"HTTP_PORT" envDefault:"5200"`
	ServiceToken   string `env:"SERVICE_TOKEN,required,notEmpty"`

	Provider ProviderConfig
	Poller   PollerConfig
	Log      LogConfig
	R2       R2Config
}

type ProviderConfig struct {
	Backend     string        `env:"PROVIDER_BACKEND" envDefault:"riot"`
	APIKey      string        `env:"RIOT_API_KEY"`
	APIURL      string        `env:"RIOT_API_URL" envDefault:"https://americas.api.riotgames.com"`
	MatchAPIURL string        `env:"RIOT_MATCH_API_URL" envDefault:"https://americas.api.riotgames.com"`
	Developer   bool          `env:"DEVELOPER"` // use the stub tournament surface
	ProviderID  int64         `env:"PROVIDER_ID"`
	Region      string        `env:"PROVIDER_REGION" envDefault:"NA"`
	CallbackURL string        `env:"CALLBACK_URL"`
	Timeout     time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
}

type PollerConfig struct {
	Interval         time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	Concurrency      int           `env:"POLL_CONCURRENCY" envDefault:"4"`
	StaleGameTimeout time.Duration `env:"STALE_GAME_TIMEOUT" envDefault:"0s"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	File  string `env:"LOG_FILE"`
}

// R2Config enables the result archive when a bucket is named.
type R2Config struct {
	AccountID       string `env:"R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
	CDNBaseURL      string `env:"CDN_BASE_URL"`
}

func (r R2Config) Enabled() bool { return r.Bucket != "" }

// Load reads .env if present, then parses and validates the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER: unsupported driver %q", c.DatabaseDriver))
	}
	switch c.Provider.Backend {
	case BackendRiot:
		if c.Provider.APIKey == "" {
			errs = append(errs, errors.New("RIOT_API_KEY is required for the riot backend"))
		}
		if c.Provider.ProviderID == 0 && c.Provider.CallbackURL == "" {
			errs = append(errs, errors.New("CALLBACK_URL is required to register a provider"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("PROVIDER_BACKEND: unsupported backend %q", c.Provider.Backend))
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.Poller.Concurrency < 1 {
		errs = append(errs, errors.New("POLL_CONCURRENCY must be at least 1"))
	}
	if c.R2.Enabled() && (c.R2.AccountID == "" || c.R2.AccessKeyID == "" || c.R2.AccessKeySecret == "") {
		errs = append(errs, errors.New("R2 credentials are required when R2_BUCKET_NAME is set"))
	}
	return errors.Join(errs...)
}
