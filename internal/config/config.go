package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/Ananth-NQI/menuchat-backend/internal/logx"
)

// Prefix is the environment variable prefix for every setting.
const Prefix = "MENUCHAT"

// Storage modes.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Transport kinds.
const (
	TransportSimulated = "simulated"
	TransportTwilio    = "twilio"
	TransportMatrix    = "matrix"
)

// Config is the full process configuration, bound from the environment.
type Config struct {
	Port        string `default:"8080"`
	Environment string `default:"development"`
	AppName     string `split_words:"true" default:"MenuChat Backend v1.0.0"`

	Storage  string `default:"memory"`
	Database DatabaseConfig
	SeedFile string `split_words:"true"`

	Transport        string `default:"simulated"`
	Twilio           TwilioConfig
	AutoStart        bool `split_words:"true" default:"true"`
	SimulatedPairing bool `split_words:"true" default:"true"`
	NotifyExpired    bool `split_words:"true" default:"true"`

	SessionIdle         time.Duration `split_words:"true" default:"30m"`
	SweepPeriod         time.Duration `split_words:"true" default:"5m"`
	ConnectionStale     time.Duration `split_words:"true" default:"10m"`
	ConfigCacheTTL      time.Duration `envconfig:"CONFIG_CACHE_TTL" default:"1m"`
	AllowListTTL        time.Duration `envconfig:"ALLOW_LIST_TTL" default:"1m"`
	DedupeTTL           time.Duration `split_words:"true" default:"10m"`
	DedupeSize          int           `split_words:"true" default:"10000"`
	SimulateWait        time.Duration `split_words:"true" default:"10s"`
	MinAddressLength    int           `split_words:"true" default:"10"`
	ShutdownGracePeriod time.Duration `split_words:"true" default:"10s"`

	Log logx.Config
}

// DatabaseConfig mirrors the Cloud SQL / local Postgres settings.
type DatabaseConfig struct {
	User                   string `default:"postgres"`
	Pass                   string
	Name                   string `default:"menuchat"`
	Host                   string `default:"localhost"`
	Port                   int    `default:"5432"`
	InstanceConnectionName string `split_words:"true"`
}

// TwilioConfig holds the WhatsApp-over-Twilio credentials.
type TwilioConfig struct {
	AccountSID        string `envconfig:"ACCOUNT_SID"`
	AuthToken         string `split_words:"true"`
	PublicBaseURL     string `envconfig:"PUBLIC_BASE_URL"`
	DisableValidation bool   `split_words:"true" default:"false"`
}

// Load reads .env files (if any) and binds the environment into a Config.
func Load() (*Config, error) {
	// Try multiple locations for the .env file; none is fine.
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("environments/.env.development"); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Debug().Err(err).Msg("failed to load .env file, using process environment")
		}
	}

	var conf Config
	if err := envconfig.Process(Prefix, &conf); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	conf.Storage = strings.ToLower(strings.TrimSpace(conf.Storage))
	conf.Transport = strings.ToLower(strings.TrimSpace(conf.Transport))

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// MustLoad is Load that panics on error.
func MustLoad() *Config {
	conf, err := Load()
	if err != nil {
		panic(err)
	}
	return conf
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}

	switch c.Transport {
	case TransportSimulated, TransportMatrix:
	case TransportTwilio:
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
			return errors.New("twilio transport requires account sid and auth token")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	if c.SessionIdle <= 0 {
		return errors.New("session idle threshold must be positive")
	}
	if c.SweepPeriod <= 0 {
		return errors.New("sweep period must be positive")
	}
	if c.ConnectionStale <= 0 {
		return errors.New("connection staleness threshold must be positive")
	}
	if c.MinAddressLength < 1 {
		return errors.New("minimum address length must be at least 1")
	}
	return nil
}

// IsProduction reports whether the service runs in a deployed environment.
func (c *Config) IsProduction() bool {
	return c.Database.InstanceConnectionName != "" || strings.EqualFold(c.Environment, "production")
}

// DSN builds the Postgres connection string. Cloud Run connects through the
// Cloud SQL unix socket, local development through TCP.
func (d DatabaseConfig) DSN() string {
	if d.InstanceConnectionName != "" {
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			d.InstanceConnectionName, d.User, d.Pass, d.Name)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		d.Host, d.User, d.Pass, d.Name, d.Port)
}
