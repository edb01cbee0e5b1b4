package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Push         PushConfig         `yaml:"push"`
	WorkerPool   WorkerPoolConfig   `yaml:"worker_pool"`
	Provision    []ProvisionConfig  `yaml:"provision"`
	Registration RegistrationConfig `yaml:"registration"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration. Driver is
// "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// ProvisionConfig declares the fixed machine pool of one laundry room.
type ProvisionConfig struct {
	Location string `yaml:"location"`
	Washers  int    `yaml:"washers"`
	Dryers   int    `yaml:"dryers"`
}

// RegistrationConfig holds the onboarding flow options.
type RegistrationConfig struct {
	Houses            []string      `yaml:"houses"`
	SessionTTLMinutes int           `yaml:"session_ttl_minutes"`
	SessionTTL        time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path. Secrets may also come
// from a .env file or the environment, which take precedence over YAML so
// keys never have to live in the config file.
func Load(path string) (*Config, error) {
	// Same search order the deployment uses: local .env, then the mounted
	// secrets path. Both are optional.
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	} else if _, err := os.Stat("/secrets/.env"); err == nil {
		_ = godotenv.Load("/secrets/.env")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if pub := os.Getenv("VAPID_PUBLIC_KEY"); pub != "" {
		cfg.Push.PublicKey = pub
	}
	if priv := os.Getenv("VAPID_PRIVATE_KEY"); priv != "" {
		cfg.Push.PrivateKey = priv
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "laundry.db"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if len(cfg.Registration.Houses) == 0 {
		cfg.Registration.Houses = []string{"Zenith", "Nous", "Aeon"}
	}
	if cfg.Registration.SessionTTLMinutes <= 0 {
		cfg.Registration.SessionTTLMinutes = 15
	}
	cfg.Registration.SessionTTL = time.Duration(cfg.Registration.SessionTTLMinutes) * time.Minute

	if len(cfg.Provision) == 0 {
		cfg.Provision = []ProvisionConfig{
			{Location: "9", Washers: 5, Dryers: 4},
			{Location: "17", Washers: 5, Dryers: 4},
		}
	}

	return &cfg, nil
}
