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
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Geocoder   GeocoderConfig   `yaml:"geocoder"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Logger     LoggerConfig     `yaml:"logger"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// DispatchConfig controls the request state machine and the ETA math.
type DispatchConfig struct {
	StrictTransitions *bool   `yaml:"strict_transitions"` // nil means strict
	CruiseSpeedKmh    float64 `yaml:"cruise_speed_kmh"`
	LiveArrivalKm     float64 `yaml:"live_arrival_km"`
	ConfirmArrivalKm  float64 `yaml:"confirm_arrival_km"`
}

// Strict reports whether backward status transitions are rejected.
func (d DispatchConfig) Strict() bool {
	return d.StrictTransitions == nil || *d.StrictTransitions
}

// ReconcilerConfig holds the settings of the background promotion loop.
type ReconcilerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// ResolverConfig holds the places provider settings used for hospital lookup.
type ResolverConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Category        string        `yaml:"category"`
	DefaultRadiusM  int           `yaml:"default_radius_m"`
	PageDelayMillis int           `yaml:"page_delay_ms"`
	PageDelay       time.Duration `yaml:"-"`
	TimeoutSeconds  int           `yaml:"timeout_seconds"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
}

// GeocoderConfig holds the geocoding provider settings.
type GeocoderConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Retries          int           `yaml:"retries"`
	RetryDelayMillis int           `yaml:"retry_delay_ms"`
	RetryDelay       time.Duration `yaml:"-"`
	TimeoutSeconds   int           `yaml:"timeout_seconds"`
}

// BroadcastConfig sizes the per-observer buffers of the live channel.
type BroadcastConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
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

// LoggerConfig holds the logrus settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Load reads the configuration from the given path.
// A .env file next to the working directory is loaded first so that secrets can
// stay out of the YAML file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("could not load .env file: %v", err)
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

	applyEnv(&cfg)
	cfg.ApplyDefaults()
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("GOOGLE_MAPS_API_KEY"); v != "" {
		if cfg.Resolver.APIKey == "" {
			cfg.Resolver.APIKey = v
		}
		if cfg.Geocoder.APIKey == "" {
			cfg.Geocoder.APIKey = v
		}
	}
	if v := os.Getenv("VAPID_PUBLIC_KEY"); v != "" {
		cfg.Push.PublicKey = v
	}
	if v := os.Getenv("VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}
}

// ApplyDefaults fills in zero values. Tests that build a Config by hand call it too.
func (cfg *Config) ApplyDefaults() {
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
		cfg.Server.CacheTTLSeconds = 300
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Dispatch.CruiseSpeedKmh <= 0 {
		cfg.Dispatch.CruiseSpeedKmh = 80
	}
	if cfg.Dispatch.LiveArrivalKm <= 0 {
		cfg.Dispatch.LiveArrivalKm = 0.2
	}
	if cfg.Dispatch.ConfirmArrivalKm <= 0 {
		cfg.Dispatch.ConfirmArrivalKm = 0.1
	}

	if cfg.Reconciler.IntervalSeconds <= 0 {
		cfg.Reconciler.IntervalSeconds = 60
	}
	cfg.Reconciler.Interval = time.Duration(cfg.Reconciler.IntervalSeconds) * time.Second

	if cfg.Resolver.BaseURL == "" {
		cfg.Resolver.BaseURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	}
	if cfg.Resolver.Category == "" {
		cfg.Resolver.Category = "hospital"
	}
	if cfg.Resolver.DefaultRadiusM <= 0 {
		cfg.Resolver.DefaultRadiusM = 10000
	}
	if cfg.Resolver.PageDelayMillis < 0 {
		cfg.Resolver.PageDelayMillis = 0
	} else if cfg.Resolver.PageDelayMillis == 0 {
		cfg.Resolver.PageDelayMillis = 2000
	}
	cfg.Resolver.PageDelay = time.Duration(cfg.Resolver.PageDelayMillis) * time.Millisecond
	if cfg.Resolver.TimeoutSeconds <= 0 {
		cfg.Resolver.TimeoutSeconds = 10
	}
	if cfg.Resolver.CacheTTLSeconds <= 0 {
		cfg.Resolver.CacheTTLSeconds = 300
	}

	if cfg.Geocoder.BaseURL == "" {
		cfg.Geocoder.BaseURL = "https://maps.googleapis.com/maps/api/geocode/json"
	}
	if cfg.Geocoder.Retries <= 0 {
		cfg.Geocoder.Retries = 3
	}
	if cfg.Geocoder.RetryDelayMillis <= 0 {
		cfg.Geocoder.RetryDelayMillis = 2000
	}
	cfg.Geocoder.RetryDelay = time.Duration(cfg.Geocoder.RetryDelayMillis) * time.Millisecond
	if cfg.Geocoder.TimeoutSeconds <= 0 {
		cfg.Geocoder.TimeoutSeconds = 10
	}

	if cfg.Broadcast.SubscriberBuffer <= 0 {
		cfg.Broadcast.SubscriberBuffer = 64
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "text"
	}
}
