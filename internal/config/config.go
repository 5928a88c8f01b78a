// Package config defines the top-level configuration for the auction engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BIDSTREAM_* environment
// variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Auction  AuctionConfig  `toml:"auction"`
	Server   ServerConfig   `toml:"server"`
	Storage  string         `toml:"storage"` // postgres | memory
	Mode     string         `toml:"mode"`    // full | server | sweeper
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters. When DSN is set it
// takes precedence over the individual fields.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the cold-storage export of settled auctions.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  duration `toml:"interval"`
	Retention duration `toml:"retention"`
	BatchSize int      `toml:"batch_size"`
}

// AuctionConfig holds the auction engine parameters.
type AuctionConfig struct {
	// MinIncrementCents is how far above the current bid the next bid must
	// land.
	MinIncrementCents int64 `toml:"min_increment_cents"`

	// ExtensionThreshold and ExtensionWindow configure the soft close: a
	// bid accepted with less than ExtensionThreshold remaining pushes the
	// deadline out by ExtensionWindow.
	ExtensionThreshold duration `toml:"extension_threshold"`
	ExtensionWindow    duration `toml:"extension_window"`

	// SweepInterval is how often the sweeper scans for expired auctions.
	SweepInterval duration `toml:"sweep_interval"`
	SweepBatch    int      `toml:"sweep_batch"`

	// PaymentWindow is how long a winner has to pay their order.
	PaymentWindow duration `toml:"payment_window"`

	// BidRateLimit and BidRateWindow bound how many bids a single bidder
	// may submit per window.
	BidRateLimit  int      `toml:"bid_rate_limit"`
	BidRateWindow duration `toml:"bid_rate_window"`

	// SnapshotCacheTTL is the lifetime of the per-channel active auction
	// snapshot cache entry.
	SnapshotCacheTTL duration `toml:"snapshot_cache_ttl"`
}

// duration wraps time.Duration so TOML values can be written as strings like
// "30s" or "5m".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	ServiceKey  string   `toml:"service_key"`

	// APIRateLimit and APIRateWindow apply a coarse per-IP limit in front
	// of every route. Zero disables it.
	APIRateLimit  int      `toml:"api_rate_limit"`
	APIRateWindow duration `toml:"api_rate_window"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "bidstream",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "bidstream-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:   false,
			Interval:  duration{1 * time.Hour},
			Retention: duration{24 * time.Hour},
			BatchSize: 50,
		},
		Auction: AuctionConfig{
			MinIncrementCents:  100,
			ExtensionThreshold: duration{30 * time.Second},
			ExtensionWindow:    duration{30 * time.Second},
			SweepInterval:      duration{30 * time.Second},
			SweepBatch:         100,
			PaymentWindow:      duration{7 * 24 * time.Hour},
			BidRateLimit:       10,
			BidRateWindow:      duration{10 * time.Second},
			SnapshotCacheTTL:   duration{2 * time.Second},
		},
		Server: ServerConfig{
			Enabled:       true,
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			APIRateLimit:  100,
			APIRateWindow: duration{1 * time.Second},
		},
		Storage:  "postgres",
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":    true,
	"server":  true,
	"sweeper": true,
}

// validStorage enumerates the accepted values for Config.Storage.
var validStorage = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, server, sweeper)", c.Mode))
	}

	if !validStorage[strings.ToLower(c.Storage)] {
		errs = append(errs, fmt.Sprintf("unknown storage %q (valid: postgres, memory)", c.Storage))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.ToLower(c.Storage) == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Archive.Enabled {
		if c.S3.Endpoint == "" && c.S3.Region == "" {
			errs = append(errs, "s3: endpoint or region must be set when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	if c.Auction.MinIncrementCents <= 0 {
		errs = append(errs, "auction: min_increment_cents must be > 0")
	}
	if c.Auction.ExtensionThreshold.Duration < 0 {
		errs = append(errs, "auction: extension_threshold must not be negative")
	}
	if c.Auction.ExtensionWindow.Duration <= 0 {
		errs = append(errs, "auction: extension_window must be > 0")
	}
	if c.Auction.SweepInterval.Duration <= 0 {
		errs = append(errs, "auction: sweep_interval must be > 0")
	}
	if c.Auction.PaymentWindow.Duration <= 0 {
		errs = append(errs, "auction: payment_window must be > 0")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
