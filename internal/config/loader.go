package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BIDSTREAM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BIDSTREAM_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BIDSTREAM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BIDSTREAM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BIDSTREAM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BIDSTREAM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BIDSTREAM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BIDSTREAM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BIDSTREAM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BIDSTREAM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BIDSTREAM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BIDSTREAM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BIDSTREAM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BIDSTREAM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BIDSTREAM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BIDSTREAM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BIDSTREAM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BIDSTREAM_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BIDSTREAM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BIDSTREAM_S3_REGION")
	setStr(&cfg.S3.Bucket, "BIDSTREAM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BIDSTREAM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BIDSTREAM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BIDSTREAM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BIDSTREAM_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "BIDSTREAM_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "BIDSTREAM_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.Retention, "BIDSTREAM_ARCHIVE_RETENTION")
	setInt(&cfg.Archive.BatchSize, "BIDSTREAM_ARCHIVE_BATCH_SIZE")

	// ── Auction ──
	setInt64(&cfg.Auction.MinIncrementCents, "BIDSTREAM_AUCTION_MIN_INCREMENT_CENTS")
	setDuration(&cfg.Auction.ExtensionThreshold, "BIDSTREAM_AUCTION_EXTENSION_THRESHOLD")
	setDuration(&cfg.Auction.ExtensionWindow, "BIDSTREAM_AUCTION_EXTENSION_WINDOW")
	setDuration(&cfg.Auction.SweepInterval, "BIDSTREAM_AUCTION_SWEEP_INTERVAL")
	setInt(&cfg.Auction.SweepBatch, "BIDSTREAM_AUCTION_SWEEP_BATCH")
	setDuration(&cfg.Auction.PaymentWindow, "BIDSTREAM_AUCTION_PAYMENT_WINDOW")
	setInt(&cfg.Auction.BidRateLimit, "BIDSTREAM_AUCTION_BID_RATE_LIMIT")
	setDuration(&cfg.Auction.BidRateWindow, "BIDSTREAM_AUCTION_BID_RATE_WINDOW")
	setDuration(&cfg.Auction.SnapshotCacheTTL, "BIDSTREAM_AUCTION_SNAPSHOT_CACHE_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BIDSTREAM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BIDSTREAM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BIDSTREAM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ServiceKey, "BIDSTREAM_SERVER_SERVICE_KEY")
	setInt(&cfg.Server.APIRateLimit, "BIDSTREAM_SERVER_API_RATE_LIMIT")
	setDuration(&cfg.Server.APIRateWindow, "BIDSTREAM_SERVER_API_RATE_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Storage, "BIDSTREAM_STORAGE")
	setStr(&cfg.Mode, "BIDSTREAM_MODE")
	setStr(&cfg.LogLevel, "BIDSTREAM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
