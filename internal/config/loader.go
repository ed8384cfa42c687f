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
// built-in defaults, applies MARKETCORE_* environment variable overrides, and
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

// applyEnvOverrides reads well-known MARKETCORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETCORE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETCORE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETCORE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MARKETCORE_SERVER_API_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARKETCORE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MARKETCORE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETCORE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETCORE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETCORE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETCORE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETCORE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETCORE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETCORE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETCORE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MARKETCORE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MARKETCORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETCORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETCORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETCORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETCORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETCORE_REDIS_TLS_ENABLED")

	// ── AMQP ──
	setBool(&cfg.AMQP.Enabled, "MARKETCORE_AMQP_ENABLED")
	setStr(&cfg.AMQP.URL, "MARKETCORE_AMQP_URL")
	setStr(&cfg.AMQP.Exchange, "MARKETCORE_AMQP_EXCHANGE")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MARKETCORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETCORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETCORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETCORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETCORE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETCORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETCORE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MARKETCORE_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "MARKETCORE_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.SegmentSize, "MARKETCORE_ARCHIVE_SEGMENT_SIZE")
	setStr(&cfg.Archive.Prefix, "MARKETCORE_ARCHIVE_PREFIX")

	// ── Oracle ──
	setStr(&cfg.Oracle.Policy, "MARKETCORE_ORACLE_POLICY")
	setStr(&cfg.Oracle.PubKey, "MARKETCORE_ORACLE_PUB_KEY")
	setStringSlice(&cfg.Oracle.PubKeys, "MARKETCORE_ORACLE_PUB_KEYS")
	setInt(&cfg.Oracle.Threshold, "MARKETCORE_ORACLE_THRESHOLD")
	setStringSlice(&cfg.Oracle.Accounts, "MARKETCORE_ORACLE_ACCOUNTS")
	setStringSlice(&cfg.Oracle.Creators, "MARKETCORE_ORACLE_CREATORS")
	setStr(&cfg.Oracle.SigningSeed, "MARKETCORE_ORACLE_SIGNING_SEED")
	setStr(&cfg.Oracle.EncryptedKeyPath, "MARKETCORE_ORACLE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Oracle.KeyPassword, "MARKETCORE_ORACLE_KEY_PASSWORD")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKETCORE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETCORE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETCORE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETCORE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MARKETCORE_LOG_LEVEL")
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
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
