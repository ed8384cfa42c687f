// Package config defines the top-level configuration for the market ledger
// daemon and provides loading and validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETCORE_* environment
// variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	AMQP     AMQPConfig     `toml:"amqp"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Oracle   OracleConfig   `toml:"oracle"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds the HTTP/WebSocket API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// PostgresConfig holds the event-journal database parameters. The journal is
// optional: when neither DSN nor Host is set, events are kept in memory only.
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

// Enabled reports whether a database connection is configured.
func (c PostgresConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != "" || strings.TrimSpace(c.Host) != ""
}

// RedisConfig holds snapshot-cache and signal-bus connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// AMQPConfig holds the optional broker fan-out parameters.
type AMQPConfig struct {
	Enabled  bool   `toml:"enabled"`
	URL      string `toml:"url"`
	Exchange string `toml:"exchange"`
}

// S3Config holds S3-compatible object storage parameters for the event
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the event-segment archiver. Consumers that detect a
// sequence gap resync from the archived segments.
type ArchiveConfig struct {
	Enabled     bool     `toml:"enabled"`
	Interval    duration `toml:"interval"`
	SegmentSize int      `toml:"segment_size"`
	Prefix      string   `toml:"prefix"`
}

// OracleConfig selects and parameterizes the resolution-authorization policy.
type OracleConfig struct {
	// Policy is one of "single", "multisig", "allowlist", or "open" (no
	// authorization; test deployments only).
	Policy string `toml:"policy"`

	// PubKey is the hex ed25519 public key for the single policy.
	PubKey string `toml:"pub_key"`

	// PubKeys and Threshold configure the multisig policy.
	PubKeys   []string `toml:"pub_keys"`
	Threshold int      `toml:"threshold"`

	// Accounts configures the allowlist policy.
	Accounts []string `toml:"accounts"`

	// Creators restricts market creation to the listed accounts. Empty
	// admits any creator.
	Creators []string `toml:"creators"`

	// Signing key material for the attestation helper endpoint/tooling.
	SigningSeed      string `toml:"signing_seed"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// NotifyConfig configures operator alerts for market lifecycle events. A
// sender is active when its credentials are set; Events narrows which event
// kinds are announced (empty means all announceable kinds).
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML can decode "5m"-style strings.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "marketcore",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		AMQP: AMQPConfig{
			Exchange: "marketcore.events",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketcore-events",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval:    duration{5 * time.Minute},
			SegmentSize: 1000,
			Prefix:      "events",
		},
		Oracle: OracleConfig{
			Policy:    "open",
			Threshold: 1,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validPolicies enumerates the accepted values for Oracle.Policy.
var validPolicies = map[string]bool{
	"open":      true,
	"single":    true,
	"multisig":  true,
	"allowlist": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	if c.Postgres.Enabled() && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port %d out of range", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.User == "" {
			errs = append(errs, "postgres: user must not be empty (or set postgres.dsn)")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when redis is enabled")
	}

	if c.AMQP.Enabled {
		if c.AMQP.URL == "" {
			errs = append(errs, "amqp: url must not be empty when amqp is enabled")
		}
		if c.AMQP.Exchange == "" {
			errs = append(errs, "amqp: exchange must not be empty when amqp is enabled")
		}
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "archive: s3 bucket must be configured when the archiver is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "archive: s3 region must be configured when the archiver is enabled")
		}
		if c.Archive.SegmentSize <= 0 {
			errs = append(errs, "archive: segment_size must be positive")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	policy := strings.ToLower(c.Oracle.Policy)
	if !validPolicies[policy] {
		errs = append(errs, fmt.Sprintf("oracle: unknown policy %q (valid: open, single, multisig, allowlist)", c.Oracle.Policy))
	}
	switch policy {
	case "single":
		if c.Oracle.PubKey == "" {
			errs = append(errs, "oracle: pub_key is required for the single policy")
		}
	case "multisig":
		if len(c.Oracle.PubKeys) == 0 {
			errs = append(errs, "oracle: pub_keys must not be empty for the multisig policy")
		}
		if c.Oracle.Threshold <= 0 || c.Oracle.Threshold > len(c.Oracle.PubKeys) {
			errs = append(errs, fmt.Sprintf("oracle: threshold %d out of range for %d keys", c.Oracle.Threshold, len(c.Oracle.PubKeys)))
		}
	case "allowlist":
		if len(c.Oracle.Accounts) == 0 {
			errs = append(errs, "oracle: accounts must not be empty for the allowlist policy")
		}
	}
	if c.Oracle.EncryptedKeyPath != "" && c.Oracle.KeyPassword == "" {
		errs = append(errs, "oracle: key_password is required when encrypted_key_path is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
