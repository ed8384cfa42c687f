package app

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/marketcore/internal/archive"
	s3blob "github.com/alanyoungcy/marketcore/internal/blob/s3"
	"github.com/alanyoungcy/marketcore/internal/cache/redis"
	"github.com/alanyoungcy/marketcore/internal/config"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/ledger"
	"github.com/alanyoungcy/marketcore/internal/notify"
	"github.com/alanyoungcy/marketcore/internal/oracle"
	"github.com/alanyoungcy/marketcore/internal/publish"
	"github.com/alanyoungcy/marketcore/internal/server/ws"
	"github.com/alanyoungcy/marketcore/internal/store/postgres"
)

// Dependencies bundles everything the application lifecycle needs to run. It
// is constructed by Wire and torn down by the returned cleanup function.
// Optional subsystems (Dispatcher, Hub, Archiver, RateLimiter) are nil when
// the corresponding backend is not configured.
type Dependencies struct {
	Registry    *ledger.Registry
	Dispatcher  *publish.Dispatcher
	Hub         *ws.Hub
	Archiver    *archive.Archiver
	RateLimiter domain.RateLimiter

	// OracleKey is the attestation signing key, when configured. Loaded at
	// startup so a bad seed or password fails fast instead of at resolve time.
	OracleKey ed25519.PrivateKey
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Resolution policy and ledger core ---
	policy, err := buildResolutionPolicy(cfg.Oracle)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: oracle policy: %w", err)
	}
	var creator domain.CreatorPolicy
	if len(cfg.Oracle.Creators) > 0 {
		creator = oracle.NewCreatorAllowlist(cfg.Oracle.Creators...)
	}
	deps.Registry = ledger.NewRegistry(ledger.RegistryConfig{
		Resolution: policy,
		Creator:    creator,
	})

	// --- Oracle signing key (attestation tooling) ---
	if cfg.Oracle.SigningSeed != "" || cfg.Oracle.EncryptedKeyPath != "" {
		key, keyErr := oracle.LoadKey(oracle.KeyConfig{
			RawSeed:          cfg.Oracle.SigningSeed,
			EncryptedKeyPath: cfg.Oracle.EncryptedKeyPath,
			KeyPassword:      cfg.Oracle.KeyPassword,
		})
		if keyErr != nil {
			return nil, nil, fmt.Errorf("wire: oracle signing key: %w", keyErr)
		}
		deps.OracleKey = key
		logger.InfoContext(ctx, "oracle signing key loaded",
			slog.String("public_key", hex.EncodeToString(key.Public().(ed25519.PublicKey))),
		)
	}

	// Durable sinks fed by the dispatcher, in delivery order.
	var sinks []domain.EventSink

	// --- PostgreSQL event journal + market mirror ---
	if cfg.Postgres.Enabled() {
		pgClient, pgErr := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if pgErr != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", pgErr)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		sinks = append(sinks, postgres.NewEventStore(pool))
		sinks = append(sinks, publish.NewMarketMirror(postgres.NewMarketStore(pool)))
	}

	// --- Redis signal bus, snapshot cache, rate limiter ---
	var lockMgr *redis.LockManager
	if cfg.Redis.Enabled {
		redisClient, redisErr := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if redisErr != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", redisErr)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bus := redis.NewSignalBus(redisClient)
		sinks = append(sinks, publish.NewBusSink(bus, redis.NewSnapshotCache(redisClient)))

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		lockMgr = redis.NewLockManager(redisClient)

		deps.Hub = ws.NewHub(bus, deps.Registry, logger)
	}

	// --- AMQP broker fan-out ---
	if cfg.AMQP.Enabled {
		amqpPub, amqpErr := publish.NewAMQPPublisher(publish.AMQPConfig{
			URL:      cfg.AMQP.URL,
			Exchange: cfg.AMQP.Exchange,
		})
		if amqpErr != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: amqp: %w", amqpErr)
		}
		closers = append(closers, func() { _ = amqpPub.Close() })
		sinks = append(sinks, amqpPub)
	}

	// --- Operator notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		sinks = append(sinks, notify.NewSink(notify.NewNotifier(senders, cfg.Notify.Events, logger)))
	}

	// The dispatcher decouples sink delivery from the market critical
	// section; the log observer only enqueues.
	if len(sinks) > 0 {
		deps.Dispatcher = publish.NewDispatcher(logger, sinks...)
		deps.Registry.Log().Observe(deps.Dispatcher.Enqueue)
	}

	// --- S3 event archive ---
	if cfg.Archive.Enabled {
		s3Client, s3Err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if s3Err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", s3Err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		var locks domain.LockManager
		if lockMgr != nil {
			locks = lockMgr
		}
		deps.Archiver = archive.New(
			archive.Config{
				Interval:    cfg.Archive.Interval.Duration,
				SegmentSize: cfg.Archive.SegmentSize,
				Prefix:      cfg.Archive.Prefix,
			},
			deps.Registry,
			deps.Registry.Log(),
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			locks,
			logger,
		)
	}

	return deps, cleanup, nil
}

// buildResolutionPolicy maps the oracle configuration onto a concrete policy.
// The "open" policy returns nil, which admits any resolution request.
func buildResolutionPolicy(cfg config.OracleConfig) (domain.ResolutionPolicy, error) {
	switch strings.ToLower(cfg.Policy) {
	case "", "open":
		return nil, nil

	case "single":
		key, err := decodePubKey(cfg.PubKey)
		if err != nil {
			return nil, err
		}
		return oracle.SingleKey{Default: key}, nil

	case "multisig":
		keys := make([]ed25519.PublicKey, 0, len(cfg.PubKeys))
		for _, raw := range cfg.PubKeys {
			key, err := decodePubKey(raw)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		return oracle.MultiSig{Keys: keys, Threshold: cfg.Threshold}, nil

	case "allowlist":
		return oracle.NewAllowlist(cfg.Accounts...), nil

	default:
		return nil, fmt.Errorf("unknown policy %q", cfg.Policy)
	}
}

// decodePubKey parses a hex-encoded ed25519 public key, tolerating a 0x
// prefix.
func decodePubKey(raw string) (ed25519.PublicKey, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(data))
	}
	return ed25519.PublicKey(data), nil
}
