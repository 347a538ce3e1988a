package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/triarbot/internal/blob/s3"
	"github.com/alanyoungcy/triarbot/internal/cache/redis"
	"github.com/alanyoungcy/triarbot/internal/config"
	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/alanyoungcy/triarbot/internal/journal"
	"github.com/alanyoungcy/triarbot/internal/notify"
	"github.com/alanyoungcy/triarbot/internal/server/handler"
	"github.com/alanyoungcy/triarbot/internal/store/postgres"
)

// Dependencies bundles the optional infrastructure the modes run on. Each
// interface field is left nil when its backend is not configured.
type Dependencies struct {
	// Stores
	TradeStore       domain.TradeStore
	OpportunityStore domain.OpportunityStore

	// Redis
	EventBus    *redis.EventBus
	LockManager domain.LockManager

	// Journal and blob storage
	Files *journal.FileJournal
	Blobs journal.BlobStore

	// Notifications
	Notifier *notify.Notifier

	// Health checks for every connected backend.
	Checks map[string]handler.Check
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

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
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
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.TradeStore = pgClient.TradeStore()
		deps.OpportunityStore = pgClient.OpportunityStore()
		deps.Checks["postgres"] = pgClient.Ping
		logger.InfoContext(ctx, "postgres connected")
	}

	// --- Redis ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.EventBus = redis.NewEventBus(redisClient, int64(cfg.Redis.StreamMaxLen))
		if cfg.Trading.DistributedLock {
			deps.LockManager = redis.NewLockManager(redisClient)
		}
		deps.Checks["redis"] = redisClient.Ping
		logger.InfoContext(ctx, "redis connected",
			slog.String("addr", cfg.Redis.Addr),
			slog.Bool("distributed_lock", cfg.Trading.DistributedLock),
		)
	}

	// --- Journal files ---
	files, err := journal.NewFileJournal(cfg.Journal.Dir)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: journal: %w", err)
	}
	closers = append(closers, func() {
		if err := files.Close(); err != nil {
			logger.Warn("journal close failed", slog.String("error", err.Error()))
		}
	})
	deps.Files = files

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Blobs = s3blob.NewWriter(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// eventBus returns the bus as an interface, nil when Redis is not wired.
func (d *Dependencies) eventBus() domain.EventBus {
	if d.EventBus == nil {
		return nil
	}
	return d.EventBus
}

// eventReader mirrors eventBus for the status server.
func (d *Dependencies) eventReader() handler.EventReader {
	if d.EventBus == nil {
		return nil
	}
	return d.EventBus
}
