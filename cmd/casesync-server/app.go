package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/rcfe/casesync/internal/config"
	"github.com/rcfe/casesync/internal/domain/assignment"
	"github.com/rcfe/casesync/internal/domain/claims"
	"github.com/rcfe/casesync/internal/domain/members"
	"github.com/rcfe/casesync/internal/domain/staff"
	"github.com/rcfe/casesync/internal/domain/visits"
	"github.com/rcfe/casesync/internal/platform/accesslog"
	"github.com/rcfe/casesync/internal/platform/blobstore"
	"github.com/rcfe/casesync/internal/platform/caspio"
	"github.com/rcfe/casesync/internal/platform/db"
	"github.com/rcfe/casesync/internal/platform/kv"
	"github.com/rcfe/casesync/internal/platform/notification"
	"github.com/rcfe/casesync/internal/platform/telemetry"
)

// app holds every wired service. serve, sync and assignments share it.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	redis   *redis.Client
	metrics *telemetry.Metrics

	cache     *members.Cache
	refresher *members.Refresher
	directory *staff.Directory
	resolver  *assignment.Resolver
	claims    *claims.Service
	visits    *visits.Service
	access    *accesslog.PGStore
}

// loadConfig reads env/.env, overlays SSM secrets and validates.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.SSMParameter != "" {
		client, err := config.NewSSMClient(ctx)
		if err != nil {
			return nil, err
		}
		if err := cfg.ApplySecrets(ctx, client); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context, logger zerolog.Logger) (*app, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("connected to database")

	a := &app{cfg: cfg, logger: logger, pool: pool, metrics: telemetry.New()}

	// Redis is optional: without it the sync lock is per process and the
	// staff directory is cached in memory.
	var locker kv.Locker = kv.NewLocalLocker()
	var store kv.Store = kv.NewMemoryStore()
	if cfg.RedisURL != "" {
		client, err := kv.NewRedisClient(cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, using in-process lock and cache")
			_ = client.Close()
		} else {
			a.redis = client
			locker = kv.NewRedisLocker(client)
			store = kv.NewRedisStore(client)
		}
	}

	policy, err := members.LoadPlanPolicy(cfg.PlanPolicyFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	upstream := caspio.NewClient(caspio.Options{
		BaseURL:      cfg.CaspioBaseURL,
		ClientID:     cfg.CaspioClientID,
		ClientSecret: cfg.CaspioClientSecret,
		Timeout:      cfg.CaspioTimeout,
	}, logger)

	tx := db.NewTransactor(pool)

	a.cache = members.NewCache(members.NewRepoPG(pool), upstream, members.CacheOptions{
		Table:     cfg.CaspioMembersTable,
		PageSize:  cfg.CaspioPageSize,
		MaxPages:  cfg.CaspioMaxPages,
		Freshness: cfg.CacheFreshness,
	}, logger, a.metrics)
	a.refresher = members.NewRefresher(a.cache, locker, members.RefresherOptions{
		Interval:   cfg.SyncInterval,
		MaxRetries: cfg.SyncMaxRetries,
	}, logger, a.metrics)
	a.cache.SetRefresher(a.refresher)

	a.directory = staff.NewDirectory(upstream, store, staff.DirectoryOptions{
		Table:      cfg.CaspioStaffTable,
		Escalation: cfg.EscalationEmails,
	}, logger)
	a.resolver = assignment.NewResolver(a.cache, a.directory, policy, logger, a.metrics)

	a.access = accesslog.NewPGStore(pool)

	visitRepo := visits.NewRepoPG(pool)
	a.claims = claims.NewService(claims.NewRepoPG(pool), tx, visitRepo, claims.Rates{
		FeeRate:     cfg.ClaimFeeRate,
		GasFlatRate: cfg.ClaimGasFlatRate,
	}, logger, a.metrics)
	a.visits = visits.NewService(a.cache, visitRepo, visits.NewLockRepoPG(pool), tx, a.claims, visits.Options{
		Policy:            policy,
		LowScoreThreshold: cfg.LowScoreThreshold,
	}, logger, a.metrics)

	dispatcher, err := newDispatcher(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if dispatcher.Len() > 0 {
		a.visits.SetNotifier(a.directory, dispatcher)
	} else {
		logger.Warn().Msg("no notification channel configured; flagged visits will only be logged")
	}

	if cfg.ArchiveBucket != "" {
		s3Client, err := blobstore.NewS3Client(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.visits.SetArchive(blobstore.NewS3Store(s3Client, cfg.ArchiveBucket))
	}

	return a, nil
}

func newDispatcher(ctx context.Context, cfg *config.Config) (*notification.Dispatcher, error) {
	var notifiers []notification.Notifier
	if cfg.SlackBotToken != "" {
		notifiers = append(notifiers, notification.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel))
	}
	if cfg.SESFromAddress != "" {
		client, err := notification.NewSESClient(ctx)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, notification.NewEmailNotifier(notification.NewSESSender(client, cfg.SESFromAddress)))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, cfg.NotifyTimeout, cfg.WebhookRetries))
	}
	return notification.NewDispatcher(cfg.NotifyTimeout, notifiers...), nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.pool.Close()
}
