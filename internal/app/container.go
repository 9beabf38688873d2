// Package app wires configuration, storage, the intelligence engine and
// the sync pipeline into runnable services.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/taskbrain/adapter/api"
	"github.com/felixgeelhaar/taskbrain/adapter/googlecalendar"
	"github.com/felixgeelhaar/taskbrain/adapter/linear"
	"github.com/felixgeelhaar/taskbrain/adapter/todoist"
	"github.com/felixgeelhaar/taskbrain/internal/intelligence"
	shared "github.com/felixgeelhaar/taskbrain/internal/shared/domain"
	"github.com/felixgeelhaar/taskbrain/internal/shared/infrastructure/eventbus"
	taskssync "github.com/felixgeelhaar/taskbrain/internal/sync"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/application"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/domain"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/infrastructure/cache"
	"github.com/felixgeelhaar/taskbrain/internal/tasks/infrastructure/persistence"
	"github.com/felixgeelhaar/taskbrain/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Storage
	Repo        domain.Repository
	RedisClient *redis.Client
	Cache       cache.TaskCache

	// Messaging
	EventPublisher eventbus.Publisher

	// Services
	Store    *application.Store
	Engine   *intelligence.Engine
	Notifier *taskssync.Notifier
	Pipeline *taskssync.Pipeline
	Poller   *taskssync.Poller

	// HTTP
	Server *api.Server
}

// NewContainer creates and wires all dependencies. Redis and RabbitMQ are
// optional in development; their absence degrades to in-process no-ops.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	// Webhook ingestion fails closed without secrets; refuse to boot a
	// production instance that could never verify a delivery.
	if cfg.IsProduction() && cfg.TodoistWebhookSecret == "" && cfg.LinearWebhookSecret == "" {
		return nil, &shared.ConfigurationError{
			Message: "no webhook secrets configured; set TODOIST_WEBHOOK_SECRET or LINEAR_WEBHOOK_SECRET",
		}
	}

	// Storage: Postgres when DATABASE_URL is set, embedded SQLite otherwise.
	if cfg.DatabaseURL != "" {
		repo, err := persistence.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.Repo = repo
		logger.Info("connected to postgres")
	} else {
		repo, err := persistence.NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		c.Repo = repo
		logger.Info("opened sqlite database", "path", cfg.SQLitePath)
	}

	// Cache: Redis when reachable, noop otherwise.
	c.Cache = cache.NewNoopTaskCache()
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			if !cfg.IsDevelopment() {
				c.closePartial()
				return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
			}
			logger.Warn("invalid Redis URL, task cache disabled", "error", err)
		} else {
			client := redis.NewClient(opt)
			if err := client.Ping(ctx).Err(); err != nil {
				if !cfg.IsDevelopment() {
					c.closePartial()
					return nil, fmt.Errorf("failed to connect to Redis: %w", err)
				}
				logger.Warn("Redis not available, task cache disabled", "error", err)
			} else {
				c.RedisClient = client
				c.Cache = cache.NewRedisTaskCache(client, cfg.TaskCacheTTL, logger)
				logger.Info("connected to Redis")
			}
		}
	}

	// Event publisher: RabbitMQ when reachable, noop in development.
	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			c.closePartial()
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		logger.Warn("RabbitMQ not available, using noop publisher")
		c.EventPublisher = eventbus.NewNoopPublisher(logger)
	} else {
		c.EventPublisher = publisher
	}

	c.Store = application.NewStore(c.Repo, c.Cache, c.EventPublisher, logger)

	var calendar intelligence.CalendarSource
	if cfg.GoogleCalendarToken != "" {
		calendar = googlecalendar.NewClient(cfg.GoogleCalendarToken, logger)
		logger.Info("google calendar integration enabled")
	}
	c.Engine = intelligence.NewEngine(c.Store, calendar, logger,
		intelligence.WithDayCapacity(cfg.DayCapacityMinutes))

	// Outward notifier; nil when NOTIFY_WEBHOOK_URL is unset.
	c.Notifier = taskssync.NewNotifier(taskssync.NotifierConfig{
		URL:            cfg.NotifyWebhookURL,
		AuthHeader:     cfg.NotifyAuthHeader,
		ConnectTimeout: cfg.NotifyConnectTimeout,
		RequestTimeout: cfg.NotifyRequestTimeout,
		QueueSize:      cfg.NotifyQueueSize,
		Workers:        cfg.NotifyWorkers,
	}, c.Store, c.Engine, logger)

	c.Pipeline = taskssync.NewPipeline(c.Store, c.Engine, c.Cache, c.Notifier,
		cfg.TodoistWebhookSecret, cfg.LinearWebhookSecret, logger)

	var providers []taskssync.TaskProviderClient
	if cfg.TodoistAPIToken != "" {
		providers = append(providers, todoist.NewClient(cfg.TodoistAPIToken, logger))
	}
	if cfg.LinearAPIToken != "" {
		providers = append(providers, linear.NewClient(cfg.LinearAPIToken, logger))
	}
	c.Poller = taskssync.NewPoller(c.Store, c.Engine, providers, cfg.SyncPollInterval, logger)

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.HTTPAddr
	c.Server = api.NewServer(serverCfg,
		api.NewTaskHandler(c.Store, c.Cache, logger),
		api.NewIntelligenceHandler(c.Store, c.Engine, logger),
		api.NewWebhookHandler(c.Pipeline, logger),
		logger,
	)

	return c, nil
}

// Close releases all held connections.
func (c *Container) Close() {
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("event publisher close failed", "error", err)
		}
	}
	c.closePartial()
}

func (c *Container) closePartial() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("redis close failed", "error", err)
		}
	}
	if c.Repo != nil {
		if err := c.Repo.Close(); err != nil {
			c.Logger.Warn("repository close failed", "error", err)
		}
	}
}
