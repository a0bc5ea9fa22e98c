package appServer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/linktracker/config"
	cache "github.com/ds124wfegd/linktracker/internal/database/redis"
	"github.com/ds124wfegd/linktracker/internal/database/sqlstore"
	"github.com/ds124wfegd/linktracker/internal/metrics"
	"github.com/ds124wfegd/linktracker/internal/service"
	"github.com/ds124wfegd/linktracker/pkg/kafka"
	"github.com/ds124wfegd/linktracker/pkg/migrations"
	"github.com/ds124wfegd/linktracker/pkg/postgres"
	"github.com/ds124wfegd/linktracker/pkg/queue"
	"github.com/ds124wfegd/linktracker/pkg/rabbitMQ"
	"github.com/ds124wfegd/linktracker/pkg/redis"
	"github.com/ds124wfegd/linktracker/pkg/sqlite"
	"github.com/ds124wfegd/linktracker/pkg/telegram"
)

// Components is everything the server and the CLI share. Optional parts
// (Redis, RabbitMQ, Kafka, Telegram) are nil when disabled or unreachable.
type Components struct {
	Config   *config.Config
	DB       *sql.DB
	Links    sqlstore.LinkRepository
	Clicks   sqlstore.ClickRepository
	Metrics  *metrics.Metrics
	Location *time.Location

	Redis      *goredis.Client
	DLQ        queue.DLQHandler
	ClickQueue *rabbitMQ.RabbitMQ
	Producer   kafka.Producer
	Bot        *telegram.Bot

	LinkService   service.LinkService
	StatsService  service.StatsService
	ReportService service.ReportService

	closers []func() error
}

// OpenDB connects to the configured database and applies pending migrations.
func OpenDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, sqlstore.Dialect, error) {
	dialect, err := sqlstore.DialectFor(cfg.Driver)
	if err != nil {
		return nil, sqlstore.Dialect{}, err
	}

	var db *sql.DB
	switch cfg.Driver {
	case "postgres":
		db, err = postgres.NewPostgresDB(ctx, cfg)
	default:
		db, err = sqlite.NewSQLiteDB(ctx, cfg.Path)
	}
	if err != nil {
		return nil, sqlstore.Dialect{}, err
	}

	if err := migrations.Up(db, cfg.Driver); err != nil {
		_ = db.Close()
		return nil, sqlstore.Dialect{}, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, dialect, nil
}

func NewComponents(ctx context.Context, cfg *config.Config) (*Components, error) {
	loc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("report timezone: %w", err)
	}

	db, dialect, err := OpenDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	c := &Components{
		Config:   cfg,
		DB:       db,
		Links:    sqlstore.NewLinkRepository(db, dialect),
		Clicks:   sqlstore.NewClickRepository(db, dialect),
		Metrics:  metrics.New(),
		Location: loc,
	}
	c.closers = append(c.closers, db.Close)
	logrus.WithField("driver", cfg.Database.Driver).Info("Database initialized")

	linkOpts := []service.LinkOption{service.WithClickCounter(c.Metrics)}

	if cfg.Redis.Enabled {
		client, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logrus.Errorf("Failed to initialize Redis: %v. Continuing without cache and DLQ...", err)
		} else {
			c.Redis = client
			c.closers = append(c.closers, client.Close)
			c.DLQ = queue.NewRedisDLQHandler(client, cfg.Redis.DLQKey)
			linkOpts = append(linkOpts, service.WithCache(cache.NewLinkCache(client, cfg.Redis.CacheTTL)))
			logrus.Info("Redis cache and DLQ initialized")
		}
	}

	if cfg.RabbitMQ.Enabled {
		q, err := rabbitMQ.NewRabbitMQ(rabbitMQ.RabbitMQConfig{
			URL:       cfg.RabbitMQ.URL,
			QueueName: cfg.RabbitMQ.QueueName,
			Prefetch:  cfg.RabbitMQ.Prefetch,
		})
		if err != nil {
			logrus.Errorf("Failed to initialize RabbitMQ: %v. Clicks will be written directly...", err)
		} else {
			c.ClickQueue = q
			c.closers = append(c.closers, q.Close)
			linkOpts = append(linkOpts, service.WithClickQueue(q))
			logrus.Info("RabbitMQ click queue initialized")
		}
	}

	if cfg.Kafka.Enabled {
		c.Producer = kafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		c.closers = append(c.closers, c.Producer.Close)
	}

	var transport service.Transport
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		c.Bot = telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			telegram.WithAPIURL(cfg.Telegram.APIURL),
			telegram.WithTimeout(cfg.Telegram.Timeout),
		)
		transport = c.Bot
		logrus.Info("Telegram bot initialized")
	} else {
		logrus.Warn("Telegram bot token or chat id not provided, reports will fail")
	}

	recorders := service.MultiRecorder{service.AuditLogRecorder{}, service.NewMetricsRecorder(c.Metrics)}
	if c.Producer != nil {
		recorders = append(recorders, service.NewEventRecorder(c.Producer))
	}
	if c.DLQ != nil {
		recorders = append(recorders, service.NewDLQRecorder(c.DLQ))
	}

	c.LinkService = service.NewLinkService(c.Links, c.Clicks, linkOpts...)
	c.StatsService = service.NewStatsService(c.Clicks, cfg.Report.TopN)
	c.ReportService = service.NewReportService(
		c.StatsService,
		transport,
		queue.NewRetryManager(cfg.Report.MaxAttempts, cfg.Report.BackoffBase),
		recorders,
		service.ReportSettings{
			TopN:         cfg.Report.TopN,
			MessageLimit: cfg.Report.MessageLimit,
			Location:     loc,
		},
	)
	return c, nil
}

// HealthChecks returns a check per configured backend.
func (c *Components) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"database": c.DB.PingContext,
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }
	}
	if c.ClickQueue != nil {
		checks["rabbitmq"] = func(context.Context) error { return c.ClickQueue.HealthCheck() }
	}
	return checks
}

// Close releases everything in reverse order of creation.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
