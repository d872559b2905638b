package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/auth"
	authpostgres "github.com/frahmantamala/payment-gateway/internal/auth/postgres"
	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
	idempotencypostgres "github.com/frahmantamala/payment-gateway/internal/idempotency/postgres"
	"github.com/frahmantamala/payment-gateway/internal/order"
	orderpostgres "github.com/frahmantamala/payment-gateway/internal/order/postgres"
	"github.com/frahmantamala/payment-gateway/internal/payment"
	paymentpostgres "github.com/frahmantamala/payment-gateway/internal/payment/postgres"
	"github.com/frahmantamala/payment-gateway/internal/queue"
	"github.com/frahmantamala/payment-gateway/internal/refund"
	refundpostgres "github.com/frahmantamala/payment-gateway/internal/refund/postgres"
	"github.com/frahmantamala/payment-gateway/internal/transport"
	"github.com/frahmantamala/payment-gateway/internal/transport/rest"
	"github.com/frahmantamala/payment-gateway/internal/webhook"
	webhookpostgres "github.com/frahmantamala/payment-gateway/internal/webhook/postgres"
)

// Infra holds the process-wide connections shared by the server and the workers.
type Infra struct {
	Config  *internal.Config
	DB      *sqlx.DB
	Gorm    *gorm.DB
	Backend queue.Backend
	Queue   *queue.Client
	Logger  *slog.Logger
}

func initInfra(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*Infra, error) {
	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := openGorm(db.DB, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize queue backend: %w", err)
	}

	return &Infra{
		Config:  cfg,
		DB:      db,
		Gorm:    gormDB,
		Backend: backend,
		Queue:   queue.NewClient(backend, cfg.Queue.MaxAttempts),
		Logger:  logger,
	}, nil
}

func (i *Infra) Close() {
	if err := i.Backend.Close(); err != nil {
		i.Logger.Error("queue backend close error", "error", err)
	}
	if err := i.DB.Close(); err != nil {
		i.Logger.Error("database close error", "error", err)
	}
}

// initDB opens the pooled pgx connection shared by sqlx, gorm and goose.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbConn, nil
}

func openGorm(sqlDB *sql.DB, logger *slog.Logger) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.NewSlogLogger(logger, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
}

func newBackend(ctx context.Context, cfg *internal.Config) (queue.Backend, error) {
	opts := queue.BackendOptions{
		KeepCompleted: cfg.Queue.KeepCompleted,
		KeepFailed:    cfg.Queue.KeepFailed,
	}
	if cfg.Queue.Driver == "memory" {
		return queue.NewMemoryBackend(opts), nil
	}

	client, err := newRedisClient(cfg.Redis)
	if err != nil {
		return nil, err
	}
	backend, err := queue.NewRedisBackend(ctx, client, cfg.Redis.KeyPrefix, opts)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return backend, nil
}

func newRedisClient(cfg internal.RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// Services is the domain layer built over one gorm handle and one enqueuer.
type Services struct {
	Merchants   *authpostgres.MerchantRepository
	PaymentRepo payment.RepositoryAPI
	RefundRepo  refund.RepositoryAPI
	WebhookRepo webhook.RepositoryAPI

	Auth        *auth.Service
	Orders      *order.Service
	Idempotency *idempotency.Service
	Payments    *payment.Service
	Refunds     *refund.Service
	Webhooks    *webhook.Service
}

func newServices(cfg *internal.Config, db *gorm.DB, q queue.Enqueuer, logger *slog.Logger) *Services {
	s := &Services{
		Merchants:   authpostgres.NewMerchantRepository(db),
		PaymentRepo: paymentpostgres.NewPaymentRepository(db),
		RefundRepo:  refundpostgres.NewRefundRepository(db),
		WebhookRepo: webhookpostgres.NewWebhookLogRepository(db),
	}

	tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration)
	s.Auth = auth.NewService(s.Merchants, tokens, cfg.Security.BCryptCost, logger)
	s.Orders = order.NewService(orderpostgres.NewOrderRepository(db), logger)
	s.Idempotency = idempotency.NewService(idempotencypostgres.NewIdempotencyRepository(db), idempotency.DefaultTTL, logger)
	s.Payments = payment.NewService(s.PaymentRepo, s.Orders, s.Idempotency, q, logger)
	s.Refunds = refund.NewService(s.RefundRepo, q, logger)
	s.Webhooks = webhook.NewService(s.WebhookRepo, s.Merchants, q, logger)
	return s
}

func (s *Services) handlers(base *transport.BaseHandler, health *rest.HealthHandler, jobs *rest.JobsHandler) rest.Handlers {
	return rest.Handlers{
		Auth:     auth.NewHandler(s.Auth, base),
		Orders:   order.NewHandler(s.Orders, base),
		Payments: payment.NewHandler(s.Payments, base),
		Refunds:  refund.NewHandler(s.Refunds, base),
		Webhooks: webhook.NewHandler(s.Webhooks, base),
		Health:   health,
		Jobs:     jobs,
	}
}

// registerWorkers attaches the handler for each named queue to the consumer.
func (s *Services) registerWorkers(c *queue.Consumer, cfg *internal.Config, q queue.Enqueuer, queues []string, logger *slog.Logger) error {
	for _, name := range queues {
		switch name {
		case queue.Payment:
			p := payment.NewProcessor(s.PaymentRepo, q, payment.NewSimulator(cfg.Processing), logger.With("queue", queue.Payment))
			c.Register(queue.Payment, cfg.Queue.Concurrency.Payment, p.Handle)
		case queue.Refund:
			minDelay, maxDelay := cfg.Processing.RefundMinDelay, cfg.Processing.RefundMaxDelay
			if cfg.Processing.TestMode {
				minDelay, maxDelay = cfg.Processing.TestProcessingDelay, cfg.Processing.TestProcessingDelay
			}
			p := refund.NewProcessor(s.RefundRepo, q, minDelay, maxDelay, logger.With("queue", queue.Refund))
			c.Register(queue.Refund, cfg.Queue.Concurrency.Refund, p.Handle)
		case queue.Webhook:
			d := webhook.NewDeliverer(s.WebhookRepo, s.Merchants, q, webhook.NewDelivererConfig(cfg.Webhook), logger.With("queue", queue.Webhook))
			c.Register(queue.Webhook, cfg.Queue.Concurrency.Webhook, d.Handle)
		default:
			return &queue.HandlerNotRegisteredError{Queue: name}
		}
	}
	return nil
}

func consumerOptions(cfg internal.QueueConfig) queue.Options {
	return queue.Options{
		MaxAttempts:     cfg.MaxAttempts,
		BackoffBase:     cfg.BackoffBase,
		PollInterval:    cfg.PollInterval,
		LeaseDuration:   cfg.LeaseDuration,
		JobTimeout:      cfg.JobTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
}

// subscribeJobLogging logs queue lifecycle events published by the consumer.
func subscribeJobLogging(bus *events.EventBus, logger *slog.Logger) {
	log := func(level slog.Level, msg string) events.Handler {
		return func(ctx context.Context, event events.Event) error {
			je, ok := event.(*events.JobEvent)
			if !ok {
				return nil
			}
			attrs := []any{"queue", je.Queue, "job_id", je.JobID, "attempts", je.Attempts}
			if je.Err != nil {
				attrs = append(attrs, "error", je.Err)
			}
			logger.Log(ctx, level, msg, attrs...)
			return nil
		}
	}
	bus.Subscribe(events.EventJobActive, log(slog.LevelDebug, "job started"))
	bus.Subscribe(events.EventJobCompleted, log(slog.LevelInfo, "job completed"))
	bus.Subscribe(events.EventJobRetrying, log(slog.LevelWarn, "job failed, retrying"))
	bus.Subscribe(events.EventJobDead, log(slog.LevelError, "job moved to dead list"))
}
