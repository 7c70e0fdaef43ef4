package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mabgcm/turkiyedental2-sub001/internal/auth"
	"github.com/mabgcm/turkiyedental2-sub001/internal/config"
	"github.com/mabgcm/turkiyedental2-sub001/internal/event"
	handler "github.com/mabgcm/turkiyedental2-sub001/internal/handler/http"
	"github.com/mabgcm/turkiyedental2-sub001/internal/lock"
	redisrepo "github.com/mabgcm/turkiyedental2-sub001/internal/repository/redis"
	"github.com/mabgcm/turkiyedental2-sub001/internal/service"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/database"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/health"
	pkgkafka "github.com/mabgcm/turkiyedental2-sub001/pkg/kafka"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/middleware"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/tracing"
)

// ServiceName identifies the service in logs, metrics and traces.
const ServiceName = "clinic-reviews"

const (
	lockRetryInterval = 50 * time.Millisecond
	idempotencyTTL    = 24 * time.Hour
	limiterIdleTTL    = 10 * time.Minute
	publicMaxAge      = 60
)

// App wires together all dependencies and runs the clinic review service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	stores         *Stores
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	recompute      *pkgkafka.Consumer
	limiter        *middleware.KeyedLimiter
	engine         *service.AggregationService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, tracerShutdown: tracerShutdown}
	healthHandler := health.NewHandler()

	stores, err := OpenStores(ctx, cfg, logger, true)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.stores = stores
	healthHandler.Register(stores.Driver, stores.Ping)

	// Redis backs the cross-instance recompute lock and the view cache.
	// Without it a single instance runs with an in-process lock.
	var (
		locker      lock.Locker = lock.NewKeyedMutex()
		cache       service.ViewCache
		idempotency pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
	)
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))

		locker = lock.NewRedisLocker(client, cfg.LockTTL(), lockRetryInterval, logger)
		cache = redisrepo.NewViewCache(client, cfg.ViewCacheTTL())
		idempotency = pkgkafka.NewRedisIdempotencyStore(client, ServiceName+":events", idempotencyTTL)
		healthHandler.RegisterOptional("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	// Events are fire-and-forget; a disabled or broken broker never blocks
	// moderation.
	var publisher pkgkafka.Publisher = pkgkafka.NopPublisher{}
	if cfg.KafkaEnabled {
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.producer = producer
		if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		publisher = pkgkafka.NewBreakerPublisher(producer, pkgkafka.DefaultBreakerConfig(ServiceName), logger)
		healthHandler.RegisterOptional("kafka", producer.Ping)
	}

	// Build the dependency graph.
	authz := auth.NewAuthorizer(cfg.AdminAllowlist)
	if authz.Size() == 0 {
		logger.Warn("admin allowlist is empty, moderation endpoints will reject every caller")
	}
	eventProducer := event.NewProducer(publisher, logger)
	engine := service.NewAggregationService(stores.Aggregates, stores.Clinics, locker, cache, eventProducer, logger)
	a.engine = engine

	svcs := handler.Services{
		Clinics:    service.NewClinicService(stores.Clinics, authz, cache, eventProducer, logger),
		Reviews:    service.NewReviewService(stores.Reviews, stores.Clinics, authz, cache, eventProducer, logger, cfg.MinReviewTextLength),
		Moderation: service.NewModerationService(stores.Reviews, engine, authz, eventProducer, logger),
		Views:      service.NewViewService(stores.Clinics, stores.Reviews, stores.Aggregates, authz, cache, logger),
	}

	// Every instance in the group repairs ratings after moderation, so a
	// recompute that failed on the deciding instance is retried here.
	if cfg.KafkaEnabled && cfg.RecomputeConsumerEnabled {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		eventConsumer := event.NewConsumer(engine, logger)
		a.recompute = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  event.ConsumerGroupRecompute,
			Topic:    event.TopicReviewModerated,
			MinBytes: 1,
			MaxBytes: 10e6,
		}, pkgkafka.IdempotentHandler(idempotency, eventConsumer.HandleReviewModerated, logger), a.dlq, logger)
	}

	a.limiter = middleware.NewKeyedLimiter(cfg.SubmitRatePerMinute, cfg.SubmitBurst, limiterIdleTTL)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	router := handler.NewRouter(svcs, handler.RouterConfig{
		ServiceName:    ServiceName,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		PublicMaxAge:   publicMaxAge,
		TokenValidator: verifier.Validate,
		SubmitLimiter:  a.limiter,
	}, healthHandler, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Engine returns the aggregation engine for one-off maintenance commands.
func (a *App) Engine() *service.AggregationService {
	return a.engine
}

// Run starts the HTTP server and the recompute consumer, then blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.recompute != nil {
		go func() {
			if err := a.recompute.Start(ctx); err != nil {
				errCh <- fmt.Errorf("recompute consumer: %w", err)
			}
		}()
	}

	// Forget idle submitters.
	go a.limiter.Run(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		if shutdownErr := a.Shutdown(); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Everything Close releases
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// Close releases everything NewApp opened except the HTTP server:
// 1. Tracer (flush pending spans)
// 2. Recompute consumer and its dead-letter writer
// 3. Kafka producer
// 4. Redis client
// 5. Store connections
func (a *App) Close() error {
	var errs []error
	record := func(what string, err error) {
		if err != nil {
			a.logger.Error(what+" close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		record("tracer", a.tracerShutdown(tracerCtx))
	}
	if a.recompute != nil {
		record("recompute consumer", a.recompute.Close())
	}
	if a.dlq != nil {
		record("dead-letter producer", a.dlq.Close())
	}
	if a.producer != nil {
		record("kafka producer", a.producer.Close())
	}
	if a.redis != nil {
		record("redis", a.redis.Close())
	}
	if a.stores != nil {
		storeCtx, storeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer storeCancel()
		record(a.stores.Driver, a.stores.Close(storeCtx))
	}

	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := range 3 {
		if err := producer.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
