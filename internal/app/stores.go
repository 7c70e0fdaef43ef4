package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mabgcm/turkiyedental2-sub001/internal/config"
	"github.com/mabgcm/turkiyedental2-sub001/internal/repository"
	mongorepo "github.com/mabgcm/turkiyedental2-sub001/internal/repository/mongo"
	"github.com/mabgcm/turkiyedental2-sub001/internal/repository/postgres"
	"github.com/mabgcm/turkiyedental2-sub001/migrations"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/database"
)

// Stores are the repositories of one storage driver.
type Stores struct {
	Driver     string
	Clinics    repository.ClinicRepository
	Reviews    repository.ReviewRepository
	Aggregates repository.AggregateRepository

	// Ping reports whether the store is reachable.
	Ping func(ctx context.Context) error
	// Close releases the underlying connections.
	Close func(ctx context.Context) error
}

// OpenStores connects to the configured store. With migrate set, pending
// PostgreSQL migrations are applied or the MongoDB indexes are created.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, logger, migrate)
	case config.DriverMongo:
		return openMongo(ctx, cfg, logger, migrate)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) (*Stores, error) {
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, ServiceName)

	if migrate {
		applied, err := database.RunMigrations(ctx, pool, migrations.FS, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed", slog.Int("applied", len(applied)))
	}

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	return &Stores{
		Driver:     config.DriverPostgres,
		Clinics:    postgres.NewClinicRepository(pool),
		Reviews:    postgres.NewReviewRepository(pool),
		Aggregates: postgres.NewAggregateRepository(pool),
		Ping:       pool.Ping,
		Close: func(context.Context) error {
			pool.Close()
			return nil
		},
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) (*Stores, error) {
	mongoCfg := cfg.Mongo()
	mongoCfg.PoolMonitor = database.NewMongoPoolMetrics(prometheus.DefaultRegisterer, ServiceName).Monitor()

	db, err := database.NewMongoDatabase(ctx, mongoCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	logger.Info("connected to MongoDB", slog.String("database", cfg.MongoDatabase))

	if migrate {
		created, err := mongorepo.EnsureIndexes(ctx, db)
		if err != nil {
			_ = db.Client().Disconnect(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		logger.Info("mongo indexes ensured", slog.Any("indexes", created))
	}

	return &Stores{
		Driver:     config.DriverMongo,
		Clinics:    mongorepo.NewClinicRepository(db),
		Reviews:    mongorepo.NewReviewRepository(db),
		Aggregates: mongorepo.NewAggregateRepository(db),
		Ping: func(ctx context.Context) error {
			return db.Client().Ping(ctx, nil)
		},
		Close: func(ctx context.Context) error {
			return db.Client().Disconnect(ctx)
		},
	}, nil
}
