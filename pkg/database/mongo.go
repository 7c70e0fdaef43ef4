package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	PoolMonitor    *event.PoolMonitor
}

// DefaultMongoConfig returns the settings used for local development.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "clinic_reviews",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    20,
	}
}

// NewMongoDatabase connects to MongoDB, verifies the primary is reachable and
// returns a handle to the configured database. Startup failures are retried
// like the Postgres pool.
func NewMongoDatabase(ctx context.Context, cfg MongoConfig, logger *slog.Logger) (*mongo.Database, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize)
	if cfg.PoolMonitor != nil {
		opts.SetPoolMonitor(cfg.PoolMonitor)
	}

	var client *mongo.Client
	err := connectWithRetry(ctx, "mongodb", logger, func(ctx context.Context) error {
		c, err := mongo.Connect(ctx, opts)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if err := c.Ping(pingCtx, readpref.Primary()); err != nil {
			_ = c.Disconnect(ctx)
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open mongo database %q: %w", cfg.Database, err)
	}

	return client.Database(cfg.Database), nil
}
