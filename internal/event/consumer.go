package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
	pkgkafka "github.com/mabgcm/turkiyedental2-sub001/pkg/kafka"
)

// ConsumerGroupRecompute is the consumer group of the recompute repair loop.
const ConsumerGroupRecompute = "clinic-review-recompute"

// RatingRecomputer is the part of the aggregation engine the consumer needs.
type RatingRecomputer interface {
	Recompute(ctx context.Context, clinicID string) (domain.RatingStats, error)
}

// Consumer reacts to review events published by any instance.
type Consumer struct {
	logger     *slog.Logger
	recomputer RatingRecomputer
}

// NewConsumer creates a new event consumer.
func NewConsumer(recomputer RatingRecomputer, logger *slog.Logger) *Consumer {
	return &Consumer{
		recomputer: recomputer,
		logger:     logger,
	}
}

// HandleReviewModerated recomputes the clinic of a moderated review.
// Recompute is idempotent, so redelivery is harmless.
func (c *Consumer) HandleReviewModerated(ctx context.Context, event *pkgkafka.Event) error {
	var data ReviewModeratedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal review.moderated data: %w", err)
	}
	if data.ClinicID == "" {
		c.logger.WarnContext(ctx, "review.moderated event without clinic id",
			slog.String("event_id", event.EventID),
			slog.String("review_id", data.ReviewID),
		)
		return nil
	}

	c.logger.InfoContext(ctx, "processing review.moderated event",
		slog.String("review_id", data.ReviewID),
		slog.String("clinic_id", data.ClinicID),
		slog.Bool("stats_stale", data.StatsStale),
	)

	stats, err := c.recomputer.Recompute(ctx, data.ClinicID)
	if errors.Is(err, apperrors.ErrNotFound) {
		// The clinic was deleted after the review was moderated.
		c.logger.InfoContext(ctx, "skipping recompute for missing clinic",
			slog.String("clinic_id", data.ClinicID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("recompute clinic %s: %w", data.ClinicID, err)
	}

	c.logger.InfoContext(ctx, "clinic rating repaired",
		slog.String("clinic_id", data.ClinicID),
		slog.Int("review_count", stats.ReviewCount),
		slog.Float64("avg_rating", stats.AvgRating),
	)
	return nil
}
