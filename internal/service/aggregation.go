package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	"github.com/mabgcm/turkiyedental2-sub001/internal/event"
	"github.com/mabgcm/turkiyedental2-sub001/internal/lock"
	"github.com/mabgcm/turkiyedental2-sub001/internal/repository"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
)

// ViewCache holds per-clinic review views. Implementations must treat a miss
// as (nil, false, nil).
//
// Every Invalidate advances the clinic's generation. A reader takes the
// generation before loading reviews and passes it to Set, which stores the
// view only if no invalidation happened in between.
type ViewCache interface {
	Get(ctx context.Context, clinicID string) (*domain.ClinicReviewsView, bool, error)
	Generation(ctx context.Context, clinicID string) (int64, error)
	Set(ctx context.Context, view *domain.ClinicReviewsView, generation int64) (bool, error)
	Invalidate(ctx context.Context, clinicID string) error
}

type noViewCache struct{}

func (noViewCache) Get(context.Context, string) (*domain.ClinicReviewsView, bool, error) {
	return nil, false, nil
}
func (noViewCache) Generation(context.Context, string) (int64, error) { return 0, nil }
func (noViewCache) Set(context.Context, *domain.ClinicReviewsView, int64) (bool, error) {
	return false, nil
}
func (noViewCache) Invalidate(context.Context, string) error { return nil }

// AggregationService is the single entry point that rewrites a clinic's
// cached rating. Recomputes of one clinic never overlap.
type AggregationService struct {
	aggregates repository.AggregateRepository
	clinics    repository.ClinicRepository
	locker     lock.Locker
	cache      ViewCache
	producer   *event.Producer
	logger     *slog.Logger
	now        func() time.Time
}

// NewAggregationService creates the aggregation engine. A nil cache disables
// view caching.
func NewAggregationService(
	aggregates repository.AggregateRepository,
	clinics repository.ClinicRepository,
	locker lock.Locker,
	cache ViewCache,
	producer *event.Producer,
	logger *slog.Logger,
) *AggregationService {
	if cache == nil {
		cache = noViewCache{}
	}
	return &AggregationService{
		aggregates: aggregates,
		clinics:    clinics,
		locker:     locker,
		cache:      cache,
		producer:   producer,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Recompute derives the clinic's rating from its approved reviews and stores
// it. Running it again without review changes yields the same result.
func (s *AggregationService) Recompute(ctx context.Context, clinicID string) (domain.RatingStats, error) {
	if clinicID == "" {
		return domain.RatingStats{}, apperrors.InvalidInput("clinic_id is required")
	}

	waitStart := time.Now()
	unlock, err := s.locker.Lock(ctx, "clinic-rating:"+clinicID)
	if err != nil {
		recomputeTotal.WithLabelValues("error").Inc()
		return domain.RatingStats{}, fmt.Errorf("lock clinic %s: %w", clinicID, err)
	}
	lockWaitDuration.Observe(time.Since(waitStart).Seconds())

	start := time.Now()
	at := s.now()
	stats, err := s.aggregates.Recompute(ctx, clinicID, at)
	unlock()

	recomputeDuration.WithLabelValues(resultLabel(err)).Observe(time.Since(start).Seconds())
	recomputeTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return domain.RatingStats{}, fmt.Errorf("recompute clinic %s: %w", clinicID, err)
	}

	if err := s.cache.Invalidate(ctx, clinicID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate clinic view",
			slog.String("clinic_id", clinicID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishRatingRecomputed(ctx, clinicID, stats, at); err != nil {
		s.logger.WarnContext(ctx, "failed to publish rating recomputed event",
			slog.String("clinic_id", clinicID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "clinic rating recomputed",
		slog.String("clinic_id", clinicID),
		slog.Int("review_count", stats.ReviewCount),
		slog.Float64("avg_rating", stats.AvgRating),
	)
	return stats, nil
}

// RecomputeResult is the outcome for one clinic of RecomputeAll.
type RecomputeResult struct {
	ClinicID string             `json:"clinic_id"`
	Stats    domain.RatingStats `json:"stats"`
	Err      error              `json:"-"`
}

// RecomputeAll repairs every clinic. A failing clinic does not stop the
// rest; the joined failures are returned alongside all results.
func (s *AggregationService) RecomputeAll(ctx context.Context) ([]RecomputeResult, error) {
	clinics, err := s.clinics.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}

	results := make([]RecomputeResult, 0, len(clinics))
	var errs []error
	for _, c := range clinics {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		stats, err := s.Recompute(ctx, c.ID)
		results = append(results, RecomputeResult{ClinicID: c.ID, Stats: stats, Err: err})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}
