package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mabgcm/turkiyedental2-sub001/internal/auth"
	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	"github.com/mabgcm/turkiyedental2-sub001/internal/repository"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
)

// ModerationQueueView is the moderator's list of pending reviews. Callers
// that are signed in but not administrators get Authorized false and no
// reviews.
type ModerationQueueView struct {
	Authorized bool            `json:"authorized"`
	Reviews    []domain.Review `json:"reviews"`
}

// ViewService assembles the read-only pages.
type ViewService struct {
	clinics    repository.ClinicRepository
	reviews    repository.ReviewRepository
	aggregates repository.AggregateRepository
	authz      *auth.Authorizer
	cache      ViewCache
	logger     *slog.Logger
}

// NewViewService creates a new view service. A nil cache disables caching.
func NewViewService(
	clinics repository.ClinicRepository,
	reviews repository.ReviewRepository,
	aggregates repository.AggregateRepository,
	authz *auth.Authorizer,
	cache ViewCache,
	logger *slog.Logger,
) *ViewService {
	if cache == nil {
		cache = noViewCache{}
	}
	return &ViewService{
		clinics:    clinics,
		reviews:    reviews,
		aggregates: aggregates,
		authz:      authz,
		cache:      cache,
		logger:     logger,
	}
}

// Directory lists every clinic with its rating. By default the stored
// aggregate is shown; fresh derives it from the reviews without storing it.
func (s *ViewService) Directory(ctx context.Context, fresh bool) ([]domain.ClinicSummary, error) {
	clinics, err := s.clinics.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}

	out := make([]domain.ClinicSummary, 0, len(clinics))
	for _, c := range clinics {
		if fresh {
			stats, err := s.aggregates.Compute(ctx, c.ID)
			if err != nil {
				return nil, fmt.Errorf("compute rating of clinic %s: %w", c.ID, err)
			}
			c.AvgRating, c.ReviewCount = stats.AvgRating, stats.ReviewCount
		}
		out = append(out, domain.NewClinicSummary(c))
	}
	return out, nil
}

// ClinicReviews returns the approved reviews of a clinic with their category
// averages. The pair is cached together and rebuilt after any change.
func (s *ViewService) ClinicReviews(ctx context.Context, clinicID string) (*domain.ClinicReviewsView, error) {
	if clinicID == "" {
		return nil, apperrors.InvalidInput("clinic_id is required")
	}

	cached, ok, err := s.cache.Get(ctx, clinicID)
	if err != nil {
		s.logger.WarnContext(ctx, "clinic view cache read failed",
			slog.String("clinic_id", clinicID),
			slog.String("error", err.Error()),
		)
	}
	if ok {
		return cached, nil
	}

	// The generation must be read before the reviews, so a decision that
	// lands in between keeps this copy out of the cache.
	generation, genErr := s.cache.Generation(ctx, clinicID)
	if genErr != nil {
		s.logger.WarnContext(ctx, "clinic view generation read failed",
			slog.String("clinic_id", clinicID),
			slog.String("error", genErr.Error()),
		)
	}

	approved, err := s.reviews.ListApprovedByClinic(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list approved reviews: %w", err)
	}
	view := domain.NewClinicReviewsView(clinicID, approved)
	if genErr != nil {
		return &view, nil
	}

	stored, err := s.cache.Set(ctx, &view, generation)
	if err != nil {
		s.logger.WarnContext(ctx, "clinic view cache write failed",
			slog.String("clinic_id", clinicID),
			slog.String("error", err.Error()),
		)
	} else if !stored {
		s.logger.DebugContext(ctx, "clinic view changed while loading, not cached",
			slog.String("clinic_id", clinicID),
			slog.Int64("generation", generation),
		)
	}
	return &view, nil
}

// ClinicDetail returns the public clinic page.
func (s *ViewService) ClinicDetail(ctx context.Context, clinicID string) (*domain.ClinicDetail, error) {
	clinic, err := s.clinics.GetByID(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("get clinic: %w", err)
	}
	view, err := s.ClinicReviews(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	detail := domain.NewClinicDetail(*clinic, *view)
	return &detail, nil
}

// ModerationQueue returns pending reviews, oldest first, with their raw
// sub-ratings and flag. Anonymous callers get ErrUnauthorized.
func (s *ViewService) ModerationQueue(ctx context.Context) (*ModerationQueueView, error) {
	if _, err := s.authz.RequireAdmin(ctx); err != nil {
		if errors.Is(err, apperrors.ErrForbidden) {
			return &ModerationQueueView{Authorized: false}, nil
		}
		return nil, err
	}

	pending, err := s.reviews.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	if pending == nil {
		pending = []domain.Review{}
	}
	return &ModerationQueueView{Authorized: true, Reviews: pending}, nil
}
