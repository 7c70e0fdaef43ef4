package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mabgcm/turkiyedental2-sub001/internal/auth"
	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	"github.com/mabgcm/turkiyedental2-sub001/internal/event"
	"github.com/mabgcm/turkiyedental2-sub001/internal/repository"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
)

// ModerationResult is the outcome of approving or rejecting a review.
//
// StatsStale reports that the status change was stored but the clinic rating
// could not be recomputed; the review.moderated event carries the same flag
// so a consumer can repair it.
type ModerationResult struct {
	Review     domain.Review       `json:"review"`
	Stats      *domain.RatingStats `json:"stats,omitempty"`
	StatsStale bool                `json:"stats_stale"`
}

// ModerationService approves and rejects reviews.
type ModerationService struct {
	reviews  repository.ReviewRepository
	engine   *AggregationService
	authz    *auth.Authorizer
	producer *event.Producer
	logger   *slog.Logger
	now      func() time.Time
}

// NewModerationService creates a new moderation service.
func NewModerationService(
	reviews repository.ReviewRepository,
	engine *AggregationService,
	authz *auth.Authorizer,
	producer *event.Producer,
	logger *slog.Logger,
) *ModerationService {
	return &ModerationService{
		reviews:  reviews,
		engine:   engine,
		authz:    authz,
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Approve publishes a pending review and recomputes its clinic.
func (s *ModerationService) Approve(ctx context.Context, reviewID string) (*ModerationResult, error) {
	return s.moderate(ctx, reviewID, domain.StatusApproved, "approve")
}

// Reject hides a pending review and recomputes its clinic.
func (s *ModerationService) Reject(ctx context.Context, reviewID string) (*ModerationResult, error) {
	return s.moderate(ctx, reviewID, domain.StatusRejected, "reject")
}

// SetStatus moves a review to approved or rejected. Repeating the current
// status succeeds and bumps updated_at; changing a decided review is a
// conflict.
func (s *ModerationService) SetStatus(ctx context.Context, reviewID string, status domain.Status) (*ModerationResult, error) {
	action := "approve"
	if status == domain.StatusRejected {
		action = "reject"
	}
	return s.moderate(ctx, reviewID, status, action)
}

// RecomputeClinic is the administrator's manual repair of one clinic rating.
func (s *ModerationService) RecomputeClinic(ctx context.Context, clinicID string) (domain.RatingStats, error) {
	admin, err := s.authz.RequireAdmin(ctx)
	if err != nil {
		return domain.RatingStats{}, err
	}
	stats, err := s.engine.Recompute(ctx, clinicID)
	if err != nil {
		return domain.RatingStats{}, err
	}
	s.logger.InfoContext(ctx, "clinic rating recomputed on request",
		slog.String("clinic_id", clinicID),
		slog.String("admin_id", admin.UserID),
	)
	return stats, nil
}

func (s *ModerationService) moderate(ctx context.Context, reviewID string, to domain.Status, action string) (*ModerationResult, error) {
	admin, err := s.authz.RequireAdmin(ctx)
	if err != nil {
		moderationActions.WithLabelValues(action, "denied").Inc()
		return nil, err
	}

	review, err := s.transition(ctx, reviewID, to)
	if err != nil {
		moderationActions.WithLabelValues(action, "failed").Inc()
		return nil, err
	}

	result := &ModerationResult{Review: *review}
	stats, err := s.engine.Recompute(ctx, review.ClinicID)
	switch {
	case err == nil:
		result.Stats = &stats
	case errors.Is(err, apperrors.ErrNotFound):
		// Orphaned review: its clinic was deleted, so there is no rating to keep.
		s.logger.InfoContext(ctx, "moderated review of a deleted clinic",
			slog.String("review_id", review.ID),
			slog.String("clinic_id", review.ClinicID),
		)
	default:
		result.StatsStale = true
		s.logger.ErrorContext(ctx, "recompute after moderation failed",
			slog.String("review_id", review.ID),
			slog.String("clinic_id", review.ClinicID),
			slog.String("error", err.Error()),
		)
	}

	moderationActions.WithLabelValues(action, "ok").Inc()
	s.logger.InfoContext(ctx, "review moderated",
		slog.String("review_id", review.ID),
		slog.String("clinic_id", review.ClinicID),
		slog.String("status", string(review.Status)),
		slog.String("moderator_id", admin.UserID),
	)

	if err := s.producer.PublishReviewModerated(ctx, review, admin.UserID, result.StatsStale); err != nil {
		s.logger.WarnContext(ctx, "failed to publish review moderated event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}
	return result, nil
}

// transition writes the new status with a compare-and-set on the current one.
// When another moderator wins the race the decision is re-checked against
// what they stored.
func (s *ModerationService) transition(ctx context.Context, reviewID string, to domain.Status) (*domain.Review, error) {
	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("get review for moderation: %w", err)
	}

	// Repeating the current status still goes through the compare-and-set
	// so updated_at records the latest decision.
	if _, err := domain.CheckTransition(review.Status, to); err != nil {
		return nil, err
	}

	now := s.now()
	applied, err := s.reviews.UpdateStatus(ctx, reviewID, review.Status, to, now)
	if err != nil {
		return nil, fmt.Errorf("update review status: %w", err)
	}
	if applied {
		review.Status = to
		review.UpdatedAt = now
		return review, nil
	}

	current, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("reload review after concurrent moderation: %w", err)
	}
	noop, err := domain.CheckTransition(current.Status, to)
	if err != nil {
		return nil, err
	}
	if !noop {
		return nil, apperrors.Conflict("review was modified concurrently")
	}
	return current, nil
}
