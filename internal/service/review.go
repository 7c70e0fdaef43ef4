package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mabgcm/turkiyedental2-sub001/internal/auth"
	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	"github.com/mabgcm/turkiyedental2-sub001/internal/event"
	"github.com/mabgcm/turkiyedental2-sub001/internal/repository"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/validator"
)

// DefaultMinTextLength is the shortest review text accepted, in characters
// after trimming.
const DefaultMinTextLength = 30

// SubmitReviewInput holds a patient's review. The ratings carry their own
// range tags.
type SubmitReviewInput struct {
	Title            string         `json:"title" validate:"required,notblank,max=200"`
	Text             string         `json:"text" validate:"required,notblank,max=10000"`
	VisitDate        string         `json:"visit_date" validate:"required,calendar_date"`
	CountryOfPatient string         `json:"country_of_patient" validate:"required,notblank,max=100"`
	Ratings          domain.Ratings `json:"ratings"`
}

// ReplyInput holds the clinic's answer to a review.
type ReplyInput struct {
	Message string `json:"message" validate:"required,notblank,max=5000"`
}

// ReviewService implements the review store operations.
type ReviewService struct {
	reviews       repository.ReviewRepository
	clinics       repository.ClinicRepository
	authz         *auth.Authorizer
	cache         ViewCache
	producer      *event.Producer
	logger        *slog.Logger
	minTextLength int
	now           func() time.Time
}

// NewReviewService creates a new review service.
func NewReviewService(
	reviews repository.ReviewRepository,
	clinics repository.ClinicRepository,
	authz *auth.Authorizer,
	cache ViewCache,
	producer *event.Producer,
	logger *slog.Logger,
	minTextLength int,
) *ReviewService {
	if cache == nil {
		cache = noViewCache{}
	}
	if minTextLength <= 0 {
		minTextLength = DefaultMinTextLength
	}
	return &ReviewService{
		reviews:       reviews,
		clinics:       clinics,
		authz:         authz,
		cache:         cache,
		producer:      producer,
		logger:        logger,
		minTextLength: minTextLength,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores a new pending review from the authenticated caller. Every
// failing field is reported at once.
func (s *ReviewService) Submit(ctx context.Context, clinicID string, input *SubmitReviewInput) (*domain.Review, error) {
	caller, err := s.authz.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if clinicID == "" {
		return nil, apperrors.InvalidInput("clinic_id is required")
	}

	now := s.now()
	ve := validator.Check(input)
	if n := validator.RuneCount(input.Text); n > 0 && n < s.minTextLength {
		ve.Add("text", fmt.Sprintf("must be at least %d characters", s.minTextLength))
	}
	if domain.VisitDateInFuture(input.VisitDate, now) {
		ve.Add("visit_date", "must not be in the future")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	if _, err := s.clinics.GetByID(ctx, clinicID); err != nil {
		return nil, fmt.Errorf("get clinic for review: %w", err)
	}

	review := &domain.Review{
		ID:               uuid.New().String(),
		ClinicID:         clinicID,
		UserID:           caller.UserID,
		Title:            strings.TrimSpace(input.Title),
		Text:             strings.TrimSpace(input.Text),
		VisitDate:        input.VisitDate,
		CountryOfPatient: strings.TrimSpace(input.CountryOfPatient),
		Ratings:          input.Ratings,
		Status:           domain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	reviewsSubmitted.Inc()

	s.logger.InfoContext(ctx, "review submitted",
		slog.String("review_id", review.ID),
		slog.String("clinic_id", review.ClinicID),
		slog.String("user_id", review.UserID),
	)

	if err := s.producer.PublishReviewSubmitted(ctx, review); err != nil {
		s.logger.WarnContext(ctx, "failed to publish review submitted event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}

	return review, nil
}

// ListApprovedByClinic returns the clinic's approved reviews, newest first.
func (s *ReviewService) ListApprovedByClinic(ctx context.Context, clinicID string) ([]domain.Review, error) {
	if clinicID == "" {
		return nil, apperrors.InvalidInput("clinic_id is required")
	}
	reviews, err := s.reviews.ListApprovedByClinic(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list approved reviews: %w", err)
	}
	return reviews, nil
}

// Get returns any review, whatever its status. Administrators only.
func (s *ReviewService) Get(ctx context.Context, id string) (*domain.Review, error) {
	if _, err := s.authz.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	review, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return review, nil
}

// Flag marks a review for moderator attention. Flagged reviews stay public.
func (s *ReviewService) Flag(ctx context.Context, id string) (*domain.Review, error) {
	caller, err := s.authz.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	review, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review for flag: %w", err)
	}
	if review.IsFlagged {
		return review, nil
	}

	now := s.now()
	if err := s.reviews.SetFlagged(ctx, id, now); err != nil {
		return nil, fmt.Errorf("flag review: %w", err)
	}
	review.IsFlagged = true
	review.UpdatedAt = now
	s.invalidate(ctx, review.ClinicID)

	s.logger.InfoContext(ctx, "review flagged",
		slog.String("review_id", id),
		slog.String("clinic_id", review.ClinicID),
		slog.String("flagged_by", caller.UserID),
	)
	return review, nil
}

// Reply attaches the clinic's answer, replacing any earlier one. It does not
// touch the clinic rating.
func (s *ReviewService) Reply(ctx context.Context, id string, input *ReplyInput) (*domain.Review, error) {
	admin, err := s.authz.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	review, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review for reply: %w", err)
	}

	reply := domain.Reply{Message: strings.TrimSpace(input.Message), RepliedAt: s.now()}
	if err := s.reviews.SetReply(ctx, id, reply); err != nil {
		return nil, fmt.Errorf("reply to review: %w", err)
	}
	review.Reply = &reply
	review.UpdatedAt = reply.RepliedAt
	s.invalidate(ctx, review.ClinicID)

	s.logger.InfoContext(ctx, "review replied",
		slog.String("review_id", id),
		slog.String("clinic_id", review.ClinicID),
		slog.String("admin_id", admin.UserID),
	)

	if err := s.producer.PublishReviewReplied(ctx, review); err != nil {
		s.logger.WarnContext(ctx, "failed to publish review replied event",
			slog.String("review_id", id),
			slog.String("error", err.Error()),
		)
	}
	return review, nil
}

func (s *ReviewService) invalidate(ctx context.Context, clinicID string) {
	if err := s.cache.Invalidate(ctx, clinicID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate clinic view",
			slog.String("clinic_id", clinicID),
			slog.String("error", err.Error()),
		)
	}
}
