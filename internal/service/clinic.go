package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mabgcm/turkiyedental2-sub001/internal/auth"
	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	"github.com/mabgcm/turkiyedental2-sub001/internal/event"
	"github.com/mabgcm/turkiyedental2-sub001/internal/repository"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/slug"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/validator"
)

// CreateClinicInput holds the parameters for registering a clinic.
type CreateClinicInput struct {
	Name        string `json:"name" validate:"required,notblank,max=200"`
	Slug        string `json:"slug,omitempty" validate:"omitempty,max=200"`
	City        string `json:"city" validate:"required,notblank,max=100"`
	Country     string `json:"country" validate:"required,notblank,max=100"`
	Description string `json:"description,omitempty" validate:"max=5000"`
	Website     string `json:"website,omitempty" validate:"omitempty,url"`
	Phone       string `json:"phone,omitempty" validate:"max=50"`
}

// UpdateClinicInput holds a partial clinic update. Nil fields are left
// unchanged. AvgRating and ReviewCount are an administrative override of the
// computed aggregate.
type UpdateClinicInput struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,notblank,max=200"`
	City        *string  `json:"city,omitempty" validate:"omitempty,notblank,max=100"`
	Country     *string  `json:"country,omitempty" validate:"omitempty,notblank,max=100"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=5000"`
	Website     *string  `json:"website,omitempty" validate:"omitempty,url"`
	Phone       *string  `json:"phone,omitempty" validate:"omitempty,max=50"`
	AvgRating   *float64 `json:"avg_rating,omitempty"`
	ReviewCount *int     `json:"review_count,omitempty"`
}

// ClinicService implements the clinic registry.
type ClinicService struct {
	repo     repository.ClinicRepository
	authz    *auth.Authorizer
	cache    ViewCache
	producer *event.Producer
	logger   *slog.Logger
	now      func() time.Time
}

// NewClinicService creates a new clinic service.
func NewClinicService(
	repo repository.ClinicRepository,
	authz *auth.Authorizer,
	cache ViewCache,
	producer *event.Producer,
	logger *slog.Logger,
) *ClinicService {
	if cache == nil {
		cache = noViewCache{}
	}
	return &ClinicService{
		repo:     repo,
		authz:    authz,
		cache:    cache,
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a clinic with no rating. The slug defaults to the
// slugified name and doubles as the id.
func (s *ClinicService) Create(ctx context.Context, input *CreateClinicInput) (*domain.Clinic, error) {
	if _, err := s.authz.RequireAdmin(ctx); err != nil {
		return nil, err
	}

	ve := validator.Check(input)
	key := strings.TrimSpace(input.Slug)
	if key == "" {
		key = slug.Generate(input.Name)
	}
	if _, failed := ve.Fields()["name"]; !failed && !slug.Valid(key) {
		ve.Add("slug", "must contain only lowercase letters, digits and hyphens")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	now := s.now()
	clinic := &domain.Clinic{
		ID:          key,
		Slug:        key,
		Name:        strings.TrimSpace(input.Name),
		City:        strings.TrimSpace(input.City),
		Country:     strings.TrimSpace(input.Country),
		Description: input.Description,
		Website:     input.Website,
		Phone:       input.Phone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, clinic); err != nil {
		return nil, fmt.Errorf("create clinic: %w", err)
	}

	s.logger.InfoContext(ctx, "clinic created",
		slog.String("clinic_id", clinic.ID),
		slog.String("name", clinic.Name),
	)

	if err := s.producer.PublishClinicCreated(ctx, clinic); err != nil {
		s.logger.WarnContext(ctx, "failed to publish clinic created event",
			slog.String("clinic_id", clinic.ID),
			slog.String("error", err.Error()),
		)
	}

	return clinic, nil
}

// Get returns a clinic by id.
func (s *ClinicService) Get(ctx context.Context, id string) (*domain.Clinic, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("clinic id is required")
	}
	clinic, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get clinic: %w", err)
	}
	return clinic, nil
}

// List returns every clinic ordered by name.
func (s *ClinicService) List(ctx context.Context) ([]domain.Clinic, error) {
	clinics, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}
	return clinics, nil
}

// Update merges the provided fields into the clinic. The id and slug never
// change.
func (s *ClinicService) Update(ctx context.Context, id string, input *UpdateClinicInput) (*domain.Clinic, error) {
	if _, err := s.authz.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	clinic, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get clinic for update: %w", err)
	}

	if input.Name != nil {
		clinic.Name = strings.TrimSpace(*input.Name)
	}
	if input.City != nil {
		clinic.City = strings.TrimSpace(*input.City)
	}
	if input.Country != nil {
		clinic.Country = strings.TrimSpace(*input.Country)
	}
	if input.Description != nil {
		clinic.Description = *input.Description
	}
	if input.Website != nil {
		clinic.Website = *input.Website
	}
	if input.Phone != nil {
		clinic.Phone = *input.Phone
	}

	override := input.AvgRating != nil || input.ReviewCount != nil
	stats := clinic.Stats()
	if input.AvgRating != nil {
		stats.AvgRating = *input.AvgRating
	}
	if input.ReviewCount != nil {
		stats.ReviewCount = *input.ReviewCount
	}
	if override && !domain.ValidStats(stats) {
		ve := validator.NewValidationError()
		ve.Add("avg_rating", "must be 0 with no reviews, otherwise between 1 and 5")
		return nil, ve
	}

	now := s.now()
	clinic.UpdatedAt = now
	if err := s.repo.Update(ctx, clinic); err != nil {
		return nil, fmt.Errorf("update clinic: %w", err)
	}
	if override {
		if err := s.repo.SetStats(ctx, clinic.ID, stats, now); err != nil {
			return nil, fmt.Errorf("override clinic rating: %w", err)
		}
		clinic.ApplyStats(stats, now)
		s.logger.WarnContext(ctx, "clinic rating overridden",
			slog.String("clinic_id", clinic.ID),
			slog.Int("review_count", stats.ReviewCount),
			slog.Float64("avg_rating", stats.AvgRating),
		)
	}

	s.logger.InfoContext(ctx, "clinic updated", slog.String("clinic_id", clinic.ID))

	if err := s.producer.PublishClinicUpdated(ctx, clinic); err != nil {
		s.logger.WarnContext(ctx, "failed to publish clinic updated event",
			slog.String("clinic_id", clinic.ID),
			slog.String("error", err.Error()),
		)
	}

	return clinic, nil
}

// Delete removes a clinic. Its reviews are left in place.
func (s *ClinicService) Delete(ctx context.Context, id string) error {
	if _, err := s.authz.RequireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete clinic: %w", err)
	}

	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate clinic view",
			slog.String("clinic_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "clinic deleted", slog.String("clinic_id", id))

	if err := s.producer.PublishClinicDeleted(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to publish clinic deleted event",
			slog.String("clinic_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
