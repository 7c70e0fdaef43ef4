package repository

import (
	"context"
	"time"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
)

// ClinicRepository persists clinics.
type ClinicRepository interface {
	// Create inserts a clinic. A taken id returns apperrors.ErrAlreadyExists.
	Create(ctx context.Context, clinic *domain.Clinic) error

	// GetByID returns apperrors.ErrNotFound when missing.
	GetByID(ctx context.Context, id string) (*domain.Clinic, error)

	// List returns every clinic ordered by name.
	List(ctx context.Context) ([]domain.Clinic, error)

	// Update writes the descriptive fields and updated_at. Aggregate fields
	// are left alone.
	Update(ctx context.Context, clinic *domain.Clinic) error

	// SetStats overwrites the aggregate fields.
	SetStats(ctx context.Context, id string, stats domain.RatingStats, at time.Time) error

	// Delete removes the clinic only; its reviews stay.
	Delete(ctx context.Context, id string) error
}

// ReviewRepository persists reviews.
type ReviewRepository interface {
	Create(ctx context.Context, review *domain.Review) error

	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// ListApprovedByClinic returns approved reviews, newest first. The slice
	// is empty, never nil, when there are none.
	ListApprovedByClinic(ctx context.Context, clinicID string) ([]domain.Review, error)

	// ListPending returns pending reviews, oldest first.
	ListPending(ctx context.Context) ([]domain.Review, error)

	// UpdateStatus moves a review from one status to another. It reports
	// false without error when the review exists but is no longer in from.
	UpdateStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error)

	SetReply(ctx context.Context, id string, reply domain.Reply) error

	SetFlagged(ctx context.Context, id string, at time.Time) error
}

// AggregateRepository derives clinic statistics from approved reviews.
type AggregateRepository interface {
	// Recompute derives the stats of one clinic and stores them on it in a
	// single serialized step. Unknown clinics return apperrors.ErrNotFound.
	Recompute(ctx context.Context, clinicID string, at time.Time) (domain.RatingStats, error)

	// Compute derives the stats without writing them.
	Compute(ctx context.Context, clinicID string) (domain.RatingStats, error)
}
