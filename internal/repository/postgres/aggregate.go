package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/database"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
)

const (
	lockClinicQuery = `SELECT id FROM clinics WHERE id = $1 FOR UPDATE`

	approvedStatsQuery = `
		SELECT COALESCE(AVG(rating_overall), 0), COUNT(*)
		FROM reviews
		WHERE clinic_id = $1 AND status = 'approved'`

	updateStatsQuery = `
		UPDATE clinics
		SET avg_rating = $2, review_count = $3, ratings_updated_at = $4, updated_at = $4
		WHERE id = $1`
)

// AggregateRepository derives clinic ratings with SQL aggregates.
type AggregateRepository struct {
	pool database.DBTX
}

// NewAggregateRepository creates a PostgreSQL-backed aggregate repository.
func NewAggregateRepository(pool database.DBTX) *AggregateRepository {
	return &AggregateRepository{pool: pool}
}

// Recompute locks the clinic row, reads the approved-review aggregate in a
// fresh statement and stores it, all in one transaction. Two recomputes of the
// same clinic therefore run one after the other and the later one always sees
// every approval committed before it took the lock.
func (r *AggregateRepository) Recompute(ctx context.Context, clinicID string, at time.Time) (stats domain.RatingStats, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "RecomputeClinicRating", approvedStatsQuery)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.RatingStats{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var lockedID string
	if err = tx.QueryRow(ctx, lockClinicQuery, clinicID).Scan(&lockedID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingStats{}, apperrors.NotFound("clinic", clinicID)
		}
		return domain.RatingStats{}, fmt.Errorf("lock clinic: %w", err)
	}

	if err = tx.QueryRow(ctx, approvedStatsQuery, clinicID).Scan(&stats.AvgRating, &stats.ReviewCount); err != nil {
		return domain.RatingStats{}, fmt.Errorf("aggregate approved reviews: %w", err)
	}
	if stats.ReviewCount == 0 {
		stats.AvgRating = 0
	}

	if _, err = tx.Exec(ctx, updateStatsQuery, clinicID, stats.AvgRating, stats.ReviewCount, at); err != nil {
		return domain.RatingStats{}, fmt.Errorf("store clinic rating: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.RatingStats{}, fmt.Errorf("commit transaction: %w", err)
	}
	return stats, nil
}

// Compute reads the aggregate without locking or writing.
func (r *AggregateRepository) Compute(ctx context.Context, clinicID string) (stats domain.RatingStats, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "ComputeClinicRating", approvedStatsQuery)
	defer func() { end(err) }()

	if err = r.pool.QueryRow(ctx, approvedStatsQuery, clinicID).Scan(&stats.AvgRating, &stats.ReviewCount); err != nil {
		return domain.RatingStats{}, fmt.Errorf("aggregate approved reviews: %w", err)
	}
	if stats.ReviewCount == 0 {
		stats.AvgRating = 0
	}
	return stats, nil
}
