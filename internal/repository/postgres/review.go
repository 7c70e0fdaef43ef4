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

const reviewColumns = `id, clinic_id, user_id, title, body, visit_date, country_of_patient,
	rating_overall, rating_hygiene, rating_communication, rating_transparency,
	rating_treatment_quality, rating_staff_attitude,
	status, is_flagged, reply_message, replied_at, created_at, updated_at`

// ReviewRepository implements repository.ReviewRepository on PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Create inserts a review.
func (r *ReviewRepository) Create(ctx context.Context, rv *domain.Review) (err error) {
	query := `
		INSERT INTO reviews (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "CreateReview", query)
	defer func() { end(err) }()

	var replyMsg *string
	var repliedAt *time.Time
	if rv.Reply != nil {
		replyMsg, repliedAt = &rv.Reply.Message, &rv.Reply.RepliedAt
	}

	_, err = r.pool.Exec(ctx, query,
		rv.ID, rv.ClinicID, rv.UserID, rv.Title, rv.Text, rv.VisitDate, rv.CountryOfPatient,
		rv.Ratings.Overall, rv.Ratings.Hygiene, rv.Ratings.Communication, rv.Ratings.Transparency,
		rv.Ratings.TreatmentQuality, rv.Ratings.StaffAttitude,
		string(rv.Status), rv.IsFlagged, replyMsg, repliedAt, rv.CreatedAt, rv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// GetByID returns a review by id.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (rv *domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "GetReview", query)
	defer func() { end(err) }()

	rv, err = scanReview(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("review", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review by id: %w", err)
	}
	return rv, nil
}

// ListApprovedByClinic returns a clinic's approved reviews, newest first.
func (r *ReviewRepository) ListApprovedByClinic(ctx context.Context, clinicID string) ([]domain.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE clinic_id = $1 AND status = 'approved'
		ORDER BY created_at DESC, id`
	return r.list(ctx, "ListApprovedReviews", query, clinicID)
}

// ListPending returns the moderation queue, oldest first.
func (r *ReviewRepository) ListPending(ctx context.Context) ([]domain.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE status = 'pending'
		ORDER BY created_at ASC, id`
	return r.list(ctx, "ListPendingReviews", query)
}

func (r *ReviewRepository) list(ctx context.Context, op, query string, args ...any) (_ []domain.Review, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, op, query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, nil
}

// UpdateStatus performs a compare-and-set on the status column.
func (r *ReviewRepository) UpdateStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) (_ bool, err error) {
	query := `UPDATE reviews SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "UpdateReviewStatus", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, id, string(from), string(to), at)
	if err != nil {
		return false, fmt.Errorf("update review status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err = r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// SetReply attaches or replaces the clinic reply.
func (r *ReviewRepository) SetReply(ctx context.Context, id string, reply domain.Reply) (err error) {
	query := `UPDATE reviews SET reply_message = $2, replied_at = $3, updated_at = $3 WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "SetReviewReply", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, id, reply.Message, reply.RepliedAt)
	if err != nil {
		return fmt.Errorf("set review reply: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

// SetFlagged marks a review for moderator attention.
func (r *ReviewRepository) SetFlagged(ctx context.Context, id string, at time.Time) (err error) {
	query := `UPDATE reviews SET is_flagged = TRUE, updated_at = $2 WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "FlagReview", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("flag review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

func scanReview(row pgx.Row) (*domain.Review, error) {
	var (
		rv        domain.Review
		visitDate time.Time
		status    string
		replyMsg  *string
		repliedAt *time.Time
	)
	err := row.Scan(
		&rv.ID, &rv.ClinicID, &rv.UserID, &rv.Title, &rv.Text, &visitDate, &rv.CountryOfPatient,
		&rv.Ratings.Overall, &rv.Ratings.Hygiene, &rv.Ratings.Communication, &rv.Ratings.Transparency,
		&rv.Ratings.TreatmentQuality, &rv.Ratings.StaffAttitude,
		&status, &rv.IsFlagged, &replyMsg, &repliedAt, &rv.CreatedAt, &rv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rv.VisitDate = visitDate.Format(domain.DateLayout)
	rv.Status = domain.Status(status)
	if replyMsg != nil && repliedAt != nil {
		rv.Reply = &domain.Reply{Message: *replyMsg, RepliedAt: *repliedAt}
	}
	return &rv, nil
}
