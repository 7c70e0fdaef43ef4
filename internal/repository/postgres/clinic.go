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

const clinicColumns = `id, slug, name, city, country, description, website, phone,
	avg_rating, review_count, ratings_updated_at, created_at, updated_at`

// ClinicRepository implements repository.ClinicRepository on PostgreSQL.
type ClinicRepository struct {
	pool database.DBTX
}

// NewClinicRepository creates a PostgreSQL-backed clinic repository.
func NewClinicRepository(pool database.DBTX) *ClinicRepository {
	return &ClinicRepository{pool: pool}
}

// Create inserts a new clinic.
func (r *ClinicRepository) Create(ctx context.Context, c *domain.Clinic) (err error) {
	query := `
		INSERT INTO clinics (` + clinicColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "CreateClinic", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		c.ID, c.Slug, c.Name, c.City, c.Country, c.Description, c.Website, c.Phone,
		c.AvgRating, c.ReviewCount, c.RatingsUpdatedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("clinic", "slug", c.Slug)
		}
		return fmt.Errorf("insert clinic: %w", err)
	}
	return nil
}

// GetByID returns a clinic by id.
func (r *ClinicRepository) GetByID(ctx context.Context, id string) (c *domain.Clinic, err error) {
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "GetClinic", query)
	defer func() { end(err) }()

	c, err = scanClinic(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("clinic", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get clinic by id: %w", err)
	}
	return c, nil
}

// List returns all clinics ordered by name.
func (r *ClinicRepository) List(ctx context.Context) (_ []domain.Clinic, err error) {
	query := `SELECT ` + clinicColumns + ` FROM clinics ORDER BY name, id`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "ListClinics", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}
	defer rows.Close()

	clinics := []domain.Clinic{}
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clinic row: %w", err)
		}
		clinics = append(clinics, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clinic rows: %w", err)
	}
	return clinics, nil
}

// Update writes the descriptive fields of a clinic.
func (r *ClinicRepository) Update(ctx context.Context, c *domain.Clinic) (err error) {
	query := `
		UPDATE clinics
		SET name = $2, city = $3, country = $4, description = $5, website = $6, phone = $7, updated_at = $8
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "UpdateClinic", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, c.ID, c.Name, c.City, c.Country, c.Description, c.Website, c.Phone, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update clinic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("clinic", c.ID)
	}
	return nil
}

// SetStats overwrites the aggregate fields of a clinic.
func (r *ClinicRepository) SetStats(ctx context.Context, id string, s domain.RatingStats, at time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "SetClinicStats", updateStatsQuery)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, updateStatsQuery, id, s.AvgRating, s.ReviewCount, at)
	if err != nil {
		return fmt.Errorf("set clinic stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("clinic", id)
	}
	return nil
}

// Delete removes a clinic. Reviews referencing it are kept.
func (r *ClinicRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM clinics WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "DeleteClinic", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete clinic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("clinic", id)
	}
	return nil
}

func scanClinic(row pgx.Row) (*domain.Clinic, error) {
	var c domain.Clinic
	err := row.Scan(
		&c.ID, &c.Slug, &c.Name, &c.City, &c.Country, &c.Description, &c.Website, &c.Phone,
		&c.AvgRating, &c.ReviewCount, &c.RatingsUpdatedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
