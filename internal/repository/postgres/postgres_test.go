package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var clinicCols = []string{
	"id", "slug", "name", "city", "country", "description", "website", "phone",
	"avg_rating", "review_count", "ratings_updated_at", "created_at", "updated_at",
}

var reviewCols = []string{
	"id", "clinic_id", "user_id", "title", "body", "visit_date", "country_of_patient",
	"rating_overall", "rating_hygiene", "rating_communication", "rating_transparency",
	"rating_treatment_quality", "rating_staff_attitude",
	"status", "is_flagged", "reply_message", "replied_at", "created_at", "updated_at",
}

func sampleClinic() *domain.Clinic {
	return &domain.Clinic{
		ID: "istanbul-smile", Slug: "istanbul-smile", Name: "Istanbul Smile",
		City: "Istanbul", Country: "Turkey", CreatedAt: now, UpdatedAt: now,
	}
}

func reviewRow(rows *pgxmock.Rows, id, status string, overall float64, created time.Time) *pgxmock.Rows {
	return rows.AddRow(
		id, "istanbul-smile", "user-1", "Great care", "The whole team was friendly and the result is perfect.",
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "Germany",
		overall, 5.0, 4.0, 4.0, 5.0, 5.0,
		status, false, nil, nil, created, created,
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Clinics
// ─────────────────────────────────────────────────────────────────────────────

func TestClinicRepository_Create_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewClinicRepository(mock)
	c := sampleClinic()

	mock.ExpectExec("INSERT INTO clinics").
		WithArgs(c.ID, c.Slug, c.Name, c.City, c.Country, "", "", "", 0.0, 0, pgxmock.AnyArg(), now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClinicRepository_Create_DuplicateSlug(t *testing.T) {
	mock := newMock(t)
	repo := NewClinicRepository(mock)

	mock.ExpectExec("INSERT INTO clinics").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New(`duplicate key value violates unique constraint "clinics_pkey" (SQLSTATE 23505)`))

	err := repo.Create(context.Background(), sampleClinic())
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestClinicRepository_GetByID(t *testing.T) {
	mock := newMock(t)
	repo := NewClinicRepository(mock)
	recomputed := now.Add(-time.Hour)

	mock.ExpectQuery("SELECT .+ FROM clinics WHERE id = \\$1").
		WithArgs("istanbul-smile").
		WillReturnRows(pgxmock.NewRows(clinicCols).AddRow(
			"istanbul-smile", "istanbul-smile", "Istanbul Smile", "Istanbul", "Turkey", "", "", "",
			4.5, 2, &recomputed, now, now,
		))

	c, err := repo.GetByID(context.Background(), "istanbul-smile")
	require.NoError(t, err)
	assert.Equal(t, 4.5, c.AvgRating)
	assert.Equal(t, 2, c.ReviewCount)
	require.NotNil(t, c.RatingsUpdatedAt)
	assert.Equal(t, recomputed, *c.RatingsUpdatedAt)
}

func TestClinicRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewClinicRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM clinics").
		WithArgs("nowhere").
		WillReturnRows(pgxmock.NewRows(clinicCols))

	_, err := repo.GetByID(context.Background(), "nowhere")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestClinicRepository_List_OrderedByName(t *testing.T) {
	mock := newMock(t)
	repo := NewClinicRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM clinics ORDER BY name").
		WillReturnRows(pgxmock.NewRows(clinicCols).
			AddRow("antalya-dent", "antalya-dent", "Antalya Dent", "Antalya", "Turkey", "", "", "", 0.0, 0, nil, now, now).
			AddRow("budapest-care", "budapest-care", "Budapest Care", "Budapest", "Hungary", "", "", "", 4.0, 1, nil, now, now))

	clinics, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, clinics, 2)
	assert.Equal(t, "antalya-dent", clinics[0].ID)
	assert.Nil(t, clinics[0].RatingsUpdatedAt)
}

func TestClinicRepository_List_Empty(t *testing.T) {
	mock := newMock(t)
	repo := NewClinicRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM clinics").WillReturnRows(pgxmock.NewRows(clinicCols))

	clinics, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, clinics)
	assert.Empty(t, clinics)
}

func TestClinicRepository_Update_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewClinicRepository(mock)
	c := sampleClinic()

	mock.ExpectExec("UPDATE clinics").
		WithArgs(c.ID, c.Name, c.City, c.Country, "", "", "", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.Update(context.Background(), c), apperrors.ErrNotFound)
}

func TestClinicRepository_SetStats(t *testing.T) {
	mock := newMock(t)
	repo := NewClinicRepository(mock)

	mock.ExpectExec("UPDATE clinics").
		WithArgs("istanbul-smile", 4.2, 5, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.SetStats(context.Background(), "istanbul-smile", domain.RatingStats{AvgRating: 4.2, ReviewCount: 5}, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClinicRepository_Delete(t *testing.T) {
	mock := newMock(t)
	repo := NewClinicRepository(mock)

	mock.ExpectExec("DELETE FROM clinics").WithArgs("istanbul-smile").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM clinics").WithArgs("istanbul-smile").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), "istanbul-smile"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "istanbul-smile"), apperrors.ErrNotFound)
}

// ─────────────────────────────────────────────────────────────────────────────
// Reviews
// ─────────────────────────────────────────────────────────────────────────────

func TestReviewRepository_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)
	rv := &domain.Review{
		ID: "r-1", ClinicID: "istanbul-smile", UserID: "user-1", Title: "Great", Text: "long enough text",
		VisitDate: "2025-03-01", CountryOfPatient: "Germany",
		Ratings: domain.Ratings{Overall: 5, Hygiene: 5, Communication: 4, Transparency: 4, TreatmentQuality: 5, StaffAttitude: 5},
		Status:  domain.StatusPending, CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO reviews").
		WithArgs("r-1", "istanbul-smile", "user-1", "Great", "long enough text", "2025-03-01", "Germany",
			5.0, 5.0, 4.0, 4.0, 5.0, 5.0, "pending", false, pgxmock.AnyArg(), pgxmock.AnyArg(), now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), rv))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_GetByID_WithReply(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)
	msg := "Thank you for visiting us."
	replied := now.Add(time.Hour)

	mock.ExpectQuery("SELECT .+ FROM reviews WHERE id = \\$1").
		WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows(reviewCols).AddRow(
			"r-1", "istanbul-smile", "user-1", "Great care", "text",
			time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "Germany",
			5.0, 5.0, 4.0, 4.0, 5.0, 5.0,
			"approved", true, &msg, &replied, now, now,
		))

	rv, err := repo.GetByID(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", rv.VisitDate)
	assert.Equal(t, domain.StatusApproved, rv.Status)
	assert.True(t, rv.IsFlagged)
	require.NotNil(t, rv.Reply)
	assert.Equal(t, msg, rv.Reply.Message)
}

func TestReviewRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM reviews").WithArgs("missing").WillReturnRows(pgxmock.NewRows(reviewCols))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReviewRepository_ListApprovedByClinic(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	rows := pgxmock.NewRows(reviewCols)
	reviewRow(rows, "r-2", "approved", 4, now)
	reviewRow(rows, "r-1", "approved", 5, now.Add(-time.Hour))
	mock.ExpectQuery("WHERE clinic_id = \\$1 AND status = 'approved'\\s+ORDER BY created_at DESC").
		WithArgs("istanbul-smile").
		WillReturnRows(rows)

	reviews, err := repo.ListApprovedByClinic(context.Background(), "istanbul-smile")
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "r-2", reviews[0].ID)
	assert.Nil(t, reviews[0].Reply)
}

func TestReviewRepository_ListPending_Empty(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectQuery("WHERE status = 'pending'\\s+ORDER BY created_at ASC").WillReturnRows(pgxmock.NewRows(reviewCols))

	reviews, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, reviews)
	assert.Empty(t, reviews)
}

func TestReviewRepository_UpdateStatus_Applied(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectExec("UPDATE reviews SET status").
		WithArgs("r-1", "pending", "approved", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.UpdateStatus(context.Background(), "r-1", domain.StatusPending, domain.StatusApproved, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReviewRepository_UpdateStatus_LostRace(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectExec("UPDATE reviews SET status").
		WithArgs("r-1", "pending", "approved", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	rows := pgxmock.NewRows(reviewCols)
	reviewRow(rows, "r-1", "rejected", 2, now)
	mock.ExpectQuery("SELECT .+ FROM reviews WHERE id").WithArgs("r-1").WillReturnRows(rows)

	ok, err := repo.UpdateStatus(context.Background(), "r-1", domain.StatusPending, domain.StatusApproved, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReviewRepository_UpdateStatus_Missing(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectExec("UPDATE reviews SET status").WithArgs("r-x", "pending", "rejected", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT .+ FROM reviews WHERE id").WithArgs("r-x").WillReturnRows(pgxmock.NewRows(reviewCols))

	_, err := repo.UpdateStatus(context.Background(), "r-x", domain.StatusPending, domain.StatusRejected, now)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReviewRepository_SetReplyAndFlag(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectExec("UPDATE reviews SET reply_message").
		WithArgs("r-1", "Thanks!", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE reviews SET is_flagged").
		WithArgs("r-2", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.SetReply(context.Background(), "r-1", domain.Reply{Message: "Thanks!", RepliedAt: now}))
	assert.ErrorIs(t, repo.SetFlagged(context.Background(), "r-2", now), apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregates
// ─────────────────────────────────────────────────────────────────────────────

func TestAggregateRepository_Recompute_LocksThenWrites(t *testing.T) {
	mock := newMock(t)
	repo := NewAggregateRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM clinics WHERE id = \\$1 FOR UPDATE").
		WithArgs("istanbul-smile").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("istanbul-smile"))
	mock.ExpectQuery("SELECT COALESCE\\(AVG\\(rating_overall\\), 0\\), COUNT\\(\\*\\)").
		WithArgs("istanbul-smile").
		WillReturnRows(pgxmock.NewRows([]string{"avg", "count"}).AddRow(13.0/3.0, 3))
	mock.ExpectExec("UPDATE clinics").
		WithArgs("istanbul-smile", 13.0/3.0, 3, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	stats, err := repo.Recompute(context.Background(), "istanbul-smile", now)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ReviewCount)
	assert.InDelta(t, 4.333, stats.AvgRating, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateRepository_Recompute_EmptyClinic(t *testing.T) {
	mock := newMock(t)
	repo := NewAggregateRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("izmir-dental").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("izmir-dental"))
	mock.ExpectQuery("COALESCE").WithArgs("izmir-dental").
		WillReturnRows(pgxmock.NewRows([]string{"avg", "count"}).AddRow(0.0, 0))
	mock.ExpectExec("UPDATE clinics").WithArgs("izmir-dental", 0.0, 0, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	stats, err := repo.Recompute(context.Background(), "izmir-dental", now)
	require.NoError(t, err)
	assert.Equal(t, domain.RatingStats{}, stats)
}

func TestAggregateRepository_Recompute_UnknownClinic(t *testing.T) {
	mock := newMock(t)
	repo := NewAggregateRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("ghost").WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.Recompute(context.Background(), "ghost", now)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateRepository_Recompute_WriteFailsRollsBack(t *testing.T) {
	mock := newMock(t)
	repo := NewAggregateRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("istanbul-smile").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("istanbul-smile"))
	mock.ExpectQuery("COALESCE").WithArgs("istanbul-smile").
		WillReturnRows(pgxmock.NewRows([]string{"avg", "count"}).AddRow(4.0, 1))
	mock.ExpectExec("UPDATE clinics").WithArgs("istanbul-smile", 4.0, 1, now).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.Recompute(context.Background(), "istanbul-smile", now)
	assert.ErrorContains(t, err, "store clinic rating")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateRepository_Compute_ReadOnly(t *testing.T) {
	mock := newMock(t)
	repo := NewAggregateRepository(mock)

	mock.ExpectQuery("COALESCE").WithArgs("istanbul-smile").
		WillReturnRows(pgxmock.NewRows([]string{"avg", "count"}).AddRow(4.5, 2))

	stats, err := repo.Compute(context.Background(), "istanbul-smile")
	require.NoError(t, err)
	assert.Equal(t, domain.RatingStats{AvgRating: 4.5, ReviewCount: 2}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
