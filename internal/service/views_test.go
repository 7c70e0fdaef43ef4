package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
)

type viewsFixture struct {
	svc        *ViewService
	clinics    *mockClinicRepository
	reviews    *mockReviewRepository
	aggregates *mockAggregateRepository
	cache      *fakeViewCache
}

func newViewsFixture() *viewsFixture {
	f := &viewsFixture{
		clinics:    &mockClinicRepository{},
		reviews:    &mockReviewRepository{},
		aggregates: &mockAggregateRepository{},
		cache:      newFakeViewCache(),
	}
	f.svc = NewViewService(f.clinics, f.reviews, f.aggregates, testAuthorizer(), f.cache, newTestLogger())
	return f
}

func approvedWith(id string, overall, hygiene float64) domain.Review {
	r := domain.Review{ID: id, ClinicID: "smile", Status: domain.StatusApproved, Ratings: goodRatings()}
	r.Ratings.Overall, r.Ratings.Hygiene = overall, hygiene
	return r
}

func TestViewService_Directory_StoredRatings(t *testing.T) {
	f := newViewsFixture()
	f.clinics.On("List", mock.Anything).Return([]domain.Clinic{
		{ID: "a", Name: "A", AvgRating: 4.666666, ReviewCount: 3},
		{ID: "b", Name: "B"},
	}, nil)

	got, err := f.svc.Directory(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 4.7, got[0].DisplayRating)
	assert.Equal(t, 4.666666, got[0].AvgRating, "stored precision is kept")
	assert.Equal(t, 0.0, got[1].DisplayRating)
	f.aggregates.AssertNotCalled(t, "Compute", mock.Anything, mock.Anything)
}

func TestViewService_Directory_Fresh(t *testing.T) {
	f := newViewsFixture()
	f.clinics.On("List", mock.Anything).Return([]domain.Clinic{{ID: "a", Name: "A", AvgRating: 1, ReviewCount: 9}}, nil)
	f.aggregates.On("Compute", mock.Anything, "a").Return(domain.RatingStats{AvgRating: 4.25, ReviewCount: 4}, nil)

	got, err := f.svc.Directory(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 4, got[0].ReviewCount)
	assert.Equal(t, 4.3, got[0].DisplayRating)
	f.aggregates.AssertNotCalled(t, "Recompute", mock.Anything, mock.Anything, mock.Anything)
	f.clinics.AssertNotCalled(t, "SetStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestViewService_Directory_Empty(t *testing.T) {
	f := newViewsFixture()
	f.clinics.On("List", mock.Anything).Return([]domain.Clinic{}, nil)

	got, err := f.svc.Directory(context.Background(), false)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestViewService_ClinicReviews_CachesView(t *testing.T) {
	f := newViewsFixture()
	f.reviews.On("ListApprovedByClinic", mock.Anything, "smile").Return([]domain.Review{
		approvedWith("r2", 5, 4), approvedWith("r1", 4, 4),
	}, nil).Once()

	first, err := f.svc.ClinicReviews(context.Background(), "smile")
	require.NoError(t, err)
	assert.Len(t, first.Reviews, 2)
	assert.Equal(t, 4.5, first.Categories.Overall)
	assert.Equal(t, 2, first.Categories.ReviewCount)

	second, err := f.svc.ClinicReviews(context.Background(), "smile")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	f.reviews.AssertNumberOfCalls(t, "ListApprovedByClinic", 1)
}

func TestViewService_ClinicReviews_NoReviews(t *testing.T) {
	f := newViewsFixture()
	f.reviews.On("ListApprovedByClinic", mock.Anything, "smile").Return(nil, nil)

	got, err := f.svc.ClinicReviews(context.Background(), "smile")
	require.NoError(t, err)
	assert.NotNil(t, got.Reviews)
	assert.Equal(t, domain.CategoryAverages{}, got.Categories)
}

func TestViewService_ClinicDetail(t *testing.T) {
	f := newViewsFixture()
	f.clinics.On("GetByID", mock.Anything, "smile").Return(&domain.Clinic{ID: "smile", AvgRating: 4.25, ReviewCount: 4}, nil)
	f.reviews.On("ListApprovedByClinic", mock.Anything, "smile").Return([]domain.Review{approvedWith("r1", 4, 4)}, nil)

	got, err := f.svc.ClinicDetail(context.Background(), "smile")
	require.NoError(t, err)
	assert.Equal(t, 4.3, got.DisplayRating)
	assert.Len(t, got.Reviews, 1)
}

func TestViewService_ClinicDetail_NotFound(t *testing.T) {
	f := newViewsFixture()
	f.clinics.On("GetByID", mock.Anything, "ghost").Return(nil, apperrors.NotFound("clinic", "ghost"))

	_, err := f.svc.ClinicDetail(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestViewService_ModerationQueue(t *testing.T) {
	f := newViewsFixture()
	flagged := domain.Review{ID: "r1", Status: domain.StatusPending, IsFlagged: true, Ratings: goodRatings()}
	f.reviews.On("ListPending", mock.Anything).Return([]domain.Review{flagged}, nil)

	got, err := f.svc.ModerationQueue(adminCtx())
	require.NoError(t, err)
	assert.True(t, got.Authorized)
	require.Len(t, got.Reviews, 1)
	assert.True(t, got.Reviews[0].IsFlagged)
	assert.Equal(t, goodRatings(), got.Reviews[0].Ratings)
}

func TestViewService_ModerationQueue_NotAdmin(t *testing.T) {
	f := newViewsFixture()

	got, err := f.svc.ModerationQueue(patientCtx())
	require.NoError(t, err)
	assert.False(t, got.Authorized)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"authorized":false,"reviews":null}`, string(raw))
	f.reviews.AssertNotCalled(t, "ListPending", mock.Anything)
}

func TestViewService_ModerationQueue_Anonymous(t *testing.T) {
	f := newViewsFixture()

	_, err := f.svc.ModerationQueue(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestViewService_ModerationQueue_EmptyIsNotNull(t *testing.T) {
	f := newViewsFixture()
	f.reviews.On("ListPending", mock.Anything).Return(nil, nil)

	got, err := f.svc.ModerationQueue(adminCtx())
	require.NoError(t, err)
	raw, _ := json.Marshal(got)
	assert.JSONEq(t, `{"authorized":true,"reviews":[]}`, string(raw))
}

func TestViewService_ModerationQueue_StoreError(t *testing.T) {
	f := newViewsFixture()
	f.reviews.On("ListPending", mock.Anything).Return(nil, errors.New("down"))

	_, err := f.svc.ModerationQueue(adminCtx())
	assert.Error(t, err)
}

func TestReviewLifecycle_CacheInvalidatedOnApproval(t *testing.T) {
	ts := newTestServices(t)
	ts.seedClinic("c1", "Clinic One")
	ts.seedReview("r1", "c1", 4, domain.StatusPending, fixedNow)

	before, err := ts.views.ClinicReviews(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, before.Reviews)

	_, err = ts.moderation.Approve(adminCtx(), "r1")
	require.NoError(t, err)

	after, err := ts.views.ClinicReviews(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, after.Reviews, 1, "stale view was dropped by the recompute")
}

// approvingReviewStore approves a review right after the first listing,
// as a moderator acting while a reader builds the view would.
type approvingReviewStore struct {
	reviewStore
	approve func()
	done    bool
}

func (s *approvingReviewStore) ListApprovedByClinic(ctx context.Context, clinicID string) ([]domain.Review, error) {
	out, err := s.reviewStore.ListApprovedByClinic(ctx, clinicID)
	if !s.done {
		s.done = true
		s.approve()
	}
	return out, err
}

func TestReviewLifecycle_ApprovalDuringViewLoadIsNotCachedStale(t *testing.T) {
	ts := newTestServices(t)
	ts.seedClinic("c1", "Clinic One")
	ts.seedReview("r1", "c1", 4, domain.StatusPending, fixedNow)

	store := &approvingReviewStore{reviewStore: reviewStore{ts.store}}
	store.approve = func() {
		_, err := ts.moderation.Approve(adminCtx(), "r1")
		require.NoError(t, err)
	}
	views := NewViewService(ts.store, store, ts.store, testAuthorizer(), ts.cache, newTestLogger())

	during, err := views.ClinicReviews(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, during.Reviews)
	_, cached, _ := ts.cache.Get(context.Background(), "c1")
	assert.False(t, cached)

	after, err := views.ClinicReviews(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, after.Reviews, 1)
	assert.Equal(t, "r1", after.Reviews[0].ID)
}
