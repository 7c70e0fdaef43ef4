package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/mabgcm/turkiyedental2-sub001/internal/auth"
	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	"github.com/mabgcm/turkiyedental2-sub001/internal/event"
	"github.com/mabgcm/turkiyedental2-sub001/internal/lock"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
	pkgkafka "github.com/mabgcm/turkiyedental2-sub001/pkg/kafka"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/middleware"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

const (
	adminID   = "admin-1"
	patientID = "patient-1"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func adminCtx() context.Context {
	return middleware.WithIdentity(context.Background(), middleware.Identity{UserID: adminID, Email: "admin@dentaltrip.example"})
}

func patientCtx() context.Context {
	return middleware.WithIdentity(context.Background(), middleware.Identity{UserID: patientID})
}

func testAuthorizer() *auth.Authorizer {
	return auth.NewAuthorizer([]string{adminID})
}

func goodRatings() domain.Ratings {
	return domain.Ratings{Overall: 5, Hygiene: 5, Communication: 4, Transparency: 4, TreatmentQuality: 5, StaffAttitude: 5}
}

// --- Recording publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func (p *recordingPublisher) last(topic string) *pkgkafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.topics) - 1; i >= 0; i-- {
		if p.topics[i] == topic {
			return p.events[i]
		}
	}
	return nil
}

func newTestProducer(pub pkgkafka.Publisher) *event.Producer {
	return event.NewProducer(pub, newTestLogger())
}

// --- Mock repositories ---

type mockClinicRepository struct {
	mock.Mock
}

func (m *mockClinicRepository) Create(ctx context.Context, c *domain.Clinic) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockClinicRepository) GetByID(ctx context.Context, id string) (*domain.Clinic, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Clinic), args.Error(1)
}

func (m *mockClinicRepository) List(ctx context.Context) ([]domain.Clinic, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Clinic), args.Error(1)
}

func (m *mockClinicRepository) Update(ctx context.Context, c *domain.Clinic) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockClinicRepository) SetStats(ctx context.Context, id string, s domain.RatingStats, at time.Time) error {
	return m.Called(ctx, id, s, at).Error(0)
}

func (m *mockClinicRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) Create(ctx context.Context, r *domain.Review) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewRepository) ListApprovedByClinic(ctx context.Context, clinicID string) ([]domain.Review, error) {
	args := m.Called(ctx, clinicID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Review), args.Error(1)
}

func (m *mockReviewRepository) ListPending(ctx context.Context) ([]domain.Review, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Review), args.Error(1)
}

func (m *mockReviewRepository) UpdateStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockReviewRepository) SetReply(ctx context.Context, id string, reply domain.Reply) error {
	return m.Called(ctx, id, reply).Error(0)
}

func (m *mockReviewRepository) SetFlagged(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

type mockAggregateRepository struct {
	mock.Mock
}

func (m *mockAggregateRepository) Recompute(ctx context.Context, clinicID string, at time.Time) (domain.RatingStats, error) {
	args := m.Called(ctx, clinicID, at)
	return args.Get(0).(domain.RatingStats), args.Error(1)
}

func (m *mockAggregateRepository) Compute(ctx context.Context, clinicID string) (domain.RatingStats, error) {
	args := m.Called(ctx, clinicID)
	return args.Get(0).(domain.RatingStats), args.Error(1)
}

// --- Fake view cache ---

type fakeViewCache struct {
	mu          sync.Mutex
	views       map[string]domain.ClinicReviewsView
	generations map[string]int64
	invalidated []string
}

func newFakeViewCache() *fakeViewCache {
	return &fakeViewCache{
		views:       make(map[string]domain.ClinicReviewsView),
		generations: make(map[string]int64),
	}
}

func (c *fakeViewCache) Get(_ context.Context, id string) (*domain.ClinicReviewsView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[id]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *fakeViewCache) Generation(_ context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[id], nil
}

func (c *fakeViewCache) Set(_ context.Context, v *domain.ClinicReviewsView, generation int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[v.ClinicID] != generation {
		return false, nil
	}
	c.views[v.ClinicID] = *v
	return true, nil
}

func (c *fakeViewCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, id)
	c.generations[id]++
	c.invalidated = append(c.invalidated, id)
	return nil
}

// --- In-memory store ---

// memStore implements all three repositories in memory. Its Recompute reads
// and writes in separate critical sections, like the Mongo store, so only the
// service's Locker keeps concurrent recomputes from losing updates.
type memStore struct {
	mu      sync.Mutex
	clinics map[string]domain.Clinic
	reviews map[string]domain.Review
	// readDelay widens the gap between reading reviews and writing stats.
	readDelay time.Duration
}

func newMemStore() *memStore {
	return &memStore{clinics: make(map[string]domain.Clinic), reviews: make(map[string]domain.Review)}
}

func (s *memStore) Create(_ context.Context, c *domain.Clinic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clinics[c.ID]; ok {
		return apperrors.AlreadyExists("clinic", "slug", c.Slug)
	}
	s.clinics[c.ID] = *c
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.Clinic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clinics[id]
	if !ok {
		return nil, apperrors.NotFound("clinic", id)
	}
	return &c, nil
}

func (s *memStore) List(_ context.Context) ([]domain.Clinic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Clinic, 0, len(s.clinics))
	for _, c := range s.clinics {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) Update(_ context.Context, c *domain.Clinic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.clinics[c.ID]
	if !ok {
		return apperrors.NotFound("clinic", c.ID)
	}
	cur.Name, cur.City, cur.Country = c.Name, c.City, c.Country
	cur.Description, cur.Website, cur.Phone = c.Description, c.Website, c.Phone
	cur.UpdatedAt = c.UpdatedAt
	s.clinics[c.ID] = cur
	return nil
}

func (s *memStore) SetStats(_ context.Context, id string, st domain.RatingStats, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clinics[id]
	if !ok {
		return apperrors.NotFound("clinic", id)
	}
	c.ApplyStats(st, at)
	s.clinics[id] = c
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clinics[id]; !ok {
		return apperrors.NotFound("clinic", id)
	}
	delete(s.clinics, id)
	return nil
}

// reviewStore exposes the review half of memStore; both repositories have
// Create and GetByID.
type reviewStore struct{ *memStore }

func (s reviewStore) Create(_ context.Context, r *domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews[r.ID] = *r
	return nil
}

func (s reviewStore) GetByID(_ context.Context, id string) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	return &r, nil
}

func (s reviewStore) listWhere(keep func(domain.Review) bool, newestFirst bool) []domain.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Review{}
	for _, r := range s.reviews {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			if newestFirst {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s reviewStore) ListApprovedByClinic(_ context.Context, clinicID string) ([]domain.Review, error) {
	return s.listWhere(func(r domain.Review) bool {
		return r.ClinicID == clinicID && r.Status == domain.StatusApproved
	}, true), nil
}

func (s reviewStore) ListPending(_ context.Context) ([]domain.Review, error) {
	return s.listWhere(func(r domain.Review) bool { return r.Status == domain.StatusPending }, false), nil
}

func (s reviewStore) UpdateStatus(_ context.Context, id string, from, to domain.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return false, apperrors.NotFound("review", id)
	}
	if r.Status != from {
		return false, nil
	}
	r.Status, r.UpdatedAt = to, at
	s.reviews[id] = r
	return true, nil
}

func (s reviewStore) SetReply(_ context.Context, id string, reply domain.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return apperrors.NotFound("review", id)
	}
	r.Reply, r.UpdatedAt = &reply, reply.RepliedAt
	s.reviews[id] = r
	return nil
}

func (s reviewStore) SetFlagged(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return apperrors.NotFound("review", id)
	}
	r.IsFlagged, r.UpdatedAt = true, at
	s.reviews[id] = r
	return nil
}

func (s *memStore) Compute(ctx context.Context, clinicID string) (domain.RatingStats, error) {
	if _, err := s.GetByID(ctx, clinicID); err != nil {
		return domain.RatingStats{}, err
	}
	approved, _ := reviewStore{s}.ListApprovedByClinic(ctx, clinicID)
	return domain.ComputeStats(approved), nil
}

func (s *memStore) Recompute(ctx context.Context, clinicID string, at time.Time) (domain.RatingStats, error) {
	stats, err := s.Compute(ctx, clinicID)
	if err != nil {
		return domain.RatingStats{}, err
	}
	if s.readDelay > 0 {
		time.Sleep(s.readDelay)
	}
	if err := s.SetStats(ctx, clinicID, stats, at); err != nil {
		return domain.RatingStats{}, err
	}
	return stats, nil
}

// --- Wiring ---

type testServices struct {
	store      *memStore
	publisher  *recordingPublisher
	cache      *fakeViewCache
	clinics    *ClinicService
	reviews    *ReviewService
	moderation *ModerationService
	engine     *AggregationService
	views      *ViewService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	store := newMemStore()
	pub := &recordingPublisher{}
	producer := newTestProducer(pub)
	cache := newFakeViewCache()
	authz := testAuthorizer()
	logger := newTestLogger()

	engine := NewAggregationService(store, store, lock.NewKeyedMutex(), cache, producer, logger)
	return &testServices{
		store:      store,
		publisher:  pub,
		cache:      cache,
		clinics:    NewClinicService(store, authz, cache, producer, logger),
		reviews:    NewReviewService(reviewStore{store}, store, authz, cache, producer, logger, DefaultMinTextLength),
		moderation: NewModerationService(reviewStore{store}, engine, authz, producer, logger),
		engine:     engine,
		views:      NewViewService(store, reviewStore{store}, store, authz, cache, logger),
	}
}

// seedReview stores a review directly, bypassing validation.
func (ts *testServices) seedReview(id, clinicID string, overall float64, status domain.Status, createdAt time.Time) {
	r := domain.Review{
		ID: id, ClinicID: clinicID, UserID: patientID, Title: "t", Text: "seeded review text long enough to pass",
		VisitDate: "2025-01-01", CountryOfPatient: "UK", Status: status,
		Ratings:   domain.Ratings{Overall: overall, Hygiene: overall, Communication: overall, Transparency: overall, TreatmentQuality: overall, StaffAttitude: overall},
		CreatedAt: createdAt, UpdatedAt: createdAt,
	}
	_ = reviewStore{ts.store}.Create(context.Background(), &r)
}

func (ts *testServices) seedClinic(id, name string) {
	_ = ts.store.Create(context.Background(), &domain.Clinic{ID: id, Slug: id, Name: name, City: "Istanbul", Country: "Turkey", CreatedAt: fixedNow, UpdatedAt: fixedNow})
}
