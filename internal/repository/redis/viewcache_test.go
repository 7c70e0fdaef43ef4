package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
)

func setupTestRedis(t *testing.T) (*ViewCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewViewCache(client, 5*time.Minute), mr
}

func sampleView() *domain.ClinicReviewsView {
	now := time.Now().UTC().Truncate(time.Millisecond)
	v := domain.NewClinicReviewsView("istanbul-smile", []domain.Review{{
		ID: "r1", ClinicID: "istanbul-smile", Title: "Great", Status: domain.StatusApproved,
		Ratings:   domain.Ratings{Overall: 5, Hygiene: 4, Communication: 4, Transparency: 5, TreatmentQuality: 5, StaffAttitude: 5},
		CreatedAt: now, UpdatedAt: now,
	}})
	return &v
}

func TestViewCache_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	v, ok, err := cache.Get(context.Background(), "istanbul-smile")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestViewCache_SetThenGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	want := sampleView()

	stored, err := cache.Set(ctx, want, 0)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists("clinic-reviews:istanbul-smile"))
	assert.Equal(t, 5*time.Minute, mr.TTL("clinic-reviews:istanbul-smile"))

	got, ok, err := cache.Get(ctx, "istanbul-smile")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Categories, got.Categories)
	require.Len(t, got.Reviews, 1)
	assert.Equal(t, "r1", got.Reviews[0].ID)
}

func TestViewCache_Expires(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := cache.Set(ctx, sampleView(), 0)
	require.NoError(t, err)
	mr.FastForward(6 * time.Minute)

	_, ok, err := cache.Get(ctx, "istanbul-smile")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestViewCache_Invalidate(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	_, err := cache.Set(ctx, sampleView(), 0)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, "istanbul-smile"))

	_, ok, err := cache.Get(ctx, "istanbul-smile")
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err := cache.Generation(ctx, "istanbul-smile")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	// Invalidating a missing key is fine.
	require.NoError(t, cache.Invalidate(ctx, "nowhere"))
}

func TestViewCache_SetSkippedAfterInvalidate(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	// A reader takes the generation, then a moderation decision lands
	// before it writes.
	gen, err := cache.Generation(ctx, "istanbul-smile")
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)
	require.NoError(t, cache.Invalidate(ctx, "istanbul-smile"))

	stored, err := cache.Set(ctx, sampleView(), gen)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists("clinic-reviews:istanbul-smile"))

	// A reader that starts after the decision caches normally.
	gen, err = cache.Generation(ctx, "istanbul-smile")
	require.NoError(t, err)
	stored, err = cache.Set(ctx, sampleView(), gen)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists("clinic-reviews:istanbul-smile"))
}

func TestViewCache_GenerationKeyHasNoTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Invalidate(ctx, "istanbul-smile"))
	assert.Equal(t, time.Duration(0), mr.TTL("clinic-reviews-gen:istanbul-smile"))
	mr.FastForward(24 * time.Hour)

	gen, err := cache.Generation(ctx, "istanbul-smile")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
}

func TestViewCache_CorruptEntry(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("clinic-reviews:istanbul-smile", "{not json"))

	_, _, err := cache.Get(context.Background(), "istanbul-smile")
	assert.Error(t, err)
}

func TestViewCache_RedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, _, err := cache.Get(context.Background(), "istanbul-smile")
	assert.Error(t, err)
}
