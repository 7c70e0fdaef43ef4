package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
)

const (
	viewKeyPrefix       = "clinic-reviews:"
	generationKeyPrefix = "clinic-reviews-gen:"
)

// setIfGenerationScript writes the view only while the generation counter
// still holds the value the caller read before loading reviews.
// KEYS[1] = view key, KEYS[2] = generation key
// ARGV[1] = expected generation, ARGV[2] = view JSON, ARGV[3] = ttl in ms
var setIfGenerationScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if not current then
	current = "0"
end
if current ~= ARGV[1] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// ViewCache stores ClinicReviewsView documents in Redis.
type ViewCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewViewCache creates a Redis-backed view cache. Entries expire after ttl
// even if nobody invalidates them.
func NewViewCache(client redis.Cmdable, ttl time.Duration) *ViewCache {
	return &ViewCache{client: client, ttl: ttl}
}

func viewKey(clinicID string) string {
	return viewKeyPrefix + clinicID
}

// The generation key never expires; an expired counter would restart at zero
// and let a stale write through.
func generationKey(clinicID string) string {
	return generationKeyPrefix + clinicID
}

// Get returns the cached view. A miss reports false without error.
func (c *ViewCache) Get(ctx context.Context, clinicID string) (*domain.ClinicReviewsView, bool, error) {
	data, err := c.client.Get(ctx, viewKey(clinicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get clinic view: %w", err)
	}

	var v domain.ClinicReviewsView
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("unmarshal clinic view: %w", err)
	}
	return &v, true, nil
}

// Generation returns the invalidation counter of a clinic, zero if it was
// never invalidated.
func (c *ViewCache) Generation(ctx context.Context, clinicID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(clinicID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get clinic view generation: %w", err)
	}
	return gen, nil
}

// Set stores v under its clinic id if the clinic is still at generation.
// It reports false when an invalidation happened since generation was read.
func (c *ViewCache) Set(ctx context.Context, v *domain.ClinicReviewsView, generation int64) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("marshal clinic view: %w", err)
	}
	stored, err := setIfGenerationScript.Run(ctx, c.client,
		[]string{viewKey(v.ClinicID), generationKey(v.ClinicID)},
		strconv.FormatInt(generation, 10), data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set clinic view: %w", err)
	}
	return stored == 1, nil
}

// Invalidate drops the cached view of a clinic and advances its generation,
// so readers that loaded reviews before this call cannot repopulate it.
func (c *ViewCache) Invalidate(ctx context.Context, clinicID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(clinicID))
		pipe.Del(ctx, viewKey(clinicID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate clinic view: %w", err)
	}
	return nil
}
