package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lock:"

// releaseScript deletes the key only while it still holds our token, so a
// holder whose lease expired cannot free someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a lease-based Locker shared by every instance using the same
// Redis. The holder extends its lease every ttl/3 until it unlocks; a holder
// that dies loses the lock after ttl.
//
// There is no fencing token. A holder stalled for longer than ttl (a long GC
// pause, a partitioned Redis) can still overlap the next one, so writes done
// under the lock must stay idempotent.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a RedisLocker. Contended locks are polled every
// retry interval.
func NewRedisLocker(client redis.Cmdable, ttl, retry time.Duration, logger *slog.Logger) *RedisLocker {
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &RedisLocker{client: client, ttl: ttl, retry: retry, logger: logger}
}

// Lock polls SET NX PX until it wins or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := redisKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return l.hold(k, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// hold keeps the lease alive in the background and returns the unlock func.
func (l *RedisLocker) hold(key, token string) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.renew(ctx, key, token)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			l.release(key, token)
		})
	}
}

func (l *RedisLocker) renew(ctx context.Context, key, token string) {
	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			l.logger.Warn("failed to renew lock",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		case n == 0:
			l.logger.Warn("lock lease lost before release", slog.String("key", key))
			return
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	// The caller's context may already be canceled; release regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn("failed to release lock",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
