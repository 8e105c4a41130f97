package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "breachmon:ratelimit:"

// RedisLimiter shares per-source fetch intervals across replicas
// through a redis instance. A fetch slot is an expiring key: whoever
// sets it owns the slot until the source's minimum interval elapses.
type RedisLimiter struct {
	client    *redis.Client
	intervals map[string]time.Duration

	// pollFloor bounds how briefly Wait sleeps between attempts when
	// redis reports a near-zero TTL.
	pollFloor time.Duration
}

// NewRedisLimiter builds a redis-backed limiter from per-source
// minimum intervals. The client is owned by the caller.
func NewRedisLimiter(client *redis.Client, intervals map[string]time.Duration) *RedisLimiter {
	copied := make(map[string]time.Duration, len(intervals))
	for id, interval := range intervals {
		copied[id] = interval
	}
	return &RedisLimiter{
		client:    client,
		intervals: copied,
		pollFloor: 25 * time.Millisecond,
	}
}

func (r *RedisLimiter) interval(sourceID string) (time.Duration, error) {
	interval, ok := r.intervals[sourceID]
	if !ok {
		return 0, ErrUnknownSource
	}
	return interval, nil
}

// Allow implements Limiter. The SET NX either claims the slot for the
// whole interval or observes that another replica holds it.
func (r *RedisLimiter) Allow(ctx context.Context, sourceID string) (bool, error) {
	interval, err := r.interval(sourceID)
	if err != nil {
		return false, err
	}
	ok, err := r.client.SetNX(ctx, keyPrefix+sourceID, 1, interval).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis setnx: %w", err)
	}
	return ok, nil
}

// Wait implements Limiter. Between attempts it sleeps for the holder's
// remaining TTL so contended sources are not hammered with SET NX.
func (r *RedisLimiter) Wait(ctx context.Context, sourceID string) error {
	for {
		ok, err := r.Allow(ctx, sourceID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		ttl, err := r.client.PTTL(ctx, keyPrefix+sourceID).Result()
		if err != nil {
			return fmt.Errorf("ratelimit: redis pttl: %w", err)
		}
		if ttl < r.pollFloor {
			ttl = r.pollFloor
		}

		timer := time.NewTimer(ttl)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
