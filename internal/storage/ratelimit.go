package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

var (
	_ RateLimiter = (*MemoryRateLimiter)(nil)
	_ RateLimiter = (*RedisRateLimiter)(nil)
)

const limiterIdleTTL = 10 * time.Minute

type trackedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryRateLimiter keeps one token bucket per key. Buckets idle for
// limiterIdleTTL are dropped.
type MemoryRateLimiter struct {
	limiters  map[string]*trackedLimiter
	limiterMu sync.Mutex
	rateLimit rate.Limit
	rateBurst int

	done chan struct{}
	once sync.Once
}

func NewMemoryRateLimiter(ratePerSec float64, burst int) *MemoryRateLimiter {
	m := &MemoryRateLimiter{
		limiters:  make(map[string]*trackedLimiter),
		rateLimit: rate.Limit(ratePerSec),
		rateBurst: burst,
		done:      make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

func (m *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.limiterMu.Lock()
	defer m.limiterMu.Unlock()

	t, exists := m.limiters[key]
	if !exists {
		t = &trackedLimiter{limiter: rate.NewLimiter(m.rateLimit, m.rateBurst)}
		m.limiters[key] = t
	}
	t.lastSeen = time.Now()
	return t.limiter.Allow(), nil
}

func (m *MemoryRateLimiter) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.limiterMu.Lock()
			now := time.Now()
			for key, t := range m.limiters {
				if now.Sub(t.lastSeen) > limiterIdleTTL {
					delete(m.limiters, key)
				}
			}
			m.limiterMu.Unlock()
		case <-m.done:
			return
		}
	}
}

const rateLimitKeyPrefix = "ratelimit:"

// RedisRateLimiter is a fixed-window limiter shared by every server
// instance using the same Redis.
type RedisRateLimiter struct {
	client     *redis.Client
	rateLimit  int
	rateWindow time.Duration
}

func NewRedisRateLimiter(client *redis.Client, rateLimit int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:     client,
		rateLimit:  rateLimit,
		rateWindow: time.Second,
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	window := time.Now().UnixMilli() / r.rateWindow.Milliseconds()
	redisKey := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, key, window)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, r.rateWindow+time.Second)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return incr.Val() <= int64(r.rateLimit), nil
}
