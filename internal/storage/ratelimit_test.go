package storage

import (
	"context"
	"testing"
)

func TestMemoryRateLimiter(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryRateLimiter(0.001, 2)
	defer limiter.Close()

	ctx := context.Background()
	for i := range 2 {
		allowed, err := limiter.Allow(ctx, "1.2.3.4")
		if err != nil || !allowed {
			t.Fatalf("request %d: Allow() = %v, %v; want true", i, allowed, err)
		}
	}
	if allowed, _ := limiter.Allow(ctx, "1.2.3.4"); allowed {
		t.Error("request over burst allowed")
	}
	if allowed, _ := limiter.Allow(ctx, "5.6.7.8"); !allowed {
		t.Error("other key limited")
	}

	_ = limiter.Close()
	_ = limiter.Close()
}
