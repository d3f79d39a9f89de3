package ratelimit

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis creates a test Redis client, skipping when unavailable.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestAllow_WithinBudget(t *testing.T) {
	redisClient := setupTestRedis(t)
	limiter := New(redisClient, 5, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("request %d blocked within budget", i+1)
		}
	}
}

func TestAllow_BlocksOverBudget(t *testing.T) {
	redisClient := setupTestRedis(t)
	limiter := New(redisClient, 2, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if allowed, _ := limiter.Allow(ctx); !allowed {
			t.Fatalf("request %d blocked within budget", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("request over budget was allowed")
	}
}

func TestNew_DefaultsBudget(t *testing.T) {
	limiter := New(nil, 0, zerolog.Nop())
	if limiter.perSecond != 10 {
		t.Errorf("perSecond = %d, want 10", limiter.perSecond)
	}
}
