// Package ratelimit provides a Redis-backed request budget shared by every
// process talking to the upstream API.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit gating.
var (
	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moniewatch_rate_limit_blocks_total",
		Help: "Total number of requests blocked by the upstream request budget",
	})

	rateLimitWindowUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moniewatch_rate_limit_window_usage",
		Help: "Requests counted in the current rate limit window",
	})
)

const keyPrefix = "moniewatch:ratelimit:"

// Limiter counts requests in fixed one-second windows stored in Redis, so
// the budget holds across every worker process hitting the same upstream.
type Limiter struct {
	redis     *redis.Client
	perSecond int
	logger    zerolog.Logger
}

// New creates a limiter allowing perSecond requests across all holders of
// the same Redis database.
func New(redisClient *redis.Client, perSecond int, logger zerolog.Logger) *Limiter {
	if perSecond <= 0 {
		perSecond = 10
	}
	return &Limiter{
		redis:     redisClient,
		perSecond: perSecond,
		logger:    logger,
	}
}

// Allow reports whether one more upstream request fits the current window.
// An error means the budget could not be consulted; callers decide whether
// to fail open.
func (l *Limiter) Allow(ctx context.Context) (bool, error) {
	key := fmt.Sprintf("%s%d", keyPrefix, time.Now().Unix())

	pipe := l.redis.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit window: %w", err)
	}

	used := count.Val()
	rateLimitWindowUsage.Set(float64(used))

	if used > int64(l.perSecond) {
		rateLimitBlocksTotal.Inc()
		l.logger.Warn().
			Int64("used", used).
			Int("budget", l.perSecond).
			Msg("Request blocked by upstream budget")
		return false, nil
	}
	return true, nil
}
