// Package cache provides a Redis-backed cache for slow upstream agent
// lists. Agent rosters change rarely; caching them saves a full paginated
// crawl per report when several reports run for the same principal.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Ichinga-Samuel/MonieWatch/pkg/client"
)

// Prometheus metrics for cache operations.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moniewatch_cache_hits_total",
		Help: "Total agent cache hits",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moniewatch_cache_misses_total",
		Help: "Total agent cache misses",
	})

	cacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moniewatch_cache_errors_total",
		Help: "Total agent cache errors by operation",
	}, []string{"operation"})
)

// DefaultTTL is how long a cached agent roster stays fresh.
const DefaultTTL = 15 * time.Minute

const keyPrefix = "moniewatch:agents:"

// Manager caches agent rosters keyed by principal username.
type Manager struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewManager creates a cache manager. ttl <= 0 uses DefaultTTL.
func NewManager(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{redis: redisClient, ttl: ttl, logger: logger}
}

// GetAgents returns the cached roster for a principal, and whether one was
// found. Cache errors count as misses: the caller falls back to the API.
func (m *Manager) GetAgents(ctx context.Context, principal string) ([]client.Agent, bool) {
	data, err := m.redis.Get(ctx, keyPrefix+principal).Bytes()
	if err == redis.Nil {
		cacheMissesTotal.Inc()
		return nil, false
	}
	if err != nil {
		cacheErrorsTotal.WithLabelValues("get").Inc()
		m.logger.Warn().Err(err).Str("principal", principal).Msg("Agent cache get failed")
		return nil, false
	}

	var agents []client.Agent
	if err := json.Unmarshal(data, &agents); err != nil {
		cacheErrorsTotal.WithLabelValues("decode").Inc()
		m.logger.Warn().Err(err).Str("principal", principal).Msg("Agent cache entry corrupt, dropping")
		m.redis.Del(ctx, keyPrefix+principal)
		return nil, false
	}

	cacheHitsTotal.Inc()
	m.logger.Debug().
		Str("principal", principal).
		Int("agents", len(agents)).
		Msg("Agent cache hit")
	return agents, true
}

// SetAgents stores a principal's roster for the configured TTL.
func (m *Manager) SetAgents(ctx context.Context, principal string, agents []client.Agent) error {
	data, err := json.Marshal(agents)
	if err != nil {
		return fmt.Errorf("encode agents: %w", err)
	}

	if err := m.redis.Set(ctx, keyPrefix+principal, data, m.ttl).Err(); err != nil {
		cacheErrorsTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("cache agents: %w", err)
	}

	m.logger.Debug().
		Str("principal", principal).
		Int("agents", len(agents)).
		Dur("ttl", m.ttl).
		Msg("Agent roster cached")
	return nil
}

// Invalidate drops a principal's cached roster.
func (m *Manager) Invalidate(ctx context.Context, principal string) error {
	if err := m.redis.Del(ctx, keyPrefix+principal).Err(); err != nil {
		cacheErrorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("invalidate agents: %w", err)
	}
	return nil
}
