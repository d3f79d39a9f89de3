// Package aggregator turns many per-agent transaction fetches into one
// consolidated report draft.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Ichinga-Samuel/MonieWatch/pkg/cache"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/client"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/logging"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/workerpool"
)

// Prometheus metrics for draft assembly.
var (
	agentsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moniewatch_agents_dropped_total",
		Help: "Agents whose transaction fetch exhausted retries and was dropped from a draft",
	})

	draftsBuiltTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moniewatch_drafts_built_total",
		Help: "Draft builds by outcome",
	}, []string{"outcome"})
)

// APIClient is the slice of the upstream client a draft build drives.
// Satisfied by *client.Client.
type APIClient interface {
	Authenticate(ctx context.Context) error
	GetAgents(ctx context.Context) ([]client.Agent, error)
	GetConsolidatedTransactions(ctx context.Context, start, end time.Time, agentID int64) ([]client.Transaction, error)
	Profile(ctx context.Context) (*client.Profile, error)
	Close()
}

// ClientFactory builds a fresh upstream client for one principal. Every
// draft build gets its own session; nothing is memoized across operations.
type ClientFactory func(principal Principal) (APIClient, error)

// Service builds report drafts.
type Service struct {
	newClient ClientFactory
	cache     *cache.Manager // nil disables roster caching
	logger    zerolog.Logger
}

// NewService creates a draft-building service. cacheManager may be nil.
func NewService(factory ClientFactory, cacheManager *cache.Manager) *Service {
	return &Service{
		newClient: factory,
		cache:     cacheManager,
		logger:    logging.NewLogger("aggregator"),
	}
}

// BuildDraft authenticates as the principal, fetches its agents and their
// settled transactions concurrently, and assembles a ReportDraft.
//
// Authentication or agent-list failure aborts the whole build: no draft is
// returned and the caller must treat that as "report generation failed",
// not as an empty report. A single agent's fetch failing only drops that
// agent's transactions; the loss is logged and counted. The upstream
// session is closed on every exit path.
func (s *Service) BuildDraft(ctx context.Context, principal Principal, opts Options) (*ReportDraft, error) {
	logger := s.logger.With().Str("principal", principal.Username).Logger()
	start := time.Now()

	cli, err := s.newClient(principal)
	if err != nil {
		draftsBuiltTotal.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("build draft: %w", err)
	}
	defer cli.Close()

	if err := cli.Authenticate(ctx); err != nil {
		logger.Error().Err(err).Msg("Report aborted: authentication failed")
		draftsBuiltTotal.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("build draft: %w", err)
	}

	agents, err := s.resolveAgents(ctx, cli, principal, opts)
	if err != nil {
		logger.Error().Err(err).Msg("Report aborted: agent list unavailable")
		draftsBuiltTotal.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("build draft: %w", err)
	}

	startDate, endDate := opts.StartDate, opts.EndDate
	today := time.Now()
	if startDate.IsZero() {
		startDate = today
	}
	if endDate.IsZero() {
		endDate = today
	}

	transactions, dropped := s.fetchTransactions(ctx, cli, agents, startDate, endDate, logger)

	title := opts.Title
	if title == "" {
		name := principal.Name
		if name == "" {
			name = principal.Username
		}
		title = defaultTitle(name, startDate)
	}
	target := opts.Target
	if target.IsZero() {
		target = DefaultTarget
	}

	draft := &ReportDraft{
		Title:        title,
		Agents:       agents,
		Transactions: transactions,
		Target:       target,
		StartDate:    startDate,
		EndDate:      endDate,
	}

	draftsBuiltTotal.WithLabelValues("ok").Inc()
	logger.Info().
		Int("agents", len(agents)).
		Int("transactions", len(transactions)).
		Int("agents_dropped", dropped).
		Dur("duration", time.Since(start)).
		Msg("Draft assembled")

	return draft, nil
}

// resolveAgents returns the roster for the draft: caller-supplied, cached,
// or fetched from the upstream.
func (s *Service) resolveAgents(ctx context.Context, cli APIClient, principal Principal, opts Options) ([]client.Agent, error) {
	if len(opts.Agents) > 0 {
		return dedupeAgents(opts.Agents), nil
	}

	if s.cache != nil {
		if cached, ok := s.cache.GetAgents(ctx, principal.Username); ok {
			return dedupeAgents(cached), nil
		}
	}

	agents, err := cli.GetAgents(ctx)
	if err != nil {
		return nil, err
	}
	agents = dedupeAgents(agents)

	if s.cache != nil && len(agents) > 0 {
		if err := s.cache.SetAgents(ctx, principal.Username, agents); err != nil {
			s.logger.Warn().Err(err).Str("principal", principal.Username).Msg("Agent roster caching failed")
		}
	}
	return agents, nil
}

// fetchTransactions fans out one fetch per agent through a fresh worker
// pool sized to the roster, then flattens the successes. Returns the
// flattened transactions and the number of agents dropped.
func (s *Service) fetchTransactions(ctx context.Context, cli APIClient, agents []client.Agent, startDate, endDate time.Time, logger zerolog.Logger) ([]client.Transaction, int) {
	if len(agents) == 0 {
		return nil, 0
	}

	pool := workerpool.New[[]client.Transaction](len(agents))
	for _, agent := range agents {
		agentID := agent.AgentID
		pool.Submit(func(ctx context.Context) ([]client.Transaction, error) {
			return cli.GetConsolidatedTransactions(ctx, startDate, endDate, agentID)
		})
	}

	var transactions []client.Transaction
	dropped := 0
	for _, res := range pool.Run(ctx) {
		if res.Err != nil {
			dropped++
			agentsDroppedTotal.Inc()
			logger.Warn().
				Err(res.Err).
				Int64("agent_id", agents[res.Index].AgentID).
				Msg("Agent transactions dropped after exhausting retries")
			continue
		}
		transactions = append(transactions, res.Value...)
	}
	return transactions, dropped
}

// SyncProfile refreshes the principal's display name and mobile from the
// upstream profile endpoint. Used when onboarding a principal.
func (s *Service) SyncProfile(ctx context.Context, principal Principal) (*client.Profile, error) {
	cli, err := s.newClient(principal)
	if err != nil {
		return nil, fmt.Errorf("sync profile: %w", err)
	}
	defer cli.Close()

	if err := cli.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("sync profile: %w", err)
	}
	profile, err := cli.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync profile: %w", err)
	}
	return profile, nil
}
