// Package client provides the upstream fintech API client with
// authentication, bounded retries, and transparent multi-page collection.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ichinga-Samuel/MonieWatch/pkg/ratelimit"
	"github.com/Ichinga-Samuel/MonieWatch/pkg/workerpool"
)

// Prometheus metrics for upstream API operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moniewatch_api_requests_total",
		Help: "Total upstream API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moniewatch_api_request_duration_seconds",
		Help:    "Upstream API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	apiPagesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moniewatch_api_pages_dropped_total",
		Help: "Total pages dropped after exhausting retries during multi-page fetches",
	})
)

// Upstream endpoints.
const (
	endpointAuth         = "/auth/tokens"
	endpointAgents       = "/agents"
	endpointTransactions = "/aggregators/consolidated-transactions/"
	endpointProfile      = "/profiles/aggregators"
)

const defaultPageSize = 1000

// Config holds the client configuration.
type Config struct {
	// BaseURL of the upstream API.
	BaseURL string

	// Principal credentials for the token exchange.
	Username string
	Password string

	// PageSize for paginated requests. Defaults to 1000, the largest page
	// the upstream accepts.
	PageSize int

	// Retry governs transient-failure retries.
	Retry RetryConfig

	// Limiter optionally gates requests against a shared budget.
	// Nil disables rate limiting.
	Limiter *ratelimit.Limiter

	// HTTPClient overrides the default HTTP client (for testing).
	HTTPClient *http.Client

	// Browser-identity headers the upstream expects on every request.
	Authority string
	Origin    string
	Referer   string
}

// Client talks to the upstream API on behalf of exactly one principal.
// It is owned by a single aggregation operation: create it, authenticate,
// fetch, and Close it on every exit path. It must not be shared across
// concurrent operations.
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *ratelimit.Limiter
	logger     zerolog.Logger

	token         string
	authenticated bool
}

// New creates a client for one principal.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("credentials are required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Retry.Policy == nil && cfg.Retry.MaxRetries == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	logger := log.With().Str("component", "api-client").Str("principal", cfg.Username).Logger()

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		limiter:    cfg.Limiter,
		logger:     logger,
	}, nil
}

// Authenticated reports whether a bearer token is attached.
func (c *Client) Authenticated() bool {
	return c.authenticated
}

// Close discards the session token and tears down idle connections.
// Safe to call on every exit path, including after a failed Authenticate.
func (c *Client) Close() {
	c.token = ""
	c.authenticated = false
	c.httpClient.CloseIdleConnections()
}

// Authenticate exchanges the principal's credentials for a bearer token.
// Returns ErrAuthRejected (no retries) on invalid credentials; network and
// decode failures are retried up to the configured ceiling.
func (c *Client) Authenticate(ctx context.Context) error {
	payload := map[string]any{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
		"secret":   c.cfg.Password,
	}
	for k, v := range deviceIdentity() {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode auth payload: %w", err)
	}

	err = retryWithBackoff(ctx, c.cfg.Retry, c.logger, "authenticate", func() error {
		return c.exchangeToken(ctx, body)
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("Authentication failed")
		return fmt.Errorf("authenticate: %w", err)
	}

	c.logger.Debug().Msg("Authenticated")
	return nil
}

// exchangeToken performs one token-exchange attempt.
func (c *Client) exchangeToken(ctx context.Context, body []byte) error {
	if err := c.waitForBudget(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+endpointAuth, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setIdentityHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	apiRequestDuration.WithLabelValues(endpointAuth).Observe(time.Since(start).Seconds())
	if err != nil {
		apiRequestsTotal.WithLabelValues(endpointAuth, "network_error").Inc()
		return &APIError{Class: ErrorClassNetwork, Message: "token exchange", Err: err}
	}
	defer resp.Body.Close()
	apiRequestsTotal.WithLabelValues(endpointAuth, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Class: ErrorClassUpstream, Message: resp.Status}
	}

	var env authEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Class: ErrorClassDecode, Message: "token exchange", Err: err}
	}

	if env.ResponseCode == responseCodeInvalidGrant {
		c.logger.Warn().Msg("Wrong password")
		return ErrAuthRejected
	}
	if env.TokenData.AccessToken == "" {
		return &APIError{StatusCode: resp.StatusCode, Class: ErrorClassDecode, Message: "token missing from response"}
	}

	c.token = env.TokenData.AccessToken
	c.authenticated = true
	return nil
}

// GetAgents fetches the principal's agents across all pages.
func (c *Client) GetAgents(ctx context.Context) ([]Agent, error) {
	params := c.pageParams(1)
	params.Set("keyword", "")
	params.Set("status", "")

	env, err := c.getJSON(ctx, endpointAgents, params, true)
	if err != nil {
		return nil, fmt.Errorf("get agents: %w", err)
	}

	agents := make([]Agent, 0, len(env.Agents))
	for _, rec := range env.Agents {
		agents = append(agents, rec.toAgent())
	}
	return agents, nil
}

// GetConsolidatedTransactions fetches the settled transactions for one
// agent (or all agents when agentID is zero) within [start, end], filtered
// to completed, non-reversed records on every ingestion path.
func (c *Client) GetConsolidatedTransactions(ctx context.Context, start, end time.Time, agentID int64) ([]Transaction, error) {
	params := c.pageParams(1)
	params.Set("startDate", start.Format("2006-01-02"))
	params.Set("endDate", end.Format("2006-01-02"))
	params.Set("amount", "0")
	params.Set("terminalId", "0")
	params.Set("hardwareTerminalId", "0")
	params.Set("status", TransactionStatusCompleted)
	params.Set("reference", "")
	if agentID != 0 {
		params.Set("agentId", strconv.FormatInt(agentID, 10))
	} else {
		params.Set("agentId", "")
	}

	env, err := c.getJSON(ctx, endpointTransactions, params, true)
	if err != nil {
		return nil, fmt.Errorf("get consolidated transactions: %w", err)
	}

	transactions := make([]Transaction, 0, len(env.ConsolidatedTransactions))
	for _, rec := range env.ConsolidatedTransactions {
		t := rec.toTransaction()
		if t.Settled() {
			transactions = append(transactions, t)
		}
	}
	return transactions, nil
}

// Profile fetches the principal's display name and mobile number.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	env, err := c.getJSON(ctx, endpointProfile, url.Values{}, false)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if env.Profile == nil {
		return nil, &APIError{Class: ErrorClassDecode, Message: "profile missing from response"}
	}

	name := titleCase(env.Profile.FirstName) + " " + titleCase(env.Profile.LastName)
	return &Profile{Name: name, Mobile: env.Profile.MobileNumber}, nil
}

// getJSON wraps one logical GET: bounded retries on transient failures and,
// when the first page reports more, a single fan-out over pages 2..N.
// Nested page fetches run with paginate=false so a page can never trigger
// its own fan-out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, paginate bool) (*pageEnvelope, error) {
	var env *pageEnvelope
	err := retryWithBackoff(ctx, c.cfg.Retry, c.logger, path, func() error {
		fetched, err := c.fetchPage(ctx, path, params)
		if err != nil {
			return err
		}
		env = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}

	if paginate && env.TotalPages > 1 {
		c.fetchRemainingPages(ctx, path, params, env)
	}
	return env, nil
}

// fetchPage performs a single GET attempt and decodes the page envelope.
func (c *Client) fetchPage(ctx context.Context, path string, params url.Values) (*pageEnvelope, error) {
	if err := c.waitForBudget(ctx); err != nil {
		return nil, err
	}

	u := c.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setIdentityHeaders(req)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	apiRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		apiRequestsTotal.WithLabelValues(path, "network_error").Inc()
		return nil, &APIError{Class: ErrorClassNetwork, Message: path, Err: err}
	}
	defer resp.Body.Close()
	apiRequestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Class: ErrorClassUpstream, Message: resp.Status}
	}

	var env pageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Class: ErrorClassDecode, Message: path, Err: err}
	}
	if env.ResponseCode != responseCodeOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Class: ErrorClassUpstream,
			Message: fmt.Sprintf("unexpected response code %q", env.ResponseCode)}
	}

	return &env, nil
}

// fetchRemainingPages submits pages 2..N to one worker pool in a single
// run and merges the successes into the first page's envelope. A page that
// exhausts its retries is dropped, logged, and counted, never fatal.
func (c *Client) fetchRemainingPages(ctx context.Context, path string, params url.Values, first *pageEnvelope) {
	total := first.TotalPages

	pool := workerpool.New[*pageEnvelope](total - 1)
	for page := 2; page <= total; page++ {
		page := page
		pool.Submit(func(ctx context.Context) (*pageEnvelope, error) {
			pageParams := cloneValues(params)
			pageParams.Set("pageNumber", strconv.Itoa(page))
			return c.getJSON(ctx, path, pageParams, false)
		})
	}

	c.logger.Debug().
		Str("endpoint", path).
		Int("total_pages", total).
		Msg("Fetching remaining pages")

	dropped := 0
	for _, res := range pool.Run(ctx) {
		if res.Err != nil {
			dropped++
			c.logger.Warn().
				Err(res.Err).
				Str("endpoint", path).
				Int("page", res.Index+2).
				Msg("Page dropped after exhausting retries")
			continue
		}
		first.merge(res.Value)
	}

	if dropped > 0 {
		first.DroppedPages = dropped
		apiPagesDroppedTotal.Add(float64(dropped))
		c.logger.Warn().
			Str("endpoint", path).
			Int("dropped", dropped).
			Int("total_pages", total).
			Msg("Multi-page fetch completed with partial data")
	}
}

// waitForBudget consults the shared request budget when one is configured.
// Limiter errors fail open: a broken Redis must not take fetching down.
func (c *Client) waitForBudget(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	allowed, err := c.limiter.Allow(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Rate limit check failed, proceeding")
		return nil
	}
	if !allowed {
		return &APIError{Class: ErrorClassUpstream, Message: "request budget exceeded"}
	}
	return nil
}

// pageParams returns the base pagination query for a page number.
func (c *Client) pageParams(page int) url.Values {
	params := url.Values{}
	params.Set("pageNumber", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
	return params
}

// setIdentityHeaders attaches the browser-identity headers the upstream
// expects on every call.
func (c *Client) setIdentityHeaders(req *http.Request) {
	if c.cfg.Authority != "" {
		req.Header.Set("authority", c.cfg.Authority)
	}
	if c.cfg.Origin != "" {
		req.Header.Set("origin", c.cfg.Origin)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("referer", c.cfg.Referer)
	}
	req.Header.Set("client-type", "WEB")
	req.Header.Set("client-version", "0.0.0")
	req.Header.Set("Accept", "application/json")
}

// deviceIdentity fabricates the device fields the token exchange expects.
func deviceIdentity() map[string]any {
	manufacturers := []string{"Apple", "Windows", "Linux"}
	models := []string{"Chrome", "Edge", "Opera", "Safari", "Mozilla"}
	dui := 68000000 + rand.Int63n(2000000)

	return map[string]any{
		"deviceIdentifier":       dui,
		"manufacturer":           manufacturers[rand.Intn(len(manufacturers))],
		"model":                  models[rand.Intn(len(models))],
		"deviceUniqueIdentifier": dui,
	}
}

// cloneValues copies query params so concurrent page fetches don't share
// a mutable map.
func cloneValues(params url.Values) url.Values {
	out := make(url.Values, len(params))
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	return out
}
