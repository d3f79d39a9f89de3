// Package metrics provides the centralized Prometheus registry reference
// for MonieWatch. All metrics are defined in their respective packages
// (client, workerpool, ratelimit, cache, report) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by MonieWatch.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Upstream Request Metrics (pkg/client):
//   - moniewatch_api_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - moniewatch_api_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - moniewatch_api_pages_dropped_total (Counter): Pages dropped after exhausting retries
//
// Retry Metrics (pkg/client):
//   - moniewatch_api_retries_total{operation} (Counter): Retry attempts by operation
//   - moniewatch_api_retry_backoff_seconds{operation} (Histogram): Backoff duration by operation
//   - moniewatch_api_retry_exhausted_total{operation} (Counter): Calls that exhausted max retries
//
// Worker Pool Metrics (pkg/workerpool):
//   - moniewatch_pool_tasks_total{outcome} (Counter): Pool tasks by outcome (ok, error, panic, cancelled, rejected)
//   - moniewatch_pool_runs_total (Counter): Pool runs
//
// Rate Limit Metrics (pkg/ratelimit):
//   - moniewatch_rate_limit_blocks_total (Counter): Requests blocked by the budget
//   - moniewatch_rate_limit_window_usage (Gauge): Requests counted in the current window
//
// Cache Metrics (pkg/cache):
//   - moniewatch_cache_hits_total (Counter): Agent roster cache hits
//   - moniewatch_cache_misses_total (Counter): Agent roster cache misses
//   - moniewatch_cache_errors_total{operation} (Counter): Cache operation errors
//
// Report Pipeline Metrics (internal/report):
//   - moniewatch_reports_generated_total (Counter): Reports generated end to end
//   - moniewatch_reports_failed_total{stage} (Counter): Report failures by pipeline stage
//   - moniewatch_report_duration_seconds (Histogram): End-to-end report duration
//
// Aggregation Metrics (internal/aggregator):
//   - moniewatch_drafts_built_total{outcome} (Counter): Draft builds by outcome (ok, aborted)
//   - moniewatch_agents_dropped_total (Counter): Agents dropped from a draft after fetch failure
//
// Job Metrics (internal/jobs):
//   - moniewatch_jobs_total{outcome} (Counter): Report jobs consumed by outcome (ok, invalid, failed)
//
// Example Prometheus Queries:
//
//   # Partial data rate
//   rate(moniewatch_api_pages_dropped_total[5m])
//
//   # Retry exhaustion by operation
//   rate(moniewatch_api_retry_exhausted_total[5m])
//
//   # Report failure ratio
//   sum(rate(moniewatch_reports_failed_total[1h])) /
//   (sum(rate(moniewatch_reports_generated_total[1h])) + sum(rate(moniewatch_reports_failed_total[1h])))
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(moniewatch_api_request_duration_seconds_bucket[5m]))
