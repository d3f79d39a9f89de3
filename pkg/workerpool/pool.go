// Package workerpool provides a bounded worker pool for fanning out
// independent units of work and collecting their results.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pool execution.
var (
	poolTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moniewatch_pool_tasks_total",
		Help: "Total pool tasks by outcome",
	}, []string{"outcome"})

	poolRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moniewatch_pool_runs_total",
		Help: "Total pool runs",
	})
)

// MaxWorkers is the hard concurrency ceiling for any pool. Callers size
// pools to their fan-out (one worker per agent or page), and this cap keeps
// a large fan-out from overwhelming the upstream API.
const MaxWorkers = 32

// Task is one unit of work. It must honor ctx and return either a value or
// an error; it is executed exactly once.
type Task[T any] func(ctx context.Context) (T, error)

// Result pairs a task's outcome with its submission index, so callers that
// need ordering can reconstruct it. Exactly one Result is produced per
// submitted task; a failed task carries its error here instead of aborting
// sibling tasks.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Pool executes submitted tasks with a fixed concurrency ceiling.
//
// A pool is created fresh per fan-out and discarded after Run returns;
// it is not reusable. Submit is safe for concurrent producers, but all
// tasks must be submitted before Run is called.
type Pool[T any] struct {
	workers int

	mu      sync.Mutex
	tasks   []Task[T]
	started bool
}

// New creates a pool. workers <= 0 means one worker per submitted task,
// determined when Run starts. The effective worker count never exceeds
// MaxWorkers.
func New[T any](workers int) *Pool[T] {
	return &Pool[T]{workers: workers}
}

// Submit enqueues a task. Tasks submitted after Run has started are not
// executed; the drop is logged so no work vanishes silently.
func (p *Pool[T]) Submit(task Task[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		log.Warn().Msg("Task submitted after pool run started, dropping")
		poolTasksTotal.WithLabelValues("rejected").Inc()
		return
	}
	p.tasks = append(p.tasks, task)
}

// Run executes all submitted tasks and blocks until every one has produced
// a Result, then joins its workers and returns. Results are indexed by
// submission order. Cancelling ctx stops dispatching new tasks; tasks that
// never started are returned with ctx.Err() as their error.
func (p *Pool[T]) Run(ctx context.Context) []Result[T] {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		log.Warn().Msg("Pool run called twice, ignoring")
		return nil
	}
	tasks := p.tasks
	p.started = true
	p.mu.Unlock()

	if len(tasks) == 0 {
		return nil
	}
	poolRunsTotal.Inc()

	workers := p.workers
	if workers <= 0 || workers > len(tasks) {
		workers = len(tasks)
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	results := make([]Result[T], len(tasks))

	queue := make(chan int, len(tasks))
	for i := range tasks {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				// Drain without executing once the caller gave up, so
				// every task still gets a result and Run terminates.
				if err := ctx.Err(); err != nil {
					results[idx] = Result[T]{Index: idx, Err: err}
					poolTasksTotal.WithLabelValues("cancelled").Inc()
					continue
				}
				results[idx] = p.execute(ctx, idx, tasks[idx])
			}
		}()
	}
	wg.Wait()

	return results
}

// execute runs a single task, converting panics into errors so one bad
// task cannot take down the pool.
func (p *Pool[T]) execute(ctx context.Context, idx int, task Task[T]) (res Result[T]) {
	res.Index = idx
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("task panic: %v", r)
			log.Error().Int("task", idx).Interface("panic", r).Msg("Pool task panicked")
			poolTasksTotal.WithLabelValues("panic").Inc()
		}
	}()

	res.Value, res.Err = task(ctx)
	if res.Err != nil {
		poolTasksTotal.WithLabelValues("error").Inc()
	} else {
		poolTasksTotal.WithLabelValues("ok").Inc()
	}
	return res
}
