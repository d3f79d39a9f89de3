package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_OneResultPerTask(t *testing.T) {
	tests := []struct {
		name  string
		tasks int
	}{
		{name: "zero tasks", tasks: 0},
		{name: "single task", tasks: 1},
		{name: "many tasks", tasks: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := New[int](0)
			for i := 0; i < tt.tasks; i++ {
				i := i
				pool.Submit(func(ctx context.Context) (int, error) {
					return i * 2, nil
				})
			}

			results := pool.Run(context.Background())
			if len(results) != tt.tasks {
				t.Fatalf("len(results) = %d, want %d", len(results), tt.tasks)
			}
			for _, res := range results {
				if res.Err != nil {
					t.Errorf("task %d error = %v, want nil", res.Index, res.Err)
				}
				if res.Value != res.Index*2 {
					t.Errorf("task %d value = %d, want %d", res.Index, res.Value, res.Index*2)
				}
			}
		})
	}
}

func TestRun_EveryTaskExecutedExactlyOnce(t *testing.T) {
	const n = 40
	var calls [n]int32

	pool := New[struct{}](4)
	for i := 0; i < n; i++ {
		i := i
		pool.Submit(func(ctx context.Context) (struct{}, error) {
			atomic.AddInt32(&calls[i], 1)
			return struct{}{}, nil
		})
	}
	pool.Run(context.Background())

	for i := 0; i < n; i++ {
		if got := atomic.LoadInt32(&calls[i]); got != 1 {
			t.Errorf("task %d executed %d times, want 1", i, got)
		}
	}
}

func TestRun_TaskErrorDoesNotAbortSiblings(t *testing.T) {
	pool := New[string](2)
	pool.Submit(func(ctx context.Context) (string, error) {
		return "", errors.New("boom")
	})
	pool.Submit(func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	pool.Submit(func(ctx context.Context) (string, error) {
		panic("worse")
	})

	results := pool.Run(context.Background())
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].Err == nil {
		t.Error("task 0: expected error, got nil")
	}
	if results[1].Err != nil || results[1].Value != "ok" {
		t.Errorf("task 1 = (%q, %v), want (ok, nil)", results[1].Value, results[1].Err)
	}
	if results[2].Err == nil {
		t.Error("task 2: expected panic to surface as error")
	}
}

func TestRun_ConcurrencyCeilingRespected(t *testing.T) {
	const workers = 3
	var inFlight, peak int32

	pool := New[struct{}](workers)
	for i := 0; i < 20; i++ {
		pool.Submit(func(ctx context.Context) (struct{}, error) {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return struct{}{}, nil
		})
	}
	pool.Run(context.Background())

	if got := atomic.LoadInt32(&peak); got > workers {
		t.Errorf("peak concurrency = %d, want <= %d", got, workers)
	}
}

func TestRun_CancellationStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	var once sync.Once

	pool := New[struct{}](1)
	for i := 0; i < 10; i++ {
		pool.Submit(func(ctx context.Context) (struct{}, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return struct{}{}, ctx.Err()
		})
	}

	go func() {
		<-started
		cancel()
	}()

	done := make(chan []Result[struct{}])
	go func() { done <- pool.Run(ctx) }()

	select {
	case results := <-done:
		if len(results) != 10 {
			t.Fatalf("len(results) = %d, want 10", len(results))
		}
		cancelled := 0
		for _, res := range results {
			if errors.Is(res.Err, context.Canceled) {
				cancelled++
			}
		}
		if cancelled == 0 {
			t.Error("expected undispatched tasks to return context.Canceled")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not terminate after cancellation")
	}
}

func TestSubmit_AfterRunIsNotExecuted(t *testing.T) {
	pool := New[int](1)
	pool.Submit(func(ctx context.Context) (int, error) { return 1, nil })

	results := pool.Run(context.Background())
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}

	var called int32
	pool.Submit(func(ctx context.Context) (int, error) {
		atomic.AddInt32(&called, 1)
		return 0, nil
	})
	if got := pool.Run(context.Background()); got != nil {
		t.Errorf("second Run returned %d results, want nil", len(got))
	}
	if atomic.LoadInt32(&called) != 0 {
		t.Error("late-submitted task was executed")
	}
}

func TestRun_WorkerCountDefaultsToTaskCount(t *testing.T) {
	// With workers=0 and 5 blocking tasks, all 5 must run concurrently.
	const n = 5
	var entered int32
	release := make(chan struct{})

	pool := New[struct{}](0)
	for i := 0; i < n; i++ {
		pool.Submit(func(ctx context.Context) (struct{}, error) {
			atomic.AddInt32(&entered, 1)
			<-release
			return struct{}{}, nil
		})
	}

	done := make(chan struct{})
	go func() {
		pool.Run(context.Background())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&entered) < n {
		select {
		case <-deadline:
			t.Fatalf("only %d/%d tasks started concurrently", atomic.LoadInt32(&entered), n)
		case <-time.After(time.Millisecond):
		}
	}
	close(release)
	<-done
}
