package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunAppliesOperationToEveryItem(t *testing.T) {
	results, err := Run(context.Background(), 10, 3, func(_ context.Context, i int) (int, error) {
		return i * 2, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("len(results) = %d, want 10", len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("item %d: unexpected error %v", i, r.Err)
		}
		if r.Value != i*2 {
			t.Errorf("item %d: value = %d, want %d", i, r.Value, i*2)
		}
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	var mu sync.Mutex

	_, err := Run(context.Background(), 20, 3, func(_ context.Context, i int) (struct{}, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestRunOneFailureDoesNotHaltOthers(t *testing.T) {
	boom := errors.New("boom")

	results, err := Run(context.Background(), 5, 2, func(_ context.Context, i int) (int, error) {
		if i == 2 {
			return 0, boom
		}
		return i, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i, r := range results {
		if i == 2 {
			if !errors.Is(r.Err, boom) {
				t.Errorf("item 2: err = %v, want boom", r.Err)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("item %d: unexpected error %v", i, r.Err)
		}
	}
}

func TestRunCancellationStopsScheduling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var started int32
	results, err := Run(ctx, 50, 1, func(_ context.Context, i int) (struct{}, error) {
		atomic.AddInt32(&started, 1)
		if i == 0 {
			cancel()
		}
		return struct{}{}, nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if n := atomic.LoadInt32(&started); n == 50 {
		t.Errorf("all items started despite cancellation")
	}
	// Unscheduled items carry the cancellation error.
	if results[len(results)-1].Err == nil {
		t.Errorf("last item error = nil, want cancellation error")
	}
}
