package infra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeduplicator_CoalescesConcurrentCalls(t *testing.T) {
	d := NewDeduplicator[string]()

	var executions atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	fn := func() (string, error) {
		executions.Add(1)
		close(started)
		<-release
		return "value", nil
	}

	const waiters = 5
	var wg sync.WaitGroup
	shared := make([]bool, waiters)
	results := make([]string, waiters)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], shared[0], _ = d.Do(context.Background(), "k", fn)
	}()
	<-started

	for i := 1; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], shared[i], _ = d.Do(context.Background(), "k", func() (string, error) {
				t.Error("second function executed despite in-flight call")
				return "", nil
			})
		}(i)
	}

	// Give the waiters time to attach before releasing the leader
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if executions.Load() != 1 {
		t.Errorf("executions = %d, want 1", executions.Load())
	}
	sharedCount := 0
	for i, r := range results {
		if r != "value" {
			t.Errorf("result[%d] = %q", i, r)
		}
		if shared[i] {
			sharedCount++
		}
	}
	if sharedCount != waiters-1 {
		t.Errorf("shared results = %d, want %d", sharedCount, waiters-1)
	}
}

func TestDeduplicator_SequentialCallsRerun(t *testing.T) {
	d := NewDeduplicator[int]()

	var executions int
	fn := func() (int, error) {
		executions++
		return executions, nil
	}

	for want := 1; want <= 3; want++ {
		got, shared, err := d.Do(context.Background(), "k", fn)
		if err != nil || shared {
			t.Fatalf("call %d: shared=%v err=%v", want, shared, err)
		}
		if got != want {
			t.Errorf("call %d returned %d", want, got)
		}
	}
}

func TestDeduplicator_DistinctKeysRunIndependently(t *testing.T) {
	d := NewDeduplicator[string]()

	a, _, _ := d.Do(context.Background(), "a", func() (string, error) { return "A", nil })
	b, _, _ := d.Do(context.Background(), "b", func() (string, error) { return "B", nil })

	if a != "A" || b != "B" {
		t.Errorf("results = %q, %q", a, b)
	}
}

func TestDeduplicator_ErrorSharedWithWaiters(t *testing.T) {
	d := NewDeduplicator[string]()

	failure := errors.New("fetch failed")
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _, _ = d.Do(context.Background(), "k", func() (string, error) {
			close(started)
			<-release
			return "", failure
		})
	}()
	<-started

	done := make(chan struct{})
	var waiterErr error
	go func() {
		defer close(done)
		_, _, waiterErr = d.Do(context.Background(), "k", func() (string, error) {
			return "should not run", nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done

	if !errors.Is(waiterErr, failure) {
		t.Errorf("waiter error = %v, want the leader's", waiterErr)
	}
}

func TestDeduplicator_WaiterHonorsContext(t *testing.T) {
	d := NewDeduplicator[string]()

	release := make(chan struct{})
	started := make(chan struct{})
	defer close(release)

	go func() {
		_, _, _ = d.Do(context.Background(), "k", func() (string, error) {
			close(started)
			<-release
			return "late", nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, shared, err := d.Do(ctx, "k", func() (string, error) { return "", nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if shared {
		t.Error("cancelled waiter reported a shared result")
	}
}

func TestDeduplicator_Stats(t *testing.T) {
	d := NewDeduplicator[string]()
	if d.Stats() != 0 {
		t.Errorf("Stats = %d, want 0", d.Stats())
	}

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _, _ = d.Do(context.Background(), "k", func() (string, error) {
			close(started)
			<-release
			return "", nil
		})
	}()
	<-started

	if d.Stats() != 1 {
		t.Errorf("Stats during flight = %d, want 1", d.Stats())
	}

	close(release)
	<-done
	if d.Stats() != 0 {
		t.Errorf("Stats after completion = %d, want 0", d.Stats())
	}
}
