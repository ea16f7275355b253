package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/climate-outlook-service/internal/models"
)

// TestGetOrDo_SingleCaller verifies a lone caller runs the function itself
// and is not marked shared.
func TestGetOrDo_SingleCaller(t *testing.T) {
	rc := newRequestCoalescer(time.Second)

	want := models.OutlookResponse{Metadata: models.OutlookMetadata{SampledDays: 7}}
	got, shared, err := rc.GetOrDo(context.Background(), "k1", func() (models.OutlookResponse, error) {
		return want, nil
	})
	if err != nil {
		t.Fatalf("GetOrDo() error = %v", err)
	}
	if shared {
		t.Error("shared = true for the leader, want false")
	}
	if got.Metadata.SampledDays != 7 {
		t.Errorf("result = %+v, want %+v", got, want)
	}
}

// TestGetOrDo_CoalescesConcurrentCallers verifies concurrent callers for the
// same key share one execution and all receive the result.
func TestGetOrDo_CoalescesConcurrentCallers(t *testing.T) {
	rc := newRequestCoalescer(time.Second)

	var executions atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func() (models.OutlookResponse, error) {
		executions.Add(1)
		close(started)
		<-release
		return models.OutlookResponse{Metadata: models.OutlookMetadata{SampledDays: 7}}, nil
	}

	var wg sync.WaitGroup
	var sharedCount atomic.Int32
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, shared, err := rc.GetOrDo(context.Background(), "k1", fn); err != nil {
			t.Errorf("leader error = %v", err)
		} else if shared {
			sharedCount.Add(1)
		}
	}()
	<-started

	const waiters = 4
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, shared, err := rc.GetOrDo(context.Background(), "k1", fn)
			if err != nil {
				t.Errorf("waiter error = %v", err)
				return
			}
			if shared {
				sharedCount.Add(1)
			}
			if got.Metadata.SampledDays != 7 {
				t.Errorf("waiter result = %+v", got)
			}
		}()
	}
	// Give the waiters a moment to register before releasing the leader.
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if executions.Load() != 1 {
		t.Errorf("executions = %d, want 1", executions.Load())
	}
	if sharedCount.Load() != waiters {
		t.Errorf("shared callers = %d, want %d", sharedCount.Load(), waiters)
	}
}

// TestGetOrDo_PropagatesError verifies waiters receive the leader's error.
func TestGetOrDo_PropagatesError(t *testing.T) {
	rc := newRequestCoalescer(time.Second)

	wantErr := errors.New("upstream down")
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _, _ = rc.GetOrDo(context.Background(), "k1", func() (models.OutlookResponse, error) {
			close(started)
			<-release
			return models.OutlookResponse{}, wantErr
		})
	}()
	<-started

	done := make(chan error, 1)
	go func() {
		_, _, err := rc.GetOrDo(context.Background(), "k1", func() (models.OutlookResponse, error) {
			t.Error("waiter executed the function itself")
			return models.OutlookResponse{}, nil
		})
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)

	if err := <-done; !errors.Is(err, wantErr) {
		t.Errorf("waiter error = %v, want %v", err, wantErr)
	}
}

// TestGetOrDo_WaiterTimeout verifies a waiter gives up after the coalescer
// timeout instead of blocking on a stuck leader.
func TestGetOrDo_WaiterTimeout(t *testing.T) {
	rc := newRequestCoalescer(20 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	go func() {
		_, _, _ = rc.GetOrDo(context.Background(), "k1", func() (models.OutlookResponse, error) {
			close(started)
			<-release
			return models.OutlookResponse{}, nil
		})
	}()
	<-started

	_, shared, err := rc.GetOrDo(context.Background(), "k1", func() (models.OutlookResponse, error) {
		t.Error("waiter executed the function itself")
		return models.OutlookResponse{}, nil
	})
	if !shared {
		t.Error("shared = false for a timed-out waiter, want true")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

// TestGetOrDo_DistinctKeysRunIndependently verifies different keys never
// coalesce.
func TestGetOrDo_DistinctKeysRunIndependently(t *testing.T) {
	rc := newRequestCoalescer(time.Second)

	var executions atomic.Int32
	fn := func() (models.OutlookResponse, error) {
		executions.Add(1)
		return models.OutlookResponse{}, nil
	}
	if _, _, err := rc.GetOrDo(context.Background(), "k1", fn); err != nil {
		t.Fatalf("GetOrDo(k1) error = %v", err)
	}
	if _, _, err := rc.GetOrDo(context.Background(), "k2", fn); err != nil {
		t.Fatalf("GetOrDo(k2) error = %v", err)
	}
	if executions.Load() != 2 {
		t.Errorf("executions = %d, want 2", executions.Load())
	}
}
