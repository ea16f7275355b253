package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/climate-outlook-service/internal/models"
)

// inFlightRequest tracks a single outlook computation that multiple callers may wait for.
type inFlightRequest struct {
	mu      sync.Mutex
	result  models.OutlookResponse
	err     error
	done    bool
	waiters []chan struct{} // Channels to notify waiters when result is ready
}

// requestCoalescer prevents duplicate upstream fetches by coalescing
// concurrent computations for the same outlook key. Recomputation is
// deterministic, so every waiter can safely share one result.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest
	timeout  time.Duration
}

// newRequestCoalescer creates a new requestCoalescer with the specified timeout.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightRequest),
		timeout:  timeout,
	}
}

// GetOrDo checks if a computation for key is already in-flight. If yes,
// waits for its result and reports shared=true. If no, executes fn and
// registers the computation. Respects context cancellation and timeout to
// prevent indefinite blocking.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.OutlookResponse, error)) (_ models.OutlookResponse, shared bool, _ error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if exists {
		// Computation in-flight - wait for it
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			// Already completed
			result := req.result
			err := req.err
			req.mu.Unlock()
			rc.mu.Unlock()
			if err != nil {
				return models.OutlookResponse{}, true, err
			}
			return result, true, nil
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		rc.mu.Unlock()

		// Wait for notification or timeout
		waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
		defer cancel()
		select {
		case <-notify:
			req.mu.Lock()
			result := req.result
			err := req.err
			req.mu.Unlock()
			if err != nil {
				return models.OutlookResponse{}, true, err
			}
			return result, true, nil
		case <-waitCtx.Done():
			return models.OutlookResponse{}, true, waitCtx.Err()
		}
	}

	// No existing computation - create one
	req = &inFlightRequest{
		waiters: make([]chan struct{}, 0),
	}
	rc.inFlight[key] = req
	rc.mu.Unlock()

	result, err := fn()

	req.mu.Lock()
	req.result = result
	req.err = err
	req.done = true
	waiters := req.waiters
	req.waiters = nil
	req.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()

	if err != nil {
		return models.OutlookResponse{}, false, err
	}
	return result, false, nil
}
