package core

// limiter.go implements concurrency control for batch processing.
//
// Each batch holds a slot for its entire paced run, so a handful of large
// uploads can occupy the service for minutes. The limiter caps how many
// batches run at once and makes new requests wait briefly for a slot before
// failing with ErrTooManyBatches. WaitForDrain supports graceful shutdown by
// blocking until the active batches finish.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyBatches is returned when all batch slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyBatches = errors.New("too many concurrent batches, please try again later")

// DefaultMaxConcurrentBatches is the default limit for parallel batches.
const DefaultMaxConcurrentBatches = 3

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// BatchLimiter controls concurrent batch processing using a semaphore.
type BatchLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewBatchLimiter creates a limiter allowing at most maxConcurrent
// simultaneous batches. Requests that cannot acquire a slot within maxWait
// receive ErrTooManyBatches.
func NewBatchLimiter(maxConcurrent int, maxWait time.Duration) *BatchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBatches
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &BatchLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire attempts to acquire a batch slot.
// Returns nil on success, ErrTooManyBatches if the timeout expires.
// The caller MUST call Release() when the batch completes (use defer).
func (l *BatchLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyBatches

	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire.
func (l *BatchLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of currently running batches.
func (l *BatchLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until all active batches complete or the context is
// cancelled. Used for graceful shutdown so paced submissions finish their
// accounting before termination.
func (l *BatchLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// BatchLimiterStatus is a snapshot of the limiter's current state.
type BatchLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *BatchLimiter) Status() BatchLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return BatchLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
