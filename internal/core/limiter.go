package core

// limiter.go bounds concurrent pipeline builds.
//
// A build holds every source file's rows in memory at once, so the service
// runs at most one at a time by default. A caller that cannot get a slot
// within maxWait fails with ErrBusy instead of queueing indefinitely.
// WaitForDrain lets the server finish an in-flight build on shutdown.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxConcurrentBuilds is the default limit for parallel builds.
const DefaultMaxConcurrentBuilds = 1

// DefaultBuildWait is how long to wait for a slot before rejecting.
const DefaultBuildWait = 2 * time.Minute

// BuildLimiter controls concurrent builds using a semaphore.
type BuildLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewBuildLimiter creates a limiter that allows at most maxConcurrent
// simultaneous builds. Callers that cannot acquire a slot within maxWait
// receive ErrBusy.
func NewBuildLimiter(maxConcurrent int, maxWait time.Duration) *BuildLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBuilds
	}
	if maxWait <= 0 {
		maxWait = DefaultBuildWait
	}

	return &BuildLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a build slot.
// The caller MUST call Release() when the build completes (use defer).
func (l *BuildLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		// Distinguish the caller giving up from our own timeout.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
}

// TryAcquire acquires a slot without blocking.
func (l *BuildLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (l *BuildLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running builds.
func (l *BuildLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no build is running or ctx is done.
func (l *BuildLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// BuildLimiterStatus is a snapshot of the limiter.
type BuildLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *BuildLimiter) Status() BuildLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return BuildLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
