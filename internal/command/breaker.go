package command

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while a BreakerDispatcher is rejecting
// executions.
var ErrBreakerOpen = errors.New("command dispatcher circuit is open")

// BreakerState represents the current state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed passes every execution through. Failures are counted.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects executions without calling the dispatcher.
	BreakerOpen
	// BreakerHalfOpen lets trial executions through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerSettings tunes a BreakerDispatcher. Non-positive values fall back
// to 5 failures, 2 successes and a 30s open period.
type BreakerSettings struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// BreakerDispatcher stops calling a failing dispatcher for a while so a dead
// broker or a lost host does not add latency to every interaction. It trips
// after FailureThreshold consecutive failures and closes again after
// SuccessThreshold consecutive successful trial executions.
type BreakerDispatcher struct {
	next Dispatcher
	now  func() time.Time

	mu               sync.Mutex
	state            BreakerState
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	openedAt         time.Time
}

// NewBreakerDispatcher wraps next.
func NewBreakerDispatcher(next Dispatcher, s BreakerSettings) *BreakerDispatcher {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold < 1 {
		s.SuccessThreshold = 2
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	return &BreakerDispatcher{
		next:             next,
		now:              time.Now,
		failureThreshold: s.FailureThreshold,
		successThreshold: s.SuccessThreshold,
		timeout:          s.OpenTimeout,
	}
}

// Name implements Dispatcher. The wrapped name is kept so metrics stay keyed
// by the real destination.
func (b *BreakerDispatcher) Name() string { return b.next.Name() }

// Execute implements Dispatcher.
func (b *BreakerDispatcher) Execute(ctx context.Context, exec Execution) error {
	if !b.allow() {
		return ErrBreakerOpen
	}
	err := b.next.Execute(ctx, exec)
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// State returns the current breaker state.
func (b *BreakerDispatcher) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// HealthCheck fails with ErrBreakerOpen while the breaker is open and
// otherwise reports the wrapped dispatcher's health when it has a check.
func (b *BreakerDispatcher) HealthCheck(ctx context.Context) error {
	if b.State() == BreakerOpen {
		return ErrBreakerOpen
	}
	if hc, ok := b.next.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (b *BreakerDispatcher) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state != BreakerOpen
}

func (b *BreakerDispatcher) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = BreakerClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *BreakerDispatcher) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	case BreakerHalfOpen:
		// A failed trial reopens immediately.
		b.trip()
	}
}

// Must be called with the lock held.
func (b *BreakerDispatcher) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.successes = 0
}

// Must be called with the lock held.
func (b *BreakerDispatcher) maybeHalfOpen() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.timeout {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
}
