package inventory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultScanInterval is used when no auto-scan interval is configured.
const DefaultScanInterval = 5 * time.Minute

// Persister rescans connected users and saves the result.
type Persister interface {
	ScanAll(ctx context.Context)
	Save(ctx context.Context) error
}

// RunAutoScan rescans and saves on every tick until ctx is done.
func RunAutoScan(ctx context.Context, p Persister, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("started inventory auto-scan", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ScanAll(ctx)
			if err := p.Save(ctx); err != nil {
				logger.Error("inventory auto-save failed", zap.Error(err))
			}
		}
	}
}

// AutoScanner owns one RunAutoScan loop and restarts it when the settings
// change.
type AutoScanner struct {
	persister Persister
	logger    *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
}

// NewAutoScanner creates a stopped AutoScanner for p.
func NewAutoScanner(p Persister, logger *zap.Logger) *AutoScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoScanner{persister: p, logger: logger}
}

// Configure stops the running loop and, when enabled, starts a new one with
// interval. The loop runs until ctx is done or Stop is called. Calling it
// with unchanged settings keeps the running loop.
func (a *AutoScanner) Configure(ctx context.Context, enabled bool, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if enabled && a.cancel != nil && a.interval == interval {
		return
	}
	a.stopLocked()
	if !enabled {
		a.logger.Info("inventory auto-scan disabled")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel, a.done, a.interval = cancel, done, interval
	go func() {
		defer close(done)
		RunAutoScan(loopCtx, a.persister, interval, a.logger)
	}()
}

// Running reports whether a loop is active and its interval.
func (a *AutoScanner) Running() (bool, time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil, a.interval
}

// Stop ends the running loop and waits for it to return.
func (a *AutoScanner) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *AutoScanner) stopLocked() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	<-a.done
	a.cancel, a.done, a.interval = nil, nil, 0
}
