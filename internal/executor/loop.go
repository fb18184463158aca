package executor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconnectLoop periodically re-validates the bound port and, while
// disconnected, retries the current port. It never advances the port.
type ReconnectLoop struct {
	manager  *Manager
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconnectLoop creates a loop for m. A non-positive interval uses
// DefaultCheckInterval.
func NewReconnectLoop(m *Manager, interval time.Duration, logger *zap.Logger) *ReconnectLoop {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconnectLoop{
		manager:  m,
		interval: interval,
		logger:   logger.Named("reconnect"),
	}
}

// Interval returns the loop period.
func (l *ReconnectLoop) Interval() time.Duration {
	return l.interval
}

// Run checks immediately, then once per interval, until ctx is done.
func (l *ReconnectLoop) Run(ctx context.Context) error {
	l.logger.Debug("reconnect loop started", zap.Duration("interval", l.interval))
	defer l.logger.Debug("reconnect loop stopped")

	l.Tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs a single cycle.
func (l *ReconnectLoop) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	wasBound := l.manager.Status().Connected
	if l.manager.IsConnected(ctx) {
		l.manager.publish(EventStillConnected, l.manager.Status())
		return
	}
	if ctx.Err() != nil {
		return
	}

	// A binding that just failed was already announced by the manager.
	if !wasBound {
		l.manager.publish(EventDisconnected, l.manager.Status())
	}

	// Connect announces the attempt and its outcome.
	st := l.manager.Status()
	if l.manager.Connect(ctx, st.CurrentPort) {
		l.logger.Debug("reconnected", zap.Int("port", st.CurrentPort))
	}
}

// Start runs the loop in the background until Stop is called or ctx is done.
// Calling Start on a running loop does nothing.
func (l *ReconnectLoop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = l.Run(ctx)
	}()
}

// Stop cancels a loop started with Start and waits for it to exit.
func (l *ReconnectLoop) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	l.wg.Wait()
}
