package executor

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Manager owns the sticky connection state: the port the user is targeting,
// the port currently bound (if any), and whether a probe is in flight.
//
// The lock is never held across network I/O. Every operation copies out what
// it needs, unlocks, talks to the executor, then re-locks to commit. Commits
// are fenced by epoch, which changes on every binding or port change, so a
// slow call can only commit against the state it started from.
type Manager struct {
	prober  *Prober
	hub     *Hub
	logger  *zap.Logger
	opts    Options
	minPort int
	maxPort int

	mu         sync.Mutex
	current    int
	bound      int
	connecting int
	epoch      uint64
}

// NewManager creates a disconnected manager targeting opts.MinPort.
// A nil hub gets a private one.
func NewManager(opts Options, hub *Hub) *Manager {
	opts = opts.withDefaults()
	if hub == nil {
		hub = NewHub(opts.Logger)
	}
	return &Manager{
		prober:  NewProber(opts),
		hub:     hub,
		logger:  opts.Logger.Named("executor"),
		opts:    opts,
		minPort: opts.MinPort,
		maxPort: opts.MaxPort,
		current: opts.MinPort,
	}
}

// Hub returns the hub the manager publishes to.
func (m *Manager) Hub() *Hub {
	return m.hub
}

// Options returns the settings the manager was built with, defaults applied.
func (m *Manager) Options() Options {
	return m.opts
}

// Status returns the last committed state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Status {
	return Status{
		CurrentPort: m.current,
		BoundPort:   m.bound,
		Connected:   m.bound != 0,
		Connecting:  m.connecting > 0,
	}
}

// IsConnected re-probes the bound port. A failed probe drops the binding, so
// every liveness check heals stale state.
func (m *Manager) IsConnected(ctx context.Context) bool {
	m.mu.Lock()
	port, epoch := m.bound, m.epoch
	m.mu.Unlock()

	if port == 0 {
		return false
	}

	err := m.prober.Check(ctx, port)
	if err == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.bound == port
	}

	if ctx.Err() != nil {
		// Caller gave up; that says nothing about the executor.
		return false
	}

	m.logger.Debug("liveness probe failed", zap.Int("port", port), zap.Error(err))
	m.dropBinding(epoch)
	return false
}

// Connect probes port and binds it on success. The port is used as given;
// it is not checked against the configured range and no other port is tried.
// A failed probe leaves the manager disconnected.
//
// The first Connect to start while none is in flight publishes a connecting
// event. When the last one in flight finishes it publishes connected or
// disconnected, so observers always see the connecting flag drop.
func (m *Manager) Connect(ctx context.Context, port int) bool {
	m.mu.Lock()
	epoch := m.epoch
	m.connecting++
	if m.connecting == 1 {
		// Published under mu so it cannot overtake the settling event.
		m.publish(EventConnecting, m.snapshotLocked())
	}
	m.mu.Unlock()

	err := m.prober.Check(ctx, port)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.connecting--

	ok, event := m.commitConnectLocked(ctx, port, epoch, err)
	if event == "" && m.connecting == 0 {
		event = EventDisconnected
		if m.bound != 0 {
			event = EventConnected
		}
	}
	if event != "" {
		m.publish(event, m.snapshotLocked())
	}
	return ok
}

// commitConnectLocked applies a finished probe and returns the event the
// state change calls for, if any.
func (m *Manager) commitConnectLocked(ctx context.Context, port int, epoch uint64, err error) (bool, EventType) {
	if err != nil {
		m.logger.Debug("connect probe failed", zap.Int("port", port), zap.Error(err))
		if ctx.Err() != nil || m.epoch != epoch || m.bound == 0 {
			return false, ""
		}
		m.bound = 0
		m.epoch++
		return false, EventDisconnected
	}

	if m.epoch != epoch {
		// Someone changed the port or the binding while we were probing.
		return m.bound == port, ""
	}

	if m.bound == port && m.current == port {
		return true, ""
	}
	m.bound = port
	m.current = port
	m.epoch++
	m.logger.Info("connected to executor", zap.Int("port", port))
	return true, EventConnected
}

// Send posts payload to the bound port. It returns false immediately when
// nothing is bound, and true iff the executor answered 2xx. A transport error
// drops the binding; a non-2xx answer does not.
func (m *Manager) Send(ctx context.Context, payload string) bool {
	m.mu.Lock()
	port, epoch := m.bound, m.epoch
	m.mu.Unlock()

	if port == 0 {
		return false
	}

	res, err := m.prober.Execute(ctx, port, payload)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Info("send failed, dropping connection", zap.Int("port", port), zap.Error(err))
			m.dropBinding(epoch)
		}
		return false
	}
	if !res.OK() {
		m.logger.Debug("executor rejected payload",
			zap.Int("port", port),
			zap.Int("status", res.StatusCode))
		return false
	}
	return true
}

// ChangeSetting sends a "<key> <value>" command over the script channel.
func (m *Manager) ChangeSetting(ctx context.Context, key, value string) bool {
	return m.Send(ctx, FormatSetting(key, value))
}

// FormatSetting renders a setting command the way the executor expects it.
func FormatSetting(key, value string) string {
	return key + " " + value
}

// Refresh runs one connect attempt against the current port and returns the
// resulting state.
func (m *Manager) Refresh(ctx context.Context) Status {
	m.mu.Lock()
	port := m.current
	m.mu.Unlock()

	m.Connect(ctx, port)
	return m.Status()
}

// IncrementPort advances the current port, wrapping from the top of the range
// back to the bottom. Any binding is dropped, even a live one.
func (m *Manager) IncrementPort() Status {
	m.mu.Lock()
	next := m.current + 1
	if m.current >= m.maxPort {
		next = m.minPort
	}
	m.current = next
	m.bound = 0
	m.epoch++
	st := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Debug("current port advanced", zap.Int("port", next))
	m.publish(EventDisconnected, st)
	return st
}

// dropBinding clears the binding if nothing has changed since epoch.
func (m *Manager) dropBinding(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.bound == 0 {
		m.mu.Unlock()
		return
	}
	port := m.bound
	m.bound = 0
	m.epoch++
	st := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("executor connection lost", zap.Int("port", port))
	m.publish(EventDisconnected, st)
}

func (m *Manager) publish(t EventType, st Status) {
	m.hub.Publish(Event{Type: t, Status: st})
}
