package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconnectLoop_TickConnectsAndReportsStillConnected(t *testing.T) {
	fn := newFakeNet()
	m := NewManager(testOptions(fn), nil)
	loop := NewReconnectLoop(m, time.Hour, nil)
	ctx := context.Background()

	events, cancel := m.Hub().Subscribe(16)
	defer cancel()

	// Nothing listening: the cycle's disconnected notification, then the
	// attempt, which also ends disconnected.
	loop.Tick(ctx)
	assert.Equal(t, EventDisconnected, recvEvent(t, events).Type)
	assert.Equal(t, EventConnecting, recvEvent(t, events).Type)
	assert.Equal(t, EventDisconnected, recvEvent(t, events).Type)
	assert.False(t, m.Status().Connected)

	// Executor appears: disconnected for this cycle, connecting, then connected.
	fn.set(DefaultMinPort, executorPeer())
	loop.Tick(ctx)
	assert.Equal(t, EventDisconnected, recvEvent(t, events).Type)
	assert.Equal(t, EventConnecting, recvEvent(t, events).Type)
	ev := recvEvent(t, events)
	assert.Equal(t, EventConnected, ev.Type)
	assert.Equal(t, DefaultMinPort, ev.Status.BoundPort)

	loop.Tick(ctx)
	assert.Equal(t, EventStillConnected, recvEvent(t, events).Type)
}

func TestReconnectLoop_TickHealsLostConnection(t *testing.T) {
	fn := newFakeNet()
	fn.set(DefaultMinPort, executorPeer())
	m := NewManager(testOptions(fn), nil)
	loop := NewReconnectLoop(m, time.Hour, nil)
	ctx := context.Background()

	require.True(t, m.Connect(ctx, DefaultMinPort))

	events, cancel := m.Hub().Subscribe(16)
	defer cancel()

	fn.remove(DefaultMinPort)
	loop.Tick(ctx)

	// The lost binding, then the retry on the same port.
	want := []EventType{EventDisconnected, EventConnecting, EventDisconnected}
	for _, typ := range want {
		ev := recvEvent(t, events)
		assert.Equal(t, typ, ev.Type)
		assert.False(t, ev.Status.Connected)
	}

	select {
	case extra := <-events:
		t.Fatalf("unexpected extra notification %q", extra.Type)
	default:
	}
}

func TestReconnectLoop_DoesNotAdvancePort(t *testing.T) {
	fn := newFakeNet()
	fn.set(DefaultMinPort+1, executorPeer())
	m := NewManager(testOptions(fn), nil)
	loop := NewReconnectLoop(m, time.Hour, nil)

	for i := 0; i < 3; i++ {
		loop.Tick(context.Background())
	}
	assert.Equal(t, DefaultMinPort, m.Status().CurrentPort)
	assert.False(t, m.Status().Connected)

	m.IncrementPort()
	loop.Tick(context.Background())
	assert.True(t, m.Status().Connected)
	assert.Equal(t, DefaultMinPort+1, m.Status().BoundPort)
}

func TestReconnectLoop_RunStopsOnCancel(t *testing.T) {
	fn := newFakeNet()
	fn.set(DefaultMinPort, executorPeer())
	m := NewManager(testOptions(fn), nil)
	loop := NewReconnectLoop(m, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Status().Connected }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestReconnectLoop_StartStop(t *testing.T) {
	fn := newFakeNet()
	m := NewManager(testOptions(fn), nil)
	loop := NewReconnectLoop(m, 10*time.Millisecond, nil)

	loop.Start(context.Background())
	loop.Start(context.Background()) // no second goroutine

	fn.set(DefaultMinPort, executorPeer())
	require.Eventually(t, func() bool { return m.Status().Connected }, 2*time.Second, 5*time.Millisecond)

	loop.Stop()
	loop.Stop()

	fn.remove(DefaultMinPort)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, m.Status().Connected, "a stopped loop must not probe")
}

func TestNewReconnectLoop_DefaultInterval(t *testing.T) {
	loop := NewReconnectLoop(NewManager(Options{}, nil), 0, nil)
	assert.Equal(t, DefaultCheckInterval, loop.Interval())
}
