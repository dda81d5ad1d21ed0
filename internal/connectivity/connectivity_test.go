package connectivity

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type edgeLog struct {
	mu    sync.Mutex
	edges []bool
}

func (e *edgeLog) record(online bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, online)
}

func (e *edgeLog) get() []bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bool(nil), e.edges...)
}

// TestMonitor_edgeTriggered verifies listeners fire only on transitions.
func TestMonitor_edgeTriggered(t *testing.T) {
	m := NewMonitor(true)
	log := &edgeLog{}
	m.Subscribe(log.record)

	m.SetOnline(true)
	m.SetOnline(false)
	m.SetOnline(false)
	m.SetOnline(false)
	m.SetOnline(true)
	m.SetOnline(true)

	assert.Equal(t, []bool{false, true}, log.get())
	assert.True(t, m.IsOnline())
}

// TestMonitor_unsubscribe verifies a removed listener no longer fires.
func TestMonitor_unsubscribe(t *testing.T) {
	m := NewMonitor(false)
	first, second := &edgeLog{}, &edgeLog{}

	unsubscribe := m.Subscribe(first.record)
	m.Subscribe(second.record)

	m.SetOnline(true)
	unsubscribe()
	unsubscribe()
	m.SetOnline(false)

	assert.Equal(t, []bool{true}, first.get())
	assert.Equal(t, []bool{true, false}, second.get())
}

// TestMonitor_listenerMayQueryState verifies listeners can call back into the monitor.
func TestMonitor_listenerMayQueryState(t *testing.T) {
	m := NewMonitor(false)
	var seen bool
	m.Subscribe(func(bool) { seen = m.IsOnline() })

	m.SetOnline(true)
	assert.True(t, seen)
}

type fakeConn struct{ net.Conn }

func (fakeConn) Close() error { return nil }

// TestProber_Probe verifies dial outcomes drive the monitor.
func TestProber_Probe(t *testing.T) {
	m := NewMonitor(true)
	fail := true
	p := NewProber(m, "example.invalid:443", time.Second, func(ctx context.Context, network, addr string) (net.Conn, error) {
		if fail {
			return nil, errors.New("no route to host")
		}
		return fakeConn{}, nil
	})

	assert.False(t, p.Probe(context.Background()))
	assert.False(t, m.IsOnline())

	fail = false
	assert.True(t, p.Probe(context.Background()))
	assert.True(t, m.IsOnline())
}

// TestProber_Run verifies the loop probes periodically and stops on cancel.
func TestProber_Run(t *testing.T) {
	m := NewMonitor(false)
	var mu sync.Mutex
	calls := 0
	p := NewProber(m, "localhost:1", 10*time.Millisecond, func(ctx context.Context, network, addr string) (net.Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return fakeConn{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, time.Second, 5*time.Millisecond)
	assert.True(t, m.IsOnline())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prober did not stop")
	}
}

// TestReachability_nonPositiveInterval verifies a zero or negative interval falls
// back to the default instead of crashing Run.
func TestReachability_nonPositiveInterval(t *testing.T) {
	refuse := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	for _, interval := range []time.Duration{0, -time.Second} {
		m := NewMonitor(true)
		p := NewProber(m, "127.0.0.1:1", interval, refuse)
		assert.Equal(t, DefaultCheckInterval, p.interval)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			assert.NotPanics(t, func() { p.Run(ctx) })
		}()

		require.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, 5*time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("prober did not stop")
		}
	}
}
