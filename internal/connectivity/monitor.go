// Package connectivity tracks whether the device can reach the network.
package connectivity

import (
	"sync"

	"github.com/Nyvram23/Utility-Box/internal/logging"
)

// Listener is invoked on every state edge with the new state.
type Listener func(online bool)

type subscription struct {
	id int
	fn Listener
}

// Monitor holds the current connectivity state and fans out edge events.
// It never fails; platform reports may be wrong and downstream retry logic
// tolerates that.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners []subscription
	nextID    int
}

// NewMonitor creates a monitor starting in the given state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

// IsOnline returns the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a platform report. Listeners run only on a transition,
// synchronously and in subscription order, outside the monitor lock.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]subscription, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	logging.Info("Online status changed", map[string]interface{}{
		"was_online": !online,
		"is_online":  online,
	})

	for _, l := range listeners {
		l.fn(online)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (m *Monitor) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, subscription{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}
