package connectivity

import (
	"context"
	"net"
	"time"

	"github.com/Nyvram23/Utility-Box/internal/logging"
)

// DialFunc opens a connection; it matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Prober periodically dials a TCP address and reports the outcome to a Monitor.
type Prober struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	monitor  *Monitor
	dial     DialFunc
}

// DefaultCheckInterval is used when NewProber is given a non-positive interval.
const DefaultCheckInterval = 30 * time.Second

// NewProber creates a prober for addr. A nil dial uses net.Dialer.
func NewProber(monitor *Monitor, addr string, interval time.Duration, dial DialFunc) *Prober {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if dial == nil {
		d := &net.Dialer{}
		dial = d.DialContext
	}
	timeout := 5 * time.Second
	if interval < timeout {
		timeout = interval
	}
	return &Prober{
		addr:     addr,
		interval: interval,
		timeout:  timeout,
		monitor:  monitor,
		dial:     dial,
	}
}

// Probe performs one check and feeds the result to the monitor.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.addr)
	online := err == nil
	if online {
		conn.Close()
	} else {
		logging.Debug("Connectivity probe failed", map[string]interface{}{
			"addr":  p.addr,
			"error": err.Error(),
		})
	}

	p.monitor.SetOnline(online)
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
