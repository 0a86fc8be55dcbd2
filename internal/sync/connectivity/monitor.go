// Package connectivity probes network reachability and notifies listeners on
// state changes. A failed probe means "unknown/degraded", not proven
// offline: slow links fail the probe while real sync calls still succeed, so
// callers are expected to attempt sync regardless and let individual calls
// fail gracefully.
package connectivity

import (
	"net/http"
	"sync"
	"time"

	"github.com/niyaskv/offsync/internal/logging"
)

const (
	defaultInterval = 30 * time.Second
	defaultTimeout  = 20 * time.Second
)

// Listener receives the new connectivity state on each flip.
type Listener func(connected bool)

// Monitor periodically probes a fixed endpoint and tracks reachability.
type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client

	mu        sync.Mutex
	connected bool
	listeners []Listener

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the probe interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.client.Timeout = d }
}

// NewMonitor creates a Monitor probing probeURL. The initial state is
// disconnected until the first successful probe.
func NewMonitor(probeURL string, opts ...Option) *Monitor {
	m := &Monitor{
		probeURL: probeURL,
		interval: defaultInterval,
		client:   &http.Client{Timeout: defaultTimeout},
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsConnected returns the last observed state.
func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// OnChange registers a listener invoked only when the state flips, never on
// every poll.
func (m *Monitor) OnChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// CheckNow synchronously probes the endpoint, updates the state, and fires
// listeners on a flip. Returns the new state.
func (m *Monitor) CheckNow() bool {
	connected := m.probe()

	m.mu.Lock()
	flipped := connected != m.connected
	m.connected = connected
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if flipped {
		logging.Info("connectivity changed", map[string]interface{}{"connected": connected})
		for _, l := range listeners {
			l(connected)
		}
	}
	return connected
}

// probe issues a HEAD request with short timeouts. Any 2xx/3xx counts as
// reachable.
func (m *Monitor) probe() bool {
	req, err := http.NewRequest(http.MethodHead, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// Start launches the periodic probe loop. The first probe runs immediately.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.CheckNow()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.CheckNow()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}
