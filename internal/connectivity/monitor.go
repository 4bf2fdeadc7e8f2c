// Package connectivity tracks whether the remote store is reachable and
// notifies listeners on transitions.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Prober checks reachability of the remote collaborator. The remote client's
// health check is the production implementation.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor holds the current online/offline state. Callbacks are dispatched
// synchronously on the goroutine performing the transition; a panicking
// callback is recovered so the remaining callbacks still run.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	onOnline  []func()
	onOffline []func()

	prober   Prober
	interval time.Duration
	log      *logrus.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewMonitor creates a Monitor that polls prober every interval once started.
// Initial state is offline until the first successful probe.
func NewMonitor(prober Prober, interval time.Duration, log *logrus.Logger) *Monitor {
	return &Monitor{
		prober:   prober,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// IsOnline reports the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline registers a callback for offline→online transitions.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// OnOffline registers a callback for online→offline transitions.
func (m *Monitor) OnOffline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, fn)
}

// SetOnline records a state transition and dispatches the matching
// callbacks. Setting the current state again is a no-op.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	var callbacks []func()
	if online {
		callbacks = append(callbacks, m.onOnline...)
	} else {
		callbacks = append(callbacks, m.onOffline...)
	}
	m.mu.Unlock()

	for _, fn := range callbacks {
		m.dispatch(fn)
	}
}

func (m *Monitor) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", r).Error("connectivity callback panicked")
		}
	}()
	fn()
}

// Start begins background probing. Safe to call once.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.probe(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.probe(ctx)
			case <-m.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts background probing. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()
	err := m.prober.Ping(probeCtx)
	m.SetOnline(err == nil)
}
