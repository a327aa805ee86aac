// Package network tracks sync server reachability so the engine can skip
// work while offline and fire a sync when connectivity returns.
package network

import (
	"context"
	"log"
	"sync"
	"time"
)

// Probe reports whether the server is currently reachable.
type Probe func(ctx context.Context) error

// Listener is notified when the online state flips.
type Listener func(online bool)

const (
	defaultProbeInterval = 30 * time.Second
	probeTimeout         = 5 * time.Second
)

// Monitor polls a reachability probe and broadcasts state transitions.
// It starts pessimistic: consumers see offline until the first probe succeeds.
type Monitor struct {
	probe    Probe
	interval time.Duration

	mu        sync.RWMutex
	online    bool
	nextID    int
	listeners map[int]Listener
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	return &Monitor{
		probe:     probe,
		interval:  interval,
		listeners: make(map[int]Listener),
	}
}

// Start launches the probe loop. The first probe runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsOnline returns the last observed reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers a listener for online/offline transitions and returns
// a cancel function.
func (m *Monitor) Subscribe(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = l

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// CheckNow runs a probe immediately and returns the resulting state.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	return m.runProbe(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	m.runProbe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runProbe(ctx)
		}
	}
}

func (m *Monitor) runProbe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	online := m.probe(probeCtx) == nil
	m.setOnline(online)
	return online
}

func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	var listeners []Listener
	if changed {
		listeners = make([]Listener, 0, len(m.listeners))
		for _, l := range m.listeners {
			listeners = append(listeners, l)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		log.Printf("network: server reachable")
	} else {
		log.Printf("network: server unreachable")
	}
	for _, l := range listeners {
		l(online)
	}
}
