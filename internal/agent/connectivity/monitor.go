package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Monitor holds the agent's view of whether the punch API is reachable.
// Subscribers get every state change.
type Monitor struct {
	mu     sync.RWMutex
	online bool
	subs   map[int]chan bool
	nextID int
}

// NewMonitor creates a monitor starting in the given state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online, subs: make(map[int]chan bool)}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set updates the state and reports whether it changed.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return false
	}
	m.online = online

	for _, ch := range m.subs {
		// Drop the oldest pending state so the subscriber always sees the latest.
		select {
		case ch <- online:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- online
		}
	}
	return true
}

// Subscribe returns a channel of state changes and a cancel func that
// unregisters and closes it.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan bool, 1)
	m.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// HealthChecker is anything that can tell whether the server answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Prober turns periodic health checks into monitor updates.
type Prober struct {
	monitor  *Monitor
	checker  HealthChecker
	interval time.Duration
	timeout  time.Duration
}

// NewProber creates a prober checking every interval.
func NewProber(m *Monitor, checker HealthChecker, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Prober{
		monitor:  m,
		checker:  checker,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// Run probes immediately and then on every tick until ctx is canceled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

// Probe runs a single health check and records the outcome.
func (p *Prober) Probe(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.checker.Ping(pingCtx)
	online := err == nil
	if p.monitor.Set(online) {
		if online {
			log.Info().Msg("Punch API reachable, agent is online")
		} else {
			log.Warn().Err(err).Msg("Punch API unreachable, agent is offline")
		}
	}
	return online
}
