// Package connectivity tracks online/offline state and triggers resyncs.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/retailpoint/possync/internal/logging"
)

// EventKind classifies a connectivity transition.
type EventKind string

const (
	// EventResync fires on an offline-to-online transition, and when the
	// app becomes visible again while online (an online transition may
	// have been missed while backgrounded).
	EventResync EventKind = "resync"

	// EventWentOffline fires on a transition to offline. No sync is
	// attempted; new operations must be queued.
	EventWentOffline EventKind = "went_offline"
)

// Event is a connectivity transition delivered to subscribers.
type Event struct {
	Kind   EventKind
	Online bool
	At     time.Time
}

// Probe reports whether the remote store is currently reachable.
type Probe func(ctx context.Context) bool

// Config configures a Monitor.
type Config struct {
	// InitialOnline seeds the state; the reported connectivity at startup.
	InitialOnline bool

	// Probe, when set, is polled every ProbeInterval to drive SetOnline in
	// headless deployments that have no external connectivity signal.
	Probe         Probe
	ProbeInterval time.Duration
}

// Monitor is the single source of truth for "are we online". External
// connectivity and visibility signals are injected via SetOnline and
// SetVisible; subscribers receive transition events.
type Monitor struct {
	mu      sync.Mutex
	online  bool
	visible bool

	nextSub int
	subs    map[int]func(Event)

	probe         Probe
	probeInterval time.Duration

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Monitor. The app is considered visible until told otherwise.
func New(cfg Config) *Monitor {
	interval := cfg.ProbeInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		online:        cfg.InitialOnline,
		visible:       true,
		subs:          make(map[int]func(Event)),
		probe:         cfg.Probe,
		probeInterval: interval,
		stopCh:        make(chan struct{}),
	}
}

// IsOnline returns the current connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange subscribes to connectivity events and returns an unsubscribe
// function. Callbacks run synchronously on the signalling goroutine and
// must not block.
func (m *Monitor) OnChange(cb func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = cb

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// SetOnline injects a connectivity signal. An offline-to-online transition
// emits a resync event; online-to-offline emits a went-offline event.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	subs := m.snapshotSubs()
	m.mu.Unlock()

	if online == wasOnline {
		return
	}

	logging.Info("connectivity changed", map[string]interface{}{
		"was_online": wasOnline,
		"is_online":  online,
	})

	ev := Event{Online: online, At: time.Now()}
	if online {
		ev.Kind = EventResync
	} else {
		ev.Kind = EventWentOffline
	}
	for _, cb := range subs {
		cb(ev)
	}
}

// SetVisible injects a visibility signal. Becoming visible while online
// emits a resync event, covering online transitions missed while hidden.
func (m *Monitor) SetVisible(visible bool) {
	m.mu.Lock()
	wasVisible := m.visible
	m.visible = visible
	online := m.online
	subs := m.snapshotSubs()
	m.mu.Unlock()

	if !visible || wasVisible || !online {
		return
	}

	ev := Event{Kind: EventResync, Online: true, At: time.Now()}
	for _, cb := range subs {
		cb(ev)
	}
}

// snapshotSubs copies the subscriber list; callers must hold m.mu.
func (m *Monitor) snapshotSubs() []func(Event) {
	subs := make([]func(Event), 0, len(m.subs))
	for _, cb := range m.subs {
		subs = append(subs, cb)
	}
	return subs
}

// Start begins the probe loop, if a probe is configured. Without a probe
// the monitor is purely signal-driven and Start is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running || m.probe == nil {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx)
}

// Stop stops the probe loop and waits for it to finish.
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

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, m.probeInterval)
			online := m.probe(probeCtx)
			cancel()
			m.SetOnline(online)
		}
	}
}
