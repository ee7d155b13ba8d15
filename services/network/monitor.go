// Package network observes connectivity transitions for the session
// controller. Loss pauses playback; restoration is recorded but never
// auto-resumes.
package network

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Event is a connectivity transition.
type Event int

const (
	EventLost Event = iota
	EventRestored
)

func (e Event) String() string {
	if e == EventLost {
		return "lost"
	}
	return "restored"
}

// Monitor is the connectivity collaborator. Events deduplicates: it only
// emits on state change, never on every probe.
type Monitor interface {
	Events() <-chan Event
}

// ProbeMonitor polls an HTTP endpoint on an interval and emits Lost and
// Restored transitions.
type ProbeMonitor struct {
	client   *http.Client
	probeURL string
	interval time.Duration

	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewProbeMonitor builds a monitor; Start must be called to begin probing.
func NewProbeMonitor(probeURL string, interval time.Duration, client *http.Client) *ProbeMonitor {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ProbeMonitor{
		client:   client,
		probeURL: probeURL,
		interval: interval,
		events:   make(chan Event, 4),
		done:     make(chan struct{}),
	}
}

func (m *ProbeMonitor) Events() <-chan Event {
	return m.events
}

// Start launches the probe loop. The first probe establishes the baseline
// state without emitting.
func (m *ProbeMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

// Stop halts probing and closes the event channel. Safe on a monitor that
// was never started.
func (m *ProbeMonitor) Stop() {
	m.once.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.done
		}
		close(m.events)
	})
}

func (m *ProbeMonitor) run(ctx context.Context) {
	defer close(m.done)

	online := m.probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := m.probe(ctx)
			if now == online {
				continue
			}
			online = now
			ev := EventLost
			if online {
				ev = EventRestored
			}
			log.Printf("[network] connectivity %s", ev)
			select {
			case m.events <- ev:
			default:
				// Slow consumer; drop rather than block the probe loop.
			}
		}
	}
}

func (m *ProbeMonitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
