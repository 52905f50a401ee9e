// Package staleness derives the feed health consumers see from transport health and tick recency.
package staleness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mtlprog/livefolio/internal/domain"
	"github.com/mtlprog/livefolio/internal/metrics"
)

const (
	// StalenessWindow is how long after the last tick the feed still counts as active.
	StalenessWindow = 60 * time.Second
	// CheckInterval is how often Run re-evaluates health without waiting for a tick.
	CheckInterval = 5 * time.Second
)

// IsActive reports whether a tick was received within StalenessWindow of now.
func IsActive(lastTickAt, now time.Time) bool {
	return !lastTickAt.IsZero() && now.Sub(lastTickAt) < StalenessWindow
}

// Combine merges transport health with tick recency.
//
// An offline transport is offline. A live transport whose ticks have stopped is offline too:
// the socket is open but the prices are dead. While the transport is (re)connecting, its own
// state is reported until previously received prices go stale, then offline.
// This is deliberately finer than a live/connecting/offline model: degraded is kept while
// prices are fresh, and a reconnecting feed with stale prices reports offline.
func Combine(transport domain.Health, lastTickAt, now time.Time) domain.Health {
	active := IsActive(lastTickAt, now)

	switch transport {
	case domain.HealthOffline:
		return domain.HealthOffline
	case domain.HealthLive:
		if active {
			return domain.HealthLive
		}
		return domain.HealthOffline
	default:
		if !active && !lastTickAt.IsZero() {
			return domain.HealthOffline
		}
		if transport == domain.HealthIdle {
			return domain.HealthConnecting
		}
		return transport
	}
}

// Sink receives forwarded ticks and combined health transitions.
type Sink interface {
	OnTick(tick domain.PriceTick)
	SetHealth(health domain.Health)
}

// Monitor sits between the feed connection and the reconciler. It implements feed.Observer.
type Monitor struct {
	sink     Sink
	metrics  *metrics.Recorder
	now      func() time.Time
	interval time.Duration

	// mu also serializes calls into sink, so health transitions reach it in order.
	mu         sync.Mutex
	transport  domain.Health
	lastTickAt time.Time
	health     domain.Health
}

// NewMonitor creates a monitor forwarding to sink. rec may be nil.
func NewMonitor(sink Sink, rec *metrics.Recorder) *Monitor {
	return &Monitor{
		sink:      sink,
		metrics:   rec,
		now:       time.Now,
		interval:  CheckInterval,
		transport: domain.HealthIdle,
		health:    domain.HealthIdle,
	}
}

// OnTick forwards the tick, then records its time and updates health. A result computed for
// a health change therefore always includes the tick that caused it.
func (m *Monitor) OnTick(tick domain.PriceTick) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sink.OnTick(tick)
	if tick.ReceivedAt.After(m.lastTickAt) {
		m.lastTickAt = tick.ReceivedAt
	}
	m.evaluateLocked()
}

// OnStateChange records a transport health transition.
func (m *Monitor) OnStateChange(state domain.Health) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transport = state
	m.evaluateLocked()
}

// Check re-evaluates health against the current time.
func (m *Monitor) Check() domain.Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evaluateLocked()
	return m.health
}

// Run re-evaluates health every CheckInterval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("StalenessMonitor: starting", "window", StalenessWindow, "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("StalenessMonitor: stopping")
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Health returns the last combined health.
func (m *Monitor) Health() domain.Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

// TransportHealth returns the last transport health reported by the feed.
func (m *Monitor) TransportHealth() domain.Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport
}

// LastTickAt returns when the most recent tick was received, zero if none yet.
func (m *Monitor) LastTickAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTickAt
}

func (m *Monitor) evaluateLocked() {
	next := Combine(m.transport, m.lastTickAt, m.now())
	if next == m.health {
		return
	}

	slog.Info("StalenessMonitor: health changed", "from", m.health, "to", next, "transport", m.transport)
	m.health = next
	m.metrics.SetFeedHealth(next)
	m.sink.SetHealth(next)
}
