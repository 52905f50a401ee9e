// Package feed maintains the live price stream: one logical subscription to a price source,
// reconnected with capped exponential backoff until explicitly torn down.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mtlprog/livefolio/internal/domain"
	"github.com/mtlprog/livefolio/internal/metrics"
	"github.com/mtlprog/livefolio/internal/price"
)

// ErrClosed is returned by Connect after Disconnect. Offline is terminal.
var ErrClosed = errors.New("feed connection closed")

// Observer receives ticks and transport health transitions. Callbacks run on the
// connection's goroutine, in order, and must not call back into the Connection.
// The tick that brings a session live is delivered before the live transition.
type Observer interface {
	OnTick(tick domain.PriceTick)
	OnStateChange(state domain.Health)
}

// Connection owns one transport session at a time and its reconnect loop.
//
// State machine: idle -> connecting -> live <-> degraded -> (reconnect) -> connecting -> live,
// and any state -> offline via Disconnect.
type Connection struct {
	transport Transport
	observer  Observer
	metrics   *metrics.Recorder
	now       func() time.Time
	jitter    func() float64

	// mu guards the fields below and serializes observer callbacks, so no tick is
	// delivered once Disconnect has returned.
	mu     sync.Mutex
	state  domain.Health
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
	conn   Conn
}

// NewConnection creates an idle connection. rec may be nil.
func NewConnection(transport Transport, observer Observer, rec *metrics.Recorder) *Connection {
	return &Connection{
		transport: transport,
		observer:  observer,
		metrics:   rec,
		now:       time.Now,
		jitter:    rand.Float64,
		state:     domain.HealthIdle,
	}
}

// State returns the transport-level health.
func (c *Connection) State() domain.Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the session loop. It is idempotent: while connecting, live or degraded it
// does nothing. The loop lives until Disconnect or until ctx is cancelled.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != domain.HealthIdle {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.setStateLocked(domain.HealthConnecting)

	go c.run(runCtx, c.done)
	return nil
}

// Disconnect moves the connection to offline, stops any pending reconnect, closes the
// transport and waits for the session loop to exit. Safe to call more than once.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.setStateLocked(domain.HealthOffline)
	cancel, conn, done := c.cancel, c.conn, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
	slog.Info("feed: disconnected")
}

func (c *Connection) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.abandon()

	attempt := 0
	for {
		conn, err := c.transport.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("feed: dial failed", "attempt", attempt+1, "error", err)
			c.setState(domain.HealthDegraded)
			if !c.wait(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		if !c.attach(conn) {
			conn.Close()
			return
		}

		delivered, err := c.read(conn)
		c.detach()
		conn.Close()

		if ctx.Err() != nil || c.isClosed() {
			return
		}
		if delivered {
			attempt = 0
		}
		slog.Warn("feed: transport lost", "error", err)
		c.setState(domain.HealthDegraded)
		if !c.wait(ctx, attempt) {
			return
		}
		attempt++
	}
}

// read consumes messages until the session fails. It reports whether any tick was delivered.
func (c *Connection) read(conn Conn) (bool, error) {
	delivered := false
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return delivered, err
		}

		ticks, err := price.ParseMessage(data, c.now())
		if err != nil {
			c.metrics.MalformedMessage()
			slog.Debug("feed: discarding malformed message", "bytes", len(data), "error", err)
			continue
		}

		for _, tick := range ticks {
			if !c.deliver(tick) {
				return delivered, ErrClosed
			}
			delivered = true
		}
	}
}

func (c *Connection) deliver(tick domain.PriceTick) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.metrics.TickDiscarded("closed")
		return false
	}
	c.observer.OnTick(tick)
	if c.state != domain.HealthLive {
		c.setStateLocked(domain.HealthLive)
	}
	return true
}

// wait sleeps for the backoff delay of attempt. It returns false if the loop must stop.
func (c *Connection) wait(ctx context.Context, attempt int) bool {
	delay := Backoff(attempt, c.jitter())
	c.metrics.Reconnect()
	slog.Info("feed: reconnect scheduled", "attempt", attempt+1, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		c.setState(domain.HealthConnecting)
		return true
	}
}

func (c *Connection) attach(conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.conn = conn
	if c.state != domain.HealthConnecting {
		c.setStateLocked(domain.HealthConnecting)
	}
	return true
}

func (c *Connection) detach() {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// abandon marks the connection offline when the loop ends because its context was cancelled
// rather than through Disconnect.
func (c *Connection) abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.setStateLocked(domain.HealthOffline)
}

func (c *Connection) setState(state domain.Health) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.setStateLocked(state)
}

func (c *Connection) setStateLocked(state domain.Health) {
	if c.state == state {
		return
	}
	c.state = state
	c.metrics.SetTransportHealth(state)
	c.observer.OnStateChange(state)
}
