package valuation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/livefolio/internal/domain"
	"github.com/mtlprog/livefolio/internal/metrics"
	"github.com/mtlprog/livefolio/internal/price"
)

// Engine owns the reconciler inputs: the latest tick per symbol, the current snapshot and the
// combined feed health. Every mutation and the recompute it triggers run in one critical
// section, so each result is computed from a consistent set of inputs.
//
// Engine implements staleness.Sink and holdings.Sink.
type Engine struct {
	ticks   *price.Store
	metrics *metrics.Recorder
	now     func() time.Time

	mu       sync.Mutex
	snapshot domain.Snapshot
	held     map[string]struct{}
	health   domain.Health
	seq      uint64
	result   domain.ValuationResult
	subs     map[uint64]chan domain.ValuationResult
	nextSub  uint64
}

// NewEngine creates an engine with an empty snapshot and idle health. rec may be nil.
func NewEngine(rec *metrics.Recorder) *Engine {
	e := &Engine{
		ticks:   price.NewStore(),
		metrics: rec,
		now:     time.Now,
		held:    map[string]struct{}{},
		health:  domain.HealthIdle,
		subs:    map[uint64]chan domain.ValuationResult{},
	}
	e.recomputeLocked()
	return e
}

// OnTick applies a price tick. Out-of-order ticks are discarded; ticks for symbols that are
// not held are stored without a recompute until the next snapshot, which drops them unless it
// holds the symbol.
func (e *Engine) OnTick(tick domain.PriceTick) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ticks.Apply(tick) {
		e.metrics.TickDiscarded("out_of_order")
		slog.Debug("Engine: discarding out-of-order tick", "symbol", tick.Symbol, "receivedAt", tick.ReceivedAt)
		return
	}
	e.metrics.TickApplied()

	if _, ok := e.held[domain.NormalizeSymbol(tick.Symbol)]; !ok {
		return
	}
	e.recomputeLocked()
}

// SetHealth records a combined health transition and recomputes.
func (e *Engine) SetHealth(health domain.Health) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if health == e.health {
		return
	}
	e.health = health
	e.recomputeLocked()
}

// SetSnapshot replaces the holdings baseline, drops ticks for symbols it does not hold and
// recomputes.
func (e *Engine) SetSnapshot(snapshot domain.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.snapshot = snapshot
	e.held = lo.SliceToMap(snapshot.Symbols(), func(s string) (string, struct{}) {
		return s, struct{}{}
	})
	if dropped := e.ticks.Retain(e.held); dropped > 0 {
		slog.Debug("Engine: dropped ticks for symbols no longer held", "count", dropped)
	}
	e.recomputeLocked()
}

// Result returns the most recent valuation.
func (e *Engine) Result() domain.ValuationResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Snapshot returns the current holdings baseline.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// Health returns the combined health the engine last recomputed with.
func (e *Engine) Health() domain.Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health
}

// Tick returns the latest stored tick for symbol.
func (e *Engine) Tick(symbol string) (domain.PriceTick, bool) {
	return e.ticks.Get(symbol)
}

// Subscribe returns a channel receiving every new result, starting with the current one.
// Delivery is latest-wins: a slow reader skips intermediate results instead of blocking
// the feed. cancel closes the channel.
func (e *Engine) Subscribe() (<-chan domain.ValuationResult, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan domain.ValuationResult, 1)
	ch <- e.result
	e.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (e *Engine) recomputeLocked() {
	e.seq++
	result := Reconcile(e.snapshot, e.ticks.Latest(), e.health, e.now())
	result.Sequence = e.seq
	e.result = result
	e.metrics.Recomputed(result.TotalValue)

	for _, ch := range e.subs {
		publish(ch, result)
	}
}

// publish replaces any unread result in ch. Only the engine sends, under its lock.
func publish(ch chan domain.ValuationResult, r domain.ValuationResult) {
	select {
	case ch <- r:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- r:
	default:
	}
}
