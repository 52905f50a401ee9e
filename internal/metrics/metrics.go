// Package metrics exposes Prometheus instrumentation for the feed, staleness monitor and reconciler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/livefolio/internal/domain"
)

const namespace = "livefolio"

// Recorder holds all collectors. A nil *Recorder is valid and records nothing.
type Recorder struct {
	ticksApplied      prometheus.Counter
	ticksDiscarded    *prometheus.CounterVec
	malformedMessages prometheus.Counter
	reconnects        prometheus.Counter
	feedHealth        prometheus.Gauge
	transportHealth   prometheus.Gauge
	recomputes        prometheus.Counter
	totalValue        prometheus.Gauge
	holdingsRefreshes *prometheus.CounterVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "ticks_applied_total",
			Help: "Price ticks stored as the latest price for their symbol.",
		}),
		ticksDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "ticks_discarded_total",
			Help: "Price ticks dropped before reaching the reconciler.",
		}, []string{"reason"}),
		malformedMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "malformed_messages_total",
			Help: "Inbound feed messages that carried no usable price.",
		}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "reconnects_total",
			Help: "Reconnect attempts scheduled after a transport failure.",
		}),
		feedHealth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "feed", Name: "health",
			Help: "Combined feed health: 0 offline, 1 idle, 2 connecting, 3 degraded, 4 live.",
		}),
		transportHealth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "feed", Name: "transport_health",
			Help: "Transport-level feed health, same scale as livefolio_feed_health.",
		}),
		recomputes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "valuation", Name: "recomputes_total",
			Help: "Valuation recomputations.",
		}),
		totalValue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "valuation", Name: "total_value",
			Help: "Latest reconciled portfolio value.",
		}),
		holdingsRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "holdings", Name: "refreshes_total",
			Help: "Holdings snapshot refreshes by outcome.",
		}, []string{"outcome"}),
	}
}

func (r *Recorder) TickApplied() {
	if r == nil {
		return
	}
	r.ticksApplied.Inc()
}

// TickDiscarded counts a dropped tick; reason is e.g. "out_of_order" or "closed".
func (r *Recorder) TickDiscarded(reason string) {
	if r == nil {
		return
	}
	r.ticksDiscarded.WithLabelValues(reason).Inc()
}

func (r *Recorder) MalformedMessage() {
	if r == nil {
		return
	}
	r.malformedMessages.Inc()
}

func (r *Recorder) Reconnect() {
	if r == nil {
		return
	}
	r.reconnects.Inc()
}

func (r *Recorder) SetFeedHealth(h domain.Health) {
	if r == nil {
		return
	}
	r.feedHealth.Set(h.GaugeValue())
}

func (r *Recorder) SetTransportHealth(h domain.Health) {
	if r == nil {
		return
	}
	r.transportHealth.Set(h.GaugeValue())
}

// Recomputed records one valuation pass and its total.
func (r *Recorder) Recomputed(total decimal.Decimal) {
	if r == nil {
		return
	}
	r.recomputes.Inc()
	r.totalValue.Set(total.InexactFloat64())
}

// HoldingsRefreshed counts a refresh outcome: "ok", "error", "invalid" or "throttled".
func (r *Recorder) HoldingsRefreshed(outcome string) {
	if r == nil {
		return
	}
	r.holdingsRefreshes.WithLabelValues(outcome).Inc()
}
