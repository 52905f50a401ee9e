package domain

// Health classifies the price feed. The feed connection reports transport-level health;
// the staleness monitor combines it with tick recency into the health consumers see.
type Health string

const (
	HealthIdle       Health = "idle"
	HealthConnecting Health = "connecting"
	HealthLive       Health = "live"
	HealthDegraded   Health = "degraded"
	HealthOffline    Health = "offline"
)

// GaugeValue maps health onto a number for metrics: offline=0, idle=1, connecting=2, degraded=3, live=4.
func (h Health) GaugeValue() float64 {
	switch h {
	case HealthIdle:
		return 1
	case HealthConnecting:
		return 2
	case HealthDegraded:
		return 3
	case HealthLive:
		return 4
	default:
		return 0
	}
}
