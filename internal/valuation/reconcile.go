// Package valuation merges live price ticks with the holdings baseline into a mark-to-market view.
package valuation

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/livefolio/internal/domain"
)

// Reconcile values every holding of snapshot. A holding is valued live (price * amount) when a
// tick exists for its symbol and health is not offline; otherwise it falls back to the
// snapshot's baseline value. ticks is keyed by normalized symbol.
func Reconcile(snapshot domain.Snapshot, ticks map[string]domain.PriceTick, health domain.Health, now time.Time) domain.ValuationResult {
	baselineStale := !snapshot.TakenAt.IsZero() && now.Sub(snapshot.TakenAt) > domain.BaselineMaxAge

	perHolding := lo.Map(snapshot.Holdings, func(h domain.Holding, _ int) domain.HoldingValue {
		symbol := domain.NormalizeSymbol(h.Symbol)
		v := domain.HoldingValue{
			Symbol:        symbol,
			Amount:        h.Amount,
			CurrentValue:  h.BaselineValue,
			BaselineValue: h.BaselineValue,
			Change24h:     h.BaselineChange24h,
		}

		tick, ok := ticks[symbol]
		if ok {
			p := tick.Price
			v.Price = &p
		}
		if ok && health != domain.HealthOffline {
			v.CurrentValue = tick.Price.Mul(h.Amount)
			v.IsLive = true
		} else {
			v.IsStale = baselineStale
		}
		return v
	})

	total := lo.Reduce(perHolding, func(acc decimal.Decimal, v domain.HoldingValue, _ int) decimal.Decimal {
		return acc.Add(v.CurrentValue)
	}, decimal.Zero)
	baseline := lo.Reduce(perHolding, func(acc decimal.Decimal, v domain.HoldingValue, _ int) decimal.Decimal {
		return acc.Add(v.BaselineValue)
	}, decimal.Zero)

	return domain.ValuationResult{
		PerHolding:         perHolding,
		TotalValue:         total,
		BaselineTotal:      baseline,
		TotalChangePercent: domain.PercentChange(total, baseline),
		FeedHealth:         health,
		SnapshotAt:         snapshot.TakenAt,
		ComputedAt:         now,
	}
}
