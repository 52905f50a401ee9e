// Package export writes valuation results to spreadsheets: a holdings sheet rewritten on each
// export and a history sheet that gains one row per export.
package export

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/livefolio/internal/domain"
)

var holdingsHeader = []any{
	"Symbol", "Amount", "Price", "Value", "Baseline Value", "Change 24h %", "Source", "Stale",
}

var historyHeader = []any{
	"Computed At", "Snapshot At", "Total Value", "Baseline Total", "Change %",
	"Feed Health", "Live Holdings", "Holdings", "Sequence",
}

// buildHoldingsRows builds the holdings sheet: header, one row per holding, then a TOTAL row.
// Columns: Symbol | Amount | Price | Value | Baseline Value | Change 24h % | Source | Stale
func buildHoldingsRows(r domain.ValuationResult) [][]any {
	data := make([][]any, 0, len(r.PerHolding)+2)
	data = append(data, holdingsHeader)

	data = append(data, lo.Map(r.PerHolding, func(h domain.HoldingValue, _ int) []any {
		return []any{
			strings.ToUpper(h.Symbol),
			toFloat(h.Amount),
			ptrFloat(h.Price),
			toFloat(domain.RoundDisplay(h.CurrentValue)),
			toFloat(domain.RoundDisplay(h.BaselineValue)),
			toFloat(domain.RoundDisplay(h.Change24h)),
			sourceLabel(h),
			h.IsStale,
		}
	})...)

	data = append(data, []any{
		"TOTAL", nil, nil,
		toFloat(domain.RoundDisplay(r.TotalValue)),
		toFloat(domain.RoundDisplay(r.BaselineTotal)),
		toFloat(domain.RoundDisplay(r.TotalChangePercent)),
		string(r.FeedHealth),
		nil,
	})

	return data
}

// buildHistoryRow builds one history row.
// Columns: Computed At | Snapshot At | Total | Baseline | Change % | Health | Live | Holdings | Sequence
func buildHistoryRow(r domain.ValuationResult) []any {
	return []any{
		formatTime(r.ComputedAt),
		formatTime(r.SnapshotAt),
		toFloat(domain.RoundDisplay(r.TotalValue)),
		toFloat(domain.RoundDisplay(r.BaselineTotal)),
		toFloat(domain.RoundDisplay(r.TotalChangePercent)),
		string(r.FeedHealth),
		float64(r.LiveCount()),
		float64(len(r.PerHolding)),
		float64(r.Sequence),
	}
}

func sourceLabel(h domain.HoldingValue) string {
	if h.IsLive {
		return "live"
	}
	return "baseline"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func ptrFloat(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return f
}
