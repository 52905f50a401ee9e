package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BaselineMaxAge is how old a snapshot may get before fallback values are flagged stale.
// Stale fallback values are still shown, only labelled.
const BaselineMaxAge = 5 * time.Minute

// HoldingValue is the reconciled value of a single holding.
type HoldingValue struct {
	Symbol        string           `json:"symbol"`
	Amount        decimal.Decimal  `json:"amount"`
	Price         *decimal.Decimal `json:"price,omitempty"` // latest tick, nil when none
	CurrentValue  decimal.Decimal  `json:"currentValue"`
	BaselineValue decimal.Decimal  `json:"baselineValue"`
	Change24h     decimal.Decimal  `json:"change24h"`
	IsLive        bool             `json:"isLive"`
	IsStale       bool             `json:"isStale"`
}

// ValuationResult is the derived mark-to-market view of a portfolio.
// It is rebuilt from scratch on every trigger and never used as a source of truth.
type ValuationResult struct {
	PerHolding         []HoldingValue  `json:"perHolding"`
	TotalValue         decimal.Decimal `json:"totalValue"`
	BaselineTotal      decimal.Decimal `json:"baselineTotal"`
	TotalChangePercent decimal.Decimal `json:"totalChangePercent"`
	FeedHealth         Health          `json:"feedHealth"`
	SnapshotAt         time.Time       `json:"snapshotAt"`
	ComputedAt         time.Time       `json:"computedAt"`
	Sequence           uint64          `json:"sequence"`
}

// LiveCount returns how many holdings are valued from live ticks.
func (r ValuationResult) LiveCount() int {
	n := 0
	for _, h := range r.PerHolding {
		if h.IsLive {
			n++
		}
	}
	return n
}
