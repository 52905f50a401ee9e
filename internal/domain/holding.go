package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is one asset position from the holdings snapshot.
type Holding struct {
	Symbol            string          `json:"symbol"`
	Amount            decimal.Decimal `json:"amount"`
	BaselineValue     decimal.Decimal `json:"value"`
	BaselineChange24h decimal.Decimal `json:"change24h"`
}

// Snapshot is a polled holdings baseline. It is replaced wholesale on refresh.
type Snapshot struct {
	Holdings []Holding `json:"holdings"`
	TakenAt  time.Time `json:"takenAt"`
}

// IsZero reports whether no snapshot has been taken yet.
func (s Snapshot) IsZero() bool {
	return s.TakenAt.IsZero() && len(s.Holdings) == 0
}

// Symbols returns the normalized symbols of all holdings in snapshot order.
func (s Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.Holdings))
	for _, h := range s.Holdings {
		out = append(out, NormalizeSymbol(h.Symbol))
	}
	return out
}
