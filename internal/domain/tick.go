package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick is a single price observation for one asset.
// Only the latest tick per symbol is ever retained.
type PriceTick struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// NormalizeSymbol lowercases and trims an asset ticker ("BTC " -> "btc").
func NormalizeSymbol(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}

// NewerThan reports whether t was received strictly after other.
func (t PriceTick) NewerThan(other PriceTick) bool {
	return t.ReceivedAt.After(other.ReceivedAt)
}
