package broker

import (
	"math"
	"time"
)

// Core account monitoring types shared across broker implementations.
// These structures normalise broker API payloads so the risk engine stays
// venue-agnostic if additional brokers are added later.

// AccountSnapshot is the aggregate profit & loss view of the account at a
// single instant. Produced fresh on every fetch; never mutated afterwards.
type AccountSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	RealizedPnl   float64   `json:"realizedPnl"`
	UnrealizedPnl float64   `json:"unrealizedPnl"`
	TotalPnl      float64   `json:"totalPnl"` // RealizedPnl + UnrealizedPnl
}

// PositionSnapshot captures one open position at fetch time. Quantity is
// signed: positive for long, negative for short.
type PositionSnapshot struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	EntryValue    float64 `json:"entryValue"`
	CurrentValue  float64 `json:"currentValue"`
	UnrealizedPnl float64 `json:"unrealizedPnl"`
	PnlPercent    float64 `json:"pnlPercent"`
}

// PnlPercentOf computes the signed percentage return of a position:
// positive for profit, negative for loss, regardless of position direction.
func PnlPercentOf(unrealizedPnl, entryValue float64) float64 {
	denom := math.Abs(entryValue)
	if denom == 0 {
		return 0
	}
	return unrealizedPnl / denom * 100
}
