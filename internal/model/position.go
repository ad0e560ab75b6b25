package model

import "time"

// Position is a live or closed trade. Mutated only by price refreshes and
// by the single open→closed transition; terminal once closed.
type Position struct {
	InstrumentID string
	Symbol       string
	Direction    Direction
	Quantity     int
	EntryPrice   float64
	StopLoss     float64
	Target       float64
	EntryTime    time.Time
	EntryOrderID string

	CurrentPrice float64
	Open         bool

	RealizedPnL float64
	ExitTime    time.Time
	ExitReason  TriggerReason
	ExitOrderID string
}

// UnrealizedPnL values the open position at its current price.
func (p *Position) UnrealizedPnL() float64 {
	if !p.Open {
		return 0
	}
	if p.Direction == Buy {
		return (p.CurrentPrice - p.EntryPrice) * float64(p.Quantity)
	}
	return (p.EntryPrice - p.CurrentPrice) * float64(p.Quantity)
}

// Notional is the exposure of the position at entry.
func (p *Position) Notional() float64 {
	return p.EntryPrice * float64(p.Quantity)
}

// RiskParameters is the immutable risk configuration for one trading day.
type RiskParameters struct {
	MaxDailyLoss            float64
	MaxPositionSizePct      float64
	RiskPerTradePct         float64
	MaxPositions            int
	MaxPortfolioExposurePct float64
}
