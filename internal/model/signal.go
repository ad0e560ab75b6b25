package model

import (
	"fmt"
	"math"
	"time"
)

// Direction is the side of a trade.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// SignalStrength ranks signals; the executable gate requires at least
// StrengthModerate.
type SignalStrength int

const (
	StrengthWeak SignalStrength = iota + 1
	StrengthModerate
	StrengthStrong
	StrengthVeryStrong
)

func (s SignalStrength) String() string {
	switch s {
	case StrengthWeak:
		return "WEAK"
	case StrengthModerate:
		return "MODERATE"
	case StrengthStrong:
		return "STRONG"
	case StrengthVeryStrong:
		return "VERY_STRONG"
	default:
		return "UNKNOWN"
	}
}

// TriggerReason explains why a signal fired or a position was closed.
type TriggerReason string

const (
	ReasonPriceAboveCPR  TriggerReason = "PRICE_ABOVE_CPR"
	ReasonPriceBelowCPR  TriggerReason = "PRICE_BELOW_CPR"
	ReasonStopLossHit    TriggerReason = "STOP_LOSS_HIT"
	ReasonTargetAchieved TriggerReason = "TARGET_ACHIEVED"
	ReasonMarketClose    TriggerReason = "MARKET_CLOSE"
	ReasonTimeBasedExit  TriggerReason = "TIME_BASED_EXIT"
	ReasonShutdown       TriggerReason = "SHUTDOWN"
)

// TradingSignal is an immutable candidate trade produced by one strategy
// evaluation. Quantity is zero until the risk ledger sizes the trade;
// signals are discarded, never mutated, if not executed.
type TradingSignal struct {
	InstrumentID  string
	Direction     Direction
	Strength      SignalStrength
	Reason        TriggerReason
	TriggerPrice  float64
	TargetPrice   float64
	StopLossPrice float64
	Quantity      int
	Confidence    float64
	Timestamp     time.Time
}

// NewTradingSignal constructs a signal, clamping confidence to [0,1].
func NewTradingSignal(instrumentID string, dir Direction, strength SignalStrength, reason TriggerReason,
	trigger, target, stopLoss, confidence float64) *TradingSignal {
	return &TradingSignal{
		InstrumentID:  instrumentID,
		Direction:     dir,
		Strength:      strength,
		Reason:        reason,
		TriggerPrice:  trigger,
		TargetPrice:   target,
		StopLossPrice: stopLoss,
		Confidence:    math.Max(0, math.Min(1, confidence)),
		Timestamp:     time.Now(),
	}
}

// RiskReward is the reward distance divided by the risk distance from the
// trigger price. Returns 0 when the risk distance is zero.
func (s *TradingSignal) RiskReward() float64 {
	risk := math.Abs(s.TriggerPrice - s.StopLossPrice)
	if risk == 0 {
		return 0
	}
	return math.Abs(s.TargetPrice-s.TriggerPrice) / risk
}

// Executable reports whether the signal passes the confidence and strength
// double gate. Applied at the call site so near-miss signals stay visible
// to recorders and backtests.
func (s *TradingSignal) Executable() bool {
	return s.Confidence > 0.6 && s.Strength >= StrengthModerate
}

func (s *TradingSignal) String() string {
	return fmt.Sprintf("Signal[%s %s@%.2f target=%.2f sl=%.2f conf=%.2f %s]",
		s.Direction, s.InstrumentID, s.TriggerPrice, s.TargetPrice, s.StopLossPrice, s.Confidence, s.Strength)
}
