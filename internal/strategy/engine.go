// Package strategy turns a price observation against cached pivot levels
// into at most one candidate trading signal.
package strategy

import (
	"github.com/sagnikdas/algowala/internal/model"
)

// MinRiskReward is the lowest acceptable reward/risk ratio; candidates
// below it are discarded. The boundary itself is accepted.
const MinRiskReward = 1.5

// Price must clear the central boundary by this fraction to earn the
// breakout confidence bonus.
const breakoutMargin = 0.005

// Evaluate applies the CPR breakout rules in order, first match wins:
//
//  1. an open position on the instrument suppresses any new signal;
//  2. price above the top central line is a BUY candidate with the bottom
//     central line as stop and R1 as target;
//  3. price below the bottom central line is a SELL candidate with the top
//     central line as stop and S1 as target;
//  4. price inside the central range has no edge.
//
// Candidates that fail the risk-reward gate are discarded. Quantity is left
// zero; sizing belongs to the risk ledger.
func Evaluate(instrumentID string, price float64, levels model.PivotLevels, hasOpenPosition bool) *model.TradingSignal {
	if hasOpenPosition {
		return nil
	}

	var (
		dir    model.Direction
		reason model.TriggerReason
		stop   float64
		target float64
	)

	switch {
	case price > levels.TopCentral:
		dir = model.Buy
		reason = model.ReasonPriceAboveCPR
		stop = levels.BottomCentral
		target = levels.R1
	case price < levels.BottomCentral:
		dir = model.Sell
		reason = model.ReasonPriceBelowCPR
		stop = levels.TopCentral
		target = levels.S1
	default:
		return nil
	}

	sig := model.NewTradingSignal(instrumentID, dir, strength(levels), reason,
		price, target, stop, confidence(price, levels, dir))

	if sig.RiskReward() < MinRiskReward {
		return nil
	}
	return sig
}

// strength maps the CPR width class to a signal strength. A narrow range
// breaks out decisively more often than a wide one.
func strength(levels model.PivotLevels) model.SignalStrength {
	switch levels.WidthClass() {
	case model.WidthNarrow:
		return model.StrengthStrong
	case model.WidthWide:
		return model.StrengthWeak
	default:
		return model.StrengthModerate
	}
}

func confidence(price float64, levels model.PivotLevels, dir model.Direction) float64 {
	c := 0.5
	if levels.WidthClass() == model.WidthNarrow {
		c += 0.2
	}

	var boundary float64
	if dir == model.Buy {
		boundary = levels.TopCentral
	} else {
		boundary = levels.BottomCentral
	}
	if boundary > 0 {
		cleared := (price - boundary) / boundary
		if dir == model.Sell {
			cleared = -cleared
		}
		if cleared > breakoutMargin {
			c += 0.15
		}
	}

	if c > 1.0 {
		c = 1.0
	}
	return c
}
