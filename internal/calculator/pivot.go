// Package calculator derives Central Pivot Range levels from prior-session
// price data. Everything here is pure and deterministic.
package calculator

import (
	"errors"

	"github.com/sagnikdas/algowala/internal/model"
)

// ErrInvalidInput is returned when OHLC inputs are not positive.
var ErrInvalidInput = errors.New("calculator: high, low and close must be positive")

// Calculate derives all pivot levels from the previous session's high, low
// and close using the classic CPR formulas:
//
//	pivot = (high+low+close)/3
//	r1 = 2*pivot - low        s1 = 2*pivot - high
//	r2 = pivot + (high-low)   s2 = pivot - (high-low)
//	r3 = high + 2*(pivot-low) s3 = low - 2*(high-pivot)
//
// Top Central = r1, Bottom Central = s1.
func Calculate(high, low, close float64) (model.PivotLevels, error) {
	if high <= 0 || low <= 0 || close <= 0 {
		return model.PivotLevels{}, ErrInvalidInput
	}

	pivot := (high + low + close) / 3.0
	r1 := 2*pivot - low
	s1 := 2*pivot - high

	return model.PivotLevels{
		Pivot:         pivot,
		R1:            r1,
		R2:            pivot + (high - low),
		R3:            high + 2*(pivot-low),
		S1:            s1,
		S2:            pivot - (high - low),
		S3:            low - 2*(high-pivot),
		TopCentral:    r1,
		BottomCentral: s1,
		PrevHigh:      high,
		PrevLow:       low,
	}, nil
}

// Sentiment is a coarse market-bias classification of a price against the
// pivot levels, used in status snapshots.
type Sentiment string

const (
	SentimentBullish     Sentiment = "BULLISH"
	SentimentBullishBias Sentiment = "BULLISH_BIAS"
	SentimentSideways    Sentiment = "SIDEWAYS"
	SentimentBearishBias Sentiment = "BEARISH_BIAS"
	SentimentBearish     Sentiment = "BEARISH"
)

// ClassifySentiment maps the current price to a market bias.
func ClassifySentiment(price float64, l model.PivotLevels) Sentiment {
	switch {
	case price > l.R1:
		return SentimentBullish
	case price < l.S1:
		return SentimentBearish
	case price > l.TopCentral:
		return SentimentBullishBias
	case price < l.BottomCentral:
		return SentimentBearishBias
	default:
		return SentimentSideways
	}
}
