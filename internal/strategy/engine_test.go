package strategy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagnikdas/algowala/internal/model"
)

// levels with an independent top/bottom so the risk-reward geometry can be
// steered per test.
func syntheticLevels(top, bottom, r1, s1 float64) model.PivotLevels {
	return model.PivotLevels{
		Pivot:         (top + bottom) / 2,
		R1:            r1,
		S1:            s1,
		TopCentral:    top,
		BottomCentral: bottom,
		PrevHigh:      top + 50,
		PrevLow:       bottom - 50,
	}
}

func TestEvaluate_OpenPositionSuppressesSignal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		bottom := 100 + rng.Float64()*20000
		top := bottom + rng.Float64()*100
		price := bottom - 200 + rng.Float64()*500
		levels := syntheticLevels(top, bottom, top+rng.Float64()*300, bottom-rng.Float64()*300)

		sig := Evaluate("256265", price, levels, true)
		require.Nil(t, sig, "open position must suppress signals (price=%.2f)", price)
	}
}

func TestEvaluate_BuyAboveTopCentral(t *testing.T) {
	// top=200, bottom=100, r1=400: at price 201, reward=199, risk=101.
	levels := syntheticLevels(200, 100, 400, 50)

	sig := Evaluate("256265", 201, levels, false)
	require.NotNil(t, sig)
	assert.Equal(t, model.Buy, sig.Direction)
	assert.Equal(t, model.ReasonPriceAboveCPR, sig.Reason)
	assert.Equal(t, 100.0, sig.StopLossPrice, "stop must be bottom central")
	assert.Equal(t, 400.0, sig.TargetPrice, "target must be R1")
	assert.Equal(t, 201.0, sig.TriggerPrice)
	assert.Zero(t, sig.Quantity, "sizing belongs to the ledger")
}

func TestEvaluate_SellBelowBottomCentral(t *testing.T) {
	// top=200, bottom=100, s1=-200: at price 99, reward=299, risk=101.
	levels := syntheticLevels(200, 100, 400, -200)

	sig := Evaluate("256265", 99, levels, false)
	require.NotNil(t, sig)
	assert.Equal(t, model.Sell, sig.Direction)
	assert.Equal(t, model.ReasonPriceBelowCPR, sig.Reason)
	assert.Equal(t, 200.0, sig.StopLossPrice, "stop must be top central")
	assert.Equal(t, -200.0, sig.TargetPrice, "target must be S1")
}

func TestEvaluate_InsideRangeNoSignal(t *testing.T) {
	levels := syntheticLevels(200, 100, 400, 50)
	for _, price := range []float64{100, 150, 200} {
		assert.Nil(t, Evaluate("256265", price, levels, false), "price %.0f inside range", price)
	}
}

func TestEvaluate_RiskRewardGate(t *testing.T) {
	// price=110, stop=100 → risk=10. Target set so reward/risk lands exactly
	// on each side of the 1.5 boundary.
	price := 110.0

	// reward=15 → ratio exactly 1.5: boundary is inclusive.
	atBoundary := syntheticLevels(105, 100, 125, 0)
	sig := Evaluate("256265", price, atBoundary, false)
	require.NotNil(t, sig, "ratio of exactly 1.5 must pass")
	assert.InDelta(t, 1.5, sig.RiskReward(), 1e-9)

	// reward=14.9 → ratio 1.49: rejected.
	below := syntheticLevels(105, 100, 124.9, 0)
	assert.Nil(t, Evaluate("256265", price, below, false), "ratio below 1.5 must be rejected")
}

func TestEvaluate_StrengthFromWidthClass(t *testing.T) {
	tests := []struct {
		name  string
		width float64
		want  model.SignalStrength
	}{
		{"narrow", 10, model.StrengthStrong},
		{"normal", 20, model.StrengthModerate},
		{"wide", 30, model.StrengthWeak},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bottom := 19700.0
			levels := syntheticLevels(bottom+tt.width, bottom, bottom+tt.width+3000, 0)
			sig := Evaluate("256265", bottom+tt.width+1, levels, false)
			require.NotNil(t, sig)
			assert.Equal(t, tt.want, sig.Strength)
		})
	}
}

func TestEvaluate_ConfidenceBonuses(t *testing.T) {
	bottom := 19700.0

	// Normal width, price barely above top: base confidence only.
	levels := syntheticLevels(bottom+20, bottom, bottom+5000, 0)
	sig := Evaluate("256265", bottom+20+1, levels, false)
	require.NotNil(t, sig)
	assert.InDelta(t, 0.5, sig.Confidence, 1e-9)

	// Narrow width: +0.2.
	narrow := syntheticLevels(bottom+10, bottom, bottom+5000, 0)
	sig = Evaluate("256265", bottom+10+1, narrow, false)
	require.NotNil(t, sig)
	assert.InDelta(t, 0.7, sig.Confidence, 1e-9)

	// Narrow width and >0.5% beyond the boundary: +0.2 +0.15.
	top := bottom + 10
	far := top * 1.006
	sig = Evaluate("256265", far, narrow, false)
	require.NotNil(t, sig)
	assert.InDelta(t, 0.85, sig.Confidence, 1e-9)
}

func TestEvaluate_ConfidenceCappedAtOne(t *testing.T) {
	c := confidence(1000, syntheticLevels(105, 100, 0, 0), model.Buy)
	assert.LessOrEqual(t, c, 1.0)
}

func TestExecutableGate(t *testing.T) {
	sig := model.NewTradingSignal("256265", model.Buy, model.StrengthStrong,
		model.ReasonPriceAboveCPR, 100, 200, 50, 0.7)
	assert.True(t, sig.Executable())

	weak := model.NewTradingSignal("256265", model.Buy, model.StrengthWeak,
		model.ReasonPriceAboveCPR, 100, 200, 50, 0.9)
	assert.False(t, weak.Executable(), "weak strength must not execute")

	lowConf := model.NewTradingSignal("256265", model.Buy, model.StrengthStrong,
		model.ReasonPriceAboveCPR, 100, 200, 50, 0.6)
	assert.False(t, lowConf.Executable(), "confidence must exceed 0.6")
}
