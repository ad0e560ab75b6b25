package ledger

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sagnikdas/algowala/internal/model"
)

func testParams() model.RiskParameters {
	return model.RiskParameters{
		MaxDailyLoss:            10000,
		MaxPositionSizePct:      10,
		RiskPerTradePct:         1,
		MaxPositions:            3,
		MaxPortfolioExposurePct: 100,
	}
}

func testInstrument(lotSize int) model.Instrument {
	return model.Instrument{
		ID:       "256265",
		Symbol:   "NIFTY",
		Exchange: "NSE",
		TickSize: 0.05,
		LotSize:  lotSize,
		Active:   true,
	}
}

func buySignal(entry, target, stop float64) *model.TradingSignal {
	return model.NewTradingSignal("256265", model.Buy, model.StrengthStrong,
		model.ReasonPriceAboveCPR, entry, target, stop, 0.8)
}

func acceptOrder(qty int) (string, error) { return "ORD-1", nil }

func TestPositionSize_Scenario(t *testing.T) {
	// capital=500000, riskPerTradePct=1, entry=19800, stop=19700:
	// riskAmount=5000, riskPerUnit=100, rawQty=50; maxPositionSizePct=10 →
	// maxValue=50000, maxQty=floor(50000/19800)=2.
	l := New(500000, testParams(), zap.NewNop())

	assert.Equal(t, 2, l.PositionSize(19800, 19700, 1))
}

func TestPositionSize_LotRounding(t *testing.T) {
	l := New(500000, testParams(), zap.NewNop())

	// rawQty=5000 capped to maxQty=floor(50000/100)=500; lot 15 → 495.
	assert.Equal(t, 495, l.PositionSize(100, 99, 15))

	// Lot larger than the sized quantity: zero is a valid no-trade result.
	assert.Equal(t, 0, l.PositionSize(19800, 19700, 50))
}

func TestPositionSize_NeverExceedsMaxPositionValue(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 1000; i++ {
		capital := 10000 + rng.Float64()*1000000
		entry := 10 + rng.Float64()*20000
		stop := entry * (1 - rng.Float64()*0.1)
		lot := 1 + rng.Intn(75)

		l := New(capital, testParams(), zap.NewNop())
		qty := l.PositionSize(entry, stop, lot)

		maxValue := capital * testParams().MaxPositionSizePct / 100
		require.LessOrEqual(t, float64(qty)*entry, maxValue+float64(lot)*entry,
			"capital=%.2f entry=%.2f stop=%.2f lot=%d qty=%d", capital, entry, stop, lot, qty)
		require.Zero(t, qty%lot, "quantity must be a lot multiple")
	}
}

func TestPositionSize_ZeroRiskPerUnit(t *testing.T) {
	l := New(500000, testParams(), zap.NewNop())
	assert.Equal(t, 0, l.PositionSize(100, 100, 1))
}

func TestOpenPosition_LifecycleAndPnL(t *testing.T) {
	l := New(500000, testParams(), zap.NewNop())

	// entry=100, stop=90: riskAmount=5000, riskPerUnit=10 → 500;
	// maxValue=50000/100 → 500; lot 10 keeps 500. Cap exposure via params.
	params := testParams()
	params.MaxPositionSizePct = 0.2 // maxValue=1000 → maxQty=10
	l = New(500000, params, zap.NewNop())

	sig := buySignal(100, 120, 90)
	pos, err := l.OpenPosition(sig, testInstrument(10), acceptOrder)
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 10, pos.Quantity)
	assert.True(t, pos.Open)
	assert.True(t, l.HasOpen("256265"))

	// Price moves to 120: unrealized P&L = (120-100)*10 = 200.
	cands := l.UpdatePositions(map[string]float64{"256265": 120})
	require.Len(t, cands, 1)
	assert.Equal(t, model.ReasonTargetAchieved, cands[0].Reason)

	open := l.OpenPositions()
	require.Len(t, open, 1)
	assert.InDelta(t, 200, open[0].UnrealizedPnL(), 1e-9)

	closed, err := l.ClosePosition("256265", 120, model.ReasonTargetAchieved, "ORD-2")
	require.NoError(t, err)
	assert.InDelta(t, 200, closed.RealizedPnL, 1e-9)
	assert.False(t, closed.Open)
	assert.False(t, l.HasOpen("256265"))

	snap := l.Snapshot()
	assert.InDelta(t, 500200, snap.Capital, 1e-9)
	assert.InDelta(t, 200, snap.DailyPnL, 1e-9)
	assert.Equal(t, 0, snap.OpenPositions)
	assert.Equal(t, 1, snap.ClosedToday)
}

func TestClosePosition_SellDirection(t *testing.T) {
	params := testParams()
	params.MaxPositionSizePct = 0.2
	l := New(500000, params, zap.NewNop())

	sig := model.NewTradingSignal("256265", model.Sell, model.StrengthStrong,
		model.ReasonPriceBelowCPR, 100, 80, 110, 0.8)
	pos, err := l.OpenPosition(sig, testInstrument(10), acceptOrder)
	require.NoError(t, err)
	require.NotNil(t, pos)

	closed, err := l.ClosePosition("256265", 80, model.ReasonTargetAchieved, "ORD-2")
	require.NoError(t, err)
	assert.InDelta(t, (100.0-80.0)*float64(pos.Quantity), closed.RealizedPnL, 1e-9)
}

func TestClosePosition_NoPosition(t *testing.T) {
	l := New(500000, testParams(), zap.NewNop())
	_, err := l.ClosePosition("256265", 100, model.ReasonMarketClose, "")
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestCanOpen_Gates(t *testing.T) {
	params := testParams()
	params.MaxPositions = 1
	params.MaxPositionSizePct = 0.2
	l := New(500000, params, zap.NewNop())

	ok, _ := l.CanOpen("256265")
	assert.True(t, ok)

	_, err := l.OpenPosition(buySignal(100, 120, 90), testInstrument(10), acceptOrder)
	require.NoError(t, err)

	// Same instrument: one open position at a time.
	ok, reason := l.CanOpen("256265")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	// Different instrument: max positions reached even when other gates pass.
	ok, reason = l.CanOpen("738561")
	assert.False(t, ok)
	assert.Equal(t, "max positions reached", reason)
}

func TestCanOpen_DailyLossGate(t *testing.T) {
	params := testParams()
	params.MaxDailyLoss = 100
	params.MaxPositionSizePct = 0.2
	l := New(500000, params, zap.NewNop())

	_, err := l.OpenPosition(buySignal(100, 120, 90), testInstrument(10), acceptOrder)
	require.NoError(t, err)
	// Close at a loss of (100-85)*10 = 150 > MaxDailyLoss.
	_, err = l.ClosePosition("256265", 85, model.ReasonStopLossHit, "ORD-2")
	require.NoError(t, err)

	ok, reason := l.CanOpen("256265")
	assert.False(t, ok)
	assert.Equal(t, "daily loss limit reached", reason)
}

func TestOpenPosition_RejectedIsNotAnError(t *testing.T) {
	params := testParams()
	params.MaxPositions = 0
	l := New(500000, params, zap.NewNop())

	pos, err := l.OpenPosition(buySignal(100, 120, 90), testInstrument(10), acceptOrder)
	assert.NoError(t, err)
	assert.Nil(t, pos)
}

func TestOpenPosition_PlacementFailureDoesNotAdvanceLedger(t *testing.T) {
	params := testParams()
	params.MaxPositionSizePct = 0.2
	l := New(500000, params, zap.NewNop())

	pos, err := l.OpenPosition(buySignal(100, 120, 90), testInstrument(10),
		func(int) (string, error) { return "", assert.AnError })
	assert.Error(t, err)
	assert.Nil(t, pos)
	assert.False(t, l.HasOpen("256265"))
	assert.Equal(t, 0, l.Snapshot().OpenPositions)
}

func TestUpdatePositions_StopAndTargetDetection(t *testing.T) {
	params := testParams()
	params.MaxPositionSizePct = 0.2
	l := New(500000, params, zap.NewNop())

	_, err := l.OpenPosition(buySignal(100, 120, 90), testInstrument(10), acceptOrder)
	require.NoError(t, err)

	// Between stop and target: nothing flagged, price refreshed.
	cands := l.UpdatePositions(map[string]float64{"256265": 105})
	assert.Empty(t, cands)
	assert.InDelta(t, 105, l.OpenPositions()[0].CurrentPrice, 1e-9)

	// Stop crossed against a BUY.
	cands = l.UpdatePositions(map[string]float64{"256265": 89.5})
	require.Len(t, cands, 1)
	assert.Equal(t, model.ReasonStopLossHit, cands[0].Reason)
	assert.InDelta(t, 89.5, cands[0].Price, 1e-9)

	// Detection never closes: the position is still open.
	assert.True(t, l.HasOpen("256265"))
}

func TestUpdatePositions_SellStops(t *testing.T) {
	params := testParams()
	params.MaxPositionSizePct = 0.2
	l := New(500000, params, zap.NewNop())

	sig := model.NewTradingSignal("256265", model.Sell, model.StrengthStrong,
		model.ReasonPriceBelowCPR, 100, 80, 110, 0.8)
	_, err := l.OpenPosition(sig, testInstrument(10), acceptOrder)
	require.NoError(t, err)

	cands := l.UpdatePositions(map[string]float64{"256265": 111})
	require.Len(t, cands, 1)
	assert.Equal(t, model.ReasonStopLossHit, cands[0].Reason)

	cands = l.UpdatePositions(map[string]float64{"256265": 79})
	require.Len(t, cands, 1)
	assert.Equal(t, model.ReasonTargetAchieved, cands[0].Reason)
}

func TestResetDay(t *testing.T) {
	params := testParams()
	params.MaxPositionSizePct = 0.2
	params.MaxPositions = 2
	l := New(500000, params, zap.NewNop())

	_, err := l.OpenPosition(buySignal(100, 120, 90), testInstrument(10), acceptOrder)
	require.NoError(t, err)
	_, err = l.ClosePosition("256265", 120, model.ReasonTargetAchieved, "ORD-2")
	require.NoError(t, err)

	sig2 := model.NewTradingSignal("738561", model.Buy, model.StrengthStrong,
		model.ReasonPriceAboveCPR, 100, 120, 90, 0.8)
	inst2 := testInstrument(10)
	inst2.ID = "738561"
	sig2.InstrumentID = "738561"
	_, err = l.OpenPosition(sig2, inst2, acceptOrder)
	require.NoError(t, err)

	before := l.Snapshot()
	l.ResetDay()
	after := l.Snapshot()

	assert.Zero(t, after.DailyPnL)
	assert.Zero(t, after.ClosedToday)
	assert.Equal(t, before.Capital, after.Capital, "capital is unaffected by reset")
	assert.Equal(t, 1, after.OpenPositions, "open positions survive the reset")
}

func TestExposureGate(t *testing.T) {
	params := testParams()
	params.MaxPositionSizePct = 0.2
	params.MaxPortfolioExposurePct = 0.1 // limit = 500
	l := New(500000, params, zap.NewNop())

	// 10 * 100 = 1000 notional > 500 limit → policy rejection.
	pos, err := l.OpenPosition(buySignal(100, 120, 90), testInstrument(10), acceptOrder)
	assert.NoError(t, err)
	assert.Nil(t, pos)
}

func TestSizing_Floor(t *testing.T) {
	// Guard against float truncation surprises around exact divisions.
	l := New(500000, testParams(), zap.NewNop())
	qty := l.PositionSize(19800, 19700, 1)
	assert.Equal(t, int(math.Floor(50000.0/19800.0)), qty)
}
