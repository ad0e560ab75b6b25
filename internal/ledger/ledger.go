// Package ledger owns trading capital, risk limits and the position
// lifecycle. All state lives behind a single mutex with short critical
// sections; at the engine's operation rate (about one decision per
// instrument every few seconds) ledger-wide locking is cheaper than
// per-instrument locks and makes the daily reset trivially exclusive
// with opens and closes.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sagnikdas/algowala/internal/model"
)

// ErrNoPosition is returned when closing an instrument with no open position.
var ErrNoPosition = errors.New("ledger: no open position for instrument")

// PlaceFunc submits the entry order for a sized position and returns the
// broker order id. It runs inside the ledger's critical section so the
// no-open-position check, the sizing and the insert cannot interleave with
// a concurrent open or close for the same instrument.
type PlaceFunc func(quantity int) (orderID string, err error)

// CloseCandidate flags an open position the monitor wants closed, with the
// price that triggered the decision. Detection is decoupled from the act of
// closing, which needs an external order first.
type CloseCandidate struct {
	InstrumentID string
	Price        float64
	Reason       model.TriggerReason
}

// Snapshot is a point-in-time view of the ledger for status reporting.
type Snapshot struct {
	Capital       float64
	DailyPnL      float64
	OpenPositions int
	ClosedToday   int
	Exposure      float64
}

// Ledger sizes, opens, monitors and closes positions under the configured
// risk parameters, and tracks capital and daily realized P&L.
type Ledger struct {
	mu     sync.Mutex
	log    *zap.Logger
	params model.RiskParameters

	capital  float64
	open     map[string]*model.Position
	closed   []*model.Position
	dailyPnL float64
}

// New creates a Ledger with the given starting capital.
func New(capital float64, params model.RiskParameters, log *zap.Logger) *Ledger {
	return &Ledger{
		log:     log,
		params:  params,
		capital: capital,
		open:    make(map[string]*model.Position),
	}
}

// PositionSize returns the quantity for a trade entering at entryPrice with
// the given stop, rounded down to a multiple of lotSize. Risk-based sizing
// capped by the maximum position value; zero is a valid "do not trade"
// outcome, not an error.
func (l *Ledger) PositionSize(entryPrice, stopLoss float64, lotSize int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positionSizeLocked(entryPrice, stopLoss, lotSize)
}

func (l *Ledger) positionSizeLocked(entryPrice, stopLoss float64, lotSize int) int {
	if entryPrice <= 0 || lotSize <= 0 {
		return 0
	}
	riskPerUnit := math.Abs(entryPrice - stopLoss)
	if riskPerUnit == 0 {
		return 0
	}

	riskAmount := l.capital * l.params.RiskPerTradePct / 100
	qty := int(math.Floor(riskAmount / riskPerUnit))

	maxValue := l.capital * l.params.MaxPositionSizePct / 100
	maxQty := int(math.Floor(maxValue / entryPrice))
	if qty > maxQty {
		qty = maxQty
	}

	// Round down to the nearest lot multiple.
	qty = (qty / lotSize) * lotSize
	if qty < 0 {
		qty = 0
	}
	return qty
}

// CanOpen reports whether a new position for the instrument passes the risk
// gates, with the failing gate named. Gate failures are normal rejections,
// not errors.
func (l *Ledger) CanOpen(instrumentID string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canOpenLocked(instrumentID)
}

func (l *Ledger) canOpenLocked(instrumentID string) (bool, string) {
	if len(l.open) >= l.params.MaxPositions {
		return false, "max positions reached"
	}
	if l.dailyPnL <= -l.params.MaxDailyLoss {
		return false, "daily loss limit reached"
	}
	if _, exists := l.open[instrumentID]; exists {
		return false, "position already open for instrument"
	}
	return true, ""
}

// OpenPosition gates, sizes and opens a position for an executable signal.
// The entry order is submitted via place while the critical section is
// held, and the ledger is advanced only once the broker accepts the order.
// A nil position with a nil error means the signal was rejected by policy.
func (l *Ledger) OpenPosition(sig *model.TradingSignal, inst model.Instrument, place PlaceFunc) (*model.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ok, reason := l.canOpenLocked(sig.InstrumentID); !ok {
		l.log.Info("signal rejected",
			zap.String("instrument", sig.InstrumentID),
			zap.String("reason", reason))
		return nil, nil
	}

	qty := l.positionSizeLocked(sig.TriggerPrice, sig.StopLossPrice, inst.LotSize)
	if qty == 0 {
		l.log.Info("signal rejected",
			zap.String("instrument", sig.InstrumentID),
			zap.String("reason", "lot-adjusted quantity is zero"))
		return nil, nil
	}

	if l.params.MaxPortfolioExposurePct > 0 {
		limit := l.capital * l.params.MaxPortfolioExposurePct / 100
		if l.exposureLocked()+sig.TriggerPrice*float64(qty) > limit {
			l.log.Info("signal rejected",
				zap.String("instrument", sig.InstrumentID),
				zap.String("reason", "portfolio exposure limit reached"))
			return nil, nil
		}
	}

	orderID, err := place(qty)
	if err != nil {
		return nil, fmt.Errorf("place entry order: %w", err)
	}

	pos := &model.Position{
		InstrumentID: sig.InstrumentID,
		Symbol:       inst.Symbol,
		Direction:    sig.Direction,
		Quantity:     qty,
		EntryPrice:   sig.TriggerPrice,
		StopLoss:     sig.StopLossPrice,
		Target:       sig.TargetPrice,
		EntryTime:    time.Now(),
		EntryOrderID: orderID,
		CurrentPrice: sig.TriggerPrice,
		Open:         true,
	}
	l.open[sig.InstrumentID] = pos

	l.log.Info("position opened",
		zap.String("instrument", sig.InstrumentID),
		zap.String("direction", string(sig.Direction)),
		zap.Int("quantity", qty),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("stop", pos.StopLoss),
		zap.Float64("target", pos.Target),
		zap.String("order_id", orderID))

	cp := *pos
	return &cp, nil
}

// UpdatePositions refreshes current prices for open positions and returns
// the set that crossed their stop or target. It never closes anything
// itself.
func (l *Ledger) UpdatePositions(prices map[string]float64) []CloseCandidate {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []CloseCandidate
	for id, pos := range l.open {
		price, ok := prices[id]
		if !ok || price <= 0 {
			continue
		}
		pos.CurrentPrice = price

		switch {
		case crossedStop(pos, price):
			out = append(out, CloseCandidate{InstrumentID: id, Price: price, Reason: model.ReasonStopLossHit})
		case crossedTarget(pos, price):
			out = append(out, CloseCandidate{InstrumentID: id, Price: price, Reason: model.ReasonTargetAchieved})
		}
	}
	return out
}

func crossedStop(pos *model.Position, price float64) bool {
	if pos.Direction == model.Buy {
		return price <= pos.StopLoss
	}
	return price >= pos.StopLoss
}

func crossedTarget(pos *model.Position, price float64) bool {
	if pos.Direction == model.Buy {
		return price >= pos.Target
	}
	return price <= pos.Target
}

// ClosePosition performs the single open→closed transition: realized P&L is
// computed at the exit price and folded into both capital and daily P&L in
// the same critical section. The returned position is a copy; the closed
// original is immutable from here on.
func (l *Ledger) ClosePosition(instrumentID string, exitPrice float64, reason model.TriggerReason, exitOrderID string) (*model.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.open[instrumentID]
	if !ok {
		return nil, ErrNoPosition
	}

	pos.CurrentPrice = exitPrice
	if pos.Direction == model.Buy {
		pos.RealizedPnL = (exitPrice - pos.EntryPrice) * float64(pos.Quantity)
	} else {
		pos.RealizedPnL = (pos.EntryPrice - exitPrice) * float64(pos.Quantity)
	}
	pos.Open = false
	pos.ExitTime = time.Now()
	pos.ExitReason = reason
	pos.ExitOrderID = exitOrderID

	delete(l.open, instrumentID)
	l.closed = append(l.closed, pos)
	l.dailyPnL += pos.RealizedPnL
	l.capital += pos.RealizedPnL

	l.log.Info("position closed",
		zap.String("instrument", instrumentID),
		zap.String("reason", string(reason)),
		zap.Float64("exit", exitPrice),
		zap.Float64("realized_pnl", pos.RealizedPnL),
		zap.Float64("daily_pnl", l.dailyPnL))

	cp := *pos
	return &cp, nil
}

// HasOpen reports whether the instrument has an open position.
func (l *Ledger) HasOpen(instrumentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.open[instrumentID]
	return ok
}

// OpenPositions returns copies of all open positions.
func (l *Ledger) OpenPositions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Position, 0, len(l.open))
	for _, pos := range l.open {
		out = append(out, *pos)
	}
	return out
}

// ClosedPositions returns copies of today's closed positions.
func (l *Ledger) ClosedPositions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Position, 0, len(l.closed))
	for _, pos := range l.closed {
		out = append(out, *pos)
	}
	return out
}

// ResetDay zeroes the daily P&L and clears the closed-position list. Open
// positions and capital are untouched. The ledger mutex makes the reset
// mutually exclusive with any open or close in flight.
func (l *Ledger) ResetDay() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dailyPnL = 0
	l.closed = nil
	l.log.Info("daily ledger reset", zap.Float64("capital", l.capital), zap.Int("open_positions", len(l.open)))
}

// Snapshot returns the current capital, daily P&L and position counts.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Snapshot{
		Capital:       l.capital,
		DailyPnL:      l.dailyPnL,
		OpenPositions: len(l.open),
		ClosedToday:   len(l.closed),
		Exposure:      l.exposureLocked(),
	}
}

func (l *Ledger) exposureLocked() float64 {
	var total float64
	for _, pos := range l.open {
		total += pos.Notional()
	}
	return total
}
