// Package scheduler drives the trading day: it waits for a broker session,
// computes the day's pivot levels, runs the timed signal/monitor/status
// loops, and force-closes everything at square-off, market close or
// shutdown. Loop iterations never kill the loop; every error is local to
// one instrument and one tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sagnikdas/algowala/internal/broker"
	"github.com/sagnikdas/algowala/internal/calculator"
	"github.com/sagnikdas/algowala/internal/config"
	"github.com/sagnikdas/algowala/internal/ledger"
	"github.com/sagnikdas/algowala/internal/market"
	"github.com/sagnikdas/algowala/internal/metrics"
	"github.com/sagnikdas/algowala/internal/model"
	"github.com/sagnikdas/algowala/internal/recorder"
	"github.com/sagnikdas/algowala/internal/strategy"
)

// ErrLoginUnavailable means no access token appeared before the session
// ended. The day is over before it began; the operator has to re-login.
var ErrLoginUnavailable = errors.New("scheduler: no broker session before market close")

// State is the orchestrator lifecycle phase.
type State int

const (
	StateInit State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Deps are the collaborators the orchestrator sequences. All of them are
// constructed in main; the orchestrator owns none of their lifecycles
// except the cron runner it creates itself.
type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	Clock    *MarketClock
	Session  broker.SessionProvider
	Data     broker.MarketData
	Gateway  broker.OrderGateway
	Registry *market.Registry
	Ledger   *ledger.Ledger
	Recorder recorder.Recorder
	Metrics  *metrics.Metrics
}

// Orchestrator runs one trading day at a time. The level cache and the
// market-open edge detector are the only state it guards itself; position
// and P&L state live in the ledger.
type Orchestrator struct {
	cfg   *config.Config
	log   *zap.Logger
	clock *MarketClock

	session  broker.SessionProvider
	data     broker.MarketData
	gateway  broker.OrderGateway
	registry *market.Registry
	ledger   *ledger.Ledger
	recorder recorder.Recorder
	metrics  *metrics.Metrics

	mu        sync.Mutex
	state     State
	levels    map[string]model.PivotLevels
	levelsDay string
	wasOpen   bool

	cron *cron.Cron
	wg   sync.WaitGroup
}

// New wires an orchestrator in the init state.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		cfg:      d.Config,
		log:      d.Log,
		clock:    d.Clock,
		session:  d.Session,
		data:     d.Data,
		gateway:  d.Gateway,
		registry: d.Registry,
		ledger:   d.Ledger,
		recorder: d.Recorder,
		metrics:  d.Metrics,
		state:    StateInit,
		levels:   make(map[string]model.PivotLevels),
	}
}

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.log.Info("orchestrator state", zap.Stringer("state", s))
}

// Run executes the daily sequence and blocks until ctx is cancelled or the
// day cannot start. It returns ErrLoginUnavailable when no session token
// appears before market close.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateInit {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started (state %s)", o.state)
	}
	o.state = StateRunning
	o.mu.Unlock()

	if err := o.awaitLogin(ctx); err != nil {
		o.setState(StateStopped)
		return err
	}

	o.computeLevels(ctx)

	o.cron = cron.New(cron.WithLocation(o.clock.Location()))
	if _, err := o.cron.AddFunc(o.clock.CronAtOpen(), o.dailyReset); err != nil {
		o.setState(StateStopped)
		return fmt.Errorf("register daily reset: %w", err)
	}
	if _, err := o.cron.AddFunc(o.clock.CronAtSquareOff(), o.squareOff); err != nil {
		o.setState(StateStopped)
		return fmt.Errorf("register square-off: %w", err)
	}
	o.cron.Start()

	loopCtx, cancelLoops := context.WithCancel(ctx)
	o.startLoop(loopCtx, o.cfg.Loops.SignalInterval.Std(), o.signalTick)
	o.startLoop(loopCtx, o.cfg.Loops.MonitorInterval.Std(), o.monitorTick)
	o.startLoop(loopCtx, o.cfg.Loops.StatusInterval.Std(), o.statusTick)

	<-ctx.Done()
	o.setState(StateStopping)
	cancelLoops()
	o.shutdown()
	o.setState(StateStopped)
	return nil
}

// startLoop repeats fn with a fixed delay between the end of one iteration
// and the start of the next. One slow broker call delays only its own loop.
func (o *Orchestrator) startLoop(ctx context.Context, delay time.Duration, fn func(context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			fn(ctx)
			timer.Reset(delay)
		}
	}()
}

// awaitLogin polls the session provider until a token shows up. If the
// session window closes first on a trading day, the day is declared lost.
func (o *Orchestrator) awaitLogin(ctx context.Context) error {
	if _, ok := o.session.AccessToken(); ok {
		return nil
	}
	o.log.Info("waiting for broker session token")

	ticker := time.NewTicker(o.cfg.Loops.LoginCheckInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, ok := o.session.AccessToken(); ok {
				o.log.Info("broker session available")
				return nil
			}
			now := o.clock.Now()
			if o.clock.IsTradingDay(now) && o.clock.PastClose(now) {
				return ErrLoginUnavailable
			}
			o.log.Warn("still not logged in")
		}
	}
}

// computeLevels populates the pivot cache from prior-session daily candles.
// An instrument that fails stays out of today's trading; the rest proceed.
func (o *Orchestrator) computeLevels(ctx context.Context) {
	now := o.clock.Now()
	from := now.AddDate(0, 0, -7)

	fresh := make(map[string]model.PivotLevels, len(o.cfg.Watchlist))
	for _, item := range o.cfg.Watchlist {
		candles, err := o.data.HistoricalOHLC(ctx, item.InstrumentID, "day", from, now)
		if err != nil {
			o.log.Warn("level calc: historical fetch failed, instrument excluded for the day",
				zap.String("symbol", item.Symbol), zap.Error(err))
			continue
		}
		prev, ok := priorSessionCandle(candles, now)
		if !ok {
			o.log.Warn("level calc: no prior-session candle, instrument excluded for the day",
				zap.String("symbol", item.Symbol))
			continue
		}
		levels, err := calculator.Calculate(prev.High, prev.Low, prev.Close)
		if err != nil {
			o.log.Warn("level calc: bad OHLC, instrument excluded for the day",
				zap.String("symbol", item.Symbol), zap.Error(err))
			continue
		}
		fresh[item.InstrumentID] = levels
		o.log.Info("pivot levels ready",
			zap.String("symbol", item.Symbol),
			zap.Float64("pivot", levels.Pivot),
			zap.Float64("tc", levels.TopCentral),
			zap.Float64("bc", levels.BottomCentral),
			zap.String("width", string(levels.WidthClass())))
	}

	o.mu.Lock()
	o.levels = fresh
	o.levelsDay = now.Format("2006-01-02")
	o.mu.Unlock()
}

// priorSessionCandle returns the newest candle from before today.
func priorSessionCandle(candles []model.CandleData, now time.Time) (model.CandleData, bool) {
	today := now.Format("2006-01-02")
	for i := len(candles) - 1; i >= 0; i-- {
		if candles[i].Timestamp.In(now.Location()).Format("2006-01-02") != today {
			return candles[i], true
		}
	}
	return model.CandleData{}, false
}

func (o *Orchestrator) levelsFor(id string) (model.PivotLevels, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.levels[id]
	return l, ok
}

// price returns the freshest known price for an instrument, falling back
// to a REST quote when the tick stream has nothing yet.
func (o *Orchestrator) price(ctx context.Context, id string) (float64, bool) {
	if p, ok := o.registry.LastPrice(id); ok {
		return p, true
	}
	q, err := o.data.Quote(ctx, id)
	if err != nil {
		o.log.Warn("quote fetch failed", zap.String("instrument", id), zap.Error(err))
		return 0, false
	}
	o.registry.SetQuote(q)
	return q.LastPrice, true
}

// signalTick evaluates every watched instrument once. Failures and policy
// rejections are per-instrument; the tick always completes.
func (o *Orchestrator) signalTick(ctx context.Context) {
	now := o.clock.Now()
	if !o.clock.IsOpen(now) || o.clock.PastSquareOff(now) {
		return
	}
	// Levels must come from today's reset. At the next open the reset cron
	// and this loop race; trading yesterday's range against un-reset
	// counters is worse than sitting out a tick.
	o.mu.Lock()
	current := o.levelsDay == now.Format("2006-01-02")
	o.mu.Unlock()
	if !current {
		return
	}

	for _, item := range o.cfg.Watchlist {
		levels, ok := o.levelsFor(item.InstrumentID)
		if !ok {
			continue
		}
		price, ok := o.price(ctx, item.InstrumentID)
		if !ok {
			continue
		}

		sig := strategy.Evaluate(item.InstrumentID, price, levels, o.ledger.HasOpen(item.InstrumentID))
		if sig == nil {
			continue
		}

		executed := false
		if sig.Executable() {
			executed = o.execute(ctx, sig, item)
		} else {
			o.metrics.SignalsGenerated.WithLabelValues("gated").Inc()
			o.log.Info("signal below executable gate", zap.String("signal", sig.String()))
		}

		if err := o.recorder.RecordSignal(&recorder.SignalRecord{
			Signal:    sig,
			Executed:  executed,
			Sentiment: string(calculator.ClassifySentiment(price, levels)),
		}); err != nil {
			o.log.Error("record signal", zap.Error(err))
		}
	}
}

// execute picks the traded contract, sizes and opens the position, and
// places the entry order inside the ledger's critical section. Returns
// true only when the ledger advanced.
func (o *Orchestrator) execute(ctx context.Context, sig *model.TradingSignal, item config.WatchItem) bool {
	inst, direction := o.tradeLeg(sig, item)

	pos, err := o.ledger.OpenPosition(sig, inst, func(qty int) (string, error) {
		return o.gateway.PlaceOrder(ctx, broker.OrderRequest{
			InstrumentID: inst.ID,
			Symbol:       inst.Symbol,
			Exchange:     inst.Exchange,
			Direction:    direction,
			Quantity:     qty,
			OrderType:    "MARKET",
		})
	})
	if err != nil {
		o.metrics.SignalsGenerated.WithLabelValues("failed").Inc()
		o.log.Error("entry order failed", zap.String("signal", sig.String()), zap.Error(err))
		return false
	}
	if pos == nil {
		o.metrics.SignalsGenerated.WithLabelValues("rejected").Inc()
		return false
	}
	o.metrics.SignalsGenerated.WithLabelValues("executed").Inc()
	sig.Quantity = pos.Quantity
	return true
}

// tradeLeg maps a directional signal on the underlying to the contract the
// order goes to: the closest-strike call for BUY, the closest-strike put
// for SELL, both entered long. Without a matching option leg the order
// trades the underlying itself in the signal's direction.
func (o *Orchestrator) tradeLeg(sig *model.TradingSignal, item config.WatchItem) (model.Instrument, model.Direction) {
	optType := model.OptionCall
	if sig.Direction == model.Sell {
		optType = model.OptionPut
	}
	strike := o.registry.ClosestStrike(sig.TriggerPrice)
	if leg, ok := o.registry.OptionInstrument(item.Underlying, strike, optType); ok {
		return leg, model.Buy
	}
	if inst, ok := o.registry.Instrument(item.InstrumentID); ok {
		return inst, sig.Direction
	}
	// Registry has nothing for it; trade by id/symbol with lot size 1.
	return model.Instrument{
		ID:       item.InstrumentID,
		Symbol:   item.Symbol,
		Exchange: o.cfg.Market.Exchange,
		LotSize:  1,
	}, sig.Direction
}

// monitorTick refreshes open-position prices and closes whatever crossed
// its stop or target. Detection and closing stay separate: a failed exit
// order leaves the position open for the next tick.
func (o *Orchestrator) monitorTick(ctx context.Context) {
	open := o.ledger.OpenPositions()
	if len(open) == 0 {
		return
	}

	prices := make(map[string]float64, len(open))
	for _, pos := range open {
		if p, ok := o.price(ctx, pos.InstrumentID); ok {
			prices[pos.InstrumentID] = p
		}
	}

	for _, cand := range o.ledger.UpdatePositions(prices) {
		o.closeOne(ctx, cand.InstrumentID, cand.Price, cand.Reason, false)
	}
}

// closeOne places the exit order and, on acceptance, retires the position.
// With force set the ledger closes even when the exit order fails: the day
// is ending and the in-memory position has nowhere to live.
func (o *Orchestrator) closeOne(ctx context.Context, instrumentID string, price float64, reason model.TriggerReason, force bool) {
	pos, ok := o.findOpen(instrumentID)
	if !ok {
		return
	}

	exitID, err := o.gateway.PlaceOrder(ctx, broker.OrderRequest{
		InstrumentID: pos.InstrumentID,
		Symbol:       pos.Symbol,
		Exchange:     o.exchangeFor(pos.Symbol),
		Direction:    o.exitDirection(pos),
		Quantity:     pos.Quantity,
		OrderType:    "MARKET",
	})
	if err != nil {
		o.log.Error("exit order failed",
			zap.String("instrument", instrumentID),
			zap.String("reason", string(reason)),
			zap.Bool("forced", force),
			zap.Error(err))
		if !force {
			return
		}
		exitID = ""
	}

	closed, err := o.ledger.ClosePosition(instrumentID, price, reason, exitID)
	if err != nil {
		o.log.Error("close position", zap.String("instrument", instrumentID), zap.Error(err))
		return
	}
	if err := o.recorder.RecordTrade(closed); err != nil {
		o.log.Error("record trade", zap.Error(err))
	}
}

func (o *Orchestrator) findOpen(instrumentID string) (model.Position, bool) {
	for _, pos := range o.ledger.OpenPositions() {
		if pos.InstrumentID == instrumentID {
			return pos, true
		}
	}
	return model.Position{}, false
}

// exitDirection unwinds the held contract. Option legs are always held
// long, so their exit is a SELL; an underlying position exits opposite to
// its entry side.
func (o *Orchestrator) exitDirection(pos model.Position) model.Direction {
	if leg, ok := o.registry.Lookup(pos.Symbol); ok && leg.OptionType != "" {
		return model.Sell
	}
	if pos.Direction == model.Buy {
		return model.Sell
	}
	return model.Buy
}

func (o *Orchestrator) exchangeFor(symbol string) string {
	if leg, ok := o.registry.Lookup(symbol); ok && leg.OptionType != "" {
		return o.cfg.Market.OptionExchange
	}
	return o.cfg.Market.Exchange
}

// statusTick logs a snapshot, refreshes the gauges and watches for the
// open→closed session edge, which force-closes everything still open.
func (o *Orchestrator) statusTick(ctx context.Context) {
	now := o.clock.Now()
	isOpen := o.clock.IsOpen(now)

	snap := o.ledger.Snapshot()
	o.metrics.OpenPositions.Set(float64(snap.OpenPositions))
	o.metrics.DailyPnL.Set(snap.DailyPnL)
	o.metrics.Capital.Set(snap.Capital)
	if isOpen {
		o.metrics.MarketOpen.Set(1)
	} else {
		o.metrics.MarketOpen.Set(0)
	}

	fields := []zap.Field{
		zap.String("capital", humanize.CommafWithDigits(snap.Capital, 0)),
		zap.String("daily_pnl", humanize.CommafWithDigits(snap.DailyPnL, 2)),
		zap.Int("open_positions", snap.OpenPositions),
		zap.Int("closed_today", snap.ClosedToday),
		zap.Bool("market_open", isOpen),
	}
	for _, item := range o.cfg.Watchlist {
		levels, ok := o.levelsFor(item.InstrumentID)
		if !ok {
			continue
		}
		if p, ok := o.registry.LastPrice(item.InstrumentID); ok {
			fields = append(fields, zap.String(item.Symbol,
				string(calculator.ClassifySentiment(p, levels))))
		}
	}
	o.log.Info("status", fields...)

	o.mu.Lock()
	edge := o.wasOpen && !isOpen
	o.wasOpen = isOpen
	o.mu.Unlock()
	if edge {
		o.log.Info("market closed, force-closing open positions")
		o.forceCloseAll(ctx, model.ReasonMarketClose)
		o.writeDailySummary(now)
	}
}

// squareOff is the cron entry that flattens everything at the intraday
// exit boundary, ahead of the actual close.
func (o *Orchestrator) squareOff() {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.Loops.ShutdownGrace.Std())
	defer cancel()
	o.log.Info("square-off time reached")
	o.forceCloseAll(ctx, model.ReasonTimeBasedExit)
}

// dailyReset is the cron entry at market open: clears the daily counters
// and recomputes levels from the new prior session.
func (o *Orchestrator) dailyReset() {
	o.log.Info("new trading day")
	o.ledger.ResetDay()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	o.computeLevels(ctx)
}

// forceCloseAll retires every open position at its last known price,
// regardless of stop/target state.
func (o *Orchestrator) forceCloseAll(ctx context.Context, reason model.TriggerReason) {
	for _, pos := range o.ledger.OpenPositions() {
		price := pos.CurrentPrice
		if p, ok := o.registry.LastPrice(pos.InstrumentID); ok {
			price = p
		}
		o.closeOne(ctx, pos.InstrumentID, price, reason, true)
	}
}

func (o *Orchestrator) writeDailySummary(now time.Time) {
	snap := o.ledger.Snapshot()
	var wins, losses int
	for _, pos := range o.ledger.ClosedPositions() {
		if pos.RealizedPnL >= 0 {
			wins++
		} else {
			losses++
		}
	}
	if err := o.recorder.RecordDailySummary(&recorder.DailySummary{
		Day:        now.Format("2006-01-02"),
		Capital:    snap.Capital,
		DailyPnL:   snap.DailyPnL,
		Trades:     snap.ClosedToday,
		WinTrades:  wins,
		LossTrades: losses,
	}); err != nil {
		o.log.Error("record daily summary", zap.Error(err))
	}
}

// shutdown awaits in-flight iterations for a bounded grace period, then
// flattens whatever is still open before releasing the cron runner.
func (o *Orchestrator) shutdown() {
	grace := o.cfg.Loops.ShutdownGrace.Std()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		o.log.Warn("grace period elapsed, abandoning in-flight work")
	}

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	o.forceCloseAll(ctx, model.ReasonShutdown)
	o.writeDailySummary(o.clock.Now())

	if o.cron != nil {
		<-o.cron.Stop().Done()
	}
}
