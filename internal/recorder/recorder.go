// Package recorder persists an append-only audit trail of signals, trades
// and daily summaries. The trail is never read back into the engine; the
// ledger's state is day-scoped and in-memory by design.
package recorder

import (
	"github.com/sagnikdas/algowala/internal/model"
)

// SignalRecord captures one strategy evaluation outcome, including
// near-miss signals that failed the executable gate.
type SignalRecord struct {
	Signal    *model.TradingSignal
	Executed  bool
	Sentiment string
}

// DailySummary is written once when the trading day ends.
type DailySummary struct {
	Day        string // YYYY-MM-DD
	Capital    float64
	DailyPnL   float64
	Trades     int
	WinTrades  int
	LossTrades int
}

// Recorder persists trading history for offline analysis.
type Recorder interface {
	RecordSignal(rec *SignalRecord) error
	RecordTrade(pos *model.Position) error
	RecordDailySummary(sum *DailySummary) error
	Close() error
}
