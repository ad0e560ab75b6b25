package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sagnikdas/algowala/internal/model"
)

// SQLiteRecorder persists history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp     INTEGER NOT NULL,
			instrument_id TEXT,
			direction     TEXT,
			strength      TEXT,
			reason        TEXT,
			trigger_price REAL,
			target_price  REAL,
			stop_loss     REAL,
			confidence    REAL,
			risk_reward   REAL,
			executed      INTEGER,
			sentiment     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(timestamp)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			instrument_id TEXT,
			symbol        TEXT,
			direction     TEXT,
			quantity      INTEGER,
			entry_price   REAL,
			stop_loss     REAL,
			target        REAL,
			entry_time    INTEGER,
			exit_price    REAL,
			exit_time     INTEGER,
			exit_reason   TEXT,
			realized_pnl  REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_entry ON trades(entry_time)`,

		`CREATE TABLE IF NOT EXISTS daily_summaries (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			day         TEXT UNIQUE,
			capital     REAL,
			daily_pnl   REAL,
			trades      INTEGER,
			win_trades  INTEGER,
			loss_trades INTEGER
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSignal(rec *SignalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sig := rec.Signal
	executed := 0
	if rec.Executed {
		executed = 1
	}
	_, err := r.db.Exec(`INSERT INTO signals
		(timestamp, instrument_id, direction, strength, reason,
		 trigger_price, target_price, stop_loss, confidence, risk_reward, executed, sentiment)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		sig.Timestamp.Unix(), sig.InstrumentID, string(sig.Direction), sig.Strength.String(),
		string(sig.Reason), sig.TriggerPrice, sig.TargetPrice, sig.StopLossPrice,
		sig.Confidence, sig.RiskReward(), executed, rec.Sentiment,
	)
	return err
}

func (r *SQLiteRecorder) RecordTrade(pos *model.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO trades
		(instrument_id, symbol, direction, quantity, entry_price, stop_loss, target,
		 entry_time, exit_price, exit_time, exit_reason, realized_pnl)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		pos.InstrumentID, pos.Symbol, string(pos.Direction), pos.Quantity,
		pos.EntryPrice, pos.StopLoss, pos.Target,
		unixOrZero(pos.EntryTime), pos.CurrentPrice, unixOrZero(pos.ExitTime),
		string(pos.ExitReason), pos.RealizedPnL,
	)
	return err
}

func (r *SQLiteRecorder) RecordDailySummary(sum *DailySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO daily_summaries
		(day, capital, daily_pnl, trades, win_trades, loss_trades)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(day) DO UPDATE SET
			capital=excluded.capital, daily_pnl=excluded.daily_pnl,
			trades=excluded.trades, win_trades=excluded.win_trades,
			loss_trades=excluded.loss_trades`,
		sum.Day, sum.Capital, sum.DailyPnL, sum.Trades, sum.WinTrades, sum.LossTrades,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

// unixOrZero guards against recording zero times as huge negatives.
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
