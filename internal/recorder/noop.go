package recorder

import "github.com/sagnikdas/algowala/internal/model"

// NoopRecorder discards everything. Used when no database is configured or
// the SQLite recorder fails to open.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSignal(*SignalRecord) error       { return nil }
func (n *NoopRecorder) RecordTrade(*model.Position) error      { return nil }
func (n *NoopRecorder) RecordDailySummary(*DailySummary) error { return nil }
func (n *NoopRecorder) Close() error                           { return nil }
