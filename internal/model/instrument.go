package model

import "time"

// OptionType distinguishes call and put option legs.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// Instrument describes a tradable contract. Instances are created once at
// catalog load and treated as immutable; lot size constrains every position
// quantity to an integer multiple.
type Instrument struct {
	ID         string
	Symbol     string
	Name       string // underlying name from the instrument master, e.g. "NIFTY"
	Exchange   string
	TickSize   float64
	LotSize    int
	Strike     float64
	OptionType OptionType
	Expiry     time.Time
	Active     bool
}

// Quote is the latest market snapshot for an instrument. Quotes are replaced
// wholesale on each update; no history is retained.
type Quote struct {
	InstrumentID string
	LastPrice    float64
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	Timestamp    time.Time
}

// CandleData is a single historical OHLCV bar as returned by the broker,
// optionally carrying open interest.
type CandleData struct {
	Timestamp    time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	OpenInterest int64
}
