package model

// WidthClass buckets the central pivot range by its width.
type WidthClass string

const (
	WidthNarrow WidthClass = "NARROW"
	WidthNormal WidthClass = "NORMAL"
	WidthWide   WidthClass = "WIDE"
)

// CPR width thresholds in index points, tuned for Nifty.
const (
	narrowCPRWidth = 12.0
	wideCPRWidth   = 25.0
)

// PivotLevels holds the pivot, support/resistance levels and the central
// range derived from the previous session's OHLC. Built once per trading
// day and never mutated afterwards.
type PivotLevels struct {
	Pivot         float64
	R1            float64
	R2            float64
	R3            float64
	S1            float64
	S2            float64
	S3            float64
	TopCentral    float64
	BottomCentral float64
	PrevHigh      float64
	PrevLow       float64
}

// Width returns the width of the central pivot range.
func (l PivotLevels) Width() float64 {
	return l.TopCentral - l.BottomCentral
}

// WidthClass classifies the central range as narrow (<12), wide (>25)
// or normal.
func (l PivotLevels) WidthClass() WidthClass {
	switch w := l.Width(); {
	case w < narrowCPRWidth:
		return WidthNarrow
	case w > wideCPRWidth:
		return WidthWide
	default:
		return WidthNormal
	}
}

// PrevRange returns the previous day's high-low range.
func (l PivotLevels) PrevRange() float64 {
	return l.PrevHigh - l.PrevLow
}
