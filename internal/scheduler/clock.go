package scheduler

import (
	"fmt"
	"time"
)

// MarketClock answers session-window questions in the exchange timezone.
// The trading window is weekdays only; exchange holidays are not modelled,
// a closed holiday session simply produces no quotes.
type MarketClock struct {
	loc       *time.Location
	openMin   int
	closeMin  int
	squareMin int

	now func() time.Time // swapped in tests
}

// NewMarketClock parses "HH:MM" boundaries in the given IANA timezone.
func NewMarketClock(timezone, open, close, squareOff string) (*MarketClock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	openMin, err := parseWallClock(open)
	if err != nil {
		return nil, fmt.Errorf("parse open %q: %w", open, err)
	}
	closeMin, err := parseWallClock(close)
	if err != nil {
		return nil, fmt.Errorf("parse close %q: %w", close, err)
	}
	squareMin, err := parseWallClock(squareOff)
	if err != nil {
		return nil, fmt.Errorf("parse square_off %q: %w", squareOff, err)
	}
	if openMin >= closeMin {
		return nil, fmt.Errorf("open %s is not before close %s", open, close)
	}
	if squareMin <= openMin || squareMin > closeMin {
		return nil, fmt.Errorf("square_off %s is outside the %s-%s session", squareOff, open, close)
	}
	return &MarketClock{loc: loc, openMin: openMin, closeMin: closeMin, squareMin: squareMin, now: time.Now}, nil
}

func parseWallClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Now is the current time in the exchange timezone.
func (c *MarketClock) Now() time.Time {
	return c.now().In(c.loc)
}

// Location returns the exchange timezone.
func (c *MarketClock) Location() *time.Location {
	return c.loc
}

// IsTradingDay reports whether t falls on a weekday.
func (c *MarketClock) IsTradingDay(t time.Time) bool {
	wd := t.In(c.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsOpen reports whether t is inside the trading session. Both the open
// and the close minute count as open.
func (c *MarketClock) IsOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	m := minuteOfDay(t.In(c.loc))
	return m >= c.openMin && m <= c.closeMin
}

// PastSquareOff reports whether t is at or beyond the intraday square-off
// boundary. New entries stop here; the close comes later.
func (c *MarketClock) PastSquareOff(t time.Time) bool {
	return minuteOfDay(t.In(c.loc)) >= c.squareMin
}

// PastClose reports whether today's session is already over.
func (c *MarketClock) PastClose(t time.Time) bool {
	return minuteOfDay(t.In(c.loc)) > c.closeMin
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// CronAtOpen is a crontab expression firing at the session open on weekdays.
func (c *MarketClock) CronAtOpen() string {
	return fmt.Sprintf("%d %d * * 1-5", c.openMin%60, c.openMin/60)
}

// CronAtSquareOff fires at the square-off boundary on weekdays.
func (c *MarketClock) CronAtSquareOff() string {
	return fmt.Sprintf("%d %d * * 1-5", c.squareMin%60, c.squareMin/60)
}
