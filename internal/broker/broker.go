// Package broker defines the external collaborator boundaries — session
// token, market data, order placement and the instrument catalog — and a
// kite-style REST implementation of them. The engine treats every call
// here as a suspension point that may fail; failures abandon the current
// tick's work and the next scheduled tick retries naturally.
package broker

import (
	"context"
	"time"

	"github.com/sagnikdas/algowala/internal/model"
)

// SessionProvider yields the current access token when a valid session
// exists. Absence means "not logged in"; the scheduler re-checks on its
// login tick, it never blocks on this.
type SessionProvider interface {
	AccessToken() (string, bool)
}

// MarketData is the broker quote/historical boundary.
type MarketData interface {
	Quote(ctx context.Context, instrumentID string) (model.Quote, error)
	HistoricalOHLC(ctx context.Context, instrumentID, interval string, from, to time.Time) ([]model.CandleData, error)
}

// OrderRequest describes a single order to place.
type OrderRequest struct {
	InstrumentID string
	Symbol       string
	Exchange     string
	Direction    model.Direction
	Quantity     int
	OrderType    string // "MARKET" or "LIMIT"
	Price        float64
	Tag          string
}

// OrderGateway places orders. Placement is fire-and-forget: the returned
// id confirms acceptance, not a fill.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
}

// InstrumentCatalog loads the tradable instrument master for an exchange.
type InstrumentCatalog interface {
	Instruments(ctx context.Context, exchange string) ([]model.Instrument, error)
}
