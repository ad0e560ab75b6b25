// Package market holds the instrument catalog and the latest quote per
// instrument. It is the read side of every tick: the ticker feed and the
// REST fallback both write here, and the signal and monitor loops read
// current prices from here.
package market

import (
	"math"
	"sync"

	"github.com/sagnikdas/algowala/internal/model"
)

// Registry is a concurrency-safe instrument and quote store. Quotes are
// last-write-wins; instruments are set once at catalog load.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]model.Instrument
	bySymbol    map[string]string
	quotes      map[string]model.Quote
	strikeStep  float64
}

// NewRegistry creates an empty registry. strikeStep is the spacing of
// option strikes for the watched underlying (50 for Nifty).
func NewRegistry(strikeStep float64) *Registry {
	if strikeStep <= 0 {
		strikeStep = 50
	}
	return &Registry{
		instruments: make(map[string]model.Instrument),
		bySymbol:    make(map[string]string),
		quotes:      make(map[string]model.Quote),
		strikeStep:  strikeStep,
	}
}

// PutInstrument registers an instrument in the catalog.
func (r *Registry) PutInstrument(inst model.Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instruments[inst.ID] = inst
	r.bySymbol[inst.Symbol] = inst.ID
}

// Instrument returns an instrument by id.
func (r *Registry) Instrument(id string) (model.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instruments[id]
	return inst, ok
}

// Lookup returns an instrument by trading symbol.
func (r *Registry) Lookup(symbol string) (model.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySymbol[symbol]
	if !ok {
		return model.Instrument{}, false
	}
	return r.instruments[id], true
}

// LotSize returns the lot size for an instrument.
func (r *Registry) LotSize(id string) (int, bool) {
	inst, ok := r.Instrument(id)
	if !ok {
		return 0, false
	}
	return inst.LotSize, true
}

// SetQuote replaces the stored quote for the instrument wholesale.
func (r *Registry) SetQuote(q model.Quote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes[q.InstrumentID] = q
}

// Quote returns the latest quote for the instrument.
func (r *Registry) Quote(id string) (model.Quote, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.quotes[id]
	return q, ok
}

// LastPrice returns the latest traded price for the instrument.
func (r *Registry) LastPrice(id string) (float64, bool) {
	q, ok := r.Quote(id)
	if !ok || q.LastPrice <= 0 {
		return 0, false
	}
	return q.LastPrice, true
}

// ClosestStrike rounds a price to the nearest strike on the configured
// strike grid.
func (r *Registry) ClosestStrike(price float64) int {
	return int(math.Round(price/r.strikeStep) * r.strikeStep)
}

// OptionInstrument finds the tradable option leg for an underlying at a
// strike. Several contracts can share a strike across expiries and
// underlyings; the current series is the one to trade, so the match with
// the earliest expiry wins, with symbol order breaking exact ties to keep
// the pick deterministic.
func (r *Registry) OptionInstrument(underlying string, strike int, optType model.OptionType) (model.Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best model.Instrument
	found := false
	for _, inst := range r.instruments {
		if inst.OptionType != optType || int(inst.Strike) != strike || !inst.Active {
			continue
		}
		if inst.Name != underlying {
			continue
		}
		if !found || inst.Expiry.Before(best.Expiry) ||
			(inst.Expiry.Equal(best.Expiry) && inst.Symbol < best.Symbol) {
			best = inst
			found = true
		}
	}
	return best, found
}

// ActiveIDs lists the ids of all active instruments.
func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.instruments))
	for id, inst := range r.instruments {
		if inst.Active {
			out = append(out, id)
		}
	}
	return out
}
