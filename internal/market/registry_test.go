package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagnikdas/algowala/internal/model"
)

func TestRegistry_InstrumentLookup(t *testing.T) {
	r := NewRegistry(50)
	r.PutInstrument(model.Instrument{ID: "256265", Symbol: "NIFTY 50", Exchange: "NSE", LotSize: 50, Active: true})

	inst, ok := r.Instrument("256265")
	require.True(t, ok)
	assert.Equal(t, "NIFTY 50", inst.Symbol)

	inst, ok = r.Lookup("NIFTY 50")
	require.True(t, ok)
	assert.Equal(t, "256265", inst.ID)

	lot, ok := r.LotSize("256265")
	require.True(t, ok)
	assert.Equal(t, 50, lot)

	_, ok = r.Instrument("unknown")
	assert.False(t, ok)
}

func TestRegistry_QuoteLastWriteWins(t *testing.T) {
	r := NewRegistry(50)

	r.SetQuote(model.Quote{InstrumentID: "256265", LastPrice: 19800, Timestamp: time.Now()})
	r.SetQuote(model.Quote{InstrumentID: "256265", LastPrice: 19850, Timestamp: time.Now()})

	price, ok := r.LastPrice("256265")
	require.True(t, ok)
	assert.Equal(t, 19850.0, price)

	_, ok = r.LastPrice("unknown")
	assert.False(t, ok)
}

func TestRegistry_ClosestStrike(t *testing.T) {
	r := NewRegistry(50)

	assert.Equal(t, 19800, r.ClosestStrike(19810))
	assert.Equal(t, 19850, r.ClosestStrike(19830))
	assert.Equal(t, 19850, r.ClosestStrike(19825)) // round half away from zero
	assert.Equal(t, 19800, r.ClosestStrike(19800))
}

func TestRegistry_OptionInstrument(t *testing.T) {
	r := NewRegistry(50)
	expiry := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)
	r.PutInstrument(model.Instrument{ID: "111", Symbol: "NIFTY26SEP19800CE", Name: "NIFTY", Strike: 19800, Expiry: expiry, OptionType: model.OptionCall, Active: true})
	r.PutInstrument(model.Instrument{ID: "112", Symbol: "NIFTY26SEP19800PE", Name: "NIFTY", Strike: 19800, Expiry: expiry, OptionType: model.OptionPut, Active: true})
	r.PutInstrument(model.Instrument{ID: "113", Symbol: "NIFTY26SEP19850CE", Name: "NIFTY", Strike: 19850, Expiry: expiry, OptionType: model.OptionCall, Active: false})

	ce, ok := r.OptionInstrument("NIFTY", 19800, model.OptionCall)
	require.True(t, ok)
	assert.Equal(t, "111", ce.ID)

	pe, ok := r.OptionInstrument("NIFTY", 19800, model.OptionPut)
	require.True(t, ok)
	assert.Equal(t, "112", pe.ID)

	_, ok = r.OptionInstrument("NIFTY", 19850, model.OptionCall)
	assert.False(t, ok, "inactive instruments are excluded")
}

func TestRegistry_OptionInstrumentFiltersUnderlying(t *testing.T) {
	r := NewRegistry(50)
	r.PutInstrument(model.Instrument{
		ID: "901", Symbol: "FINNIFTY26DEC19800CE", Name: "FINNIFTY", Strike: 19800,
		Expiry: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), OptionType: model.OptionCall, Active: true,
	})

	_, ok := r.OptionInstrument("NIFTY", 19800, model.OptionCall)
	assert.False(t, ok, "another underlying's contract at the same strike must not be traded")
}

func TestRegistry_OptionInstrumentPrefersNearestExpiry(t *testing.T) {
	r := NewRegistry(50)
	r.PutInstrument(model.Instrument{
		ID: "902", Symbol: "NIFTY26DEC19800CE", Name: "NIFTY", Strike: 19800,
		Expiry: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), OptionType: model.OptionCall, Active: true,
	})
	r.PutInstrument(model.Instrument{
		ID: "903", Symbol: "NIFTY26SEP19800CE", Name: "NIFTY", Strike: 19800,
		Expiry: time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC), OptionType: model.OptionCall, Active: true,
	})
	r.PutInstrument(model.Instrument{
		ID: "904", Symbol: "NIFTY26OCT19800CE", Name: "NIFTY", Strike: 19800,
		Expiry: time.Date(2026, 10, 29, 0, 0, 0, 0, time.UTC), OptionType: model.OptionCall, Active: true,
	})

	for i := 0; i < 10; i++ {
		leg, ok := r.OptionInstrument("NIFTY", 19800, model.OptionCall)
		require.True(t, ok)
		assert.Equal(t, "903", leg.ID, "current series wins over far months")
	}
}
