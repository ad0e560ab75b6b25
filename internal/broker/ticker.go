package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sagnikdas/algowala/internal/model"
)

const (
	tickerReadTimeout  = 30 * time.Second
	tickerMaxBackoff   = 30 * time.Second
	tickerBaseBackoff  = time.Second
	tickerWriteTimeout = 5 * time.Second
)

// Ticker streams live ticks over a websocket and feeds them to OnTick.
// It reconnects with exponential backoff until its context is cancelled;
// a dead feed degrades the engine to REST quote fallbacks, it never stops
// the trading loops.
type Ticker struct {
	url         string
	apiKey      string
	session     SessionProvider
	instruments []string
	log         *zap.Logger

	// OnTick receives every parsed tick. Must be safe for concurrent use.
	OnTick func(model.Quote)
}

// NewTicker creates a Ticker that subscribes to the given instrument ids.
func NewTicker(url, apiKey string, session SessionProvider, instruments []string, log *zap.Logger) *Ticker {
	return &Ticker{
		url:         url,
		apiKey:      apiKey,
		session:     session,
		instruments: instruments,
		log:         log,
	}
}

type tickMessage struct {
	InstrumentID string  `json:"instrument_token"`
	LastPrice    float64 `json:"last_price"`
	Volume       float64 `json:"volume"`
	OHLC         struct {
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"ohlc"`
}

// Run connects and pumps ticks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	backoff := tickerBaseBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		err := t.connectAndPump(ctx)
		if ctx.Err() != nil {
			return
		}
		t.log.Warn("ticker disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > tickerMaxBackoff {
			backoff = tickerMaxBackoff
		}
	}
}

func (t *Ticker) connectAndPump(ctx context.Context) error {
	token, ok := t.session.AccessToken()
	if !ok {
		return ErrNotLoggedIn
	}

	url := fmt.Sprintf("%s?api_key=%s&access_token=%s", t.url, t.apiKey, token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial ticker: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{"a": "subscribe", "v": t.instruments}
	conn.SetWriteDeadline(time.Now().Add(tickerWriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	t.log.Info("ticker connected", zap.Int("instruments", len(t.instruments)))

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(tickerReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read tick: %w", err)
		}

		var msg tickMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.log.Debug("skipping unparseable tick", zap.Error(err))
			continue
		}
		if msg.InstrumentID == "" || msg.LastPrice <= 0 {
			continue
		}
		if t.OnTick != nil {
			t.OnTick(model.Quote{
				InstrumentID: msg.InstrumentID,
				LastPrice:    msg.LastPrice,
				Open:         msg.OHLC.Open,
				High:         msg.OHLC.High,
				Low:          msg.OHLC.Low,
				Close:        msg.OHLC.Close,
				Volume:       msg.Volume,
				Timestamp:    time.Now(),
			})
		}
	}
}
