package broker

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sagnikdas/algowala/internal/model"
)

// ErrNotLoggedIn is returned when a call is attempted without a session.
var ErrNotLoggedIn = errors.New("broker: no access token available")

const (
	kiteVersion  = "3"
	candleLayout = "2006-01-02T15:04:05-0700"
	expiryLayout = "2006-01-02"
)

// KiteClient talks to a Zerodha-Kite-style REST API. It implements
// MarketData, OrderGateway and InstrumentCatalog.
type KiteClient struct {
	baseURL string
	apiKey  string
	session SessionProvider
	client  *http.Client
}

// NewKiteClient creates a client with optional proxy support.
func NewKiteClient(baseURL, apiKey, proxyURL string, session SessionProvider) *KiteClient {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &KiteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		session: session,
		client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
	}
}

type kiteEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *KiteClient) do(ctx context.Context, method, path string, body url.Values) (json.RawMessage, error) {
	token, ok := c.session.AccessToken()
	if !ok {
		return nil, ErrNotLoggedIn
	}

	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(body.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Kite-Version", kiteVersion)
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, token))
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	var env kiteEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s %s: status %d: decode: %w", method, path, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, env.Message)
	}
	return env.Data, nil
}

// Quote fetches the latest market snapshot for one instrument.
func (c *KiteClient) Quote(ctx context.Context, instrumentID string) (model.Quote, error) {
	data, err := c.do(ctx, http.MethodGet, "/quote?i="+url.QueryEscape(instrumentID), nil)
	if err != nil {
		return model.Quote{}, err
	}

	var payload map[string]struct {
		LastPrice float64 `json:"last_price"`
		Volume    float64 `json:"volume"`
		OHLC      struct {
			Open  float64 `json:"open"`
			High  float64 `json:"high"`
			Low   float64 `json:"low"`
			Close float64 `json:"close"`
		} `json:"ohlc"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return model.Quote{}, fmt.Errorf("decode quote: %w", err)
	}
	q, ok := payload[instrumentID]
	if !ok {
		return model.Quote{}, fmt.Errorf("quote: no data for instrument %s", instrumentID)
	}
	return model.Quote{
		InstrumentID: instrumentID,
		LastPrice:    q.LastPrice,
		Open:         q.OHLC.Open,
		High:         q.OHLC.High,
		Low:          q.OHLC.Low,
		Close:        q.OHLC.Close,
		Volume:       q.Volume,
		Timestamp:    time.Now(),
	}, nil
}

// HistoricalOHLC fetches candles for the instrument over [from, to].
// Candles arrive as arrays: [timestamp, open, high, low, close, volume, oi].
func (c *KiteClient) HistoricalOHLC(ctx context.Context, instrumentID, interval string, from, to time.Time) ([]model.CandleData, error) {
	path := fmt.Sprintf("/instruments/historical/%s/%s?from=%s&to=%s&oi=1",
		url.PathEscape(instrumentID), url.PathEscape(interval),
		url.QueryEscape(from.Format("2006-01-02 15:04:05")),
		url.QueryEscape(to.Format("2006-01-02 15:04:05")))

	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Candles [][]json.RawMessage `json:"candles"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}

	candles := make([]model.CandleData, 0, len(payload.Candles))
	for _, row := range payload.Candles {
		candle, err := parseCandle(row)
		if err != nil {
			return nil, fmt.Errorf("parse candle: %w", err)
		}
		candles = append(candles, candle)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles, nil
}

func parseCandle(row []json.RawMessage) (model.CandleData, error) {
	if len(row) < 6 {
		return model.CandleData{}, fmt.Errorf("short candle row: %d fields", len(row))
	}
	var tsStr string
	if err := json.Unmarshal(row[0], &tsStr); err != nil {
		return model.CandleData{}, err
	}
	ts, err := time.Parse(candleLayout, tsStr)
	if err != nil {
		return model.CandleData{}, err
	}

	vals := make([]float64, 0, 5)
	for _, raw := range row[1:6] {
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return model.CandleData{}, err
		}
		vals = append(vals, v)
	}

	candle := model.CandleData{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}
	if len(row) > 6 {
		var oi int64
		if err := json.Unmarshal(row[6], &oi); err == nil {
			candle.OpenInterest = oi
		}
	}
	return candle, nil
}

// PlaceOrder submits a regular order and returns the broker order id.
func (c *KiteClient) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	tag := req.Tag
	if tag == "" {
		tag = uuid.NewString()[:8]
	}

	form := url.Values{}
	form.Set("exchange", req.Exchange)
	form.Set("tradingsymbol", req.Symbol)
	form.Set("transaction_type", string(req.Direction))
	form.Set("quantity", strconv.Itoa(req.Quantity))
	form.Set("order_type", req.OrderType)
	form.Set("product", "MIS") // intraday
	form.Set("validity", "DAY")
	form.Set("tag", tag)
	if req.OrderType == "LIMIT" {
		form.Set("price", strconv.FormatFloat(req.Price, 'f', 2, 64))
	}

	data, err := c.do(ctx, http.MethodPost, "/orders/regular", form)
	if err != nil {
		return "", err
	}
	var payload struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode order response: %w", err)
	}
	if payload.OrderID == "" {
		return "", errors.New("place order: empty order id")
	}
	return payload.OrderID, nil
}

// Instruments downloads and parses the instrument master CSV for one
// exchange.
func (c *KiteClient) Instruments(ctx context.Context, exchange string) ([]model.Instrument, error) {
	token, ok := c.session.AccessToken()
	if !ok {
		return nil, ErrNotLoggedIn
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/instruments/"+url.PathEscape(exchange), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Kite-Version", kiteVersion)
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, token))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch instruments: status %d", resp.StatusCode)
	}

	return parseInstrumentsCSV(resp.Body, exchange)
}

// Instrument master columns, per the kite dump format:
// instrument_token, exchange_token, tradingsymbol, name, last_price,
// expiry, strike, tick_size, lot_size, instrument_type, segment, exchange
func parseInstrumentsCSV(r io.Reader, exchange string) ([]model.Instrument, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read instrument header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"instrument_token", "tradingsymbol", "lot_size"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("instrument csv missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []model.Instrument
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read instrument row: %w", err)
		}

		lot, _ := strconv.Atoi(field(row, "lot_size"))
		strike, _ := strconv.ParseFloat(field(row, "strike"), 64)
		tick, _ := strconv.ParseFloat(field(row, "tick_size"), 64)
		expiry, _ := time.Parse(expiryLayout, field(row, "expiry"))

		inst := model.Instrument{
			ID:       field(row, "instrument_token"),
			Symbol:   field(row, "tradingsymbol"),
			Name:     field(row, "name"),
			Exchange: exchange,
			TickSize: tick,
			LotSize:  lot,
			Strike:   strike,
			Expiry:   expiry,
			Active:   true,
		}
		switch field(row, "instrument_type") {
		case "CE":
			inst.OptionType = model.OptionCall
		case "PE":
			inst.OptionType = model.OptionPut
		}
		out = append(out, inst)
	}
	return out, nil
}
