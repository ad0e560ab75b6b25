// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics bundles every collector the bot registers.
type Metrics struct {
	SignalsGenerated *prometheus.CounterVec
	OrdersAttempted  prometheus.Counter
	OrdersPlaced     prometheus.Counter
	OrdersFailed     prometheus.Counter
	OrdersSuppressed prometheus.Counter
	BreakerState     prometheus.Gauge

	OpenPositions prometheus.Gauge
	DailyPnL      prometheus.Gauge
	Capital       prometheus.Gauge
	MarketOpen    prometheus.Gauge

	registry *prometheus.Registry
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		SignalsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Signals produced by the strategy engine, by outcome",
		}, []string{"outcome"}),
		OrdersAttempted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bot_orders_attempted_total",
			Help: "Orders the bot tried to place",
		}),
		OrdersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "bot_orders_placed_total",
			Help: "Orders accepted by the broker",
		}),
		OrdersFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bot_orders_failed_total",
			Help: "Orders rejected or failed at the broker",
		}),
		OrdersSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bot_orders_suppressed_total",
			Help: "Orders blocked by the safety layer (rate/idempotency/breaker)",
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bot_breaker_state",
			Help: "0=closed, 1=half_open, 2=open",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Currently open positions",
		}),
		DailyPnL: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bot_daily_pnl",
			Help: "Realized P&L for the trading day",
		}),
		Capital: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bot_capital",
			Help: "Current trading capital",
		}),
		MarketOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bot_market_open",
			Help: "1 while the market session is open",
		}),
		registry: reg,
	}
	return m
}

// Serve exposes /metrics on addr. Errors other than server-closed are
// logged, never fatal; metrics are best-effort.
func (m *Metrics) Serve(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}
