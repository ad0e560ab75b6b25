package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sagnikdas/algowala/internal/broker"
	"github.com/sagnikdas/algowala/internal/config"
	"github.com/sagnikdas/algowala/internal/guards"
	"github.com/sagnikdas/algowala/internal/ledger"
	"github.com/sagnikdas/algowala/internal/market"
	"github.com/sagnikdas/algowala/internal/metrics"
	"github.com/sagnikdas/algowala/internal/model"
	"github.com/sagnikdas/algowala/internal/recorder"
	"github.com/sagnikdas/algowala/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	logger := mustLogger(cfg.Debug)
	defer func() { _ = logger.Sync() }()
	logger.Info("algowala starting", zap.String("config", cfgPath))

	session := broker.NewFileTokenSource(cfg.Broker.TokenFile, cfg.Loops.LoginCheckInterval.Std())
	kite := broker.NewKiteClient(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Proxy, session)

	m := metrics.New()
	if cfg.Metrics.ListenAddr != "" {
		metricsSrv := m.Serve(cfg.Metrics.ListenAddr, logger)
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutCtx)
		}()
		logger.Info("metrics listening", zap.String("addr", cfg.Metrics.ListenAddr))
	}

	gateway := guards.NewSafeGateway(kite, cfg.Guards.OrdersPerMinute, cfg.Guards.DupWindow.Std(),
		cfg.Guards.BreakerThreshold, cfg.Guards.BreakerCooldown.Std(), m, logger)

	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn("sqlite recorder unavailable, trades will not be persisted", zap.Error(err))
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer func() { _ = sr.Close() }()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	registry := market.NewRegistry(cfg.Market.StrikeStep)
	book := ledger.New(cfg.Risk.Capital, model.RiskParameters{
		MaxDailyLoss:            cfg.Risk.MaxDailyLoss,
		MaxPositionSizePct:      cfg.Risk.MaxPositionSizePct,
		RiskPerTradePct:         cfg.Risk.RiskPerTradePct,
		MaxPositions:            cfg.Risk.MaxPositions,
		MaxPortfolioExposurePct: cfg.Risk.MaxPortfolioExposurePct,
	}, logger)

	clock, err := scheduler.NewMarketClock(cfg.Market.Timezone, cfg.Market.Open, cfg.Market.Close, cfg.Market.SquareOff)
	if err != nil {
		logger.Fatal("market clock", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loadInstruments(ctx, kite, registry, cfg, logger)

	if cfg.Broker.TickerURL != "" {
		ids := make([]string, 0, len(cfg.Watchlist))
		for _, item := range cfg.Watchlist {
			ids = append(ids, item.InstrumentID)
		}
		ticker := broker.NewTicker(cfg.Broker.TickerURL, cfg.Broker.APIKey, session, ids, logger)
		ticker.OnTick = registry.SetQuote
		go ticker.Run(ctx)
	}

	orc := scheduler.New(scheduler.Deps{
		Config:   cfg,
		Log:      logger,
		Clock:    clock,
		Session:  session,
		Data:     kite,
		Gateway:  gateway,
		Registry: registry,
		Ledger:   book,
		Recorder: rec,
		Metrics:  m,
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		s := <-sigCh
		logger.Info("shutdown signal received", zap.String("signal", s.String()))
		cancel()
	}()

	if err := orc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("orchestrator", zap.Error(err))
	}
	logger.Info("algowala stopped")
}

func mustLogger(debug bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	return logger
}

// loadInstruments fills the registry with the watched underlyings and the
// current option chain. Runs once in the background; a failure leaves the
// engine trading the underlyings directly.
func loadInstruments(ctx context.Context, catalog broker.InstrumentCatalog, registry *market.Registry,
	cfg *config.Config, logger *zap.Logger) {
	watched := make(map[string]bool, len(cfg.Watchlist))
	for _, item := range cfg.Watchlist {
		watched[item.Underlying] = true
		registry.PutInstrument(model.Instrument{
			ID:       item.InstrumentID,
			Symbol:   item.Symbol,
			Name:     item.Underlying,
			Exchange: cfg.Market.Exchange,
			LotSize:  1,
			Active:   true,
		})
	}

	if cfg.Market.OptionExchange == "" {
		return
	}
	insts, err := catalog.Instruments(ctx, cfg.Market.OptionExchange)
	if err != nil {
		logger.Warn("instrument master load failed, option legs unavailable", zap.Error(err))
		return
	}
	// Keep only the watched underlyings' chains; the full master carries
	// every listed contract.
	kept := 0
	for _, inst := range insts {
		if !watched[inst.Name] {
			continue
		}
		registry.PutInstrument(inst)
		kept++
	}
	logger.Info("instrument master loaded",
		zap.String("exchange", cfg.Market.OptionExchange),
		zap.Int("kept", kept),
		zap.Int("total", len(insts)))
}
