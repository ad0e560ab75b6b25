package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts values like "10s" or "2m" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// WatchItem names one underlying the bot trades around. Underlying is the
// instrument-master name its option chain carries ("NIFTY" for the
// "NIFTY 50" index); it defaults to the first word of the symbol.
type WatchItem struct {
	Symbol       string `yaml:"symbol"`
	InstrumentID string `yaml:"instrument_id"`
	Underlying   string `yaml:"underlying"`
}

// Config holds all application configuration.
type Config struct {
	Broker struct {
		BaseURL   string `yaml:"base_url"`
		TickerURL string `yaml:"ticker_url"`
		APIKey    string `yaml:"api_key"`
		TokenFile string `yaml:"token_file"`
	} `yaml:"broker"`
	Market struct {
		Exchange       string  `yaml:"exchange"`
		OptionExchange string  `yaml:"option_exchange"`
		Timezone       string  `yaml:"timezone"`
		Open           string  `yaml:"open"`
		Close          string  `yaml:"close"`
		SquareOff      string  `yaml:"square_off"`
		StrikeStep     float64 `yaml:"strike_step"`
	} `yaml:"market"`
	Watchlist []WatchItem `yaml:"watchlist"`
	Risk      struct {
		Capital                 float64 `yaml:"capital"`
		MaxDailyLoss            float64 `yaml:"max_daily_loss"`
		MaxPositionSizePct      float64 `yaml:"max_position_size_pct"`
		RiskPerTradePct         float64 `yaml:"risk_per_trade_pct"`
		MaxPositions            int     `yaml:"max_positions"`
		MaxPortfolioExposurePct float64 `yaml:"max_portfolio_exposure_pct"`
	} `yaml:"risk"`
	Loops struct {
		SignalInterval     Duration `yaml:"signal_interval"`
		MonitorInterval    Duration `yaml:"monitor_interval"`
		StatusInterval     Duration `yaml:"status_interval"`
		LoginCheckInterval Duration `yaml:"login_check_interval"`
		ShutdownGrace      Duration `yaml:"shutdown_grace"`
	} `yaml:"loops"`
	Guards struct {
		OrdersPerMinute  int      `yaml:"orders_per_minute"`
		DupWindow        Duration `yaml:"dup_window"`
		BreakerThreshold int      `yaml:"breaker_threshold"`
		BreakerCooldown  Duration `yaml:"breaker_cooldown"`
	} `yaml:"guards"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
	Proxy string `yaml:"proxy"`
	Debug bool   `yaml:"debug"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("KITE_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("KITE_TICKER_URL"); v != "" {
		cfg.Broker.TickerURL = v
	}
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("KITE_TOKEN_FILE"); v != "" {
		cfg.Broker.TokenFile = v
	}
	if v := os.Getenv("TRADING_CAPITAL"); v != "" {
		if capital, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.Capital = capital
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("DEBUG"); v == "true" {
		cfg.Debug = true
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Broker.TokenFile == "" {
		cfg.Broker.TokenFile = "data/access_token.json"
	}
	if cfg.Market.Exchange == "" {
		cfg.Market.Exchange = "NSE"
	}
	if cfg.Market.OptionExchange == "" {
		cfg.Market.OptionExchange = "NFO"
	}
	if cfg.Market.Timezone == "" {
		cfg.Market.Timezone = "Asia/Kolkata"
	}
	if cfg.Market.Open == "" {
		cfg.Market.Open = "09:15"
	}
	if cfg.Market.Close == "" {
		cfg.Market.Close = "15:30"
	}
	if cfg.Market.SquareOff == "" {
		cfg.Market.SquareOff = "15:15"
	}
	if cfg.Market.StrikeStep == 0 {
		cfg.Market.StrikeStep = 50
	}
	if len(cfg.Watchlist) == 0 {
		cfg.Watchlist = []WatchItem{{Symbol: "NIFTY 50", InstrumentID: "256265"}}
	}
	for i, w := range cfg.Watchlist {
		if w.Underlying == "" {
			if f := strings.Fields(w.Symbol); len(f) > 0 {
				cfg.Watchlist[i].Underlying = f[0]
			}
		}
	}
	if cfg.Risk.Capital == 0 {
		cfg.Risk.Capital = 500000
	}
	if cfg.Risk.MaxDailyLoss == 0 {
		cfg.Risk.MaxDailyLoss = 10000
	}
	if cfg.Risk.MaxPositionSizePct == 0 {
		cfg.Risk.MaxPositionSizePct = 10
	}
	if cfg.Risk.RiskPerTradePct == 0 {
		cfg.Risk.RiskPerTradePct = 1
	}
	if cfg.Risk.MaxPositions == 0 {
		cfg.Risk.MaxPositions = 3
	}
	if cfg.Risk.MaxPortfolioExposurePct == 0 {
		cfg.Risk.MaxPortfolioExposurePct = 30
	}
	if cfg.Loops.SignalInterval == 0 {
		cfg.Loops.SignalInterval = Duration(10 * time.Second)
	}
	if cfg.Loops.MonitorInterval == 0 {
		cfg.Loops.MonitorInterval = Duration(3 * time.Second)
	}
	if cfg.Loops.StatusInterval == 0 {
		cfg.Loops.StatusInterval = Duration(time.Minute)
	}
	if cfg.Loops.LoginCheckInterval == 0 {
		cfg.Loops.LoginCheckInterval = Duration(30 * time.Second)
	}
	if cfg.Loops.ShutdownGrace == 0 {
		cfg.Loops.ShutdownGrace = Duration(10 * time.Second)
	}
	if cfg.Guards.OrdersPerMinute == 0 {
		cfg.Guards.OrdersPerMinute = 10
	}
	if cfg.Guards.DupWindow == 0 {
		cfg.Guards.DupWindow = Duration(5 * time.Second)
	}
	if cfg.Guards.BreakerThreshold == 0 {
		cfg.Guards.BreakerThreshold = 3
	}
	if cfg.Guards.BreakerCooldown == 0 {
		cfg.Guards.BreakerCooldown = Duration(2 * time.Minute)
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9188"
	}
}

// Validate checks that all required fields are set and sane.
func (c *Config) Validate() error {
	if c.Broker.BaseURL == "" {
		return fmt.Errorf("broker.base_url is required")
	}
	if c.Broker.APIKey == "" {
		return fmt.Errorf("broker.api_key is required")
	}
	if c.Risk.Capital <= 0 {
		return fmt.Errorf("risk.capital must be positive")
	}
	if c.Risk.RiskPerTradePct <= 0 || c.Risk.RiskPerTradePct > 100 {
		return fmt.Errorf("risk.risk_per_trade_pct must be in (0, 100]")
	}
	if c.Risk.MaxPositionSizePct <= 0 || c.Risk.MaxPositionSizePct > 100 {
		return fmt.Errorf("risk.max_position_size_pct must be in (0, 100]")
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be positive")
	}
	if len(c.Watchlist) == 0 {
		return fmt.Errorf("watchlist must not be empty")
	}
	for i, w := range c.Watchlist {
		if w.InstrumentID == "" || w.Symbol == "" {
			return fmt.Errorf("watchlist[%d]: symbol and instrument_id are required", i)
		}
	}
	if _, err := time.Parse("15:04", c.Market.Open); err != nil {
		return fmt.Errorf("market.open: %w", err)
	}
	if _, err := time.Parse("15:04", c.Market.Close); err != nil {
		return fmt.Errorf("market.close: %w", err)
	}
	if _, err := time.Parse("15:04", c.Market.SquareOff); err != nil {
		return fmt.Errorf("market.square_off: %w", err)
	}
	return nil
}
