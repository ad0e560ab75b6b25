package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
broker:
  base_url: https://api.kite.trade
  api_key: testkey
market:
  timezone: Asia/Kolkata
watchlist:
  - symbol: "NIFTY 50"
    instrument_id: "256265"
risk:
  capital: 750000
  risk_per_trade_pct: 2
loops:
  signal_interval: 5s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://api.kite.trade", cfg.Broker.BaseURL)
	assert.Equal(t, 750000.0, cfg.Risk.Capital)
	assert.Equal(t, 2.0, cfg.Risk.RiskPerTradePct)
	assert.Equal(t, 5*time.Second, cfg.Loops.SignalInterval.Std())

	// Defaults fill everything not specified.
	assert.Equal(t, "09:15", cfg.Market.Open)
	assert.Equal(t, "15:30", cfg.Market.Close)
	assert.Equal(t, 3*time.Second, cfg.Loops.MonitorInterval.Std())
	assert.Equal(t, 3, cfg.Risk.MaxPositions)
	assert.Equal(t, 50.0, cfg.Market.StrikeStep)
	assert.Equal(t, "NIFTY", cfg.Watchlist[0].Underlying, "derived from the watch symbol when unset")

	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KITE_API_KEY", "envkey")
	t.Setenv("TRADING_CAPITAL", "123456")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "envkey", cfg.Broker.APIKey)
	assert.Equal(t, 123456.0, cfg.Risk.Capital)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", cfg.Market.Timezone)

	// Without broker credentials validation must fail.
	assert.Error(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	bad := *cfg
	bad.Risk.RiskPerTradePct = 150
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Market.Open = "9am"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Watchlist = nil
	assert.Error(t, bad.Validate())
}
