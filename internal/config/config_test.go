package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "TSLA", cfg.Trading.Symbol)
	require.Equal(t, "1Min", cfg.Trading.TimeFrame)
	require.Equal(t, 3, cfg.Trading.LookbackDays)
	require.Equal(t, 1000, cfg.Trading.Limit)
	require.False(t, cfg.Trading.Enabled)
	require.Equal(t, TechnicalConfig{ATRPeriod: 20, RSIPeriod: 14, MAShort: 40, MAMid: 80, MALong: 160}, cfg.Analysis.Technical)
	require.Equal(t, int64(42), cfg.Model.Seed)
	require.InDelta(t, 0.2, cfg.Model.TestSize, 1e-12)
	require.Equal(t, ":8000", cfg.Server.Addr)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
trading:
  symbol: AAPL
  timeframe: 5Min
model:
  type: knn
  neighbors: 7
analysis:
  technical:
    rsi_period: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "AAPL", cfg.Trading.Symbol)
	require.Equal(t, "5Min", cfg.Trading.TimeFrame)
	require.Equal(t, "knn", cfg.Model.Type)
	require.Equal(t, 7, cfg.Model.Neighbors)
	require.Equal(t, 10, cfg.Analysis.Technical.RSIPeriod)
	// не указанные в файле значения остаются по умолчанию
	require.Equal(t, 20, cfg.Analysis.Technical.ATRPeriod)
	require.Equal(t, 1000, cfg.Trading.Limit)
}

func TestLoadEnvSecrets(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_SECRET", "secret")
	t.Setenv("ALPACA_BASE_URL", "https://api.alpaca.markets")
	t.Setenv("INFLUXDB_TOKEN", "token")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "key", cfg.Alpaca.APIKey)
	require.Equal(t, "secret", cfg.Alpaca.APISecret)
	require.Equal(t, "https://api.alpaca.markets", cfg.Alpaca.TradingURL)
	require.Equal(t, "token", cfg.Storage.Token)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown model", "model:\n  type: svm\n"},
		{"test size out of range", "model:\n  test_size: 1.5\n"},
		{"zero atr window", "analysis:\n  technical:\n    atr_period: 0\n"},
		{"storage without bucket", "storage:\n  enabled: true\n  url: http://localhost:8086\n  organization: org\n"},
		{"unknown feed", "alpaca:\n  feed: otc\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "trading: [unclosed"))
	require.Error(t, err)
}
