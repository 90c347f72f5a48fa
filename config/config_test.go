package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "INR", cfg.Account.Currency)
	assert.Equal(t, 0.5, cfg.Risk.MarginWeight)
	assert.Equal(t, 0.3, cfg.Risk.ConcentrationWeight)
	assert.Equal(t, 0.2, cfg.Risk.LiquidityWeight)
	assert.Equal(t, "30s", cfg.Algorithms.HeartbeatThreshold)
	assert.Equal(t, 4, cfg.Bulk.Workers)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
account:
  id: ACC-42
  currency: INR
  cash: 500000
  margin_capacity: 2000000
risk:
  marginWeight: 0.4
  concentrationWeight: 0.4
  liquidityWeight: 0.2
  daily_vol: 0.015
algorithms:
  heartbeat_threshold: 45s
bulk:
  workers: 8
journal:
  type: sqlite
  db_path: ./journal.db
marketdata:
  url: ws://localhost:9001/stream
  symbols: [RELIANCE, TCS, INFY]
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ACC-42", cfg.Account.ID)
	assert.Equal(t, 500000.0, cfg.Account.Cash)
	assert.Equal(t, 0.4, cfg.Risk.MarginWeight)
	assert.Equal(t, 8, cfg.Bulk.Workers)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, []string{"RELIANCE", "TCS", "INFY"}, cfg.MarketData.Symbols)

	d, err := cfg.Algorithms.Threshold()
	require.NoError(t, err)
	assert.Equal(t, "45s", d.String())
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.json", `{
  "account": {"id": "ACC-1", "currency": "INR", "cash": 100000, "margin_capacity": 450000},
  "risk": {"marginWeight": 0.5, "concentrationWeight": 0.3, "liquidityWeight": 0.2, "daily_vol": 0.02},
  "journal": {"type": "none"}
}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ACC-1", cfg.Account.ID)
	assert.Equal(t, 0.3, cfg.Risk.ConcentrationWeight)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "read config file")
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "weights_sum",
			body: "account:\n  currency: INR\n  margin_capacity: 1000\nrisk:\n  marginWeight: 0.5\n  concentrationWeight: 0.5\n  liquidityWeight: 0.5\n",
			want: "risk weights must sum to 1",
		},
		{
			name: "missing_currency",
			body: "account:\n  margin_capacity: 1000\nrisk:\n  marginWeight: 1\n",
			want: "account.currency is required",
		},
		{
			name: "zero_capacity",
			body: "account:\n  currency: INR\nrisk:\n  marginWeight: 1\n",
			want: "account.margin_capacity must be positive",
		},
		{
			name: "bad_heartbeat",
			body: "account:\n  currency: INR\n  margin_capacity: 1000\nrisk:\n  marginWeight: 1\nalgorithms:\n  heartbeat_threshold: soon\n",
			want: "algorithms.heartbeat_threshold",
		},
		{
			name: "bad_journal_type",
			body: "account:\n  currency: INR\n  margin_capacity: 1000\nrisk:\n  marginWeight: 1\njournal:\n  type: kafka\n",
			want: "journal.type must be",
		},
		{
			name: "csv_missing_paths",
			body: "account:\n  currency: INR\n  margin_capacity: 1000\nrisk:\n  marginWeight: 1\njournal:\n  type: csv\n",
			want: "executions_file and risk_file required",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "bad.yaml", tt.body)
			_, err := LoadFromFile(path)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := Default()
	cfg.Account.ID = "ROUND-1"

	for _, name := range []string{"out.yaml", "out.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, cfg.SaveToFile(path))
		got, err := LoadFromFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, cfg, got, name)
	}
}
