package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
rpc:
  endpoint: "https://api.mainnet-beta.solana.com"
  websocket_url: "wss://api.mainnet-beta.solana.com"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, DefaultProgramID, cfg.Scanner.ProgramID)
	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.InDelta(t, 0.4, cfg.Pipeline.VolumeWeight, 1e-9)
	assert.InDelta(t, 40.0, cfg.Pipeline.MinScore, 1e-9)
	assert.InDelta(t, 99.0, cfg.Pipeline.GraduatedAt, 1e-9)
	assert.InDelta(t, -15.0, cfg.Position.StopLossPct, 1e-9)
	assert.Equal(t, 100, cfg.State.WALFlushSize)
	assert.Equal(t, 5, cfg.State.SnapshotKeep)
	assert.True(t, cfg.Trading.DryRun)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
pipeline:
  workers: 8
  min_score: 55
position:
  stop_loss_pct: -20
`))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.InDelta(t, 55.0, cfg.Pipeline.MinScore, 1e-9)
	assert.InDelta(t, -20.0, cfg.Position.StopLossPct, 1e-9)
}

func TestValidateMissingEndpoint(t *testing.T) {
	_, err := Load(writeConfig(t, `
rpc:
  websocket_url: "wss://api.mainnet-beta.solana.com"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc.endpoint")
}

func TestValidateBadSchemes(t *testing.T) {
	_, err := Load(writeConfig(t, `
rpc:
  endpoint: "ftp://example.org"
  websocket_url: "wss://example.org"
`))
	require.Error(t, err)

	_, err = Load(writeConfig(t, `
rpc:
  endpoint: "https://example.org"
  websocket_url: "https://example.org"
`))
	require.Error(t, err)
}

func TestValidateWeightsMustSumToOne(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
pipeline:
  volume_weight: 0.5
  holder_weight: 0.5
  curve_weight: 0.5
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights")
}

func TestValidateStopLossMustBeNegative(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
position:
  stop_loss_pct: 15
`))
	require.Error(t, err)
}

func TestValidateProgressBand(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
pipeline:
  min_progress: 99
  graduated_at: 50
`))
	require.Error(t, err)
}

func TestValidateLiveModeNeedsKey(t *testing.T) {
	t.Setenv("TEST_SNIPER_KEY", "")
	_, err := Load(writeConfig(t, minimalConfig+`
trading:
  dry_run: false
  private_key_env: "TEST_SNIPER_KEY"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live trading")
}

func TestValidateLiveModeWithKey(t *testing.T) {
	t.Setenv("TEST_SNIPER_KEY", "some-key-material")
	_, err := Load(writeConfig(t, minimalConfig+`
trading:
  dry_run: false
  private_key_env: "TEST_SNIPER_KEY"
`))
	require.NoError(t, err)
}
