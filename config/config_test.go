package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyswarm/config"
)

var envKeys = []string{
	"LOG_LEVEL", "LOG_FORMAT", "POLY_PRIVATE_KEY", "POLY_RPC_URL",
	"LLM_PROVIDER", "LLM_BASE_URL", "LLM_API_KEY", "LLM_MODEL", "LLM_FORCE_JSON",
	"HIVEMIND_SPECIALIST_MODELS", "HIVEMIND_COORDINATOR_MODEL", "HIVEMIND_MAX_TOKENS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 1000.0, cfg.Swarm.Treasury)
	assert.Equal(t, 100.0, cfg.Swarm.AllocationPerAgent)
	assert.Equal(t, 30*time.Second, cfg.RoundSleep())
	assert.Equal(t, 2*time.Second, cfg.TradePause())
	assert.Equal(t, 30*time.Second, cfg.ErrorBackoff())
	assert.Equal(t, 30*time.Second, cfg.CacheTTL())
	assert.Equal(t, 5, cfg.Swarm.PerAgent)
	assert.Equal(t, 1000.0, cfg.Market.MinVolume)
	assert.Equal(t, 45, cfg.Market.LookbackDays)
	assert.Equal(t, 50, cfg.Market.BookDepth)
	assert.Equal(t, 256, cfg.LLM.MaxTokens)
	assert.Equal(t, 384, cfg.Hivemind.MaxTokens)
	assert.Equal(t, "https://clob.polymarket.com", cfg.API.CLOBBase)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.TradingEnabled())
	assert.False(t, cfg.LLMEnabled())
	assert.False(t, cfg.HivemindEnabled())
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
swarm:
  treasury: 500
  iterations: 3
  agents:
    - name: yolo
    - name: careful
      strategy: value_hunter
      allocation: 50
market:
  min_volume: 2500
llm:
  provider: deepseek
  model: deepseek-chat
  api_key: sk-test
log:
  level: debug
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500.0, cfg.Swarm.Treasury)
	assert.Equal(t, 3, cfg.Swarm.Iterations)
	require.Len(t, cfg.Swarm.Agents, 2)
	assert.Equal(t, "value_hunter", cfg.Swarm.Agents[1].Strategy)
	assert.Equal(t, 50.0, cfg.Swarm.Agents[1].Allocation)
	assert.Equal(t, 2500.0, cfg.Market.MinVolume)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.LLMEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("POLY_PRIVATE_KEY", "abc123")
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("LLM_MODEL", "llama3")
	t.Setenv("LLM_FORCE_JSON", "true")
	t.Setenv("HIVEMIND_SPECIALIST_MODELS", "a, b ,,c")
	t.Setenv("HIVEMIND_COORDINATOR_MODEL", "coord")
	t.Setenv("HIVEMIND_MAX_TOKENS", "512")

	cfg, err := config.Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level, "el entorno gana al YAML")
	assert.True(t, cfg.TradingEnabled())
	assert.True(t, cfg.LLM.StrictJSON)
	assert.True(t, cfg.LLMEnabled(), "ollama no necesita API key")
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Hivemind.SpecialistModels)
	assert.Equal(t, 512, cfg.Hivemind.MaxTokens)
	assert.True(t, cfg.HivemindEnabled())
}

func TestLoad_ReadOnlyDisablesTrading(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLY_PRIVATE_KEY", "abc123")

	cfg, err := config.Load(writeConfig(t, "trading:\n  read_only: true\n"))
	require.NoError(t, err)
	assert.False(t, cfg.TradingEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = config.Load(writeConfig(t, "swarm: [unclosed"))
	require.Error(t, err)

	_, err = config.Load(writeConfig(t, "llm:\n  provider: carrier-pigeon\n"))
	require.Error(t, err)

	_, err = config.Load(writeConfig(t, "swarm:\n  agents:\n    - name: a\n    - name: a\n"))
	require.Error(t, err)
}
