package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coupd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Clock.PollInterval.Std())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
clock:
  worker_count: 4
  poll_interval: 2s
broadcast:
  tick_interval: 1m
llm:
  reasoning_url: http://reasoner:8000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host) // untouched default
	assert.Equal(t, 4, cfg.Clock.WorkerCount)
	assert.Equal(t, 2*time.Second, cfg.Clock.PollInterval.Std())
	assert.Equal(t, time.Minute, cfg.Broadcast.TickInterval.Std())
	assert.Equal(t, 10*time.Second, cfg.Broadcast.EndpointTimeout.Std())
	assert.Equal(t, "http://reasoner:8000", cfg.LLM.ReasoningURL)
}

func TestLoadEnvFallbackPath(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 7070\n")
	t.Setenv("COUPD_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "clock:\n  poll_interval: soon\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid duration")
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"port out of range":     "server:\n  port: 70000\n",
		"zero workers":          "clock:\n  worker_count: -1\n",
		"negative poll":         "clock:\n  poll_interval: -5s\n",
		"negative tick":         "broadcast:\n  tick_interval: -1m\n",
		"negative llm timeout":  "llm:\n  push_timeout: -1s\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
