package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customConfig = `
log_level = 3
kiali_server_url = "https://kiali.example.com"
kiali_insecure = true

[[health_config.rate]]
namespace = "bookinfo"
kind = "service"

[[health_config.rate.tolerance]]
code = "^5\\d\\d$"
protocol = "http"
degraded = 5
failure = 15

[[health_config.rate]]
[[health_config.rate.tolerance]]
code = "^[4-5]\\d\\d$"
degraded = 1
failure = 2
`

func TestReadToml(t *testing.T) {
	t.Run("custom configuration", func(t *testing.T) {
		cfg, err := ReadToml([]byte(customConfig))
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.LogLevel)
		assert.Equal(t, "https://kiali.example.com", cfg.KialiServerURL)
		assert.True(t, cfg.KialiInsecure)
		require.Len(t, cfg.HealthConfig.Rate, 2)
		assert.Equal(t, "bookinfo", cfg.HealthConfig.Rate[0].Namespace)
		assert.Equal(t, "service", cfg.HealthConfig.Rate[0].Kind)
		assert.Empty(t, cfg.HealthConfig.Rate[0].Name)
		require.Len(t, cfg.HealthConfig.Rate[0].Tolerance, 1)
		assert.Equal(t, Tolerance{Code: `^5\d\d$`, Protocol: "http", Degraded: 5, Failure: 15}, cfg.HealthConfig.Rate[0].Tolerance[0])
		assert.Equal(t, 2.0, cfg.HealthConfig.Rate[1].Tolerance[0].Failure)
	})

	t.Run("no rate entries keeps defaults", func(t *testing.T) {
		cfg, err := ReadToml([]byte(`kiali_server_url = "http://localhost:20001"`))
		require.NoError(t, err)
		assert.Equal(t, DefaultHealthConfig(), cfg.HealthConfig)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		_, err := ReadToml([]byte(`kiali_url = "http://localhost:20001"`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kiali_url")
	})

	t.Run("invalid toml", func(t *testing.T) {
		_, err := ReadToml([]byte(`log_level = `))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decoding toml")
	})
}

func TestRead(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/kiali-health/config.toml", []byte(customConfig), 0o644))

	cfg, err := Read(fs, "/etc/kiali-health/config.toml")
	require.NoError(t, err)
	assert.Equal(t, "https://kiali.example.com", cfg.KialiServerURL)

	_, err = Read(fs, "/etc/kiali-health/missing.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.toml")
}

func TestDefaultHealthConfig(t *testing.T) {
	rates := DefaultHealthConfig().Rate
	require.Len(t, rates, 1)
	assert.Len(t, rates[0].Tolerance, 4)
	for _, tol := range rates[0].Tolerance {
		assert.LessOrEqual(t, tol.Degraded, tol.Failure)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`log_level = 1`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var latest atomic.Pointer[StaticConfig]
	require.NoError(t, Watch(ctx, afero.NewOsFs(), path, func(cfg *StaticConfig) {
		latest.Store(cfg)
	}))

	replace(t, path, `log_level = 7`)
	require.Eventually(t, func() bool {
		cfg := latest.Load()
		return cfg != nil && cfg.LogLevel == 7
	}, 5*time.Second, 20*time.Millisecond)

	t.Run("invalid rewrite keeps previous configuration", func(t *testing.T) {
		replace(t, path, `log_level = `)
		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, 7, latest.Load().LogLevel)
	})
}

// replace swaps the file in a single rename so the watcher never reads it half written.
func replace(t *testing.T, path, content string) {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}
