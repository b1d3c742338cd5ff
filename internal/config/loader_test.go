package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, KeySourceVault, cfg.Keys.Source)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := `
server:
  port: 9000
upstream:
  url: http://vllm:8080
  timeout: 10m
keys:
  source: file
  file:
    path: /etc/llmgw/keys.json
    watch: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "http://vllm:8080", cfg.Upstream.URL)
	assert.Equal(t, 10*time.Minute, cfg.Upstream.Timeout.Duration())
	assert.Equal(t, KeySourceFile, cfg.Keys.Source)
	assert.Equal(t, "/etc/llmgw/keys.json", cfg.Keys.File.Path)
	assert.True(t, cfg.Keys.File.Watch)

	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultAPIKeyHeader, cfg.Keys.Header)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LLMGW_UPSTREAM_URL", "http://inference:9000")
	t.Setenv("LLMGW_UPSTREAM_TIMEOUT", "45s")
	t.Setenv("LLMGW_KEYS_SOURCE", "env")
	t.Setenv("LLMGW_KEYS_ENV_VAR", "API_KEYS")
	t.Setenv("LLMGW_API_KEY_HEADER", "X-Inference-Key")
	t.Setenv("PORT", "8081")
	t.Setenv("LLMGW_CB_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://inference:9000", cfg.Upstream.URL)
	assert.Equal(t, 45*time.Second, cfg.Upstream.Timeout.Duration())
	assert.Equal(t, KeySourceEnv, cfg.Keys.Source)
	assert.Equal(t, "API_KEYS", cfg.Keys.Env.Var)
	assert.Equal(t, "X-Inference-Key", cfg.Keys.Header)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.True(t, cfg.Upstream.CircuitBreaker.Enabled)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upstream:\n  url: http://from-file:1\n"), 0o600))

	t.Setenv("LLMGW_UPSTREAM_URL", "http://from-env:2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:2", cfg.Upstream.URL)
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("LLMGW_KEYS_SOURCE", "file")

	// file source selected without a path
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file.path is required")
}
