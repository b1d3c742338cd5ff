package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration: defaults, then the optional YAML file at
// path, then environment variable overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
// LLMGW_* variables win over the file; the bare PORT variable is honored
// for Cloud Run style deployments.
func applyEnv(cfg *Config) {
	setString(&cfg.Upstream.URL, "LLMGW_UPSTREAM_URL")
	setDuration(&cfg.Upstream.Timeout, "LLMGW_UPSTREAM_TIMEOUT")
	setBool(&cfg.Upstream.CircuitBreaker.Enabled, "LLMGW_CB_ENABLED")
	setInt(&cfg.Upstream.CircuitBreaker.Threshold, "LLMGW_CB_THRESHOLD")
	setDuration(&cfg.Upstream.CircuitBreaker.Timeout, "LLMGW_CB_TIMEOUT")

	setInt(&cfg.Server.Port, "PORT")
	setInt(&cfg.Server.Port, "LLMGW_PORT")
	setString(&cfg.Server.Address, "LLMGW_ADDRESS")

	setString(&cfg.Keys.Source, "LLMGW_KEYS_SOURCE")
	setString(&cfg.Keys.Header, "LLMGW_API_KEY_HEADER")
	setString(&cfg.Keys.Vault.Address, "VAULT_ADDR")
	setString(&cfg.Keys.Vault.Token, "VAULT_TOKEN")
	setString(&cfg.Keys.Vault.Namespace, "VAULT_NAMESPACE")
	setString(&cfg.Keys.Vault.RoleID, "LLMGW_VAULT_ROLE_ID")
	setString(&cfg.Keys.Vault.SecretID, "LLMGW_VAULT_SECRET_ID")
	setString(&cfg.Keys.Vault.Mount, "LLMGW_VAULT_MOUNT")
	setString(&cfg.Keys.Vault.Path, "LLMGW_VAULT_PATH")
	setString(&cfg.Keys.File.Path, "LLMGW_KEYS_FILE")
	setBool(&cfg.Keys.File.Watch, "LLMGW_KEYS_WATCH")
	setString(&cfg.Keys.Env.Var, "LLMGW_KEYS_ENV_VAR")

	setString(&cfg.Log.Level, "LLMGW_LOG_LEVEL")
	setString(&cfg.Log.Format, "LLMGW_LOG_FORMAT")

	setBool(&cfg.Metrics.Enabled, "LLMGW_METRICS_ENABLED")
	setInt(&cfg.Metrics.Port, "LLMGW_METRICS_PORT")

	setBool(&cfg.Tracing.Enabled, "LLMGW_TRACING_ENABLED")
	setString(&cfg.Tracing.OTLPEndpoint, "LLMGW_OTLP_ENDPOINT")
	setFloat(&cfg.Tracing.SamplingRate, "LLMGW_TRACE_SAMPLING")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

func setBool(dst *bool, key string) {
	switch os.Getenv(key) {
	case "true", "1", "yes", "on":
		*dst = true
	case "false", "0", "no", "off":
		*dst = false
	}
}
