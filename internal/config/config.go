// Package config holds gateway configuration loaded from a YAML file
// and/or environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Key source types.
const (
	// KeySourceVault fetches API keys from a HashiCorp Vault KV secret.
	KeySourceVault = "vault"

	// KeySourceFile reads API keys from a local JSON file.
	KeySourceFile = "file"

	// KeySourceEnv reads API keys from a JSON object in an environment
	// variable.
	KeySourceEnv = "env"
)

// DefaultAPIKeyHeader is the header callers present their API key in.
const DefaultAPIKeyHeader = "X-API-Key"

// Default timeouts.
const (
	// DefaultUpstreamTimeout bounds a single proxied request. Inference
	// generations are slow, so the ceiling is generous.
	DefaultUpstreamTimeout = 300 * time.Second

	DefaultShutdownTimeout = 30 * time.Second
	DefaultDialTimeout     = 10 * time.Second
)

// Config is the root gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Keys     KeysConfig     `yaml:"keys"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Address           string   `yaml:"address"`
	Port              int      `yaml:"port"`
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout"`
	IdleTimeout       Duration `yaml:"idleTimeout"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout"`
}

// UpstreamConfig configures the inference server the gateway forwards to.
type UpstreamConfig struct {
	// URL is the upstream base address, e.g. "http://localhost:8080".
	URL string `yaml:"url"`

	// Timeout is the per-request ceiling for a proxied call, body
	// streaming included.
	Timeout Duration `yaml:"timeout"`

	// DialTimeout bounds connection establishment to the upstream.
	DialTimeout Duration `yaml:"dialTimeout"`

	// MaxIdleConns configures the transport connection pool.
	MaxIdleConns int `yaml:"maxIdleConns"`

	// CircuitBreaker optionally trips the upstream path open after
	// repeated failures.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// CircuitBreakerConfig configures the upstream circuit breaker.
type CircuitBreakerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold int      `yaml:"threshold"`
	Timeout   Duration `yaml:"timeout"`
}

// KeysConfig configures where API keys are loaded from and how they are
// presented by callers.
type KeysConfig struct {
	// Source is one of "vault", "file", "env".
	Source string `yaml:"source"`

	// Header is the request header carrying the API key.
	Header string `yaml:"header"`

	Vault VaultKeysConfig `yaml:"vault"`
	File  FileKeysConfig  `yaml:"file"`
	Env   EnvKeysConfig   `yaml:"env"`
}

// VaultKeysConfig locates the key secret in Vault.
type VaultKeysConfig struct {
	// Address is the Vault server address. Falls back to VAULT_ADDR.
	Address string `yaml:"address"`

	// Token authenticates with Vault. Falls back to VAULT_TOKEN.
	Token string `yaml:"token"`

	// AppRole credentials, used instead of Token when set.
	RoleID   string `yaml:"roleId"`
	SecretID string `yaml:"secretId"`

	// Mount is the KV v2 mount point.
	Mount string `yaml:"mount"`

	// Path is the secret path under the mount whose data object is the
	// name-to-key mapping.
	Path string `yaml:"path"`

	// Namespace is the Vault namespace (Enterprise only).
	Namespace string `yaml:"namespace"`

	// Timeout bounds a single fetch.
	Timeout Duration `yaml:"timeout"`
}

// FileKeysConfig locates the key file on disk.
type FileKeysConfig struct {
	// Path is the JSON file holding the name-to-key mapping.
	Path string `yaml:"path"`

	// Watch reloads the key set automatically when the file changes.
	Watch bool `yaml:"watch"`
}

// EnvKeysConfig names the environment variable holding the key mapping.
type EnvKeysConfig struct {
	// Var is the environment variable containing the JSON object.
	Var string `yaml:"var"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	ServiceName  string  `yaml:"serviceName"`
}

// Default returns a Config with default values applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8000,
			ReadHeaderTimeout: Duration(5 * time.Second),
			IdleTimeout:       Duration(120 * time.Second),
			ShutdownTimeout:   Duration(DefaultShutdownTimeout),
		},
		Upstream: UpstreamConfig{
			URL:          "http://localhost:8080",
			Timeout:      Duration(DefaultUpstreamTimeout),
			DialTimeout:  Duration(DefaultDialTimeout),
			MaxIdleConns: 100,
			CircuitBreaker: CircuitBreakerConfig{
				Threshold: 5,
				Timeout:   Duration(30 * time.Second),
			},
		},
		Keys: KeysConfig{
			Source: KeySourceVault,
			Header: DefaultAPIKeyHeader,
			Vault: VaultKeysConfig{
				Mount:   "secret",
				Path:    "llmgw/api-keys",
				Timeout: Duration(30 * time.Second),
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
			ServiceName:  "llmgw",
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}

	if c.Upstream.URL == "" {
		return errors.New("upstream: url is required")
	}
	u, err := url.Parse(c.Upstream.URL)
	if err != nil {
		return fmt.Errorf("upstream: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("upstream: url has no host")
	}
	if c.Upstream.Timeout < 0 {
		return errors.New("upstream: timeout must be non-negative")
	}

	if c.Keys.Header == "" {
		return errors.New("keys: header is required")
	}

	switch c.Keys.Source {
	case KeySourceVault:
		if c.Keys.Vault.Path == "" {
			return errors.New("keys: vault.path is required")
		}
	case KeySourceFile:
		if c.Keys.File.Path == "" {
			return errors.New("keys: file.path is required")
		}
	case KeySourceEnv:
		if c.Keys.Env.Var == "" {
			return errors.New("keys: env.var is required")
		}
	default:
		return fmt.Errorf("keys: invalid source %q, must be one of: vault, file, env", c.Keys.Source)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics: invalid port %d", c.Metrics.Port)
		}
		if c.Metrics.Port == c.Server.Port {
			return errors.New("metrics: port must differ from server port")
		}
	}

	if c.Tracing.Enabled && c.Tracing.OTLPEndpoint == "" {
		return errors.New("tracing: otlpEndpoint is required when enabled")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing: samplingRate %v out of range [0,1]", c.Tracing.SamplingRate)
	}

	return nil
}
