package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/llmgw/internal/observability"
)

// DefaultVaultTimeout bounds a single Vault request.
const DefaultVaultTimeout = 30 * time.Second

// VaultConfig holds configuration for the Vault provider.
type VaultConfig struct {
	// Address is the Vault server address. Empty falls back to VAULT_ADDR.
	Address string

	// Token authenticates with Vault. Empty falls back to VAULT_TOKEN
	// unless AppRole credentials are set.
	Token string

	// RoleID and SecretID select AppRole authentication when non-empty.
	RoleID   string
	SecretID string

	// Mount is the KV v2 mount point. Defaults to "secret".
	Mount string

	// Path is the secret path under the mount.
	Path string

	// Namespace is the Vault namespace (Enterprise only).
	Namespace string

	// Timeout bounds a single request.
	Timeout time.Duration
}

// VaultProvider fetches API keys from a HashiCorp Vault KV v2 secret.
type VaultProvider struct {
	api    *vaultapi.Client
	mount  string
	path   string
	logger observability.Logger
}

// NewVaultProvider creates a Vault-backed key provider and authenticates
// with the server.
func NewVaultProvider(ctx context.Context, cfg *VaultConfig, logger observability.Logger) (*VaultProvider, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("%w: vault secret path is required", ErrProviderNotConfigured)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	apiConfig := vaultapi.DefaultConfig()
	if cfg.Address != "" {
		apiConfig.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		apiConfig.Timeout = cfg.Timeout
	} else {
		apiConfig.Timeout = DefaultVaultTimeout
	}

	api, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}

	p := &VaultProvider{
		api:    api,
		mount:  mount,
		path:   cfg.Path,
		logger: logger.With(observability.String("component", "vault")),
	}

	if err := p.authenticate(ctx, cfg); err != nil {
		return nil, err
	}

	p.logger.Info("vault key provider initialized",
		observability.String("address", apiConfig.Address),
		observability.String("mount", mount),
		observability.String("path", cfg.Path),
	)

	return p, nil
}

// authenticate sets the client token, logging in via AppRole when role
// credentials are configured.
func (p *VaultProvider) authenticate(ctx context.Context, cfg *VaultConfig) error {
	if cfg.RoleID != "" {
		secret, err := p.api.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("%w: approle login: %v", ErrBackendUnavailable, err)
		}
		if secret == nil || secret.Auth == nil {
			return fmt.Errorf("%w: approle login returned no auth data", ErrBackendUnavailable)
		}
		p.api.SetToken(secret.Auth.ClientToken)
		return nil
	}

	if cfg.Token != "" {
		p.api.SetToken(cfg.Token)
	}
	return nil
}

// Type returns the provider type.
func (p *VaultProvider) Type() ProviderType {
	return ProviderTypeVault
}

// FetchKeys reads the key secret from Vault and decodes the data object
// into a name-to-key mapping.
func (p *VaultProvider) FetchKeys(ctx context.Context) (map[string]string, error) {
	secret, err := p.api.KVv2(p.mount).Get(ctx, p.path)
	if err != nil {
		if errors.Is(err, vaultapi.ErrSecretNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, p.mount, p.path)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, p.mount, p.path)
	}

	keys := make(map[string]string, len(secret.Data))
	for name, value := range secret.Data {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: value for %q is not a string", ErrMalformedPayload, name)
		}
		keys[name] = s
	}

	return keys, nil
}

// HealthCheck verifies the Vault server is reachable and unsealed.
func (p *VaultProvider) HealthCheck(ctx context.Context) error {
	health, err := p.api.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if health.Sealed {
		return fmt.Errorf("%w: vault is sealed", ErrBackendUnavailable)
	}
	return nil
}

// Close releases provider resources.
func (p *VaultProvider) Close() error {
	return nil
}

var _ Provider = (*VaultProvider)(nil)
