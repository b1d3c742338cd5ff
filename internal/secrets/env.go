package secrets

import (
	"context"
	"fmt"
	"os"
)

// EnvProvider reads API keys from a JSON object stored in a single
// environment variable. Development use only.
type EnvProvider struct {
	varName string
}

// NewEnvProvider creates an environment-variable-backed key provider.
func NewEnvProvider(varName string) (*EnvProvider, error) {
	if varName == "" {
		return nil, fmt.Errorf("%w: environment variable name is required", ErrProviderNotConfigured)
	}
	return &EnvProvider{varName: varName}, nil
}

// Type returns the provider type.
func (p *EnvProvider) Type() ProviderType {
	return ProviderTypeEnv
}

// FetchKeys decodes the key mapping from the environment variable.
func (p *EnvProvider) FetchKeys(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, ok := os.LookupEnv(p.varName)
	if !ok {
		return nil, fmt.Errorf("%w: %s not set", ErrNotFound, p.varName)
	}

	return DecodeKeyPayload([]byte(value))
}

// HealthCheck verifies the environment variable is present.
func (p *EnvProvider) HealthCheck(ctx context.Context) error {
	if _, ok := os.LookupEnv(p.varName); !ok {
		return fmt.Errorf("%w: %s not set", ErrBackendUnavailable, p.varName)
	}
	return nil
}

// Close releases provider resources.
func (p *EnvProvider) Close() error {
	return nil
}

var _ Provider = (*EnvProvider)(nil)
