// Package secrets fetches the gateway's API key set from an external
// secret backend. Backends store a single JSON object mapping
// human-readable key names to key values:
//
//	{"service-a": "sk-abc123...", "service-b": "sk-def456..."}
//
// Providers perform a fresh backend call on every fetch; caching and
// atomic replacement are the auth cache's job.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ProviderType identifies a secret backend.
type ProviderType string

const (
	// ProviderTypeVault uses HashiCorp Vault as the backend.
	ProviderTypeVault ProviderType = "vault"
	// ProviderTypeFile uses a local JSON file as the backend.
	ProviderTypeFile ProviderType = "file"
	// ProviderTypeEnv uses an environment variable as the backend.
	ProviderTypeEnv ProviderType = "env"
)

// Common errors for secret providers.
var (
	// ErrBackendUnavailable is returned when the backend cannot be reached.
	ErrBackendUnavailable = errors.New("secrets: backend unavailable")

	// ErrMalformedPayload is returned when the backend payload is not a
	// valid name-to-key JSON object.
	ErrMalformedPayload = errors.New("secrets: malformed key payload")

	// ErrNotFound is returned when the key secret does not exist.
	ErrNotFound = errors.New("secrets: key secret not found")

	// ErrProviderNotConfigured is returned when the provider configuration
	// is incomplete.
	ErrProviderNotConfigured = errors.New("secrets: provider not configured")
)

// Provider fetches the current API key set from a secret backend.
type Provider interface {
	// Type returns the provider type.
	Type() ProviderType

	// FetchKeys retrieves the full name-to-key mapping. It never returns
	// a partially decoded mapping: on any decode error the whole fetch
	// fails with ErrMalformedPayload.
	FetchKeys(ctx context.Context) (map[string]string, error)

	// HealthCheck checks backend connectivity.
	HealthCheck(ctx context.Context) error

	// Close releases provider resources.
	Close() error
}

// DecodeKeyPayload decodes a raw JSON payload into a name-to-key mapping.
// Non-object payloads and non-string values fail wholesale.
func DecodeKeyPayload(data []byte) (map[string]string, error) {
	var keys map[string]string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return keys, nil
}
