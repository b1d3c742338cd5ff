package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileProvider reads API keys from a local JSON file. Useful for
// development and for deployments where the key set is mounted as a
// secret volume.
type FileProvider struct {
	path string
}

// NewFileProvider creates a file-backed key provider.
func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: key file path is required", ErrProviderNotConfigured)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderNotConfigured, err)
	}
	return &FileProvider{path: absPath}, nil
}

// Path returns the absolute path of the key file.
func (p *FileProvider) Path() string {
	return p.path
}

// Type returns the provider type.
func (p *FileProvider) Type() ProviderType {
	return ProviderTypeFile
}

// FetchKeys reads and decodes the key file.
func (p *FileProvider) FetchKeys(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p.path)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return DecodeKeyPayload(data)
}

// HealthCheck verifies the key file is readable.
func (p *FileProvider) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(p.path); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Close releases provider resources.
func (p *FileProvider) Close() error {
	return nil
}

var _ Provider = (*FileProvider)(nil)
