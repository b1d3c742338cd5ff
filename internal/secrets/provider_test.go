package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeyPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		payload       string
		expected      map[string]string
		expectedError error
	}{
		{
			name:     "Valid mapping",
			payload:  `{"service-a": "sk-aaa", "service-b": "sk-bbb"}`,
			expected: map[string]string{"service-a": "sk-aaa", "service-b": "sk-bbb"},
		},
		{
			name:     "Empty object",
			payload:  `{}`,
			expected: map[string]string{},
		},
		{
			name:          "Not JSON",
			payload:       `not json at all`,
			expectedError: ErrMalformedPayload,
		},
		{
			name:          "JSON array",
			payload:       `["sk-aaa", "sk-bbb"]`,
			expectedError: ErrMalformedPayload,
		},
		{
			name:          "Non-string value fails the whole payload",
			payload:       `{"service-a": "sk-aaa", "service-b": 42}`,
			expectedError: ErrMalformedPayload,
		},
		{
			name:          "Nested object value",
			payload:       `{"service-a": {"key": "sk-aaa"}}`,
			expectedError: ErrMalformedPayload,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			keys, err := DecodeKeyPayload([]byte(tt.payload))
			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, keys)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, keys)
			}
		})
	}
}
