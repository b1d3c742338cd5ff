package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{ServiceName: "llmgw", Enabled: false})
	require.NoError(t, err)
	assert.False(t, tracer.Enabled())

	ctx, span := tracer.Start(context.Background(), "test-op")
	assert.NotNil(t, ctx)
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}
