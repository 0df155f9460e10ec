package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithFieldsAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	Setup("info", "json", &buf)
	t.Cleanup(func() { Setup("info", "json", nil) })

	WithFields("component", "events").Info().Msg("bus ready")
	require.Contains(t, buf.String(), `"component":"events"`)

	buf.Reset()
	ctx := WithRequestID(context.Background(), "req-1")
	require.Equal(t, "req-1", RequestID(ctx))
	LoggerFromContext(ctx).Debug().Msg("hidden")
	LoggerFromContext(ctx).Warn().Msg("slow")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"request_id":"req-1"`)
}
