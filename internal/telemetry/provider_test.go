package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bloodbank/bloodbank/internal/config"
	"github.com/bloodbank/bloodbank/internal/telemetry"
)

func TestSetup_NoopWhenDisabled(t *testing.T) {
	cfg := config.Default().Tracing
	cfg.Endpoint = "http://192.0.2.1:4318"

	shutdown, err := telemetry.Setup(context.Background(), cfg, "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_NoopWithoutEndpoint(t *testing.T) {
	cfg := config.Default().Tracing
	cfg.Enabled = true

	shutdown, err := telemetry.Setup(context.Background(), cfg, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, shutdown(ctx))
}

func TestSetup_CreatesProviderWhenEnabled(t *testing.T) {
	cfg := config.Default().Tracing
	cfg.Enabled = true
	// Non-routable, so nothing is actually exported.
	cfg.Endpoint = "http://192.0.2.1:4318"

	shutdown, err := telemetry.Setup(context.Background(), cfg, "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestNewProvider_ExportsSampledSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	cfg := config.Default().Tracing

	tp, err := telemetry.NewProvider(context.Background(), cfg, "1.2.3", exporter)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "inventory.reserve")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "inventory.reserve", spans[0].Name)
	assert.Contains(t, spans[0].Resource.String(), "bloodbank")
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewProvider_ZeroRatioDropsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	cfg := config.Default().Tracing
	cfg.SampleRatio = 0

	tp, err := telemetry.NewProvider(context.Background(), cfg, "1.2.3", exporter)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "inventory.reserve")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	assert.Empty(t, exporter.GetSpans())
	require.NoError(t, tp.Shutdown(context.Background()))
}
