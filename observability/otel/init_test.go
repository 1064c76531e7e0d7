package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =x,tenant=quad")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "quad"}, headers)
}

func TestFromEnvDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg := FromEnv("lendingd", "test")
	require.False(t, cfg.Traces)
	require.False(t, cfg.Metrics)

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestFromEnvReadsExporterSettings(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "k=v")
	cfg := FromEnv("lendingd", "prod")
	require.True(t, cfg.Traces)
	require.False(t, cfg.Insecure)
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.Equal(t, "v", cfg.Headers["k"])
}

func TestFromEnvSampleRatio(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	require.Equal(t, 0.25, FromEnv("lendingd", "").SampleRatio)

	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "2")
	require.Zero(t, FromEnv("lendingd", "").SampleRatio)
}
