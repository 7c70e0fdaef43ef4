package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{ServiceName: "clinic-reviews"})

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracer_Enabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracer(context.Background(), Config{
		ServiceName:    "clinic-reviews",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "127.0.0.1:0",
		SampleRate:     1.0,
		Enabled:        true,
	})
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "global provider should be the SDK provider")

	// Export to an unreachable collector may fail on flush; that is fine here.
	_ = shutdown(context.Background())
}

func TestSampler(t *testing.T) {
	root := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{0x01},
		Name:          "recompute",
	}

	assert.Equal(t, sdktrace.RecordAndSample, Sampler(1).ShouldSample(root).Decision)
	assert.Equal(t, sdktrace.RecordAndSample, Sampler(2).ShouldSample(root).Decision)
	assert.Equal(t, sdktrace.Drop, Sampler(0).ShouldSample(root).Decision)
}

func TestSampler_HonorsSampledParent(t *testing.T) {
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	params := sdktrace.SamplingParameters{
		ParentContext: trace.ContextWithSpanContext(context.Background(), parent),
		TraceID:       parent.TraceID(),
		Name:          "child",
	}

	assert.Equal(t, sdktrace.RecordAndSample, Sampler(0).ShouldSample(params).Decision)
}

func TestTracer_ReturnsNamedTracer(t *testing.T) {
	assert.NotNil(t, Tracer("clinic-reviews"))
}
