package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestFailRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	Fail(span, errors.New("boom"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, "boom", spans[0].Status().Description)
}

func TestProviderBatchesSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := newProvider(exp, Config{Debug: true}, resource.Empty())

	_, span := tp.Tracer("test").Start(context.Background(), "subagent.run")
	span.End()
	require.Empty(t, exp.GetSpans())

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "subagent.run", spans[0].Name)
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestProviderSamplesByRatio(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := newProvider(exp, Config{SampleRatio: 0.000001}, resource.Empty())

	sampled := 0
	for range 50 {
		_, span := tp.Tracer("test").Start(context.Background(), "op")
		if span.SpanContext().IsSampled() {
			sampled++
		}
		span.End()
	}
	require.Less(t, sampled, 5)
	require.NoError(t, tp.Shutdown(context.Background()))
}
