package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestObservability_StartSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	obs := New("test-service", WithSpanProcessor(rec))
	t.Cleanup(obs.Shutdown)

	ctx, span := obs.StartSpan(context.Background(), "search-places", attribute.String("jobKey", "42"))
	require.True(t, span.SpanContext().IsValid())

	_, child := obs.StartSpan(ctx, "catalog.ListPlaces")
	child.End()
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "catalog.ListPlaces", ended[0].Name())
	assert.Equal(t, span.SpanContext().SpanID(), ended[0].Parent().SpanID())
	assert.Contains(t, ended[1].Attributes(), attribute.String("jobKey", "42"))
}

func TestObservability_RecordJob(t *testing.T) {
	obs := New("test-service")
	t.Cleanup(obs.Shutdown)

	assert.NotPanics(t, func() {
		obs.RecordJobProcessed(context.Background(), "search-places", "completed")
		obs.RecordJobDuration(context.Background(), "search-places", 15*time.Millisecond, "completed")
	})
}

func TestObservability_ZeroValue(t *testing.T) {
	var obs Observability

	assert.NotPanics(t, func() {
		_, span := obs.StartSpan(context.Background(), "noop")
		span.End()
		obs.RecordJobProcessed(context.Background(), "x", "failed")
		obs.Shutdown()
	})
}

func TestWithJaeger(t *testing.T) {
	opt, err := WithJaeger("")
	require.NoError(t, err)
	var o options
	opt(&o)
	assert.Empty(t, o.spanProcessors)

	opt, err = WithJaeger("http://localhost:14268/api/traces")
	require.NoError(t, err)
	opt(&o)
	assert.Len(t, o.spanProcessors, 1)
}
