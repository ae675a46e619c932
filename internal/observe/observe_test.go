package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func hasAttr(set attribute.Set, key, value string) bool {
	v, ok := set.Value(attribute.Key(key))
	return ok && v.AsString() == value
}

func TestRecordInference(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordInference(ctx, 40*time.Millisecond, "ready", "detection")
	m.RecordInference(ctx, 10*time.Millisecond, "no_subject", "")
	m.RecordInference(ctx, 12*time.Millisecond, "ready", "detection")

	rm := collect(t, reader)

	met := findMetric(rm, "signvista.results")
	require.NotNil(t, met)
	sum, ok := met.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value("status")
		counts[v.AsString()] += dp.Value
	}
	assert.Equal(t, int64(2), counts["ready"])
	assert.Equal(t, int64(1), counts["no_subject"])

	met = findMetric(rm, "signvista.inference.duration")
	require.NotNil(t, met)
	hist, ok := met.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	assert.Equal(t, uint64(3), total)
}

func TestRecordModuleAndFailures(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordModule(ctx, "recognition", 5*time.Millisecond)
	m.RecordModuleFailure(ctx, "translation")
	m.RecordBudgetExceeded(ctx)
	m.RecordPlugin(ctx, "keyboard", "ok")

	rm := collect(t, reader)

	failures := findMetric(rm, "signvista.module.failures")
	require.NotNil(t, failures)
	sum := failures.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.True(t, hasAttr(sum.DataPoints[0].Attributes, "module", "translation"))

	for _, name := range []string{
		"signvista.module.duration",
		"signvista.latency_budget.exceeded",
		"signvista.plugin.executions",
	} {
		assert.NotNil(t, findMetric(rm, name), name)
	}
}

func TestActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.AddSessions(ctx, 1)
	m.AddSessions(ctx, 1)
	m.AddSessions(ctx, -1)

	met := findMetric(collect(t, reader), "signvista.active_sessions")
	require.NotNil(t, met)
	sum := met.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
	assert.False(t, sum.IsMonotonic)
}

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	ctx, span := StartSpan(context.Background(), "recognize")
	assert.NotNil(t, Logger(ctx))
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "recognize", spans[0].Name)
}

func TestMiddleware_RecordsRequest(t *testing.T) {
	m, reader := newTestMetrics(t)

	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	met := findMetric(collect(t, reader), "signvista.http.request.duration")
	require.NotNil(t, met)
	hist := met.Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.True(t, hasAttr(hist.DataPoints[0].Attributes, "path", "/api/health"))
}
