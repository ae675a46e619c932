// Package observe provides the observability primitives shared by the
// recognizer: OpenTelemetry metrics, tracing, trace-aware logging and HTTP
// middleware.
//
// Metrics go through the OpenTelemetry Metrics API and are exposed on
// /metrics by the Prometheus bridge set up in [InitProvider]. Tests should
// build their own instance with [NewMetrics] and a manual reader instead of
// using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ayusman/signvista"

// Metrics holds every metric instrument of the application. The OTel types
// handle their own synchronisation.
type Metrics struct {
	// InferenceDuration tracks the wall time of one recognition pass.
	// Attribute: status.
	InferenceDuration metric.Float64Histogram

	// ModuleDuration tracks the time a single classifier module spent on a
	// frame. Attribute: module.
	ModuleDuration metric.Float64Histogram

	// Results counts recognition results. Attributes: status, module.
	Results metric.Int64Counter

	// ModuleFailures counts module errors and panics. Attribute: module.
	ModuleFailures metric.Int64Counter

	// BudgetExceeded counts passes slower than the configured latency budget.
	BudgetExceeded metric.Int64Counter

	// PluginExecutions counts plugin runs. Attributes: plugin, status.
	PluginExecutions metric.Int64Counter

	// ActiveSessions tracks the number of live recognition sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks request latency. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, tuned for per-frame
// inference.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2.5,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.InferenceDuration, err = m.Float64Histogram("signvista.inference.duration",
		metric.WithDescription("Latency of one recognition pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModuleDuration, err = m.Float64Histogram("signvista.module.duration",
		metric.WithDescription("Latency of a single classifier module."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Results, err = m.Int64Counter("signvista.results",
		metric.WithDescription("Recognition results by status and module."),
	); err != nil {
		return nil, err
	}
	if met.ModuleFailures, err = m.Int64Counter("signvista.module.failures",
		metric.WithDescription("Classifier module errors and panics."),
	); err != nil {
		return nil, err
	}
	if met.BudgetExceeded, err = m.Int64Counter("signvista.latency_budget.exceeded",
		metric.WithDescription("Recognition passes slower than the latency budget."),
	); err != nil {
		return nil, err
	}
	if met.PluginExecutions, err = m.Int64Counter("signvista.plugin.executions",
		metric.WithDescription("Plugin executions by plugin and status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("signvista.active_sessions",
		metric.WithDescription("Number of live recognition sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("signvista.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from the global meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordInference records the duration and outcome of one recognition pass.
// module is empty when no module produced the result.
func (m *Metrics) RecordInference(ctx context.Context, d time.Duration, status, module string) {
	m.InferenceDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("status", status)))
	m.Results.Add(ctx, 1, metric.WithAttributes(
		Attr("status", status),
		Attr("module", module),
	))
}

// RecordModule records how long module took on one frame.
func (m *Metrics) RecordModule(ctx context.Context, module string, d time.Duration) {
	m.ModuleDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("module", module)))
}

// RecordModuleFailure counts a failed module invocation.
func (m *Metrics) RecordModuleFailure(ctx context.Context, module string) {
	m.ModuleFailures.Add(ctx, 1, metric.WithAttributes(Attr("module", module)))
}

// RecordBudgetExceeded counts a pass that overran the latency budget.
func (m *Metrics) RecordBudgetExceeded(ctx context.Context) {
	m.BudgetExceeded.Add(ctx, 1)
}

// RecordPlugin counts a plugin execution.
func (m *Metrics) RecordPlugin(ctx context.Context, plugin, status string) {
	m.PluginExecutions.Add(ctx, 1, metric.WithAttributes(
		Attr("plugin", plugin),
		Attr("status", status),
	))
}

// AddSessions moves the active session gauge by delta.
func (m *Metrics) AddSessions(ctx context.Context, delta int64) {
	m.ActiveSessions.Add(ctx, delta)
}
