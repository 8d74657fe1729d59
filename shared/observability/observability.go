package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// ShutdownFunc flushes and stops a provider
type ShutdownFunc func(ctx context.Context) error

func newResource(serviceName, version string) *resource.Resource {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return resource.Default()
	}
	return res
}

// SetupTracing installs a tracer provider that writes spans to w (stdout
// when nil). When disabled the global no-op provider stays in place.
func SetupTracing(serviceName, version string, enabled bool, w io.Writer) (ShutdownFunc, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}
	if w == nil {
		w = os.Stdout
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize stdouttrace exporter: %w", err)
	}
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(newResource(serviceName, version)),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// Metrics bundles the prometheus-backed meter provider with the scrape
// handler that exposes it
type Metrics struct {
	Provider *metric.MeterProvider
	Handler  http.Handler
	shutdown ShutdownFunc
}

// SetupMetrics creates a meter provider exporting to its own prometheus
// registry
func SetupMetrics(serviceName, version string) (*Metrics, error) {
	registry := promclient.NewRegistry()
	exp, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(exp),
		metric.WithResource(newResource(serviceName, version)),
	)
	otel.SetMeterProvider(mp)

	return &Metrics{
		Provider: mp,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		shutdown: mp.Shutdown,
	}, nil
}

// Shutdown stops the meter provider
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.shutdown == nil {
		return nil
	}
	return m.shutdown(ctx)
}

// WallMetrics are the counters recorded by the message and image services
type WallMetrics struct {
	MessagesSubmitted otelmetric.Int64Counter
	ImagesUploaded    otelmetric.Int64Counter
	Restores          otelmetric.Int64Counter
	ReconcileRuns     otelmetric.Int64Counter
	Rejected          otelmetric.Int64Counter
	Duplicates        otelmetric.Int64Counter
}

// NewWallMetrics creates the counters on meter. A nil meter yields no-op
// counters, which is what tests use.
func NewWallMetrics(meter otelmetric.Meter) (*WallMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("birthday-wall")
	}

	var m WallMetrics
	var err error
	counters := []struct {
		dst  *otelmetric.Int64Counter
		name string
		desc string
	}{
		{&m.MessagesSubmitted, "wall_messages_submitted_total", "Messages appended through the API"},
		{&m.ImagesUploaded, "wall_images_uploaded_total", "Images written to the blob store"},
		{&m.Restores, "wall_restores_total", "Wholesale replacements of the message collection"},
		{&m.ReconcileRuns, "wall_reconcile_runs_total", "Reconciler runs"},
		{&m.Rejected, "wall_reconcile_rejected_total", "Messages dropped by the validity filter"},
		{&m.Duplicates, "wall_reconcile_duplicates_total", "Messages collapsed by the merge engine"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, otelmetric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
	}
	return &m, nil
}
