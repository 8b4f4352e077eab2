// Package observability wires OpenTelemetry tracing and metrics for
// local development. In production the stdout exporters would be
// swapped for a real collector endpoint; for now they give an operator
// running in dev mode a readable trace/metric stream on stderr without
// standing up any external infrastructure.
package observability

import (
	"context"
	"io"
	"net/http"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown flushes and stops the tracer/meter providers installed by Setup.
type Shutdown func(ctx context.Context) error

// Setup installs a global TracerProvider and MeterProvider. When devMode
// is false, both export to io.Discard: instrumentation call sites stay
// live so turning dev mode on requires no code changes, but production
// runs pay no stdout-writing cost.
func Setup(devMode bool) (Shutdown, error) {
	writer := io.Discard
	if devMode {
		writer = os.Stderr
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(writer), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(writer))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}, nil
}

// Tracer is the package-wide tracer sentinelwatch's HTTP and proxy
// middleware spans are created from.
func Tracer() trace.Tracer {
	return otel.Tracer("sentinelwatch")
}

// Meter is the package-wide meter sentinelwatch's request counters and
// histograms are created from.
func Meter() metric.Meter {
	return otel.Meter("sentinelwatch")
}

// HTTPMiddleware wraps next so every request to the local API server
// produces one span and is counted by an otel instrument, alongside the
// existing Prometheus metrics (the two serve different consumers: a
// scrape target versus an exportable trace/metric stream).
func HTTPMiddleware(next http.Handler) http.Handler {
	tracer := Tracer()
	counter, err := Meter().Int64Counter("sentinelwatch.http.requests",
		metric.WithDescription("count of local API server requests"))
	if err != nil {
		counter = nil
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		if counter != nil {
			counter.Add(ctx, 1, metric.WithAttributes())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
