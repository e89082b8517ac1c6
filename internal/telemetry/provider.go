// Package telemetry initializes OpenTelemetry tracing for the server.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/tracebus/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope used by tracebus packages.
const TracerName = "github.com/rzbill/tracebus"

// Provider owns the process tracer provider.
type Provider struct {
	tp  trace.TracerProvider
	sdk *sdktrace.TracerProvider
}

// Init builds a tracer provider from cfg and installs it globally. Without an
// endpoint it installs a no-op provider so spans cost nothing.
func Init(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	if cfg.Endpoint == "" {
		p := &Provider{tp: noop.NewTracerProvider()}
		otel.SetTracerProvider(p.tp)
		return p, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithTimeout(10 * time.Second),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "tracebus"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdk)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return &Provider{tp: sdk, sdk: sdk}, nil
}

// Tracer returns the tracebus tracer from this provider.
func (p *Provider) Tracer() trace.Tracer { return p.tp.Tracer(TracerName) }

// Shutdown flushes any remaining spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	if err := p.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}
