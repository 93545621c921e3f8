// Package observability wires the process-wide OpenTelemetry tracer
// provider used by the coordinator's span instrumentation.
package observability

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName identifies this router in every span's resource attributes.
const ServiceName = "mcp-endpoint"

// InitTracing installs a TracerProvider that writes spans as JSON to w. In
// production w is typically io.Discard-backed (tracing disabled) or a debug
// writer; dev mode wires it to stderr so span output is visible locally.
// The returned shutdown func flushes and releases the provider; call it
// before process exit.
func InitTracing(ctx context.Context, w io.Writer) (shutdown func(context.Context) error, err error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", ServiceName)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
