// Package observability installs the OpenTelemetry tracer provider used by
// the HTTP middleware, the service spans and the GORM tracing plugin.
package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-meal-backend/internal/config"
)

// Test seams.
var (
	newOTLPClient = otlptracegrpc.NewClient

	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return otlptrace.New(ctx, client)
	}

	newServiceResourceFn = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		return resource.New(ctx,
			resource.WithAttributes(semconv.ServiceName(serviceName), semconv.ServiceVersion(version)),
			resource.WithHost(),
		)
	}
)

// SetupOTel exports traces over OTLP/gRPC when cfg.Enabled and returns a
// shutdown func that flushes pending spans. extra attributes (for example
// the configured store backend) are added to the service resource. When
// disabled the shutdown is a no-op and the global provider is left alone.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string, extra ...attribute.KeyValue) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := serviceResource(ctx, cfg.ServiceName, version, extra)
	if err != nil {
		return nil, err
	}
	exp, err := newOTLPExporterFn(ctx, newOTLPClient(clientOptions(cfg)...))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}

// clientOptions leaves the endpoint to OTEL_EXPORTER_OTLP_ENDPOINT when
// none is configured.
func clientOptions(cfg config.OTELConfig) []otlptracegrpc.Option {
	var opts []otlptracegrpc.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}

func serviceResource(ctx context.Context, name, version string, extra []attribute.KeyValue) (*resource.Resource, error) {
	res, err := newServiceResourceFn(ctx, name, version)
	if err != nil || len(extra) == 0 {
		return res, err
	}
	return resource.Merge(res, resource.NewSchemaless(extra...))
}
