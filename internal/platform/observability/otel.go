package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "event-inventory"
	ServiceVersion = "0.1.0"

	TracesPath    = "/v1/traces"
	LogsPath      = "/v1/logs"
	ExportTimeout = 30 * time.Second
	MaxQueueSize  = 2048
)

type ExportConfig struct {
	Endpoint   string
	AuthHeader string
}

func (c ExportConfig) enabled() bool {
	return c.Endpoint != ""
}

func (c ExportConfig) headers() map[string]string {
	if c.AuthHeader == "" {
		return nil
	}
	return map[string]string{"Authorization": c.AuthHeader}
}

func newResource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		// schemaless so the merge never conflicts with the SDK default schema
		resource.NewSchemaless(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
}

// SetupTracing installs the global tracer provider and propagator. Without an
// endpoint the global no-op provider stays in place and shutdown is a no-op.
func SetupTracing(ctx context.Context, cfg ExportConfig) (trace.TracerProvider, func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	noop := func(context.Context) error { return nil }
	if !cfg.enabled() {
		return otel.GetTracerProvider(), noop, nil
	}

	res, err := newResource()
	if err != nil {
		return nil, noop, fmt.Errorf("create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithURLPath(TracesPath),
		otlptracehttp.WithHeaders(cfg.headers()),
	)
	if err != nil {
		return nil, noop, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter,
			sdktrace.WithExportTimeout(ExportTimeout),
			sdktrace.WithMaxQueueSize(MaxQueueSize),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp, tp.Shutdown, nil
}

// SetupLogExport installs the global OTLP logger provider used by the zap bridge.
func SetupLogExport(ctx context.Context, cfg ExportConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.enabled() {
		return noop, nil
	}

	res, err := newResource()
	if err != nil {
		return noop, fmt.Errorf("create resource: %w", err)
	}

	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(cfg.Endpoint),
		otlploghttp.WithURLPath(LogsPath),
		otlploghttp.WithHeaders(cfg.headers()),
	)
	if err != nil {
		return noop, fmt.Errorf("create log exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter,
			sdklog.WithExportTimeout(ExportTimeout),
			sdklog.WithMaxQueueSize(MaxQueueSize),
		)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(provider)

	return provider.Shutdown, nil
}

// JoinShutdown runs every shutdown function and joins their errors.
func JoinShutdown(fns ...func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var err error
		for _, fn := range fns {
			if fn != nil {
				err = errors.Join(err, fn(ctx))
			}
		}
		return err
	}
}
