// Package telemetry provides OpenTelemetry instrumentation for ebs-tuner.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/ebs-tuner/internal/config"
)

const instrumentationName = "ebs-tuner"

// Provider wraps OTEL tracer and meter providers and records tuning metrics.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	volumesModified    metric.Int64Counter
	volumesSkipped     metric.Int64Counter
	apiErrors          metric.Int64Counter
	invocationDuration metric.Float64Histogram
}

// NewProvider creates a new telemetry provider. Extra readers (e.g. a Prometheus
// exporter) are attached to the meter provider alongside the OTLP exporter.
func NewProvider(ctx context.Context, cfg config.OTELConfig, readers ...sdkmetric.Reader) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res, readers); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate))
		// Lambda freezes between invocations; a synchronous processor avoids losing spans.
		opts = append(opts, sdktrace.WithSyncer(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer(instrumentationName)

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource, readers []sdkmetric.Reader) error {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(instrumentationName)

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.volumesModified, err = p.meter.Int64Counter(
		"ebs_tuner_volumes_modified_total",
		metric.WithDescription("Volumes whose throughput and IOPS were modified"),
		metric.WithUnit("{volume}"),
	)
	if err != nil {
		return fmt.Errorf("create volumes_modified: %w", err)
	}

	p.volumesSkipped, err = p.meter.Int64Counter(
		"ebs_tuner_skipped_total",
		metric.WithDescription("Instances or volumes skipped, by reason"),
	)
	if err != nil {
		return fmt.Errorf("create skipped: %w", err)
	}

	p.apiErrors, err = p.meter.Int64Counter(
		"ebs_tuner_api_errors_total",
		metric.WithDescription("Failed EC2 API calls, by operation"),
	)
	if err != nil {
		return fmt.Errorf("create api_errors: %w", err)
	}

	p.invocationDuration, err = p.meter.Float64Histogram(
		"ebs_tuner_invocation_duration_seconds",
		metric.WithDescription("Duration of tuning invocations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create invocation_duration: %w", err)
	}

	return nil
}

// Tracer returns the tracer handed to the tuner for invocation spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// RecordModified counts a modified volume.
func (p *Provider) RecordModified(ctx context.Context) {
	p.volumesModified.Add(ctx, 1)
}

// RecordSkipped counts a skipped instance or volume.
func (p *Provider) RecordSkipped(ctx context.Context, reason string) {
	p.volumesSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordAPIError counts a failed EC2 call.
func (p *Provider) RecordAPIError(ctx context.Context, operation string) {
	p.apiErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordInvocation records invocation duration by mode.
func (p *Provider) RecordInvocation(ctx context.Context, mode string, d time.Duration, modified int) {
	p.invocationDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("modified", modified > 0),
	))
}

// Flush exports pending telemetry without shutting down.
func (p *Provider) Flush(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush tracer: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush meter: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
