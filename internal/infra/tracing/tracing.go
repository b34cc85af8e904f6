// Package tracing installs the OpenTelemetry tracer provider used by the
// classification spans.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName is reported as service.name on every span.
const ServiceName = "triage"

const (
	ExporterNone = "none"
	ExporterOTLP = "otlp"
)

// Config holds tracing settings.
type Config struct {
	Exporter   string  `yaml:"exporter"`    // none, otlp
	Endpoint   string  `yaml:"endpoint"`    // host:port of the OTLP gRPC collector
	Insecure   bool    `yaml:"insecure"`    // plaintext connection to the collector
	SampleRate float64 `yaml:"sample_rate"` // 0 or 1 samples everything
}

// Validate checks the exporter settings.
func (c Config) Validate() error {
	switch c.Exporter {
	case "", ExporterNone:
	case ExporterOTLP:
		if c.Endpoint == "" {
			return fmt.Errorf("tracing endpoint is required for the %s exporter", ExporterOTLP)
		}
	default:
		return fmt.Errorf("unsupported tracing exporter %q", c.Exporter)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("tracing sample rate %v out of range [0,1]", c.SampleRate)
	}
	return nil
}

// Init builds a tracer provider, installs it and the W3C propagator as the
// process globals, and returns it for shutdown. attrs are added to the
// resource. With no exporter spans are still recorded but not shipped.
func Init(ctx context.Context, cfg Config, attrs ...attribute.KeyValue) (*sdktrace.TracerProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sampler := sdktrace.ParentBased(sdktrace.AlwaysSample())
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", ServiceName)),
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build tracing resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	}
	if cfg.Exporter == ExporterOTLP {
		otlpOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			otlpOpts = append(otlpOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, otlpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}
