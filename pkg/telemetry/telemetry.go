package telemetry

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ViBiOh/flags"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	meter "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	tr "go.opentelemetry.io/otel/trace"
)

type Service struct {
	resource      *resource.Resource
	traceProvider *trace.TracerProvider
	meterProvider *metric.MeterProvider
	TraceUint64   bool
}

type Config struct {
	URL     string
	Rate    string
	Service string
	Uint64  bool
}

func Flags(fs *flag.FlagSet, prefix string, overrides ...flags.Override) *Config {
	var config Config

	flags.New("URL", "OpenTelemetry gRPC endpoint (e.g. otel-exporter:4317)").Prefix(prefix).DocPrefix("telemetry").StringVar(fs, &config.URL, "", overrides)
	flags.New("Rate", "OpenTelemetry sample rate, 'always', 'never' or a float value").Prefix(prefix).DocPrefix("telemetry").StringVar(fs, &config.Rate, "always", overrides)
	flags.New("Service", "Service name, superseded by OTEL_SERVICE_NAME").Prefix(prefix).DocPrefix("telemetry").StringVar(fs, &config.Service, "uuidgen", overrides)
	flags.New("Uint64", "Change OpenTelemetry Trace ID format to an unsigned int 64").Prefix(prefix).DocPrefix("telemetry").BoolVar(fs, &config.Uint64, false, overrides)

	return &config
}

// New returns nil when no endpoint is configured, every method being nil-safe.
func New(ctx context.Context, config *Config) (*Service, error) {
	url := strings.TrimSpace(config.URL)
	if len(url) == 0 {
		return nil, nil
	}

	otelResource, err := newResource(ctx, strings.TrimSpace(config.Service))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tracerExporter, err := newTraceExporter(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}

	sampler, err := newSampler(strings.TrimSpace(config.Rate))
	if err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}

	metricExporter, err := newMetricExporter(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}

	return &Service{
		resource: otelResource,
		traceProvider: trace.NewTracerProvider(
			trace.WithBatcher(tracerExporter),
			trace.WithResource(otelResource),
			trace.WithSampler(sampler),
		),
		meterProvider: metric.NewMeterProvider(
			metric.WithResource(otelResource),
			metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(time.Second*30))),
		),
		TraceUint64: config.Uint64,
	}, nil
}

func (s *Service) MeterProvider() meter.MeterProvider {
	if s == nil || s.meterProvider == nil {
		return nil
	}

	return s.meterProvider
}

func (s *Service) TracerProvider() tr.TracerProvider {
	if s == nil || s.traceProvider == nil {
		return nil
	}

	return s.traceProvider
}

func (s *Service) Close(ctx context.Context) {
	if s == nil {
		return
	}

	if err := s.traceProvider.Shutdown(ctx); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "shutdown trace provider", slog.Any("error", err))
	}

	if err := s.meterProvider.Shutdown(ctx); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "shutdown meter provider", slog.Any("error", err))
	}
}

func newTraceExporter(ctx context.Context, endpoint string) (trace.SpanExporter, error) {
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
	)
}

func newMetricExporter(ctx context.Context, endpoint string) (metric.Exporter, error) {
	return otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithEndpoint(endpoint),
	)
}

func newResource(ctx context.Context, service string) (*resource.Resource, error) {
	var options []resource.Option
	if len(service) != 0 {
		options = append(options, resource.WithAttributes(attribute.String("service.name", service)))
	}

	// Environment comes last so OTEL_SERVICE_NAME and OTEL_RESOURCE_ATTRIBUTES win.
	detected, err := resource.New(ctx, append(options, resource.WithFromEnv())...)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	merged, err := resource.Merge(resource.Default(), detected)
	if err != nil {
		return nil, fmt.Errorf("merge with default: %w", err)
	}

	return merged, nil
}

func newSampler(rate string) (trace.Sampler, error) {
	switch rate {
	case "always":
		return trace.AlwaysSample(), nil

	case "never":
		return trace.NeverSample(), nil

	default:
		rateRatio, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return nil, fmt.Errorf("parse sample rate `%s`: %w", rate, err)
		}

		return trace.TraceIDRatioBased(rateRatio), nil
	}
}
