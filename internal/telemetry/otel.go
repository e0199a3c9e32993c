package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "marketd"

// InitOtelSDK installs global trace and meter providers exporting over OTLP/HTTP
// to the given collector. The returned func flushes and shuts both down.
func InitOtelSDK(
	ctx context.Context, collectorEndpoint string, pushInterval time.Duration,
) (func(context.Context) error, error) {
	if collectorEndpoint == "" {
		return nil, fmt.Errorf("missing collector endpoint")
	}
	if pushInterval <= 0 {
		return nil, fmt.Errorf("invalid push interval %s", pushInterval)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create otel resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx, traceOptions(collectorEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := otlpmetrichttp.New(ctx, metricOptions(collectorEndpoint)...)
	if err != nil {
		//nolint:errcheck
		tracerProvider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(pushInterval)),
		),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Infof("otel sdk exporting to %s every %s", collectorEndpoint, pushInterval)

	return func(ctx context.Context) error {
		return errors.Join(
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
		)
	}, nil
}

// A bare host:port endpoint is reached over plain http.
func traceOptions(endpoint string) []otlptracehttp.Option {
	if strings.Contains(endpoint, "://") {
		return []otlptracehttp.Option{
			otlptracehttp.WithEndpointURL(strings.TrimSuffix(endpoint, "/") + "/v1/traces"),
		}
	}
	return []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure(),
	}
}

func metricOptions(endpoint string) []otlpmetrichttp.Option {
	if strings.Contains(endpoint, "://") {
		return []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpointURL(strings.TrimSuffix(endpoint, "/") + "/v1/metrics"),
		}
	}
	return []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure(),
	}
}
