package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/capturelabs/capture-core/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// telemetry owns the trace and metric providers. Traces go to OTLP when an
// endpoint is configured, otherwise to stdout. Metrics are served through
// the Prometheus handler; when the exporter cannot be built the service
// runs with metrics disabled rather than failing startup.
type telemetry struct {
	traces  *sdktrace.TracerProvider
	meters  *sdkmetric.MeterProvider
	handler http.Handler
}

func newTelemetry(cfg config.Config, version string, logger *slog.Logger) (*telemetry, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	t := &telemetry{}

	exporter, name, err := traceExporter(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("build %s trace exporter: %w", name, err)
	}
	t.traces = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(t.traces)
	logger.Info("trace exporter ready", slog.String("exporter", name))

	promExporter, err := prometheus.New()
	if err != nil {
		logger.Warn("prometheus exporter unavailable, metrics disabled",
			slog.String("error", err.Error()))
		t.meters = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	} else {
		t.meters = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(promExporter),
			sdkmetric.WithResource(res),
		)
		t.handler = promhttp.Handler()
	}
	otel.SetMeterProvider(t.meters)

	return t, nil
}

func traceExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, string, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		return exporter, "stdout", err
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	return exporter, "otlp", err
}

// MetricsHandler is nil when the Prometheus exporter is unavailable.
func (t *telemetry) MetricsHandler() http.Handler { return t.handler }

func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.meters.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.traces.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
