package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.uber.org/zap"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// SetupOpenTelemetry wires an OTel MeterProvider whose Prometheus
// exporter registers into reg — the same registry internal/metrics
// exposes at /metrics — so OTel-recorded instruments and the
// hand-declared Prometheus vectors are served from one endpoint.
func SetupOpenTelemetry(serviceName string, reg *promclient.Registry, logger *zap.Logger) (shutdown func(), meter otelmetric.Meter, err error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	metricExporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}

	metricProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metricExporter),
	)
	otel.SetMeterProvider(metricProvider)

	logger.Info("OpenTelemetry initialized", zap.String("service", serviceName))

	shutdown = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricProvider.Shutdown(ctx); err != nil {
			logger.Error("error shutting down OpenTelemetry", zap.Error(err))
		}
	}
	return shutdown, metricProvider.Meter(serviceName), nil
}

// RegisterQueueDepthGauge registers an async OTel gauge that polls
// poll whenever the Prometheus exporter is scraped, surfacing queue
// depth alongside the hand-declared metrics without the worker having
// to push it on a separate ticker.
func RegisterQueueDepthGauge(meter otelmetric.Meter, pool string, poll func(ctx context.Context) (int64, error)) error {
	gauge, err := meter.Int64ObservableGauge(
		"codearena_otel_queue_depth",
		otelmetric.WithDescription("Approximate job queue depth, observed via the OTel bridge."),
	)
	if err != nil {
		return err
	}

	attr := otelmetric.WithAttributes(attribute.String("pool", pool))
	_, err = meter.RegisterCallback(func(ctx context.Context, o otelmetric.Observer) error {
		depth, err := poll(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(gauge, depth, attr)
		return nil
	}, gauge)
	return err
}
