package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics and Prometheus integration
// for the sentiment oracle worker.
type MetricsProvider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	registry      *prometheus.Registry

	postsCollectedTotal  metric.Int64Counter
	postsAnalyzedTotal   metric.Int64Counter
	postsFilteredTotal   metric.Int64Counter
	txSubmittedTotal     metric.Int64Counter
	txConfirmedTotal     metric.Int64Counter
	txFailedTotal        metric.Int64Counter
	workerErrorsTotal    metric.Int64Counter
	submissionDuration   metric.Float64Histogram
	collectorDuration    metric.Float64Histogram
	manipulationConfHist metric.Float64Histogram
	gasPriceGwei         metric.Float64Gauge
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Namespace      string
	Port           int
	Enabled        bool
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg MetricsConfig) (*MetricsProvider, error) {
	if !cfg.Enabled {
		return &MetricsProvider{}, nil
	}

	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(cfg.ServiceName)

	mp := &MetricsProvider{
		meterProvider: meterProvider,
		meter:         meter,
		registry:      registry,
	}

	if err := mp.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return mp, nil
}

func (mp *MetricsProvider) initializeMetrics() error {
	var err error

	if mp.postsCollectedTotal, err = mp.meter.Int64Counter(
		"posts_collected_total",
		metric.WithDescription("Total posts pulled from all collectors"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create posts_collected_total counter: %w", err)
	}

	if mp.postsAnalyzedTotal, err = mp.meter.Int64Counter(
		"posts_analyzed_total",
		metric.WithDescription("Total posts scored by the ensemble analyzer"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create posts_analyzed_total counter: %w", err)
	}

	if mp.postsFilteredTotal, err = mp.meter.Int64Counter(
		"posts_filtered_total",
		metric.WithDescription("Total posts dropped for suspected manipulation"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create posts_filtered_total counter: %w", err)
	}

	if mp.txSubmittedTotal, err = mp.meter.Int64Counter(
		"tx_submitted_total",
		metric.WithDescription("Total oracle transactions broadcast"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create tx_submitted_total counter: %w", err)
	}

	if mp.txConfirmedTotal, err = mp.meter.Int64Counter(
		"tx_confirmed_total",
		metric.WithDescription("Total oracle transactions confirmed"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create tx_confirmed_total counter: %w", err)
	}

	if mp.txFailedTotal, err = mp.meter.Int64Counter(
		"tx_failed_total",
		metric.WithDescription("Total oracle transactions that failed or reverted"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create tx_failed_total counter: %w", err)
	}

	if mp.workerErrorsTotal, err = mp.meter.Int64Counter(
		"worker_errors_total",
		metric.WithDescription("Total errors surfaced inside any worker loop"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create worker_errors_total counter: %w", err)
	}

	if mp.submissionDuration, err = mp.meter.Float64Histogram(
		"submission_duration_seconds",
		metric.WithDescription("Duration of one oracle submission call"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 5, 10, 30, 60, 120, 180, 300),
	); err != nil {
		return fmt.Errorf("failed to create submission_duration histogram: %w", err)
	}

	if mp.collectorDuration, err = mp.meter.Float64Histogram(
		"collector_request_duration_seconds",
		metric.WithDescription("Duration of a single collector request"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 20, 30, 60),
	); err != nil {
		return fmt.Errorf("failed to create collector_request_duration histogram: %w", err)
	}

	if mp.manipulationConfHist, err = mp.meter.Float64Histogram(
		"manipulation_confidence",
		metric.WithDescription("Distribution of manipulation-detector confidence per batch"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0),
	); err != nil {
		return fmt.Errorf("failed to create manipulation_confidence histogram: %w", err)
	}

	if mp.gasPriceGwei, err = mp.meter.Float64Gauge(
		"gas_price_gwei",
		metric.WithDescription("Most recently observed base fee in gwei"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create gas_price_gwei gauge: %w", err)
	}

	return nil
}

func (mp *MetricsProvider) RecordPostsCollected(ctx context.Context, source, token string, n int64) {
	if mp.postsCollectedTotal == nil {
		return
	}
	mp.postsCollectedTotal.Add(ctx, n, metric.WithAttributes(
		attribute.String("source", source), attribute.String("token", token)))
}

func (mp *MetricsProvider) RecordPostsAnalyzed(ctx context.Context, token string, n int64) {
	if mp.postsAnalyzedTotal == nil {
		return
	}
	mp.postsAnalyzedTotal.Add(ctx, n, metric.WithAttributes(attribute.String("token", token)))
}

func (mp *MetricsProvider) RecordPostsFiltered(ctx context.Context, token string, n int64) {
	if mp.postsFilteredTotal == nil {
		return
	}
	mp.postsFilteredTotal.Add(ctx, n, metric.WithAttributes(attribute.String("token", token)))
}

func (mp *MetricsProvider) RecordSubmission(ctx context.Context, token, status string, duration time.Duration) {
	if mp.txSubmittedTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("token", token), attribute.String("status", status)}
	mp.txSubmittedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mp.submissionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	switch status {
	case "confirmed":
		mp.txConfirmedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("token", token)))
	case "failed":
		mp.txFailedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("token", token)))
	}
}

func (mp *MetricsProvider) RecordCollectorRequest(ctx context.Context, source string, duration time.Duration) {
	if mp.collectorDuration == nil {
		return
	}
	mp.collectorDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("source", source)))
}

func (mp *MetricsProvider) RecordManipulationConfidence(ctx context.Context, token string, confidence float64) {
	if mp.manipulationConfHist == nil {
		return
	}
	mp.manipulationConfHist.Record(ctx, confidence, metric.WithAttributes(attribute.String("token", token)))
}

func (mp *MetricsProvider) RecordError(ctx context.Context, loop string) {
	if mp.workerErrorsTotal == nil {
		return
	}
	mp.workerErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("loop", loop)))
}

func (mp *MetricsProvider) UpdateGasPrice(ctx context.Context, gwei float64) {
	if mp.gasPriceGwei == nil {
		return
	}
	mp.gasPriceGwei.Record(ctx, gwei)
}

// StartMetricsServer starts the Prometheus metrics HTTP server
func (mp *MetricsProvider) StartMetricsServer(port int) error {
	if mp.registry == nil {
		return fmt.Errorf("metrics not enabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(mp.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp.meterProvider == nil {
		return nil
	}
	return mp.meterProvider.Shutdown(ctx)
}
