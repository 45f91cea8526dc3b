package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const (
	meterName = "github.com/wolfeidau/package-index"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	requestsTotal           metric.Int64Counter
	responseBytesTotal      metric.Int64Counter
	requestDuration         metric.Float64Histogram
	requestsByEndpointTotal metric.Int64Counter

	uploadSize             metric.Float64Histogram
	backendRequestDuration metric.Float64Histogram
	backendRequestsTotal   metric.Int64Counter
	backendBytesTotal      metric.Int64Counter

	// Catalog metrics
	catalogBuildDuration metric.Float64Histogram
	catalogFilesTotal    metric.Int64Counter
	catalogPackages      metric.Int64Gauge
	inspectFailuresTotal metric.Int64Counter
	cacheEvictionsTotal  metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "package-index"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// With no exporters configured, still collect so instruments are live.
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler
	globalMetrics = m

	return nil
}

// newMetrics creates every instrument on meter.
func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"package_index_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.responseBytesTotal, err = meter.Int64Counter(
		"package_index_http_response_bytes_total",
		metric.WithDescription("Total bytes sent in HTTP responses"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.requestDuration, err = meter.Float64Histogram(
		"package_index_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.requestsByEndpointTotal, err = meter.Int64Counter(
		"package_index_http_requests_by_endpoint_total",
		metric.WithDescription("Total number of HTTP requests by endpoint (detail metric)"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.uploadSize, err = meter.Float64Histogram(
		"package_index_upload_size_bytes",
		metric.WithDescription("Size of uploaded package archives"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 8192, 65536, 262144, 1048576, 4194304, 16777216, 67108864, 268435456, 1073741824),
	)
	if err != nil {
		return nil, err
	}

	m.backendRequestDuration, err = meter.Float64Histogram(
		"package_index_backend_request_duration_seconds",
		metric.WithDescription("Duration of storage backend operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	m.backendRequestsTotal, err = meter.Int64Counter(
		"package_index_backend_requests_total",
		metric.WithDescription("Total number of storage backend operations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.backendBytesTotal, err = meter.Int64Counter(
		"package_index_backend_bytes_total",
		metric.WithDescription("Total bytes transferred in storage backend operations"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.catalogBuildDuration, err = meter.Float64Histogram(
		"package_index_catalog_build_duration_seconds",
		metric.WithDescription("Duration of catalog builds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	m.catalogFilesTotal, err = meter.Int64Counter(
		"package_index_catalog_files_total",
		metric.WithDescription("Files visited by catalog builds, by metadata cache outcome"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	m.catalogPackages, err = meter.Int64Gauge(
		"package_index_catalog_packages",
		metric.WithDescription("Number of distinct packages in the last catalog build"),
		metric.WithUnit("{package}"),
	)
	if err != nil {
		return nil, err
	}

	m.inspectFailuresTotal, err = meter.Int64Counter(
		"package_index_inspect_failures_total",
		metric.WithDescription("Per-file inspection failures absorbed during catalog builds"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	m.cacheEvictionsTotal, err = meter.Int64Counter(
		"package_index_cache_evictions_total",
		metric.WithDescription("Metadata cache entries evicted"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordHTTP records HTTP request metrics.
// Call this from the logging middleware after the request completes.
// Route and cache result are read from request tags set by middleware and handlers.
func RecordHTTP(ctx context.Context, r *http.Request, status int, bytesSent int64, duration time.Duration) {
	if globalMetrics == nil {
		return
	}

	tags := GetTags(r)

	route := "unknown"
	cacheResult := string(CacheBypass)
	endpoint := ""
	if tags != nil {
		if tags.Route != "" {
			route = tags.Route
		}
		if tags.CacheResult != "" {
			cacheResult = string(tags.CacheResult)
		}
		endpoint = tags.Endpoint
	}

	statusClass := StatusClass(status)

	// Shared metrics: low cardinality {route, status_class, cache_result}
	sharedAttrs := []attribute.KeyValue{
		attribute.String("route", route),
		attribute.String("status_class", statusClass),
		attribute.String("cache_result", cacheResult),
	}
	globalMetrics.requestsTotal.Add(ctx, 1, metric.WithAttributes(sharedAttrs...))
	globalMetrics.responseBytesTotal.Add(ctx, bytesSent, metric.WithAttributes(sharedAttrs...))
	globalMetrics.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(sharedAttrs...))

	if endpoint != "" {
		detailAttrs := []attribute.KeyValue{
			attribute.String("route", route),
			attribute.String("endpoint", endpoint),
			attribute.String("status_class", statusClass),
			attribute.String("cache_result", cacheResult),
		}
		globalMetrics.requestsByEndpointTotal.Add(ctx, 1, metric.WithAttributes(detailAttrs...))
	}
}

// RecordBackendOp records storage backend operation metrics.
func RecordBackendOp(ctx context.Context, backend, op, outcome string, duration time.Duration, bytes int64) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	}
	globalMetrics.backendRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.backendRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if bytes > 0 {
		globalMetrics.backendBytesTotal.Add(ctx, bytes, metric.WithAttributes(attrs...))
	}
}

// RecordUpload records an upload attempt. kind is "wheel" or "sdist";
// outcome is "stored", "exists" or "rejected".
func RecordUpload(ctx context.Context, kind, outcome string, size int64) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.uploadSize.Record(ctx, float64(size), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordCatalogBuild records one catalog build. hits and misses are the
// metadata cache outcomes over the files visited.
func RecordCatalogBuild(ctx context.Context, duration time.Duration, packages, hits, misses int, outcome string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.catalogBuildDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
	if hits > 0 {
		globalMetrics.catalogFilesTotal.Add(ctx, int64(hits),
			metric.WithAttributes(attribute.String("outcome", string(CacheHit))))
	}
	if misses > 0 {
		globalMetrics.catalogFilesTotal.Add(ctx, int64(misses),
			metric.WithAttributes(attribute.String("outcome", string(CacheMiss))))
	}
	if outcome == "ok" {
		globalMetrics.catalogPackages.Record(ctx, int64(packages))
	}
}

// RecordInspectFailure records an absorbed per-file failure. kind is one of
// "stat", "unreadable", "no_metadata" or "digest".
func RecordInspectFailure(ctx context.Context, kind string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.inspectFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordCacheEviction records n metadata cache evictions. reason is "sweep",
// "delete" or "watch".
func RecordCacheEviction(ctx context.Context, reason string, n int) {
	if globalMetrics == nil || n <= 0 {
		return
	}
	globalMetrics.cacheEvictionsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// StatusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx).
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
