package observability

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"resumecritic/internal/config"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultCollectionInterval = 15 * time.Second

// ObservabilityConfig holds configuration for observability
type ObservabilityConfig struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	ConsoleOutput  bool
	PrettyPrint    bool
	SampleRate     float64
	Prometheus     PrometheusConfig
}

// ObservabilityManager owns the tracer and meter providers for one server run.
// A disabled manager hands out no-op tracers and empty metrics.
type ObservabilityManager struct {
	config     ObservabilityConfig
	custom     *config.CustomMetricsConfig // nil records everything
	otlp       config.OTLPConfig
	interval   time.Duration
	instanceID string

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	manualReader   *sdkmetric.ManualReader
	metrics        *Metrics
	closers        []func(context.Context) error
}

// NewObservabilityManager builds the providers described by obsConfig.
// appConfig supplies OTLP, collection interval and custom metric switches and may be nil.
func NewObservabilityManager(obsConfig ObservabilityConfig, appConfig *config.Config) (*ObservabilityManager, error) {
	om := &ObservabilityManager{
		config:   obsConfig,
		interval: defaultCollectionInterval,
	}
	if appConfig != nil {
		settings := appConfig.Observability
		om.custom = &settings.CustomMetrics
		om.otlp = settings.OTLP
		om.instanceID = settings.ServiceInstance
		if settings.Metrics.CollectionInterval > 0 {
			om.interval = settings.Metrics.CollectionInterval
		}
	}
	if om.instanceID == "" {
		om.instanceID = uuid.NewString()
	}

	if !obsConfig.Enabled {
		return om, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(obsConfig.ServiceName),
		semconv.ServiceVersion(obsConfig.ServiceVersion),
		semconv.ServiceInstanceID(om.instanceID),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := om.startTracing(res); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if err := om.startMetrics(res); err != nil {
		_ = om.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return om, nil
}

func (om *ObservabilityManager) startTracing(res *resource.Resource) error {
	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(om.config.SampleRate))),
	}

	exporter, err := om.spanExporter()
	if err != nil {
		return err
	}
	// Without an exporter spans are still sampled so request attributes show up on live spans.
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}

	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	om.tracerProvider = tp
	om.closers = append(om.closers, tp.Shutdown)
	return nil
}

// spanExporter picks console over OTLP; nil means spans are not exported
func (om *ObservabilityManager) spanExporter() (trace.SpanExporter, error) {
	switch {
	case om.config.ConsoleOutput:
		var opts []stdouttrace.Option
		if om.config.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		return stdouttrace.New(opts...)
	case om.otlp.Enabled:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(om.otlp.Endpoint)}
		if om.otlp.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(om.otlp.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(om.otlp.Headers))
		}
		exporter, err := otlptracehttp.New(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, nil
	}
}

func (om *ObservabilityManager) startMetrics(res *resource.Resource) error {
	readers, err := om.metricReaders()
	if err != nil {
		return err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, reader := range readers {
		opts = append(opts, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	om.meterProvider = mp
	om.closers = append(om.closers, mp.Shutdown)

	om.metrics, err = newMetrics(mp.Meter(om.config.ServiceName))
	return err
}

// metricReaders returns one reader per enabled sink. With none enabled a manual
// reader keeps the instruments collectable in-process.
func (om *ObservabilityManager) metricReaders() ([]sdkmetric.Reader, error) {
	var readers []sdkmetric.Reader

	if om.config.ConsoleOutput {
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create console metric exporter: %w", err)
		}
		readers = append(readers, om.periodicReader(exporter))
	}

	if om.otlp.Enabled {
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(om.otlp.Endpoint)}
		if om.otlp.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if len(om.otlp.Headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(om.otlp.Headers))
		}
		exporter, err := otlpmetrichttp.New(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		readers = append(readers, om.periodicReader(exporter))
	}

	if om.config.Prometheus.Enabled {
		reader, mux, err := SetupPrometheusExporter(om.config.Prometheus)
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		readers = append(readers, reader)
		if srv := StartPrometheusServer(mux, om.config.Prometheus.Port); srv != nil {
			om.closers = append(om.closers, srv.Shutdown)
		}
	}

	if len(readers) == 0 {
		om.manualReader = sdkmetric.NewManualReader()
		readers = append(readers, om.manualReader)
	}
	return readers, nil
}

func (om *ObservabilityManager) periodicReader(exporter sdkmetric.Exporter) sdkmetric.Reader {
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(om.interval))
}

// GetMetrics returns the instruments, or an empty set that records nothing
func (om *ObservabilityManager) GetMetrics() *Metrics {
	if om == nil || om.metrics == nil {
		return &Metrics{}
	}
	return om.metrics
}

// HTTPMiddleware wraps handlers with otelhttp server spans and metrics
func (om *ObservabilityManager) HTTPMiddleware() func(http.Handler) http.Handler {
	if om == nil || !om.config.Enabled {
		return func(h http.Handler) http.Handler { return h }
	}

	return otelhttp.NewMiddleware(
		om.config.ServiceName,
		otelhttp.WithTracerProvider(om.tracerProvider),
		otelhttp.WithMeterProvider(om.meterProvider),
	)
}

// Tracer returns a tracer for the service
func (om *ObservabilityManager) Tracer(name string) oteltrace.Tracer {
	if om == nil || om.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return om.tracerProvider.Tracer(name)
}

// Shutdown flushes exporters and stops the metrics listener, newest first
func (om *ObservabilityManager) Shutdown(ctx context.Context) error {
	if om == nil {
		return nil
	}
	var errs []error
	for _, closer := range slices.Backward(om.closers) {
		if err := closer(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	om.closers = nil
	return stderrors.Join(errs...)
}

// customMetrics returns the configured switches, or everything on when no app config was given
func (om *ObservabilityManager) customMetrics() config.CustomMetricsConfig {
	if om == nil || om.custom == nil {
		return config.CustomMetricsConfig{
			AIOperations:    config.AIOperationsMetricsConfig{Enabled: true, TrackDuration: true, TrackTokenUsage: true},
			BusinessMetrics: config.BusinessMetricsConfig{Enabled: true},
		}
	}
	return *om.custom
}
