package infrastructure

import (
	"context"
	"runtime"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CalibrationMetrics groups the instruments recorded by the calibration engine
// and the HTTP layer.
type CalibrationMetrics struct {
	RunsTotal      metric.Int64Counter
	Iterations     metric.Int64Histogram
	Duration       metric.Float64Histogram
	FilterExcluded metric.Int64Counter
	HTTPRequests   metric.Int64Counter
	HTTPDuration   metric.Float64Histogram
}

var (
	metricsOnce sync.Once
	metrics     *CalibrationMetrics
)

// Metrics returns the process-wide instruments, created against the global
// meter provider on first use. Instruments created before InitializeOTel are
// forwarded once a provider is installed.
func Metrics() *CalibrationMetrics {
	metricsOnce.Do(func() {
		m, err := NewCalibrationMetrics(otel.Meter(InstrumentationName))
		if err != nil {
			GetLogger().Error("failed to create calibration metrics", "error", err)
			m = &CalibrationMetrics{}
		}
		metrics = m
	})
	return metrics
}

// NewCalibrationMetrics creates the calibration instruments on meter.
func NewCalibrationMetrics(meter metric.Meter) (*CalibrationMetrics, error) {
	runsTotal, err := meter.Int64Counter(
		"calibration_runs_total",
		metric.WithDescription("Total number of calibration runs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	iterations, err := meter.Int64Histogram(
		"calibration_iterations",
		metric.WithDescription("Gauss-Newton iterations performed per calibration"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8, 10, 20, 50),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"calibration_duration_seconds",
		metric.WithDescription("Calibration duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	filterExcluded, err := meter.Int64Counter(
		"filter_excluded_records_total",
		metric.WithDescription("Observations removed from the validity mask per filter pass"),
	)
	if err != nil {
		return nil, err
	}

	httpRequests, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	httpDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &CalibrationMetrics{
		RunsTotal:      runsTotal,
		Iterations:     iterations,
		Duration:       duration,
		FilterExcluded: filterExcluded,
		HTTPRequests:   httpRequests,
		HTTPDuration:   httpDuration,
	}, nil
}

// RecordRun records the outcome of one Calibrate call.
func (m *CalibrationMetrics) RecordRun(ctx context.Context, outcome string, iterations int, seconds float64) {
	if m == nil || m.RunsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.RunsTotal.Add(ctx, 1, attrs)
	m.Iterations.Record(ctx, int64(iterations), attrs)
	m.Duration.Record(ctx, seconds, attrs)
}

// RecordExcluded records how many records a filter pass removed.
func (m *CalibrationMetrics) RecordExcluded(ctx context.Context, pass string, excluded int) {
	if m == nil || m.FilterExcluded == nil {
		return
	}
	m.FilterExcluded.Add(ctx, int64(excluded), metric.WithAttributes(attribute.String("pass", pass)))
}

// registerRuntimeMetrics exposes goroutine and heap gauges observed on every
// collection.
func registerRuntimeMetrics(meter metric.Meter) error {
	goroutines, err := meter.Int64ObservableGauge(
		"system_goroutines",
		metric.WithDescription("Number of active goroutines"),
	)
	if err != nil {
		return err
	}

	heapAlloc, err := meter.Int64ObservableGauge(
		"system_memory_allocated_bytes",
		metric.WithDescription("Memory allocated by Go runtime in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
		o.ObserveInt64(heapAlloc, int64(mem.HeapAlloc))
		return nil
	}, goroutines, heapAlloc)
	return err
}

// RecordHTTP records one served request.
func (m *CalibrationMetrics) RecordHTTP(ctx context.Context, method, route string, status int, seconds float64) {
	if m == nil || m.HTTPRequests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status_code", status),
	)
	m.HTTPRequests.Add(ctx, 1, attrs)
	m.HTTPDuration.Record(ctx, seconds, attrs)
}
