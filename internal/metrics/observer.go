// Package metrics instruments storage backends with Prometheus metrics and
// OpenTelemetry spans.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for store calls made by uploads.
type Observer interface {
	RecordInsertChunk(duration time.Duration, sizeBytes uint64, err error)
	RecordDeleteChunks(duration time.Duration, err error)
	RecordInsertFile(duration time.Duration, err error)
	RecordEnsureIndexes(duration time.Duration, err error)
}

// PrometheusObserver exports store call metrics to Prometheus.
type PrometheusObserver struct {
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec
	chunkBytes        prometheus.Counter
}

var _ Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the store metrics with reg. Registering
// twice against the same registry reuses the existing collectors.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "gridsilo_storage"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	observer := &PrometheusObserver{
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of store calls made by uploads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed store calls.",
		}, []string{"operation"}),
		chunkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_total",
			Help:      "Cumulative payload size of successfully inserted chunks.",
		}),
	}

	if err := reg.Register(observer.operationDuration); err != nil {
		existing, err := alreadyRegistered[*prometheus.HistogramVec](err)
		if err != nil {
			return nil, fmt.Errorf("register storage histogram: %w", err)
		}
		observer.operationDuration = existing
	}
	if err := reg.Register(observer.operationErrors); err != nil {
		existing, err := alreadyRegistered[*prometheus.CounterVec](err)
		if err != nil {
			return nil, fmt.Errorf("register storage error counter: %w", err)
		}
		observer.operationErrors = existing
	}
	if err := reg.Register(observer.chunkBytes); err != nil {
		existing, err := alreadyRegistered[prometheus.Counter](err)
		if err != nil {
			return nil, fmt.Errorf("register chunk bytes counter: %w", err)
		}
		observer.chunkBytes = existing
	}

	return observer, nil
}

// alreadyRegistered returns the collector that is already registered when
// err is a prometheus.AlreadyRegisteredError of a matching type, and err
// otherwise.
func alreadyRegistered[T prometheus.Collector](err error) (T, error) {
	var zero T
	are, ok := err.(prometheus.AlreadyRegisteredError)
	if !ok {
		return zero, err
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return zero, err
	}
	return existing, nil
}

// RecordInsertChunk tracks chunk insert duration, size, and failures.
func (o *PrometheusObserver) RecordInsertChunk(duration time.Duration, sizeBytes uint64, err error) {
	if o == nil {
		return
	}
	o.operationDuration.WithLabelValues("insert_chunk").Observe(duration.Seconds())
	if err != nil {
		o.operationErrors.WithLabelValues("insert_chunk").Inc()
		return
	}
	o.chunkBytes.Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordDeleteChunks(duration time.Duration, err error) {
	recordOperation(o, "delete_chunks", duration, err)
}

func (o *PrometheusObserver) RecordInsertFile(duration time.Duration, err error) {
	recordOperation(o, "insert_file", duration, err)
}

func (o *PrometheusObserver) RecordEnsureIndexes(duration time.Duration, err error) {
	recordOperation(o, "ensure_indexes", duration, err)
}

func recordOperation(o *PrometheusObserver, op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.operationErrors.WithLabelValues(op).Inc()
	}
}

type nopObserver struct{}

// NopObserver returns an Observer that discards everything.
func NopObserver() Observer {
	return nopObserver{}
}

func (nopObserver) RecordInsertChunk(time.Duration, uint64, error) {}

func (nopObserver) RecordDeleteChunks(time.Duration, error) {}

func (nopObserver) RecordInsertFile(time.Duration, error) {}

func (nopObserver) RecordEnsureIndexes(time.Duration, error) {}
