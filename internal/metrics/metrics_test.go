package metrics_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"gridsilo/internal/metrics"
	"gridsilo/internal/storage/memstore"
	"gridsilo/internal/upload"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestPrometheusObserverRegistersOnce(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()

	first, err := metrics.NewPrometheusObserver("test", reg)
	require.NoError(t, err)
	second, err := metrics.NewPrometheusObserver("test", reg)
	require.NoError(t, err, "registering twice reuses the collectors")

	first.RecordInsertChunk(0, 10, nil)
	second.RecordInsertChunk(0, 5, nil)
	second.RecordInsertChunk(0, 7, errors.New("boom"))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if metric.GetCounter() != nil {
				values[family.GetName()] += metric.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, float64(15), values["test_chunk_bytes_total"])
	require.Equal(t, float64(1), values["test_operation_errors_total"])
}

type failingIndexes struct {
	*memstore.Store
	err error
}

func (f failingIndexes) EnsureIndexes(context.Context) error {
	return f.err
}

func TestInstrumentRecordsStoreCalls(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	observer, err := metrics.NewPrometheusObserver("gridsilo", reg)
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	store := memstore.New()
	backend := metrics.Instrument(store, observer).WithTracerProvider(tp)
	require.Same(t, store, backend.Unwrap())

	bucket, err := upload.NewBucket(backend, upload.WithChunkSize(4))
	require.NoError(t, err)

	ctx := context.Background()
	id, err := bucket.UploadFromReader(ctx, "traced.txt", bytes.NewReader([]byte("0123456789")))
	require.NoError(t, err)

	files, err := backend.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, id, files[0].ID)

	count, err := testutil.GatherAndCount(reg, "gridsilo_operation_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 3, count, "one histogram series per operation: ensure_indexes, insert_chunk, insert_file")

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	require.Equal(t, []string{
		"storage.EnsureIndexes",
		"storage.InsertChunk",
		"storage.InsertChunk",
		"storage.InsertChunk",
		"storage.InsertFile",
		"storage.ListFiles",
	}, names)
}

func TestInstrumentPassesErrorsThrough(t *testing.T) {
	t.Parallel()

	boom := errors.New("index build failed")
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	backend := metrics.Instrument(failingIndexes{Store: memstore.New(), err: boom}, nil).WithTracerProvider(tp)

	err := backend.EnsureIndexes(context.Background())
	require.Same(t, boom, err, "errors must not be wrapped")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
}
