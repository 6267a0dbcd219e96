package metrics

import (
	"context"
	"time"

	"gridsilo/internal/storage"
	"gridsilo/internal/upload"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "gridsilo/internal/metrics"

// InstrumentedBackend wraps a storage.Backend so every call is timed,
// reported to an Observer and recorded as a span. Errors pass through
// unchanged.
type InstrumentedBackend struct {
	next     storage.Backend
	observer Observer
	tracer   trace.Tracer
	now      func() time.Time
}

var _ storage.Backend = (*InstrumentedBackend)(nil)

// Instrument wraps backend. A nil observer records nothing but spans are
// still started on the global tracer provider.
func Instrument(backend storage.Backend, observer Observer) *InstrumentedBackend {
	if observer == nil {
		observer = NopObserver()
	}
	return &InstrumentedBackend{
		next:     backend,
		observer: observer,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

// WithTracerProvider starts spans on tp instead of the global provider.
func (b *InstrumentedBackend) WithTracerProvider(tp trace.TracerProvider) *InstrumentedBackend {
	b.tracer = tp.Tracer(tracerName)
	return b
}

// Unwrap returns the wrapped backend.
func (b *InstrumentedBackend) Unwrap() storage.Backend {
	return b.next
}

func (b *InstrumentedBackend) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := b.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span, b.now()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (b *InstrumentedBackend) InsertChunk(ctx context.Context, chunk upload.Chunk) error {
	ctx, span, started := b.start(ctx, "storage.InsertChunk",
		attribute.String("gridsilo.file_id", chunk.FileID.String()),
		attribute.Int64("gridsilo.chunk.n", chunk.N),
		attribute.Int("gridsilo.chunk.size", len(chunk.Data)),
	)
	err := b.next.InsertChunk(ctx, chunk)
	b.observer.RecordInsertChunk(b.now().Sub(started), uint64(len(chunk.Data)), err)
	endSpan(span, err)
	return err
}

func (b *InstrumentedBackend) DeleteChunks(ctx context.Context, id upload.FileID) error {
	ctx, span, started := b.start(ctx, "storage.DeleteChunks", attribute.String("gridsilo.file_id", id.String()))
	err := b.next.DeleteChunks(ctx, id)
	b.observer.RecordDeleteChunks(b.now().Sub(started), err)
	endSpan(span, err)
	return err
}

func (b *InstrumentedBackend) InsertFile(ctx context.Context, file upload.File) error {
	ctx, span, started := b.start(ctx, "storage.InsertFile",
		attribute.String("gridsilo.file_id", file.ID.String()),
		attribute.Int64("gridsilo.file.length", file.Length),
	)
	err := b.next.InsertFile(ctx, file)
	b.observer.RecordInsertFile(b.now().Sub(started), err)
	endSpan(span, err)
	return err
}

func (b *InstrumentedBackend) EnsureIndexes(ctx context.Context) error {
	ctx, span, started := b.start(ctx, "storage.EnsureIndexes")
	err := b.next.EnsureIndexes(ctx)
	b.observer.RecordEnsureIndexes(b.now().Sub(started), err)
	endSpan(span, err)
	return err
}

func (b *InstrumentedBackend) GetFile(ctx context.Context, id upload.FileID) (upload.File, error) {
	ctx, span, _ := b.start(ctx, "storage.GetFile", attribute.String("gridsilo.file_id", id.String()))
	file, err := b.next.GetFile(ctx, id)
	endSpan(span, err)
	return file, err
}

func (b *InstrumentedBackend) ListFiles(ctx context.Context) ([]upload.File, error) {
	ctx, span, _ := b.start(ctx, "storage.ListFiles")
	files, err := b.next.ListFiles(ctx)
	endSpan(span, err)
	return files, err
}

func (b *InstrumentedBackend) Close() error {
	return b.next.Close()
}
