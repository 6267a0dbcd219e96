package upload

import (
	"context"
	"io"
)

// Writer adapts an UploadStream to io.WriteCloser for use with io.Copy and
// friends. Every call uses ctx.
type Writer struct {
	ctx    context.Context
	stream *UploadStream
}

var _ io.WriteCloser = (*Writer)(nil)

// NewWriter returns a Writer for stream bound to ctx.
func NewWriter(ctx context.Context, stream *UploadStream) *Writer {
	return &Writer{ctx: ctx, stream: stream}
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.stream.Write(w.ctx, p)
}

func (w *Writer) Close() error {
	return w.stream.Close(w.ctx)
}
