package upload

// chunkBuffer holds bytes that have been accepted by the stream but not
// yet persisted. Full chunks are handed out one at a time with peek and
// only dropped with commit once the store has acknowledged them.
//
// Committed bytes are skipped with a read offset; the live bytes are moved
// to the front of the backing array at most once per append.
type chunkBuffer struct {
	size  int
	data  []byte
	start int
}

func newChunkBuffer(size int) *chunkBuffer {
	return &chunkBuffer{size: size, data: make([]byte, 0, size)}
}

func (b *chunkBuffer) append(p []byte) {
	if b.start > 0 {
		rest := copy(b.data, b.data[b.start:])
		b.data = b.data[:rest]
		b.start = 0
	}
	b.data = append(b.data, p...)
}

func (b *chunkBuffer) len() int {
	return len(b.data) - b.start
}

// full reports whether at least one complete chunk is buffered.
func (b *chunkBuffer) full() bool {
	return b.len() >= b.size
}

// peek returns the next chunk payload: a full chunk when one is available,
// otherwise whatever remains. The returned slice is a copy and stays valid
// after commit.
func (b *chunkBuffer) peek() []byte {
	n := min(b.len(), b.size)
	out := make([]byte, n)
	copy(out, b.data[b.start:b.start+n])
	return out
}

// commit drops the first n bytes.
func (b *chunkBuffer) commit(n int) {
	b.start += n
	if b.start == len(b.data) {
		b.reset()
	}
}

func (b *chunkBuffer) reset() {
	b.data = b.data[:0]
	b.start = 0
}
