package upload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkBufferPeekCommit(t *testing.T) {
	t.Parallel()

	b := newChunkBuffer(3)
	b.append([]byte("ab"))
	require.False(t, b.full())
	require.Equal(t, []byte("ab"), b.peek(), "partial peek returns the remainder")

	b.append([]byte("cdefg"))
	require.True(t, b.full())

	first := b.peek()
	require.Equal(t, []byte("abc"), first)
	b.commit(len(first))
	require.Equal(t, []byte("abc"), first, "peeked chunk must survive commit")

	require.Equal(t, []byte("def"), b.peek())
	b.commit(3)
	require.False(t, b.full())
	require.Equal(t, 1, b.len())

	b.reset()
	require.Zero(t, b.len())
}

func TestChunkBufferCompactsOnAppend(t *testing.T) {
	t.Parallel()

	b := newChunkBuffer(2)
	b.append([]byte("abcde"))
	for b.full() {
		b.commit(len(b.peek()))
	}
	require.Equal(t, 1, b.len())
	require.Equal(t, 4, b.start, "commit advances the read offset")

	b.append([]byte("fg"))
	require.Zero(t, b.start, "append moves live bytes to the front")
	require.Equal(t, []byte("efg"), b.data)
	require.Equal(t, []byte("ef"), b.peek())

	b.commit(2)
	b.commit(1)
	require.Zero(t, b.len())
	require.Zero(t, b.start, "draining the buffer resets it")
}

func TestParseChecksumAlgorithm(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "md5", "sha256", "blake3"} {
		algorithm, err := ParseChecksumAlgorithm(name)
		require.NoErrorf(t, err, "parse %q", name)
		_, err = newChecksum(algorithm)
		require.NoErrorf(t, err, "new checksum %q", name)
	}

	_, err := ParseChecksumAlgorithm("crc32")
	require.Error(t, err)
}

func TestGuardIsFailFast(t *testing.T) {
	t.Parallel()

	var g guard
	require.True(t, g.tryEnter())
	require.False(t, g.tryEnter(), "second enter must fail immediately")
	g.exit()
	require.True(t, g.tryEnter())
}
