package frame

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, size := range []int{1, 7, 100, DefaultChunkSize - 1, DefaultChunkSize, DefaultChunkSize + 1, 100000} {
		data := make([]byte, size)
		rng.Read(data)

		for _, bound := range []int{1, 3, 1024, DefaultChunkSize} {
			chunks := Split(data, bound)
			require.NotEmpty(t, chunks)

			for _, chunk := range chunks {
				assert.LessOrEqual(t, len(chunk), bound)
				assert.NotEmpty(t, chunk)
			}
			assert.Equal(t, (size+bound-1)/bound, len(chunks), "chunk count must be minimal")
			assert.True(t, bytes.Equal(data, bytes.Join(chunks, nil)))
		}
	}
}

func TestSplitEmpty(t *testing.T) {
	assert.Empty(t, Split(nil, DefaultChunkSize))
	assert.Empty(t, Split([]byte{}, DefaultChunkSize))
}

func TestSplitLargeBurst(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 40000)

	chunks := Split(data, 16384)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 16384)
	assert.Len(t, chunks[1], 16384)
	assert.Len(t, chunks[2], 7232)
	assert.Equal(t, data, bytes.Join(chunks, nil))
}

func TestSplitChunksDoNotShareCapacity(t *testing.T) {
	data := []byte("abcdef")
	chunks := Split(data, 2)
	require.Len(t, chunks, 3)

	grown := append(chunks[0], 'z')
	assert.Equal(t, "abz", string(grown))
	assert.Equal(t, "abcdef", string(data))
}

func TestSplitInvalidBound(t *testing.T) {
	assert.Panics(t, func() { Split([]byte("x"), 0) })
}
