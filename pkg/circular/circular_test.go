package circular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferWrapsAround(t *testing.T) {
	b := CreateBuffer[int](4)
	assert.False(t, b.Full())

	b.Enqueue(1, 2, 3)
	b.Enqueue(4, 5)
	assert.True(t, b.Full())

	out := make([]int, 4)
	require.NoError(t, b.Retrieve(out))
	assert.Equal(t, []int{2, 3, 4, 5}, out)
}

func TestBufferOversizedWrite(t *testing.T) {
	b := CreateBuffer[int](3)
	b.Enqueue(1, 2, 3, 4, 5, 6, 7)

	out := make([]int, 3)
	require.NoError(t, b.Retrieve(out))
	assert.Equal(t, []int{5, 6, 7}, out)
}

func TestBufferRetrieveSizeMismatch(t *testing.T) {
	b := CreateBuffer[float64](8)
	assert.Error(t, b.Retrieve(make([]float64, 4)))
}

func TestBufferReset(t *testing.T) {
	b := CreateBuffer[int](2)
	b.Enqueue(7, 8)
	b.Reset()

	out := make([]int, 2)
	require.NoError(t, b.Retrieve(out))
	assert.Equal(t, []int{0, 0}, out)
	assert.False(t, b.Full())
}

func TestFramerEmitsFixedBlocks(t *testing.T) {
	f := CreateFramer[int](4)
	var blocks [][]int

	emit := func(block []int) {
		blocks = append(blocks, append([]int(nil), block...))
	}

	f.Write([]int{1, 2, 3}, emit)
	assert.Empty(t, blocks)
	assert.Equal(t, 3, f.Pending())

	f.Write([]int{4, 5, 6, 7, 8, 9, 10}, emit)
	require.Len(t, blocks, 2)
	assert.Equal(t, []int{1, 2, 3, 4}, blocks[0])
	assert.Equal(t, []int{5, 6, 7, 8}, blocks[1])
	assert.Equal(t, 2, f.Pending())

	f.Flush(emit)
	require.Len(t, blocks, 3)
	assert.Equal(t, []int{9, 10, 0, 0}, blocks[2])
	assert.Equal(t, 0, f.Pending())

	f.Flush(emit)
	assert.Len(t, blocks, 3)
}
