package rb

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Ring_PartialPutGet(t *testing.T) {
	assert := assert.New(t)

	r := NewRing(4)

	assert.Equal(2, r.Put([]byte("AB")))
	assert.Equal(2, r.Len())

	// Only CD fits, E must be retried by the caller.
	assert.Equal(2, r.Put([]byte("CDE")))
	assert.True(r.Full())
	assert.Zero(r.Put([]byte("E")))

	dst := make([]byte, 3)
	assert.Equal(3, r.Get(dst))
	assert.Equal([]byte("ABC"), dst)
	assert.Equal(1, r.Len())

	assert.Equal(1, r.Put([]byte("E")))

	dst = make([]byte, 4)
	assert.Equal(2, r.Get(dst))
	assert.Equal([]byte("DE"), dst[:2])
	assert.True(r.Empty())
	assert.Zero(r.Get(dst))
}

func Test_Ring_Wraparound(t *testing.T) {
	assert := assert.New(t)

	const capacity = 7

	r := NewRing(capacity)

	// Offset the cursors so every later span crosses the end of the storage.
	assert.Equal(5, r.Put([]byte("xxxxx")))
	assert.Equal(5, r.Get(make([]byte, 5)))

	var got bytes.Buffer
	var want bytes.Buffer

	chunk := []byte("0123456789")
	dst := make([]byte, capacity)

	// Fill and drain repeatedly past the boundary.
	for range 50 {
		put := r.Put(chunk)
		want.Write(chunk[:put])

		n := r.Get(dst)
		got.Write(dst[:n])

		assert.LessOrEqual(r.Len(), capacity)
		assert.GreaterOrEqual(r.Len(), 0)
	}

	n := r.Get(dst)
	got.Write(dst[:n])

	assert.Equal(want.Bytes(), got.Bytes())
}

func Test_Ring_RandomFIFO(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(42))
	r := NewRing(64)

	var accepted bytes.Buffer
	var retrieved bytes.Buffer

	for range 10_000 {
		if rng.Intn(2) == 0 {
			chunk := make([]byte, rng.Intn(96))
			rng.Read(chunk)

			n := r.Put(chunk)
			accepted.Write(chunk[:n])
		} else {
			dst := make([]byte, rng.Intn(96))
			n := r.Get(dst)
			retrieved.Write(dst[:n])
		}

		assert.False(r.Full() && r.Empty())
	}

	dst := make([]byte, r.Len())
	n := r.Get(dst)
	retrieved.Write(dst[:n])

	assert.Equal(accepted.Bytes(), retrieved.Bytes())
}

func Test_Ring_Close(t *testing.T) {
	assert := assert.New(t)

	r := NewRing(8)
	require.Equal(t, 3, r.Put([]byte("abc")))

	assert.False(r.Closed())

	r.Close()
	assert.True(r.Closed())

	// Idempotent, never reverts.
	r.Close()
	assert.True(r.Closed())

	// Buffered bytes stay readable after close.
	dst := make([]byte, 8)
	assert.Equal(3, r.Get(dst))
	assert.Equal([]byte("abc"), dst[:3])
}

func Test_Ring_ZeroCapacity(t *testing.T) {
	assert := assert.New(t)

	r := NewRing(0)

	assert.Zero(r.Put([]byte("a")))
	assert.Zero(r.Get(make([]byte, 1)))
	assert.Zero(r.Cap())
}
