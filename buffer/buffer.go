// Package buffer provides the shared byte connector placed between an
// ingress stage and an egress stage. It wraps an unlocked circular buffer
// with the blocking and wake-up protocol of a bounded producer/consumer
// pair: writers block while the buffer is full, readers block while it is
// empty, and closing the write side lets the reader drain what is left
// before it sees EOF.
package buffer

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pipebuffer/pipebuffer/internal/rb"
)

// ErrClosed is returned by Write after the write side has been closed.
var ErrClosed = errors.New("buffer: write on closed buffer")

var (
	_ io.Reader = (*Buffer)(nil)
	_ io.Writer = (*Buffer)(nil)
)

// Buffer is a blocking, fixed-capacity byte pipe. It is safe for one
// concurrent writer and one concurrent reader.
type Buffer struct {
	mux  sync.Mutex
	ring *rb.Ring

	// readable wakes a reader blocked on an empty buffer,
	// writable wakes a writer blocked on a full one.
	readable *sync.Cond
	writable *sync.Cond

	// Counters for how often either side had to block.
	blockedWrites atomic.Int64
	blockedReads  atomic.Int64
}

// New returns a buffer with the given capacity in bytes.
func New(capacity int) *Buffer {
	b := &Buffer{
		ring: rb.NewRing(capacity),
	}

	b.readable = sync.NewCond(&b.mux)
	b.writable = sync.NewCond(&b.mux)

	return b
}

// Write copies all of p into the buffer, blocking while it is full.
// It returns ErrClosed if the write side is closed before every byte
// has been accepted; n reports how many bytes were accepted.
func (b *Buffer) Write(p []byte) (n int, err error) {
	b.mux.Lock()
	defer b.mux.Unlock()

	for len(p) > 0 {
		for b.ring.Full() {
			if b.ring.Closed() {
				return n, ErrClosed
			}

			b.blockedWrites.Add(1)
			b.writable.Wait()
		}

		if b.ring.Closed() {
			return n, ErrClosed
		}

		wasEmpty := b.ring.Empty()

		w := b.ring.Put(p)
		p = p[w:]
		n += w

		// Wake the reader only on the empty to non-empty transition.
		if wasEmpty && w > 0 {
			b.readable.Signal()
		}
	}

	return n, nil
}

// Read copies buffered bytes into p, blocking while the buffer is empty.
// Once the write side has been closed and every buffered byte has been
// drained, Read returns io.EOF.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mux.Lock()
	defer b.mux.Unlock()

	for b.ring.Empty() {
		if b.ring.Closed() {
			return 0, io.EOF
		}

		b.blockedReads.Add(1)
		b.readable.Wait()
	}

	wasFull := b.ring.Full()

	n := b.ring.Get(p)

	// Wake the writer only on the full to non-full transition.
	if wasFull && n > 0 {
		b.writable.Signal()
	}

	return n, nil
}

// CloseWrite marks the end of the stream. It is idempotent, keeps already
// buffered bytes readable, and wakes both sides so a blocked writer fails
// with ErrClosed and a blocked reader can finish draining.
func (b *Buffer) CloseWrite() {
	b.mux.Lock()
	defer b.mux.Unlock()

	if b.ring.Closed() {
		return
	}

	b.ring.Close()

	b.readable.Broadcast()
	b.writable.Broadcast()
}

// Len returns the number of currently buffered bytes.
func (b *Buffer) Len() int {
	b.mux.Lock()
	defer b.mux.Unlock()

	return b.ring.Len()
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	b.mux.Lock()
	defer b.mux.Unlock()

	return b.ring.Cap()
}

// Closed states whether the write side has been closed.
func (b *Buffer) Closed() bool {
	b.mux.Lock()
	defer b.mux.Unlock()

	return b.ring.Closed()
}

// BlockedWrites returns how many times the writer had to wait for space.
func (b *Buffer) BlockedWrites() int64 {
	return b.blockedWrites.Load()
}

// BlockedReads returns how many times the reader had to wait for data.
func (b *Buffer) BlockedReads() int64 {
	return b.blockedReads.Load()
}
