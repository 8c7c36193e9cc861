// Package rb provides a fixed-capacity circular byte buffer.
//
// The buffer performs no locking on its own: every method assumes the
// caller already holds the lock that guards the buffer. Put and Get never
// block and never fail, they copy as many bytes as currently possible and
// report the count, leaving retries to the caller.
package rb

// Ring is an unlocked circular byte buffer.
type Ring struct {
	buf []byte

	// head is the read cursor, tail the write cursor.
	// Both are indexes modulo len(buf).
	head int
	tail int

	// filled is the number of buffered bytes, 0 <= filled <= len(buf).
	filled int

	closed bool
}

// NewRing returns a ring with the given capacity in bytes.
func NewRing(capacity int) *Ring {
	return &Ring{
		buf: make([]byte, capacity),
	}
}

// Put copies as many bytes from p as currently fit, starting at the write
// cursor, and returns the number of bytes copied. The result may be zero
// when the ring is full, or less than len(p) when it is partially full.
func (r *Ring) Put(p []byte) int {
	n := min(len(p), len(r.buf)-r.filled)
	if n == 0 {
		return 0
	}

	// The span may wrap past the end of the storage,
	// in which case it is copied in two segments.
	first := min(n, len(r.buf)-r.tail)
	copy(r.buf[r.tail:], p[:first])
	copy(r.buf, p[first:n])

	r.tail = (r.tail + n) % len(r.buf)
	r.filled += n

	return n
}

// Get copies as many buffered bytes as fit into p, starting at the read
// cursor, and returns the number of bytes copied. The result may be zero
// when the ring is empty.
func (r *Ring) Get(p []byte) int {
	n := min(len(p), r.filled)
	if n == 0 {
		return 0
	}

	first := min(n, len(r.buf)-r.head)
	copy(p[:first], r.buf[r.head:])
	copy(p[first:n], r.buf)

	r.head = (r.head + n) % len(r.buf)
	r.filled -= n

	return n
}

// Len returns the number of buffered bytes.
func (r *Ring) Len() int {
	return r.filled
}

// Cap returns the capacity of the ring.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Empty states whether the ring holds no bytes.
func (r *Ring) Empty() bool {
	return r.filled == 0
}

// Full states whether the ring is at capacity.
func (r *Ring) Full() bool {
	return r.filled == len(r.buf)
}

// Close marks the ring as closed. It is idempotent and does not discard
// buffered bytes, which remain readable through Get until drained.
func (r *Ring) Close() {
	r.closed = true
}

// Closed states whether the ring has been closed.
func (r *Ring) Closed() bool {
	return r.closed
}
