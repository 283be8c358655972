// ring.go — lock-free SPSC ring buffer backing shared (peer-channel) queues.
//
// Adapted from ring24.Ring: same cache-line-isolated head/tail layout and
// sequence-based slot availability signaling, generalized to carry one
// pointer-plus-length payload per slot instead of a fixed 24-byte array,
// since a peer channel here transports a single Sga-shaped pointer rather
// than a fixed HFT tick record.
//
// Single producer / single consumer only, per spec.md's Shared Item
// invariant. Peer channels use a ring of size 1, so at most one item is
// ever in flight per direction — the shared queue's push therefore
// resolves synchronously (see shared.go).
package ioqueue

import (
	"sync/atomic"
	"unsafe"
)

// payload is what one ring slot carries: a pointer plus the length of the
// memory it addresses, so a Pop can hand back a properly sized byte slice
// without any package-level knowledge of which envelope type it points at.
type payload struct {
	ptr unsafe.Pointer
	len int
}

// ringSlot.seq is 2*t while the slot is free for producer ticket t and
// 2*t+1 once ticket t's value is stored, so "free" and "full" stay distinct
// even for a ring of size 1.
type ringSlot struct {
	val payload
	seq uint64
}

type ring struct {
	_    [64]byte
	head uint64

	_    [56]byte
	tail uint64

	_ [56]byte

	mask uint64
	step uint64
	buf  []ringSlot
}

// newRing creates a ring buffer with the given power-of-two capacity.
func newRing(size int) *ring {
	if size <= 0 || size&(size-1) != 0 {
		panic("ioqueue: ring size must be >0 and a power of two")
	}
	r := &ring{
		mask: uint64(size - 1),
		step: uint64(size),
		buf:  make([]ringSlot, size),
	}
	for i := range r.buf {
		r.buf[i].seq = uint64(i) << 1
	}
	return r
}

// tryPush enqueues val. Returns false if the ring is full.
func (r *ring) tryPush(val payload) bool {
	t := r.tail
	s := &r.buf[t&r.mask]
	if atomic.LoadUint64(&s.seq) != t<<1 {
		return false
	}
	s.val = val
	atomic.StoreUint64(&s.seq, t<<1|1)
	r.tail = t + 1
	return true
}

// tryPop dequeues the next value. Returns (payload{}, false) if empty.
func (r *ring) tryPop() (payload, bool) {
	h := r.head
	s := &r.buf[h&r.mask]
	if atomic.LoadUint64(&s.seq) != h<<1|1 {
		return payload{}, false
	}
	val := s.val
	atomic.StoreUint64(&s.seq, (h+r.step)<<1)
	r.head = h + 1
	return val, true
}
