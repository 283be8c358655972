package sga

import (
	"errors"
	"unsafe"
)

// ConnID identifies the client connection (or, from a store worker's point
// of view, the meaningless-but-carried originating qd) a request or
// response belongs to. It mirrors ioqueue.Qd without importing that
// package, so sga has no dependency on the transport layer.
type ConnID int64

// ErrBadEnvelope is returned when an Sga does not carry a single segment of
// exactly the expected envelope size — the invariant spec.md §3 requires
// readers to assert before reinterpreting a segment as an envelope pointer.
var ErrBadEnvelope = errors.New("sga: envelope segment invariant violated")

// ErrAlreadyMoved is returned by a second call to KvResponse.MoveToSga.
var ErrAlreadyMoved = errors.New("sga: response payload already moved")

// KvRequest is created by the dispatcher when a client request arrives.
// Ownership of both the envelope and the raw socket-read buffer referenced
// by Sga transfers to the chosen store worker when the envelope is pushed
// across a peer channel.
type KvRequest struct {
	ReqQfd ConnID
	Sga    Sga
}

// KvResponse is created by a store worker once a request has been
// evaluated. Ownership transfers to the dispatcher across the peer
// channel; the dispatcher then moves data into an outbound Sga exactly
// once via MoveToSga.
type KvResponse struct {
	ReqQfd ConnID
	data   []byte
	moved  bool
}

// NewKvResponse copies resp into an owned buffer, mirroring the source's
// KvResponse constructor (which mallocs and memcpys the string payload).
func NewKvResponse(reqQfd ConnID, resp string) *KvResponse {
	data := make([]byte, len(resp))
	copy(data, resp)
	return &KvResponse{ReqQfd: reqQfd, data: data}
}

// MoveToSga hands the response's owned buffer to an outbound Sga exactly
// once. A second call — or any call after Release — fails with
// ErrAlreadyMoved instead of returning a stale or double-owned buffer.
func (r *KvResponse) MoveToSga() (Sga, error) {
	if r.moved || r.data == nil {
		return Sga{}, ErrAlreadyMoved
	}
	r.moved = true
	return One(r.data), nil
}

// Release drops the response's reference to its buffer unless it has
// already been moved. Go's garbage collector reclaims the memory either
// way; Release exists so the "free unless moved" protocol from spec.md §3
// is an explicit, testable step rather than an implicit GC detail.
func (r *KvResponse) Release() {
	if !r.moved {
		r.data = nil
	}
}

// WrapEnvelope reinterprets an envelope's memory as a single-segment Sga,
// the same trick the source performs with its as_sga<T> template: the
// segment's buffer *is* the struct's memory, not a copy of it. size must be
// unsafe.Sizeof the pointed-to type.
func WrapEnvelope(ptr unsafe.Pointer, size uintptr) Sga {
	return One(unsafe.Slice((*byte)(ptr), int(size)))
}

// UnwrapEnvelope recovers an envelope pointer from a single-segment Sga,
// asserting the exact invariant spec.md §3 requires: NSegs == 1 and the
// segment length equals the expected struct size.
func UnwrapEnvelope(s Sga, size uintptr) (unsafe.Pointer, error) {
	if s.NSegs != 1 || uintptr(len(s.Segs[0].Buf)) != size {
		return nil, ErrBadEnvelope
	}
	return unsafe.Pointer(&s.Segs[0].Buf[0]), nil
}
