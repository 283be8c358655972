// Package sga implements the scatter/gather array used to move request and
// response payloads through the I/O queue fabric without copying them at
// every hop.
//
// An Sga does not own the memory its segments point at: ownership is
// conveyed out of band by the envelope types in envelope.go, exactly as
// spec.md's data model describes. The zero value is a valid empty Sga.
package sga

// MaxSegs bounds the scatter/gather arity. The fabric only ever transports
// single-segment buffers (raw request/response bytes) or single-segment
// envelope pointers, but a small fixed arity keeps Sga a plain value type
// with no backing allocation of its own.
const MaxSegs = 4

// Segment is one (buf, len) pair; Buf's own length stands in for len.
type Segment struct {
	Buf []byte
}

// Sga is the fixed-arity scatter/gather descriptor.
type Sga struct {
	Segs  [MaxSegs]Segment
	NSegs int
}

// One wraps a single buffer into a 1-segment Sga.
func One(buf []byte) Sga {
	var s Sga
	s.Segs[0].Buf = buf
	s.NSegs = 1
	return s
}

// Len returns the length of the first segment, which is the only segment
// this fabric ever populates.
func (s Sga) Len() int {
	if s.NSegs == 0 {
		return 0
	}
	return len(s.Segs[0].Buf)
}

// Bytes returns the first segment's backing bytes, or nil if empty.
func (s Sga) Bytes() []byte {
	if s.NSegs == 0 {
		return nil
	}
	return s.Segs[0].Buf
}
