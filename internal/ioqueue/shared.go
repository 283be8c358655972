package ioqueue

import (
	"unsafe"

	"github.com/nullstate/kvshard/internal/sga"
)

// SharedQueue is one worker's view of a peer channel: pushes go out on one
// direction's ring, pops come in on the other. A full peer channel is a
// pair of SharedQueues (one per worker) sharing the same two rings with
// push/pop swapped, mirroring the source's register_peer, which wires one
// shared_item as each side's "in" and the other's "out".
//
// Each ring has capacity 1, per spec.md's Shared Item definition — at most
// one item is ever in flight per direction. Push therefore resolves
// synchronously, and Pop is resolved by directly re-polling the ring on
// every WaitAny scan pass rather than through a goroutine, preserving the
// spin-poll dispatch model spec.md describes.
type SharedQueue struct {
	qd       Qd
	poller   *Poller
	pushRing *ring
	popRing  *ring
}

// NewPeerChannel creates the two capacity-1 rings backing a bidirectional
// peer channel and returns each side's SharedQueue.
func NewPeerChannel(pollerA *Poller, qdA Qd, pollerB *Poller, qdB Qd) (a, b *SharedQueue) {
	aToB := newRing(1)
	bToA := newRing(1)
	a = &SharedQueue{qd: qdA, poller: pollerA, pushRing: aToB, popRing: bToA}
	b = &SharedQueue{qd: qdB, poller: pollerB, pushRing: bToA, popRing: aToB}
	return a, b
}

func (s *SharedQueue) Qd() Qd { return s.qd }

func (s *SharedQueue) Close() error { return nil }

// Accept is not meaningful on a shared queue.
func (s *SharedQueue) Accept() (Token, error) {
	return Token{}, errNotListening
}

// Push enqueues an envelope pointer wrapped by sga.WrapEnvelope. Because
// peer channels carry at most one in-flight message per direction at
// steady state, the push either succeeds immediately or the resolver keeps
// retrying — there is no separate "full" error surfaced to the caller,
// matching spec.md §4.2's description of push_to_peer treating
// back-pressure as effectively unreachable rather than as a client-visible
// condition.
func (s *SharedQueue) Push(sgaVal sga.Sga) (Token, error) {
	if sgaVal.NSegs != 1 || sgaVal.Len() == 0 {
		return Token{}, sga.ErrBadEnvelope
	}
	p := payload{ptr: unsafe.Pointer(&sgaVal.Segs[0].Buf[0]), len: len(sgaVal.Segs[0].Buf)}
	qd := s.qd
	r := s.pushRing
	return s.poller.register(func() (QResult, error, bool) {
		if !r.tryPush(p) {
			return QResult{}, nil, false
		}
		return QResult{Kind: OpPush, Qd: qd, Sga: sga.One(unsafe.Slice((*byte)(p.ptr), p.len))}, nil, true
	}), nil
}

// Pop arms a non-blocking dequeue, re-checked on every poller scan.
func (s *SharedQueue) Pop() (Token, error) {
	qd := s.qd
	r := s.popRing
	return s.poller.register(func() (QResult, error, bool) {
		p, ok := r.tryPop()
		if !ok {
			return QResult{}, nil, false
		}
		buf := unsafe.Slice((*byte)(p.ptr), p.len)
		return QResult{Kind: OpPop, Qd: qd, Sga: sga.One(buf)}, nil, true
	}), nil
}
