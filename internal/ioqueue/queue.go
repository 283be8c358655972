// Package ioqueue is the I/O queue abstraction spec.md §4.1 describes: a
// uniform, tokenized handle over both network sockets and shared-memory
// peer channels, multiplexed by a single readiness primitive (WaitAny).
//
// spec.md treats the underlying asynchronous I/O runtime as an external
// collaborator the core is merely handed an interface to. In this Go
// rendition that runtime *is* this package: network operations are carried
// out by a small goroutine per outstanding operation, and shared-queue
// operations are resolved by directly polling a lock-free ring — the
// idiomatic Go stand-in for the source's io_uring-style completion queue.
package ioqueue

import (
	"errors"
	"sync"

	"github.com/nullstate/kvshard/internal/sga"
)

// Qd is an opaque queue descriptor, exactly as spec.md's glossary defines
// it: an integer handle to either a network-backed or shared-memory-backed
// queue.
type Qd int64

// OpKind tags the kind of operation a Token represents.
type OpKind uint8

const (
	OpAccept OpKind = iota
	OpPop
	OpPush
)

// ErrAgain reports a transient "nothing ready this pass" condition — never
// a fatal error, always retried on the next poll.
var ErrAgain = errors.New("ioqueue: not ready")

// ErrConnAborted reports that the connection backing a token's queue is
// gone. The token is consumed; the caller must not re-arm an operation on
// that qd.
var ErrConnAborted = errors.New("ioqueue: connection aborted")

// QResult is the payload of a resolved token, tagged by originating Qd.
type QResult struct {
	Kind  OpKind
	Qd    Qd
	NewQd Qd // valid when Kind == OpAccept
	Sga   sga.Sga
}

// Queue is the per-qd operation surface. NetworkQueue and SharedQueue both
// implement it.
type Queue interface {
	Qd() Qd
	Accept() (Token, error)
	Push(s sga.Sga) (Token, error)
	Pop() (Token, error)
	Close() error
}

// Token is a handle to an outstanding asynchronous operation, resolved via
// a Poller's Wait or WaitAny.
type Token struct {
	id uint64
}

// resolver is polled (never blocks) to check whether an operation has
// completed. ready=false means EAGAIN; ready=true with a non-nil err means
// a terminal condition (ErrConnAborted or a fatal error).
type resolver func() (res QResult, err error, ready bool)

// Poller resolves tokens produced by any Queue. One Poller is shared by all
// queues a single worker owns, matching spec.md's per-worker token set.
type Poller struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]resolver
}

// NewPoller creates an empty poller.
func NewPoller() *Poller {
	return &Poller{pending: make(map[uint64]resolver)}
}

func (p *Poller) register(r resolver) Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.pending[id] = r
	return Token{id: id}
}

func (p *Poller) resolverFor(t Token) (resolver, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.pending[t.id]
	return r, ok
}

func (p *Poller) remove(t Token) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, t.id)
}

// Wait blocks (spin-polling) until token resolves, then consumes it.
func (p *Poller) Wait(t Token) (QResult, error) {
	r, ok := p.resolverFor(t)
	if !ok {
		return QResult{}, errUnknownToken
	}
	for {
		res, err, ready := r()
		if ready {
			p.remove(t)
			return res, err
		}
	}
}

// Poll makes exactly one non-blocking readiness check of t, unlike Wait
// which spins until ready. It returns ErrAgain (token left registered) if
// the operation hasn't completed, matching the single-token dequeue shape
// the store worker uses (spec.md §4.4: dequeue returns EAGAIN up through
// the run loop rather than blocking inside dequeue itself).
func (p *Poller) Poll(t Token) (QResult, error) {
	r, ok := p.resolverFor(t)
	if !ok {
		return QResult{}, errUnknownToken
	}
	res, err, ready := r()
	if !ready {
		return QResult{}, ErrAgain
	}
	p.remove(t)
	return res, err
}

// WaitAny scans tokens circularly starting at *start, exactly per
// spec.md §4.1's fairness contract: completions are reported in scan
// order, *idx identifies the consumed entry, and the next call resumes at
// idx+1 mod n. On a full scan with nothing ready, *start is left
// untouched and ErrAgain is returned.
func (p *Poller) WaitAny(tokens []Token, start *int) (idx int, res QResult, err error) {
	n := len(tokens)
	if n == 0 {
		return -1, QResult{}, ErrAgain
	}
	base := *start % n
	if base < 0 {
		base += n
	}
	for i := 0; i < n; i++ {
		j := (base + i) % n
		r, ok := p.resolverFor(tokens[j])
		if !ok {
			continue
		}
		res, err, ready := r()
		if ready {
			p.remove(tokens[j])
			*start = (j + 1) % n
			return j, res, err
		}
	}
	return -1, QResult{}, ErrAgain
}

var errUnknownToken = errors.New("ioqueue: unknown token")
