// Package worker implements the lifecycle, peer registry and core pinning
// shared by the network worker and every store worker (spec.md §4.2).
package worker

import (
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/nullstate/kvshard/internal/affinity"
	"github.com/nullstate/kvshard/internal/ioqueue"
	"github.com/nullstate/kvshard/internal/sga"
)

// ErrAlreadyLaunched is returned by a second call to Launch.
var ErrAlreadyLaunched = errors.New("worker: already launched")

// ErrSetupFailed is returned by Launch when Runner.Setup fails.
var ErrSetupFailed = errors.New("worker: setup failed")

// ErrUnknownPeer is returned by PushToPeer/PopFromPeer for an
// unregistered peer id.
var ErrUnknownPeer = errors.New("worker: unknown peer id")

// launchPollInterval is how often Launch polls for started/exited while
// spinning up the worker goroutine, mirroring the source's 10ms sleep in
// Worker::launch().
const launchPollInterval = 10 * time.Millisecond

// Runner is the behavior a concrete worker (NetWorker, StoreWorker) plugs
// into Base, mirroring the source's pure-virtual setup()/dequeue()/work()
// split. Dequeue returning ioqueue.ErrAgain retries the loop with no call
// to Work; any other non-nil error is passed to Work verbatim, exactly as
// spec.md §7's propagation policy describes. Work returning a non-nil
// error is fatal — the worker exits and the supervisor treats it as
// whole-process stop.
type Runner interface {
	Setup() error
	Dequeue() (ioqueue.QResult, error)
	Work(status error, res ioqueue.QResult) error
}

// State reports where a worker sits in the lifecycle table from
// spec.md §4.2.
type State int32

const (
	StateConstructed State = iota
	StateLaunched
	StateRunning
	StateTerminating
	StateExited
)

// Base is the common worker machinery: lifecycle, peer registry, and a
// private I/O service context (its own Poller — spec.md's "per-worker I/O
// service context").
type Base struct {
	ID   int
	Core int

	Poller *ioqueue.Poller

	peers      peerTable
	qdCounter  int64
	launched   int32
	started    int32
	exited     int32
	terminate  int32
	done       chan struct{}
}

// NewBase constructs a not-yet-launched worker pinned to core.
func NewBase(id, core int) *Base {
	return &Base{
		ID:     id,
		Core:   core,
		Poller: ioqueue.NewPoller(),
		peers:  newPeerTable(),
		done:   make(chan struct{}),
	}
}

// State reports the worker's current lifecycle state.
func (b *Base) State() State {
	switch {
	case atomic.LoadInt32(&b.exited) == 1:
		return StateExited
	case atomic.LoadInt32(&b.terminate) == 1:
		return StateTerminating
	case atomic.LoadInt32(&b.started) == 1:
		return StateRunning
	case atomic.LoadInt32(&b.launched) == 1:
		return StateLaunched
	default:
		return StateConstructed
	}
}

// NextQd allocates a fresh Qd unique within this worker's own I/O
// namespace. The network worker's listening socket, accepted client
// connections, and peer channels all share this namespace since they are
// all waited on together by the same Poller.
func (b *Base) NextQd() ioqueue.Qd {
	return ioqueue.Qd(atomic.AddInt64(&b.qdCounter, 1))
}

// Launch spawns the worker's pinned goroutine and blocks (spin-polling,
// mirroring the source exactly) until Setup has either succeeded or
// failed. A second Launch call is refused idempotently.
func (b *Base) Launch(r Runner) error {
	if !atomic.CompareAndSwapInt32(&b.launched, 0, 1) {
		return ErrAlreadyLaunched
	}
	go b.run(r)
	for atomic.LoadInt32(&b.started) == 0 && atomic.LoadInt32(&b.exited) == 0 {
		time.Sleep(launchPollInterval)
	}
	if atomic.LoadInt32(&b.exited) == 1 && atomic.LoadInt32(&b.started) == 0 {
		return ErrSetupFailed
	}
	return nil
}

func (b *Base) run(r Runner) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	affinity.Pin(b.Core)

	if err := r.Setup(); err != nil {
		atomic.StoreInt32(&b.exited, 1)
		close(b.done)
		return
	}
	atomic.StoreInt32(&b.started, 1)

	for atomic.LoadInt32(&b.terminate) == 0 {
		res, err := r.Dequeue()
		if err == ioqueue.ErrAgain {
			continue
		}
		if werr := r.Work(err, res); werr != nil {
			break
		}
	}
	atomic.StoreInt32(&b.exited, 1)
	close(b.done)
}

// Stop requests cooperative shutdown; observed at the top of the next
// dequeue/work iteration.
func (b *Base) Stop() {
	atomic.StoreInt32(&b.terminate, 1)
}

// HasExited reports whether the run loop has returned.
func (b *Base) HasExited() bool {
	return atomic.LoadInt32(&b.exited) == 1
}

// Join blocks until the worker's goroutine has exited. It returns at once
// for a worker that was never launched.
func (b *Base) Join() {
	if atomic.LoadInt32(&b.launched) == 0 {
		return
	}
	<-b.done
}

// PushToPeer looks up peerID's queue and pushes s, blocking (spin-waiting)
// on the token before returning — spec.md §4.2 notes this is effectively
// non-blocking since only one message is ever in flight per direction.
func (b *Base) PushToPeer(peerID int, s sga.Sga) error {
	q, ok := b.peers.queue(peerID)
	if !ok {
		return ErrUnknownPeer
	}
	tok, err := q.Push(s)
	if err != nil {
		return err
	}
	_, err = b.Poller.Wait(tok)
	return err
}

// PopFromPeer issues a non-blocking pop on peerID's queue and returns its
// token for the caller's token set.
func (b *Base) PopFromPeer(peerID int) (ioqueue.Token, error) {
	q, ok := b.peers.queue(peerID)
	if !ok {
		return ioqueue.Token{}, ErrUnknownPeer
	}
	return q.Pop()
}

// GetPeerQd and GetPeerID expose the bijective peer registry maps for
// dispatch logic that needs to classify a resolved Qd (e.g. "is this a
// client socket or a peer channel?").
func (b *Base) GetPeerQd(peerID int) (ioqueue.Qd, bool) { return b.peers.qdFor(peerID) }
func (b *Base) GetPeerID(qd ioqueue.Qd) (int, bool)     { return b.peers.idFor(qd) }

// PeerIDs returns registered peer ids in registration order, matching the
// source's peer_ids vector used both for round-robin ordering and for the
// per-peer pop pre-arming loop in NetWorker::setup.
func (b *Base) PeerIDs() []int { return b.peers.ids() }

// RegisterQueue installs an arbitrary Queue (e.g. the listening socket or
// an accepted client connection) under a Qd this worker allocated via
// NextQd, so PushToPeer/PopFromPeer-style lookups and the dispatcher's own
// direct queue access share one namespace.
func (b *Base) RegisterQueue(qd ioqueue.Qd, q ioqueue.Queue) {
	b.peers.addQueue(qd, q)
}

// Queue returns the Queue registered under qd, if any.
func (b *Base) Queue(qd ioqueue.Qd) (ioqueue.Queue, bool) {
	return b.peers.queueByQd(qd)
}

// RegisterPeers wires a bidirectional peer channel between two workers,
// exactly matching the source's static Worker::register_peers: one shared
// item per direction, cross-wired so each side's qd represents "channel to
// the other side". Both workers' bijective registry maps are updated.
func RegisterPeers(a, b *Base) {
	qdA := a.NextQd()
	qdB := b.NextQd()
	chA, chB := ioqueue.NewPeerChannel(a.Poller, qdA, b.Poller, qdB)
	a.peers.register(b.ID, qdA, chA)
	b.peers.register(a.ID, qdB, chB)
}
