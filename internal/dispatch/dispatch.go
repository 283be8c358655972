// Package dispatch implements the network worker (spec.md §4.3): the
// single thread accepting client connections, choosing which store
// worker handles each request, and routing responses back.
package dispatch

import (
	"errors"
	"net"
	"time"
	"unsafe"

	"github.com/nullstate/kvshard/internal/ioqueue"
	"github.com/nullstate/kvshard/internal/kvlog"
	"github.com/nullstate/kvshard/internal/latency"
	"github.com/nullstate/kvshard/internal/sga"
	"github.com/nullstate/kvshard/internal/worker"
)

// ErrUnknownClient is returned when a peer response names a client qd the
// networker no longer has a connection for (e.g. it was closed already).
var ErrUnknownClient = errors.New("dispatch: unknown client connection")

// Worker is the network worker: a worker.Runner that owns the listening
// socket, all accepted client connections, and the choice policy routing
// requests to store workers.
type Worker struct {
	Base    *worker.Base
	Choice  ChoiceFunc
	Log     *kvlog.Logger
	Latency *latency.Recorder // nil disables entry/exit recording
	Network string
	Addr    string

	listenQ *ioqueue.NetworkQueue
	lqd     ioqueue.Qd
	peerIDs []int

	tokens      []ioqueue.Token
	startOffset int
}

// New constructs an un-launched network worker, id 0, pinned to core.
func New(core int, network, addr string, choice ChoiceFunc, rec *latency.Recorder, log *kvlog.Logger) *Worker {
	if log == nil {
		log = kvlog.Discard()
	}
	w := &Worker{Choice: choice, Log: log, Latency: rec, Network: network, Addr: addr}
	w.Base = worker.NewBase(0, core)
	return w
}

// ListenAddr returns the listening socket's bound address, useful when
// Addr requests port 0 and the OS assigns one. It returns nil before
// Setup has run.
func (w *Worker) ListenAddr() net.Addr {
	if w.listenQ == nil {
		return nil
	}
	return w.listenQ.Addr()
}

// Setup binds and listens, arms the first accept, and arms one pop per
// registered store-worker peer, exactly as NetWorker::setup.
func (w *Worker) Setup() error {
	lqd := w.Base.NextQd()
	lq, err := ioqueue.ListenNetworkQueue(w.Base.Poller, lqd, w.Network, w.Addr)
	if err != nil {
		return err
	}
	lq.SetAcceptHandler(func(c net.Conn) ioqueue.Qd {
		qd := w.Base.NextQd()
		cq := ioqueue.NewConnQueue(w.Base.Poller, qd, c)
		w.Base.RegisterQueue(qd, cq)
		return qd
	})
	w.Base.RegisterQueue(lqd, lq)
	w.listenQ = lq
	w.lqd = lqd

	tok, err := lq.Accept()
	if err != nil {
		return err
	}
	w.tokens = append(w.tokens, tok)

	w.peerIDs = w.Base.PeerIDs()
	for _, peerID := range w.peerIDs {
		popTok, err := w.Base.PopFromPeer(peerID)
		if err != nil {
			return err
		}
		w.tokens = append(w.tokens, popTok)
	}
	return nil
}

// Dequeue scans the worker's whole token set with one WaitAny pass. A
// connection abort is folded into ErrAgain, exactly as the source
// translates ECONNABORTED into EAGAIN at the dequeue layer — the aborted
// token has already been consumed by WaitAny, so it is simply dropped.
func (w *Worker) Dequeue() (ioqueue.QResult, error) {
	idx, res, err := w.Base.Poller.WaitAny(w.tokens, &w.startOffset)
	if err == ioqueue.ErrAgain {
		return ioqueue.QResult{}, ioqueue.ErrAgain
	}
	w.tokens = append(w.tokens[:idx], w.tokens[idx+1:]...)
	if err == ioqueue.ErrConnAborted {
		return ioqueue.QResult{}, ioqueue.ErrAgain
	}
	return res, err
}

// Work dispatches a resolved token by kind: a new inbound connection, a
// completed outbound push (its buffer is simply dropped for the GC to
// reclaim), a brand new client request, or a completed store-worker
// response.
func (w *Worker) Work(status error, res ioqueue.QResult) error {
	entryTime := time.Now()
	if status != nil {
		w.Log.Error("networker: dequeue status %v", status)
		return status
	}

	if res.Qd == w.lqd {
		return w.handleAccept(res)
	}
	if res.Kind == ioqueue.OpPush {
		return nil
	}

	if _, isPeer := w.Base.GetPeerID(res.Qd); !isPeer {
		return w.handleNewRequest(res, entryTime)
	}
	return w.handlePeerResponse(res)
}

func (w *Worker) handleAccept(res ioqueue.QResult) error {
	q, ok := w.Base.Queue(res.NewQd)
	if !ok {
		return errors.New("dispatch: accepted connection has no queue")
	}
	popTok, err := q.Pop()
	if err != nil {
		return err
	}
	w.tokens = append(w.tokens, popTok)

	acceptTok, err := w.listenQ.Accept()
	if err != nil {
		return err
	}
	w.tokens = append(w.tokens, acceptTok)
	w.Log.Debug("networker: accepted a new connection")
	return nil
}

func (w *Worker) handleNewRequest(res ioqueue.QResult, entryTime time.Time) error {
	if w.Latency != nil {
		w.Latency.Entry(entryTime)
	}
	workerID := w.Choice.Choose(w.peerIDs, res.Sga.Bytes())

	kvReq := sga.KvRequest{ReqQfd: sga.ConnID(res.Qd), Sga: res.Sga}
	wrapped := sga.WrapEnvelope(unsafe.Pointer(&kvReq), unsafe.Sizeof(kvReq))
	if err := w.Base.PushToPeer(workerID, wrapped); err != nil {
		w.Log.Warn("networker: could not push to worker %d: %v", workerID, err)
	} else {
		w.Log.Debug("networker: pushed to peer %d", workerID)
	}

	q, ok := w.Base.Queue(res.Qd)
	if !ok {
		return errors.New("dispatch: request from unknown connection")
	}
	popTok, err := q.Pop()
	if err != nil {
		return err
	}
	w.tokens = append(w.tokens, popTok)
	return nil
}

func (w *Worker) handlePeerResponse(res ioqueue.QResult) error {
	ptr, err := sga.UnwrapEnvelope(res.Sga, unsafe.Sizeof(sga.KvResponse{}))
	if err != nil {
		w.Log.Error("networker: %v", err)
		return err
	}
	kvresp := (*sga.KvResponse)(ptr)
	respSga, err := kvresp.MoveToSga()
	if err != nil {
		return err
	}

	clientQd := ioqueue.Qd(kvresp.ReqQfd)
	clientQ, ok := w.Base.Queue(clientQd)
	if !ok {
		w.Log.Error("networker: unknown client qd %d for response", clientQd)
		return ErrUnknownClient
	}
	pushTok, err := clientQ.Push(respSga)
	if err != nil {
		return err
	}
	if _, perr := w.Base.Poller.Poll(pushTok); perr == ioqueue.ErrAgain {
		w.tokens = append(w.tokens, pushTok)
	} else if perr != nil {
		return perr
	}
	if w.Latency != nil {
		w.Latency.Exit(time.Now())
	}

	peerQ, ok := w.Base.Queue(res.Qd)
	if !ok {
		return errors.New("dispatch: response from unknown peer channel")
	}
	nextTok, err := peerQ.Pop()
	if err != nil {
		return err
	}
	w.tokens = append(w.tokens, nextTok)
	return nil
}
