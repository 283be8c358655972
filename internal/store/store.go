// Package store implements the store worker (spec.md §4.4): the run loop
// that pulls a KvRequest envelope from the network worker, evaluates it
// against a kv.Engine, and pushes a KvResponse envelope back.
package store

import (
	"errors"
	"unsafe"

	"github.com/nullstate/kvshard/internal/ioqueue"
	"github.com/nullstate/kvshard/internal/kv"
	"github.com/nullstate/kvshard/internal/kvlog"
	"github.com/nullstate/kvshard/internal/sga"
	"github.com/nullstate/kvshard/internal/worker"
)

// NetworkerPeerID is the fixed peer id the network worker registers
// under, matching the source's hardcoded id 0.
const NetworkerPeerID = 0

// ErrNetworkerNotRegistered is returned by Setup when the network worker
// hasn't been peer-registered yet.
var ErrNetworkerNotRegistered = errors.New("store: networker must be registered before setup")

// Worker is a worker.Runner evaluating requests against a shared kv.Engine.
type Worker struct {
	Base   *worker.Base
	Engine *kv.Engine
	Log    *kvlog.Logger

	networkerQd ioqueue.Qd
	popTok      ioqueue.Token
}

// New constructs an un-launched store worker. id must be >= 1; id 0 is
// reserved for the network worker, matching the source's warning.
func New(id int, core int, engine *kv.Engine, log *kvlog.Logger) *Worker {
	if log == nil {
		log = kvlog.Discard()
	}
	w := &Worker{Engine: engine, Log: log}
	w.Base = worker.NewBase(id, core)
	return w
}

// Setup resolves the networker's queue descriptor and arms the first pop.
func (w *Worker) Setup() error {
	qd, ok := w.Base.GetPeerQd(NetworkerPeerID)
	if !ok {
		w.Log.Error("store worker %d: networker not registered", w.Base.ID)
		return ErrNetworkerNotRegistered
	}
	w.networkerQd = qd
	tok, err := w.Base.PopFromPeer(NetworkerPeerID)
	if err != nil {
		return err
	}
	w.popTok = tok
	return nil
}

// Dequeue polls the single outstanding pop token once, non-blocking.
func (w *Worker) Dequeue() (ioqueue.QResult, error) {
	res, err := w.Base.Poller.Poll(w.popTok)
	if err == ioqueue.ErrAgain {
		return ioqueue.QResult{}, ioqueue.ErrAgain
	}
	tok, rearmErr := w.Base.PopFromPeer(NetworkerPeerID)
	if rearmErr != nil {
		return res, rearmErr
	}
	w.popTok = tok
	return res, err
}

// Work evaluates one dequeued KvRequest envelope and pushes a KvResponse
// envelope back to the network worker, mirroring StoreWorker::work.
func (w *Worker) Work(status error, res ioqueue.QResult) error {
	if status != nil {
		w.Log.Error("store worker %d: dequeue status %v", w.Base.ID, status)
		return status
	}
	if res.Qd != w.networkerQd || res.Kind != ioqueue.OpPop {
		w.Log.Error("store worker %d: unexpected result %+v", w.Base.ID, res)
		return errors.New("store: unexpected dequeue result")
	}

	ptr, err := sga.UnwrapEnvelope(res.Sga, unsafe.Sizeof(sga.KvRequest{}))
	if err != nil {
		w.Log.Error("store worker %d: %v", w.Base.ID, err)
		return err
	}
	kvreq := (*sga.KvRequest)(ptr)
	req := string(kvreq.Sga.Bytes())
	w.Log.Debug("store worker %d: received request %q", w.Base.ID, req)

	output, _ := w.Engine.Process(req)

	kvresp := sga.NewKvResponse(kvreq.ReqQfd, output)
	respSga := sga.WrapEnvelope(unsafe.Pointer(kvresp), unsafe.Sizeof(*kvresp))
	if err := w.Base.PushToPeer(NetworkerPeerID, respSga); err != nil {
		w.Log.Error("store worker %d: could not push response to networker: %v", w.Base.ID, err)
		return err
	}
	return nil
}
