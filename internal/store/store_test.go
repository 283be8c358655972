package store

import (
	"testing"
	"unsafe"

	"github.com/nullstate/kvshard/internal/ioqueue"
	"github.com/nullstate/kvshard/internal/kv"
	"github.com/nullstate/kvshard/internal/sga"
	"github.com/nullstate/kvshard/internal/worker"
)

func TestSetupFailsWithoutNetworkerPeer(t *testing.T) {
	w := New(1, 0, kv.NewEngine(), nil)
	if err := w.Setup(); err != ErrNetworkerNotRegistered {
		t.Fatalf("setup = %v, want ErrNetworkerNotRegistered", err)
	}
}

func TestStoreWorkerEndToEndRequest(t *testing.T) {
	engine := kv.NewEngine()
	engine.SkipBootstrap()

	net := worker.NewBase(0, 0)
	sw := New(1, 0, engine, nil)
	worker.RegisterPeers(net, sw.Base)

	if err := sw.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}

	req := sga.KvRequest{ReqQfd: sga.ConnID(7), Sga: sga.One([]byte("PUT foo bar"))}
	wrapped := sga.WrapEnvelope(unsafe.Pointer(&req), unsafe.Sizeof(req))
	if err := net.PushToPeer(1, wrapped); err != nil {
		t.Fatalf("push request: %v", err)
	}

	var res ioqueue.QResult
	var err error
	for i := 0; i < 1000; i++ {
		res, err = sw.Dequeue()
		if err != ioqueue.ErrAgain {
			break
		}
	}
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if werr := sw.Work(err, res); werr != nil {
		t.Fatalf("work: %v", werr)
	}

	respTok, err := net.PopFromPeer(1)
	if err != nil {
		t.Fatalf("pop response: %v", err)
	}
	respRes, err := net.Poller.Wait(respTok)
	if err != nil {
		t.Fatalf("wait response: %v", err)
	}
	ptr, err := sga.UnwrapEnvelope(respRes.Sga, unsafe.Sizeof(sga.KvResponse{}))
	if err != nil {
		t.Fatalf("unwrap response: %v", err)
	}
	kvresp := (*sga.KvResponse)(ptr)
	if kvresp.ReqQfd != sga.ConnID(7) {
		t.Fatalf("ReqQfd = %d, want 7", kvresp.ReqQfd)
	}
	outSga, err := kvresp.MoveToSga()
	if err != nil {
		t.Fatalf("move to sga: %v", err)
	}
	if string(outSga.Bytes()) != "SUCCESS" {
		t.Fatalf("response payload = %q, want SUCCESS", outSga.Bytes())
	}
}

func TestStoreWorkerUnknownRequestType(t *testing.T) {
	engine := kv.NewEngine()
	engine.SkipBootstrap()

	net := worker.NewBase(0, 0)
	sw := New(1, 0, engine, nil)
	worker.RegisterPeers(net, sw.Base)
	if err := sw.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}

	req := sga.KvRequest{ReqQfd: sga.ConnID(3), Sga: sga.One([]byte("BOGUS xyz"))}
	wrapped := sga.WrapEnvelope(unsafe.Pointer(&req), unsafe.Sizeof(req))
	if err := net.PushToPeer(1, wrapped); err != nil {
		t.Fatalf("push: %v", err)
	}

	var res ioqueue.QResult
	var err error
	for i := 0; i < 1000; i++ {
		res, err = sw.Dequeue()
		if err != ioqueue.ErrAgain {
			break
		}
	}
	if werr := sw.Work(err, res); werr != nil {
		t.Fatalf("work: %v", werr)
	}

	respTok, _ := net.PopFromPeer(1)
	respRes, _ := net.Poller.Wait(respTok)
	ptr, _ := sga.UnwrapEnvelope(respRes.Sga, unsafe.Sizeof(sga.KvResponse{}))
	kvresp := (*sga.KvResponse)(ptr)
	outSga, _ := kvresp.MoveToSga()
	if string(outSga.Bytes()) != "ERR: Unknown reqtype" {
		t.Fatalf("response = %q", outSga.Bytes())
	}
}
