package dispatch

import (
	"net"
	"testing"
	"time"
	"unsafe"

	"github.com/nullstate/kvshard/internal/ioqueue"
	"github.com/nullstate/kvshard/internal/latency"
	"github.com/nullstate/kvshard/internal/sga"
	"github.com/nullstate/kvshard/internal/worker"
)

// runOnce drives one dequeue/work iteration, tolerating EAGAIN.
func runOnce(t *testing.T, w *Worker) {
	t.Helper()
	for i := 0; i < 2000; i++ {
		res, err := w.Dequeue()
		if err == ioqueue.ErrAgain {
			continue
		}
		if werr := w.Work(err, res); werr != nil {
			t.Fatalf("work: %v", werr)
		}
		return
	}
	t.Fatal("timed out waiting for dequeue")
}

func TestNetWorkerFullRoundTrip(t *testing.T) {
	nw := New(0, "tcp", "127.0.0.1:0", NewRoundRobin(), nil, nil)
	storeBase := worker.NewBase(1, 0)
	worker.RegisterPeers(nw.Base, storeBase)

	if err := nw.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}

	client, err := net.Dial("tcp", nw.ListenAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	// Accept.
	runOnce(t, nw)
	if _, err := client.Write([]byte("PUT foo bar")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	// Client pop -> routes to store peer 1.
	runOnce(t, nw)

	// Drain the request on the store side and answer it.
	popTok, err := storeBase.PopFromPeer(0)
	if err != nil {
		t.Fatalf("pop from peer: %v", err)
	}
	res, err := storeBase.Poller.Wait(popTok)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	ptr, err := sga.UnwrapEnvelope(res.Sga, unsafe.Sizeof(sga.KvRequest{}))
	if err != nil {
		t.Fatalf("unwrap request: %v", err)
	}
	kvreq := (*sga.KvRequest)(ptr)
	if string(kvreq.Sga.Bytes()) != "PUT foo bar" {
		t.Fatalf("request payload = %q", kvreq.Sga.Bytes())
	}
	kvresp := sga.NewKvResponse(kvreq.ReqQfd, "SUCCESS")
	respSga := sga.WrapEnvelope(unsafe.Pointer(kvresp), unsafe.Sizeof(*kvresp))
	if err := storeBase.PushToPeer(0, respSga); err != nil {
		t.Fatalf("push response: %v", err)
	}

	// Peer response -> pushed to client.
	runOnce(t, nw)
	// Client push completion.
	runOnce(t, nw)

	buf := make([]byte, 64)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(buf[:n]) != "SUCCESS" {
		t.Fatalf("client received %q, want SUCCESS", buf[:n])
	}
}

func TestNetWorkerRecordsLatencyOnRequestAndResponse(t *testing.T) {
	rec := latency.NewRecorder()
	nw := New(0, "tcp", "127.0.0.1:0", NewRoundRobin(), rec, nil)
	storeBase := worker.NewBase(1, 0)
	worker.RegisterPeers(nw.Base, storeBase)
	if err := nw.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}

	client, err := net.Dial("tcp", nw.ListenAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	runOnce(t, nw) // accept
	client.Write([]byte("GET foo"))
	runOnce(t, nw) // new request, records entry

	popTok, _ := storeBase.PopFromPeer(0)
	res, _ := storeBase.Poller.Wait(popTok)
	ptr, _ := sga.UnwrapEnvelope(res.Sga, unsafe.Sizeof(sga.KvRequest{}))
	kvreq := (*sga.KvRequest)(ptr)
	kvresp := sga.NewKvResponse(kvreq.ReqQfd, "ERR: Bad key foo")
	respSga := sga.WrapEnvelope(unsafe.Pointer(kvresp), unsafe.Sizeof(*kvresp))
	storeBase.PushToPeer(0, respSga)

	runOnce(t, nw) // peer response, records exit
	runOnce(t, nw) // client push completion

	if samples := rec.Samples(); len(samples) != 1 {
		t.Fatalf("samples = %+v, want exactly 1 entry/exit pair", samples)
	}
}
