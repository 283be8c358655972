package worker

import (
	"testing"
	"unsafe"

	"github.com/nullstate/kvshard/internal/sga"
)

func TestPushToPeerAndPopFromPeerRoundTrip(t *testing.T) {
	a := NewBase(1, 0)
	b := NewBase(2, 0)
	RegisterPeers(a, b)

	type env struct{ n int }
	e := &env{n: 7}
	wrapped := sga.WrapEnvelope(unsafe.Pointer(e), unsafe.Sizeof(*e))

	if err := a.PushToPeer(2, wrapped); err != nil {
		t.Fatalf("push to peer: %v", err)
	}

	tok, err := b.PopFromPeer(1)
	if err != nil {
		t.Fatalf("pop from peer: %v", err)
	}
	res, err := b.Poller.Wait(tok)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	ptr, err := sga.UnwrapEnvelope(res.Sga, unsafe.Sizeof(*e))
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	got := (*env)(ptr)
	if got.n != 7 {
		t.Fatalf("got.n = %d, want 7", got.n)
	}
}

func TestPushToPeerUnknownPeer(t *testing.T) {
	a := NewBase(1, 0)
	type env struct{ n int }
	e := &env{n: 1}
	wrapped := sga.WrapEnvelope(unsafe.Pointer(e), unsafe.Sizeof(*e))
	if err := a.PushToPeer(99, wrapped); err != ErrUnknownPeer {
		t.Fatalf("err = %v, want ErrUnknownPeer", err)
	}
}

func TestPopFromPeerUnknownPeer(t *testing.T) {
	a := NewBase(1, 0)
	if _, err := a.PopFromPeer(99); err != ErrUnknownPeer {
		t.Fatalf("err = %v, want ErrUnknownPeer", err)
	}
}
