package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/nullstate/kvshard/internal/ioqueue"
)

type stubRunner struct {
	setupErr error
	dequeue  func() (ioqueue.QResult, error)
	work     func(status error, res ioqueue.QResult) error
}

func (s *stubRunner) Setup() error { return s.setupErr }
func (s *stubRunner) Dequeue() (ioqueue.QResult, error) {
	if s.dequeue == nil {
		return ioqueue.QResult{}, ioqueue.ErrAgain
	}
	return s.dequeue()
}
func (s *stubRunner) Work(status error, res ioqueue.QResult) error {
	if s.work == nil {
		return nil
	}
	return s.work(status, res)
}

func TestBaseLaunchRunsAndStops(t *testing.T) {
	b := NewBase(0, 0)
	n := 0
	r := &stubRunner{
		dequeue: func() (ioqueue.QResult, error) {
			n++
			return ioqueue.QResult{}, ioqueue.ErrAgain
		},
	}
	if err := b.Launch(r); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if b.State() != StateRunning {
		t.Fatalf("state = %v, want StateRunning", b.State())
	}
	b.Stop()
	b.Join()
	if !b.HasExited() {
		t.Fatal("expected worker to have exited")
	}
	if b.State() != StateExited {
		t.Fatalf("state = %v, want StateExited", b.State())
	}
}

func TestBaseLaunchTwiceFails(t *testing.T) {
	b := NewBase(0, 0)
	r := &stubRunner{}
	if err := b.Launch(r); err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer func() {
		b.Stop()
		b.Join()
	}()
	if err := b.Launch(r); err != ErrAlreadyLaunched {
		t.Fatalf("second launch = %v, want ErrAlreadyLaunched", err)
	}
}

func TestBaseLaunchSetupFailure(t *testing.T) {
	b := NewBase(0, 0)
	r := &stubRunner{setupErr: errors.New("boom")}
	if err := b.Launch(r); err != ErrSetupFailed {
		t.Fatalf("launch = %v, want ErrSetupFailed", err)
	}
	if !b.HasExited() {
		t.Fatal("expected exited after setup failure")
	}
}

func TestBaseWorkFatalErrorStopsLoop(t *testing.T) {
	b := NewBase(0, 0)
	calls := 0
	r := &stubRunner{
		dequeue: func() (ioqueue.QResult, error) {
			calls++
			return ioqueue.QResult{}, nil
		},
		work: func(status error, res ioqueue.QResult) error {
			return errors.New("fatal")
		},
	}
	if err := b.Launch(r); err != nil {
		t.Fatalf("launch: %v", err)
	}
	select {
	case <-b.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after fatal Work error")
	}
	if calls == 0 {
		t.Fatal("expected at least one dequeue call")
	}
}

func TestRegisterPeersWiresBothDirections(t *testing.T) {
	a := NewBase(1, 0)
	b := NewBase(2, 0)
	RegisterPeers(a, b)

	if _, ok := a.GetPeerQd(2); !ok {
		t.Fatal("a missing peer qd for b")
	}
	if _, ok := b.GetPeerQd(1); !ok {
		t.Fatal("b missing peer qd for a")
	}
	qdA, _ := a.GetPeerQd(2)
	if id, ok := a.GetPeerID(qdA); !ok || id != 2 {
		t.Fatalf("a.GetPeerID(%v) = (%d, %v), want (2, true)", qdA, id, ok)
	}
}

func TestRegistryStopAllAndAnyExited(t *testing.T) {
	reg := NewRegistry()
	w1 := NewBase(1, 0)
	w2 := NewBase(2, 0)
	reg.Add(w1)
	reg.Add(w2)

	if err := w1.Launch(&stubRunner{}); err != nil {
		t.Fatal(err)
	}
	if err := w2.Launch(&stubRunner{}); err != nil {
		t.Fatal(err)
	}
	if reg.AnyExited() {
		t.Fatal("no worker should have exited yet")
	}
	reg.StopAll()
	reg.JoinAll()
	if !reg.AnyExited() {
		t.Fatal("expected at least one exited worker after StopAll")
	}
	for _, w := range reg.Workers() {
		if !w.HasExited() {
			t.Fatal("expected all workers exited after JoinAll")
		}
	}
}
