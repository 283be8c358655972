package ioqueue

import (
	"testing"
	"unsafe"
)

func TestRingPushPopRoundTrip(t *testing.T) {
	r := newRing(1)
	var x int
	p := payload{ptr: unsafe.Pointer(&x), len: int(unsafe.Sizeof(x))}

	if _, ok := r.tryPop(); ok {
		t.Fatal("tryPop on empty ring succeeded")
	}
	if !r.tryPush(p) {
		t.Fatal("tryPush on empty slot failed")
	}
	if r.tryPush(p) {
		t.Fatal("tryPush on full ring (capacity 1) succeeded")
	}
	got, ok := r.tryPop()
	if !ok || got.ptr != p.ptr {
		t.Fatalf("tryPop = (%v, %v), want (%v, true)", got, ok, p)
	}
	if _, ok := r.tryPop(); ok {
		t.Fatal("tryPop after drain succeeded")
	}
}

func TestRingRejectsNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for size=3")
		}
	}()
	newRing(3)
}
