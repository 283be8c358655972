// affinity_stub.go - CPU affinity no-op for unsupported platforms.

//go:build !linux || tinygo

package affinity

// Pin is a no-op on platforms without sched_setaffinity(2). Store workers
// and the network worker still run correctly, just without a core pin.
func Pin(cpu int) {
}
