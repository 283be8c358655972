// Package latency accumulates per-request entry/exit timestamps for the
// network worker and dumps them as a TSV log, exactly as spec.md §6
// describes, plus a supplemental SQLite sink.
package latency

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Recorder mirrors the source's NetWorker entry_times/exit_times vectors:
// two parallel slices appended in receipt order, correlated positionally
// rather than by request id. DumpTSV zips them by index exactly as the
// source's dump_times does, including its latent limitation that
// concurrently in-flight requests are not individually tracked.
type Recorder struct {
	mu      sync.Mutex
	entries []time.Time
	exits   []time.Time
}

// NewRecorder preallocates capacity for 10 million samples per slice,
// matching the source's reserve(10000000) calls — the preallocation exists
// purely to avoid reallocation churn on the hot path, not to bound capacity.
func NewRecorder() *Recorder {
	return &Recorder{
		entries: make([]time.Time, 0, 10_000_000),
		exits:   make([]time.Time, 0, 10_000_000),
	}
}

// Entry records a request's arrival time.
func (r *Recorder) Entry(t time.Time) {
	r.mu.Lock()
	r.entries = append(r.entries, t)
	r.mu.Unlock()
}

// Exit records a response's completion time.
func (r *Recorder) Exit(t time.Time) {
	r.mu.Lock()
	r.exits = append(r.exits, t)
	r.mu.Unlock()
}

// DumpTSV writes the header row and one entry\texit row per sample,
// reporting nanoseconds since the very first recorded entry, exactly as
// spec.md §6's latency log format.
func (r *Recorder) DumpTSV(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := io.WriteString(w, "entry\texit\n"); err != nil {
		return err
	}
	n := len(r.exits)
	if len(r.entries) < n {
		n = len(r.entries)
	}
	if n == 0 {
		return nil
	}
	t0 := r.entries[0]
	for i := 0; i < n; i++ {
		entryNs := r.entries[i].Sub(t0).Nanoseconds()
		exitNs := r.exits[i].Sub(t0).Nanoseconds()
		if _, err := fmt.Fprintf(w, "%d\t%d\n", entryNs, exitNs); err != nil {
			return err
		}
	}
	return nil
}

// DumpFile creates path and writes the TSV dump to it, matching the
// source's dump_times opening log_filename directly.
func (r *Recorder) DumpFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.DumpTSV(f)
}

// Samples returns the same (entry_ns, exit_ns) pairs DumpTSV would write,
// for the supplemental SQLite sink.
func (r *Recorder) Samples() [][2]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.exits)
	if len(r.entries) < n {
		n = len(r.entries)
	}
	if n == 0 {
		return nil
	}
	t0 := r.entries[0]
	out := make([][2]int64, n)
	for i := 0; i < n; i++ {
		out[i] = [2]int64{r.entries[i].Sub(t0).Nanoseconds(), r.exits[i].Sub(t0).Nanoseconds()}
	}
	return out
}
