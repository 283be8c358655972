// Package supervisor wires together the KV engine, the network worker and
// the store workers, and drives the process-level startup, run, and
// shutdown sequence (spec.md §4.6, SPEC_FULL.md §4.7).
package supervisor

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nullstate/kvshard/internal/bootstrap"
	"github.com/nullstate/kvshard/internal/config"
	"github.com/nullstate/kvshard/internal/dispatch"
	"github.com/nullstate/kvshard/internal/kv"
	"github.com/nullstate/kvshard/internal/kvlog"
	"github.com/nullstate/kvshard/internal/latency"
	"github.com/nullstate/kvshard/internal/store"
	"github.com/nullstate/kvshard/internal/worker"
)

// pollInterval is how often Run checks whether any worker has exited on
// its own, matching the source's 50ms poll loop in main().
const pollInterval = 50 * time.Millisecond

// Supervisor owns every worker and the shared engine for one run of the
// server, exactly the object main() assembles by hand in the source.
type Supervisor struct {
	Log *kvlog.Logger

	engine   *kv.Engine
	registry *worker.Registry
	net      *dispatch.Worker
	stores   []*store.Worker
	rec      *latency.Recorder
	opts     config.Options
}

// New assembles (but does not launch) every worker described by opts,
// exactly the construct-and-register-peers half of the source's main():
// engine construction and bootstrap replay, network worker construction,
// N store worker constructions, and peer-channel registration between the
// network worker and each store worker.
func New(opts config.Options, log *kvlog.Logger) (*Supervisor, error) {
	if log == nil {
		log = kvlog.Discard()
	}

	engine := kv.NewEngine()
	opts.WarnIfUnguarded(log)
	if _, err := bootstrap.Run(engine, opts.CmdFile, opts.CmdDB, log); err != nil {
		return nil, fmt.Errorf("supervisor: bootstrap: %w", err)
	}

	var rec *latency.Recorder
	if opts.RecordLat {
		rec = latency.NewRecorder()
	}

	choice, err := newChoice(opts.Choice)
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", opts.IP, opts.Port)
	netWorker := dispatch.New(opts.DispatchCore, "tcp", addr, choice, rec, log)

	stores := make([]*store.Worker, opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		id := i + 1
		core := 4 + id
		stores[i] = store.New(id, core, engine, log)
	}

	for _, sw := range stores {
		worker.RegisterPeers(netWorker.Base, sw.Base)
	}

	registry := worker.NewRegistry()
	registry.Add(netWorker.Base)
	for _, sw := range stores {
		registry.Add(sw.Base)
	}

	return &Supervisor{
		Log:      log,
		engine:   engine,
		registry: registry,
		net:      netWorker,
		stores:   stores,
		rec:      rec,
		opts:     opts,
	}, nil
}

func newChoice(kind config.ChoiceKind) (dispatch.ChoiceFunc, error) {
	switch kind {
	case config.ChoiceRoundRobin:
		return dispatch.NewRoundRobin(), nil
	case config.ChoiceFirstKeyDigit:
		return dispatch.FirstKeyDigit{}, nil
	default:
		return nil, fmt.Errorf("supervisor: unknown choice function %q", kind)
	}
}

// ListenAddr exposes the network worker's bound address, useful for tests
// that bind to port 0.
func (s *Supervisor) ListenAddr() string {
	addr := s.net.ListenAddr()
	if addr == nil {
		return ""
	}
	return addr.String()
}

// Run launches every worker, installs SIGINT/SIGTERM/SIGHUP handling,
// blocks until either a shutdown signal arrives or any worker exits on
// its own, then stops, joins, and dumps latency and the optional
// snapshot — exactly the source's main() sequence from launch() through
// dump_times() and cleanup.
func (s *Supervisor) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	if err := s.net.Base.Launch(s.net); err != nil {
		s.Log.Error("supervisor: network worker launch failed: %v", err)
		s.shutdown()
		return err
	}
	for _, sw := range s.stores {
		if err := sw.Base.Launch(sw); err != nil {
			s.Log.Error("supervisor: store worker %d launch failed: %v", sw.Base.ID, err)
			s.shutdown()
			return err
		}
	}
	s.Log.Info("supervisor: all workers launched")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				s.logSnapshot()
				continue
			default:
				s.Log.Info("supervisor: received %v, stopping", sig)
				s.shutdown()
				return nil
			}
		case <-ticker.C:
			if s.registry.AnyExited() {
				s.Log.Warn("supervisor: a worker exited unexpectedly, stopping the rest")
				s.shutdown()
				return nil
			}
		}
	}
}

// logSnapshot is the supplemented SIGHUP diagnostic hook (SPEC_FULL.md
// §4.7): it reports the live map's key count without altering anything.
// The writeable/readable mode is not reported.
func (s *Supervisor) logSnapshot() {
	snap := s.engine.Snapshot()
	s.Log.Info("supervisor: snapshot: %d keys", len(snap))
}

func (s *Supervisor) shutdown() {
	s.registry.StopAll()
	s.registry.JoinAll()

	if s.rec != nil {
		samples := s.rec.Samples()
		path := s.opts.LogDir + "/latency.tsv"
		if err := s.rec.DumpFile(path); err != nil {
			s.Log.Error("supervisor: writing latency log %q: %v", path, err)
		}
		if s.opts.LatDB != "" {
			if err := latency.PersistSQLite(s.opts.LatDB, samples); err != nil {
				s.Log.Error("supervisor: persisting latency to %q: %v", s.opts.LatDB, err)
			}
		}
	}

	if s.opts.SnapshotJSON != "" {
		if err := kvlog.DumpSnapshotJSON(s.opts.SnapshotJSON, s.engine.Snapshot()); err != nil {
			s.Log.Error("supervisor: writing snapshot %q: %v", s.opts.SnapshotJSON, err)
		}
	}
}
