// Package bootstrap loads the initial set of KV commands a store engine
// replays before serving requests: the source's plain command file, and a
// supplemental SQLite-backed command table (spec.md's A3, SPEC_FULL.md
// §4.6).
package bootstrap

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/sha3"

	"github.com/nullstate/kvshard/internal/kv"
	"github.com/nullstate/kvshard/internal/kvlog"
)

// Result reports what a bootstrap run did, for the supervisor to log and
// to decide between Engine.Lock and Engine.SkipBootstrap.
type Result struct {
	Ran       bool // a bootstrap source was actually opened
	OKCount   int
	FailCount int
}

// FromFile replays path's lines through engine, mirroring the source's
// KvStore(filename) constructor: a missing file is not an error here, it
// is reported via Result.Ran == false so the caller can fall back to
// SkipBootstrap with its writeable-map warning, exactly as the source's
// "could not open file" branch does.
func FromFile(engine *kv.Engine, path string, log *kvlog.Logger) (Result, error) {
	if path == "" {
		return Result{}, nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		log.Warn("bootstrap: could not open command file %q: %v", path, err)
		return Result{}, nil
	}
	digest := sha3.Sum256(contents)
	log.Debug("bootstrap: %q sha3-256 %x", path, digest)

	ok, fail := engine.Replay(bytes.NewReader(contents))
	log.Info("bootstrap: replayed %q: %d ok, %d failed", path, ok, fail)
	return Result{Ran: true, OKCount: ok, FailCount: fail}, nil
}

// FromSQLite replays path's commands table, ordered by id, through
// engine. The table schema is `commands(id INTEGER, line TEXT)`,
// mirroring the teacher's syncharvester bootstrap pattern of loading
// seed rows from a SQLite database ahead of serving traffic.
func FromSQLite(engine *kv.Engine, path string, log *kvlog.Logger) (Result, error) {
	if path == "" {
		return Result{}, nil
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap: opening %q: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT line FROM commands ORDER BY id`)
	if err != nil {
		return Result{}, fmt.Errorf("bootstrap: querying commands table in %q: %w", path, err)
	}
	defer rows.Close()

	var ok, fail int
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return Result{}, fmt.Errorf("bootstrap: scanning command row: %w", err)
		}
		if _, success := engine.Process(line); success {
			ok++
		} else {
			fail++
		}
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("bootstrap: iterating commands table in %q: %w", path, err)
	}

	log.Info("bootstrap: replayed %q: %d ok, %d failed", path, ok, fail)
	return Result{Ran: true, OKCount: ok, FailCount: fail}, nil
}

// Run replays cmdFile then cmdDB (either or both may be empty) and locks
// the engine according to whether anything was actually replayed,
// matching the source's constructor semantics: a store that saw at least
// one bootstrap source becomes read-only and readable; a store that saw
// none is left writeable and readable with the caller responsible for
// having already warned that writes stay enabled while serving.
func Run(engine *kv.Engine, cmdFile, cmdDB string, log *kvlog.Logger) (Result, error) {
	total := Result{}

	fileRes, err := FromFile(engine, cmdFile, log)
	if err != nil {
		return Result{}, err
	}
	total.Ran = total.Ran || fileRes.Ran
	total.OKCount += fileRes.OKCount
	total.FailCount += fileRes.FailCount

	dbRes, err := FromSQLite(engine, cmdDB, log)
	if err != nil {
		return Result{}, err
	}
	total.Ran = total.Ran || dbRes.Ran
	total.OKCount += dbRes.OKCount
	total.FailCount += dbRes.FailCount

	if total.Ran {
		engine.Lock()
	} else {
		engine.SkipBootstrap()
	}
	return total, nil
}
