// Command kvshardd runs the sharded key/value server: a single network
// worker accepting client connections and N store workers evaluating
// requests against an in-memory engine, wired together by
// internal/supervisor.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/nullstate/kvshard/internal/config"
	"github.com/nullstate/kvshard/internal/kvlog"
	"github.com/nullstate/kvshard/internal/supervisor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run parses arguments, assembles the supervisor, and drives it to
// completion, returning the process exit code spec.md §6 assigns: 0 for a
// clean shutdown, 1 for a bad argument, 255 for a setup failure.
func run(args []string) int {
	fs := flag.NewFlagSet("kvshardd", flag.ContinueOnError)
	opts, err := config.Parse(fs, os.Stderr, args)
	if errors.Is(err, config.ErrHelpRequested) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log := kvlog.Default()

	sup, err := supervisor.New(opts, log)
	if err != nil {
		log.Error("kvshardd: %v", err)
		return 255
	}

	if err := sup.Run(); err != nil {
		log.Error("kvshardd: %v", err)
		return 255
	}
	return 0
}
