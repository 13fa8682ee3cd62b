// Command clockbank runs bank-transfer simulations between processes that
// order their events with Lamport clocks, and keeps each run's audit log and
// balance histories in SQLite.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

const (
	defaultDir    = ".clockbank"
	defaultDB     = defaultDir + "/clockbank.db"
	defaultEvents = "events.log"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Println("clockbank", version)
		return
	}

	a, err := newApp()
	if err != nil {
		fatal("%v", err)
	}
	var code int
	switch os.Args[1] {
	case "run":
		code = a.cmdRun(os.Args[2:])
	case "history":
		code = a.cmdHistory(os.Args[2:])
	case "log":
		code = a.cmdLog(os.Args[2:])
	case "runs":
		code = a.cmdRuns(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "clockbank: unknown command %q\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "Run 'clockbank --help' for usage.")
		code = 1
	}
	a.Close()
	os.Exit(code)
}

func printUsage() {
	fmt.Print(`clockbank - bank transfers ordered by Lamport clocks

A coordinator (process 0) and N workers exchange STARTED, TRANSFER, ACK,
STOP, DONE and BALANCE_HISTORY messages. Every worker keeps a balance
history with one entry per logical tick; the coordinator collects them
and prints the balance of every process at every tick.

Usage:
  clockbank <command> [flags]

Commands:
  run -p N b1 .. bN         Run a simulation with N workers and initial balances
      --transfer s:d:a      Transfer $a from worker s to worker d (repeatable;
                            default: the robbery scenario)
      --transport KIND      memory (default) or nats
      --events FILE         Audit log file (default: events.log, "" to disable)
      --metrics             Print message counters after the run
      --timeout D           Give up after D (default: wait forever)
  history [--run ID]        Per-tick balance table of a stored run
          [--per-process]   One aligned history line per process instead
  log [--run ID]            Audit log of a stored run, in Lamport order
      [--file FILE]         Sort an events.log file instead
      [--kind K]            Only events of kind K
  runs                      List stored runs

Environment:
  CLOCKBANK_DB        SQLite database path (default: .clockbank/clockbank.db)
  CLOCKBANK_EVENTS    Default audit log file (default: events.log)
  CLOCKBANK_NATS_URL  NATS server for --transport nats

All commands support --json for machine-readable output.
Commands that take --run default to the latest run.

Exit codes:
  0  success
  1  error
`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "clockbank: "+format+"\n", args...)
	os.Exit(1)
}
