package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/daviddao/clockbank/pkg/model"
	"github.com/daviddao/clockbank/pkg/sim"
	"github.com/daviddao/clockbank/pkg/snapshot"
)

func (a *app) cmdHistory(args []string) int {
	flags := flag.NewFlagSet("history", flag.ContinueOnError)
	runID := flags.String("run", "", "run id (default: latest)")
	perProcess := flags.Bool("per-process", false, "one aligned history line per process")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	run, err := a.resolveRun(*runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clockbank: history: %v\n", err)
		return 1
	}
	all, err := a.store.LoadHistories(run.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clockbank: history: %v\n", err)
		return 1
	}
	if len(all) == 0 {
		fmt.Fprintf(os.Stderr, "clockbank: history: run %s has no stored histories (status %s)\n", run.ID, run.Status)
		return 1
	}

	if *perProcess {
		aligned := sim.Align(all)
		if *jsonOut {
			printJSON(map[string]interface{}{"run": run, "histories": aligned})
			return 0
		}
		fmt.Printf("run %s\n", run.ID)
		for _, id := range aligned.IDs() {
			fmt.Println(historyLine(aligned[id]))
		}
		return 0
	}

	tab := snapshot.Compute(all)
	if *jsonOut {
		printJSON(map[string]interface{}{"run": run, "table": tab, "conserved": tab.Conserved()})
		return 0
	}
	fmt.Printf("run %s (%s, %d workers, %s)\n", run.ID, run.Transport, run.Workers, run.Status)
	if err := tab.Render(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "clockbank: history: %v\n", err)
		return 1
	}
	printTotals(tab)
	return 0
}

// historyLine renders "p<id>: b0 b1 ..." with one balance per tick.
func historyLine(h model.BalanceHistory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "p%d:", h.ID)
	for _, s := range h.States {
		fmt.Fprintf(&b, " %d", s.Balance)
	}
	return b.String()
}
