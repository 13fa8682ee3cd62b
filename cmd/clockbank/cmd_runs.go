package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

func (a *app) cmdRuns(args []string) int {
	flags := flag.NewFlagSet("runs", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	runs, err := a.store.ListRuns()
	if err != nil {
		fmt.Fprintf(os.Stderr, "clockbank: runs: %v\n", err)
		return 1
	}
	if *jsonOut {
		printJSON(map[string]interface{}{"runs": runs, "count": len(runs)})
		return 0
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return 0
	}
	for _, r := range runs {
		fmt.Printf("  %-36s workers=%-3d transport=%-6s status=%-8s %s\n",
			r.ID, r.Workers, r.Transport, r.Status, r.CreatedAt.Local().Format(time.DateTime))
	}
	return 0
}
