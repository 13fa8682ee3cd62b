package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/daviddao/clockbank/pkg/clock"
	"github.com/daviddao/clockbank/pkg/model"
)

func (a *app) cmdLog(args []string) int {
	flags := flag.NewFlagSet("log", flag.ContinueOnError)
	runID := flags.String("run", "", "run id (default: latest)")
	file := flags.String("file", "", "sort an audit log file instead of reading the database")
	kind := flags.String("kind", "", "filter by event kind")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	var events []model.Event
	var source string
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "clockbank: log: %v\n", err)
			return 1
		}
		events, err = readAuditFile(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "clockbank: log: %s: %v\n", *file, err)
			return 1
		}
		source = *file
	} else {
		run, err := a.resolveRun(*runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "clockbank: log: %v\n", err)
			return 1
		}
		if events, err = a.store.ListEvents(run.ID); err != nil {
			fmt.Fprintf(os.Stderr, "clockbank: log: %v\n", err)
			return 1
		}
		source = run.ID
	}

	if *kind != "" {
		filtered := events[:0]
		for _, e := range events {
			if string(e.Kind) == *kind {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"source": source, "events": events, "count": len(events)})
		return 0
	}
	if len(events) == 0 {
		fmt.Println("no events")
		return 0
	}
	for _, e := range events {
		fmt.Print(e.Body)
	}
	return 0
}

// readAuditFile parses the lines of an audit log and returns them in Lamport
// total order. Every line starts with "<time>: process <id>"; the event kind
// is not recoverable from text and is left empty.
func readAuditFile(r io.Reader) ([]model.Event, error) {
	var events []model.Event
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if line == "" {
			continue
		}
		var ts int64
		var id uint8
		if _, err := fmt.Sscanf(line, "%d: process %d", &ts, &id); err != nil {
			return nil, fmt.Errorf("line %d: %q: not an audit line", n, line)
		}
		events = append(events, model.Event{
			ProcessID: model.ProcessID(id),
			LamportTS: ts,
			Body:      line + "\n",
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return clock.TotalOrderLess(events[i].LamportTS, events[i].ProcessID, events[j].LamportTS, events[j].ProcessID)
	})
	return events, nil
}
