package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/daviddao/clockbank/pkg/bank"
	"github.com/daviddao/clockbank/pkg/metrics"
	"github.com/daviddao/clockbank/pkg/model"
	"github.com/daviddao/clockbank/pkg/sim"
	"github.com/daviddao/clockbank/pkg/snapshot"
	"github.com/daviddao/clockbank/pkg/store"
	"github.com/daviddao/clockbank/pkg/transport"
)

// transferList collects repeated --transfer s:d:a flags.
type transferList []model.TransferOrder

func (l *transferList) String() string {
	parts := make([]string, len(*l))
	for i, o := range *l {
		parts[i] = fmt.Sprintf("%d:%d:%d", o.Src, o.Dst, o.Amount)
	}
	return strings.Join(parts, ",")
}

func (l *transferList) Set(v string) error {
	o, err := parseTransfer(v)
	if err != nil {
		return err
	}
	*l = append(*l, o)
	return nil
}

// parseTransfer parses "src:dst:amount".
func parseTransfer(s string) (model.TransferOrder, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return model.TransferOrder{}, fmt.Errorf("transfer %q: want src:dst:amount", s)
	}
	src, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return model.TransferOrder{}, fmt.Errorf("transfer %q: bad source: %w", s, err)
	}
	dst, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return model.TransferOrder{}, fmt.Errorf("transfer %q: bad destination: %w", s, err)
	}
	amt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return model.TransferOrder{}, fmt.Errorf("transfer %q: bad amount: %w", s, err)
	}
	return model.TransferOrder{Src: model.ProcessID(src), Dst: model.ProcessID(dst), Amount: model.Balance(amt)}, nil
}

// parseBalances parses exactly n non-negative initial balances.
func parseBalances(n int, args []string) ([]model.Balance, error) {
	if n < 1 {
		return nil, fmt.Errorf("-p must be at least 1")
	}
	if len(args) != n {
		return nil, fmt.Errorf("-p %d needs %d balances, got %d", n, n, len(args))
	}
	out := make([]model.Balance, n)
	for i, a := range args {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("balance %q of process %d: want a non-negative integer", a, i+1)
		}
		out[i] = model.Balance(v)
	}
	return out, nil
}

// parseInterspersed parses fs over args, allowing flags after positional
// arguments. It returns the positional arguments in order.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return pos, nil
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
}

type runOutput struct {
	Run       *model.Run       `json:"run"`
	Result    *sim.Result      `json:"result"`
	Table     snapshot.Table   `json:"table"`
	Conserved bool             `json:"conserved"`
	Metrics   []metrics.Sample `json:"metrics,omitempty"`
}

func (a *app) cmdRun(args []string) int {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	procs := flags.Int("p", 0, "number of worker processes")
	var transfers transferList
	flags.Var(&transfers, "transfer", "transfer src:dst:amount (repeatable)")
	kind := flags.String("transport", string(sim.TransportMemory), "message transport: memory or nats")
	natsURL := flags.String("nats-url", envOr("CLOCKBANK_NATS_URL", nats.DefaultURL), "NATS server URL")
	eventsPath := flags.String("events", envOr("CLOCKBANK_EVENTS", defaultEvents), "audit log file (empty disables)")
	showMetrics := flags.Bool("metrics", false, "print message counters")
	timeout := flags.Duration("timeout", 0, "abort the run after this long (0 waits forever)")
	jsonOut := flags.Bool("json", false, "JSON output")
	pos, err := parseInterspersed(flags, args)
	if err != nil {
		return 1
	}

	balances, err := parseBalances(*procs, pos)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clockbank: run: %v\n", err)
		return 1
	}
	cfg := sim.Config{
		Balances:  balances,
		Transport: sim.TransportKind(*kind),
		Warn:      os.Stderr,
	}
	if len(transfers) > 0 {
		cfg.Transfers = transfers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "clockbank: run: %v\n", err)
		return 1
	}

	run, err := a.store.CreateRun(len(balances), *kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "clockbank: run: %v\n", err)
		return 1
	}
	cfg.NATS = transport.NATSConfig{
		URL:            *natsURL,
		Name:           "clockbank-" + run.ID,
		RunID:          run.ID,
		ConnectTimeout: 2 * time.Second,
		ReconnectWait:  time.Second,
		MaxReconnects:  5,
	}

	var sinks []io.Writer
	if !*jsonOut {
		sinks = append(sinks, os.Stdout)
	}
	if *eventsPath != "" {
		f, err := os.Create(*eventsPath)
		if err != nil {
			a.failRun(run.ID, fmt.Errorf("open events file: %w", err))
			return 1
		}
		defer f.Close()
		sinks = append(sinks, f)
	}
	cfg.Audit = bank.NewAuditor(io.MultiWriter(sinks...), a.store, run.ID)
	if *showMetrics {
		cfg.Metrics = metrics.New()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	res, err := sim.Run(ctx, cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("no result after %v: %w", *timeout, err)
		}
		a.failRun(run.ID, err)
		return 1
	}
	if err := a.store.SaveHistories(run.ID, res.Histories); err != nil {
		a.failRun(run.ID, err)
		return 1
	}
	if err := a.store.SetRunStatus(run.ID, store.RunComplete); err != nil {
		fmt.Fprintf(os.Stderr, "clockbank: run: %v\n", err)
		return 1
	}
	run.Status = store.RunComplete

	tab := snapshot.Compute(res.Histories)
	var samples []metrics.Sample
	if cfg.Metrics != nil {
		if samples, err = cfg.Metrics.Snapshot(); err != nil {
			fmt.Fprintf(os.Stderr, "clockbank: run: gather metrics: %v\n", err)
			return 1
		}
	}

	if *jsonOut {
		printJSON(runOutput{Run: run, Result: res, Table: tab, Conserved: tab.Conserved(), Metrics: samples})
		return 0
	}
	fmt.Printf("\nrun %s: %d workers, %d ACKs\n", run.ID, len(balances), res.Acks)
	if err := tab.Render(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "clockbank: run: %v\n", err)
		return 1
	}
	printTotals(tab)
	if len(samples) > 0 {
		printSamples(samples)
	}
	return 0
}

// failRun marks the run failed and reports err.
func (a *app) failRun(id string, err error) {
	fmt.Fprintf(os.Stderr, "clockbank: run: %v\n", err)
	if serr := a.store.SetRunStatus(id, store.RunFailed); serr != nil {
		fmt.Fprintf(os.Stderr, "clockbank: run: mark failed: %v\n", serr)
	}
}

func printTotals(tab snapshot.Table) {
	if tab.Conserved() {
		fmt.Printf("total $%d (conserved)\n", tab.Final())
		return
	}
	fmt.Printf("total $%d -> $%d (NOT conserved)\n", tab.Initial(), tab.Final())
}

func printSamples(samples []metrics.Sample) {
	fmt.Println("\nmetrics:")
	for _, s := range samples {
		keys := make([]string, 0, len(s.Labels))
		for k := range s.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		labels := make([]string, len(keys))
		for i, k := range keys {
			labels[i] = k + "=" + s.Labels[k]
		}
		fmt.Printf("  %-40s %-28s %g\n", s.Name, strings.Join(labels, " "), s.Value)
	}
}
