// Package sim runs one clockbank simulation: a coordinator and N workers,
// each on its own goroutine, connected by a transport.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/daviddao/clockbank/pkg/bank"
	"github.com/daviddao/clockbank/pkg/clock"
	"github.com/daviddao/clockbank/pkg/codec"
	"github.com/daviddao/clockbank/pkg/ledger"
	"github.com/daviddao/clockbank/pkg/metrics"
	"github.com/daviddao/clockbank/pkg/model"
	"github.com/daviddao/clockbank/pkg/transport"
)

// ErrConfig is returned for a simulation that cannot be run.
var ErrConfig = errors.New("invalid simulation config")

// TransportKind selects the message transport.
type TransportKind string

const (
	TransportMemory TransportKind = "memory"
	TransportNATS   TransportKind = "nats"
)

// Config describes one simulation.
type Config struct {
	// Balances[i] is the initial balance of worker i+1.
	Balances []model.Balance
	// Transfers run in order. Nil means the robbery scenario.
	Transfers []model.TransferOrder

	Transport TransportKind
	NATS      transport.NATSConfig
	// Drop is passed to the memory transport; nil delivers everything.
	Drop transport.DropFunc

	Audit   *bank.Auditor
	Metrics *metrics.Metrics
	Warn    io.Writer
}

// Workers returns the number of worker processes.
func (c Config) Workers() int { return len(c.Balances) }

// Orders returns the transfers to run.
func (c Config) Orders() []model.TransferOrder {
	if c.Transfers == nil {
		return bank.Robbery(c.Workers())
	}
	return c.Transfers
}

// MaxWorkers is the largest worker count whose run fits the history
// payload with no transfers at all.
const MaxWorkers = (codec.MaxHistoryLen - 1 - tickSlack) / ticksPerWorker

const (
	ticksPerWorker   = 3 // STARTED and DONE phases, plus interleaving slack
	ticksPerTransfer = 8 // order, debit, forward, credit and ACK, send and receive sides
	tickSlack        = 8 // STOP, the final flush and the report
)

// TickBudget is an upper estimate of the last logical time any worker
// reaches in a run with the given number of workers and transfers. A
// worker's reported history has one entry per tick up to that time.
func TickBudget(workers, transfers int) int {
	return ticksPerWorker*workers + ticksPerTransfer*transfers + tickSlack
}

// Validate checks the worker count, the balances and every transfer, and
// rejects runs whose histories would not fit in a BALANCE_HISTORY message.
func (c Config) Validate() error {
	n := c.Workers()
	if n < 1 || n > MaxWorkers {
		return fmt.Errorf("%w: %d workers, want 1..%d", ErrConfig, n, MaxWorkers)
	}
	for i, b := range c.Balances {
		if b < 0 {
			return fmt.Errorf("%w: worker %d has negative balance %d", ErrConfig, i+1, b)
		}
	}
	for i, o := range c.Orders() {
		switch {
		case o.Src < 1 || int(o.Src) > n:
			return fmt.Errorf("%w: transfer %d: source %d outside 1..%d", ErrConfig, i+1, o.Src, n)
		case o.Dst < 1 || int(o.Dst) > n:
			return fmt.Errorf("%w: transfer %d: destination %d outside 1..%d", ErrConfig, i+1, o.Dst, n)
		case o.Src == o.Dst:
			// A self-transfer message re-forwards itself until Stop.
			return fmt.Errorf("%w: transfer %d: source and destination are both %d", ErrConfig, i+1, o.Src)
		case o.Amount < 0:
			return fmt.Errorf("%w: transfer %d: negative amount %d", ErrConfig, i+1, o.Amount)
		}
	}
	if b := TickBudget(n, len(c.Orders())); b >= codec.MaxHistoryLen {
		return fmt.Errorf("%w: %d workers and %d transfers need about %d ticks of history, at most %d fit in a report",
			ErrConfig, n, len(c.Orders()), b+1, codec.MaxHistoryLen)
	}
	switch c.Transport {
	case "", TransportMemory, TransportNATS:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrConfig, c.Transport)
	}
	return nil
}

// Result is the outcome of a completed run.
type Result struct {
	Histories model.AllHistory                  `json:"histories"`
	Balances  map[model.ProcessID]model.Balance `json:"balances"`
	Times     map[model.ProcessID]int64         `json:"times"`
	Acks      int                               `json:"acks"`
}

func newTransport(cfg Config) (transport.Transport, error) {
	n := cfg.Workers()
	switch cfg.Transport {
	case TransportNATS:
		ids := append([]model.ProcessID{model.ParentID}, model.Workers(n)...)
		return transport.NewNATS(cfg.NATS, ids)
	default:
		var opts []transport.MemoryOption
		if cfg.Drop != nil {
			opts = append(opts, transport.WithDrop(cfg.Drop))
		}
		return transport.NewMemory(n, opts...), nil
	}
}

// Run executes the simulation and waits for every process to finish. The
// first process to fail cancels the others; its error is returned.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tr, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	n := cfg.Workers()
	procs := make([]*bank.Process, n+1)
	for id := 0; id <= n; id++ {
		var bal model.Balance
		if id > 0 {
			bal = cfg.Balances[id-1]
		}
		p, err := bank.NewProcess(bank.Config{
			ID:        model.ProcessID(id),
			Workers:   n,
			Balance:   bal,
			Transport: tr,
			Audit:     cfg.Audit,
			Metrics:   cfg.Metrics,
			Warn:      cfg.Warn,
		})
		if err != nil {
			return nil, err
		}
		procs[id] = p
	}

	var all model.AllHistory
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range procs[1:] {
		g.Go(func() error {
			_, err := p.RunWorker(gctx)
			return err
		})
	}
	g.Go(func() error {
		var err error
		all, err = procs[0].RunCoordinator(gctx, cfg.Orders())
		return err
	})
	err = g.Wait()
	if ferr := cfg.Audit.Flush(); err == nil && ferr != nil {
		err = ferr
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		Histories: all,
		Balances:  make(map[model.ProcessID]model.Balance, n+1),
		Times:     make(map[model.ProcessID]int64, n+1),
		Acks:      procs[0].Acks(),
	}
	for _, p := range procs {
		res.Balances[p.ID()] = p.Balance()
		res.Times[p.ID()] = p.Time()
	}
	return res, nil
}

// Align extends every history to the latest tick found in all, carrying
// each final balance forward. The input is not modified.
func Align(all model.AllHistory) model.AllHistory {
	var end int64
	for _, h := range all {
		if t := h.Last().Time; t > end {
			end = t
		}
	}
	out := make(model.AllHistory, len(all))
	for id, h := range all {
		if len(h.States) == 0 || h.Last().Time >= end {
			out[id] = h.Clone()
			continue
		}
		var clk clock.Clock
		l := ledger.New(id, 0, &clk)
		l.ResetTo(h)
		clk.Set(end - 1)
		l.ApplyDelta(0)
		out[id] = l.History()
	}
	return out
}
