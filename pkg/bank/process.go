// Package bank implements the clockbank processes: workers that hold a
// balance and apply transfers, and the coordinator that issues transfers
// and collects every worker's balance history.
//
// A Process is a sequential actor. It owns its Lamport clock, ledger and
// tally; the only way to affect another process is to send it a message.
// Each received message is fully handled (clock observed, ledger updated,
// replies sent) before the next one is read.
package bank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/daviddao/clockbank/pkg/clock"
	"github.com/daviddao/clockbank/pkg/codec"
	"github.com/daviddao/clockbank/pkg/ledger"
	"github.com/daviddao/clockbank/pkg/metrics"
	"github.com/daviddao/clockbank/pkg/model"
	"github.com/daviddao/clockbank/pkg/transport"
)

var (
	// ErrTransferInFlight is returned when the coordinator is asked to start
	// a transfer while another one is still waiting for its ACK.
	ErrTransferInFlight = errors.New("a transfer is already in flight")

	// ErrNotCoordinator is returned when a worker calls a coordinator-only
	// operation.
	ErrNotCoordinator = errors.New("operation is reserved to the coordinator")
)

// Config describes one process.
type Config struct {
	ID        model.ProcessID
	Workers   int           // number of worker processes, ids 1..Workers
	Balance   model.Balance // initial balance (ignored for the coordinator)
	Transport transport.Transport
	Audit     *Auditor
	Metrics   *metrics.Metrics
	Warn      io.Writer // operational warnings; defaults to os.Stderr
	PID       int       // reported in Started lines; defaults to os.Getpid()
	ParentPID int       // reported in Started lines; defaults to os.Getppid()
}

// Process is one coordinator or worker.
type Process struct {
	id      model.ProcessID
	workers []model.ProcessID
	tr      transport.Transport
	audit   *Auditor
	metrics *metrics.Metrics
	warn    io.Writer
	pid     int
	ppid    int

	clock  clock.Clock
	ledger *ledger.Ledger
	tally  *Tally
	agg    *Aggregator

	stopped     bool
	awaitingAck bool
	acks        int
}

// NewProcess creates a process at logical time 0.
func NewProcess(cfg Config) (*Process, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("process %d: no transport", cfg.ID)
	}
	if cfg.Workers < 1 || cfg.Workers >= model.MaxProcesses {
		return nil, fmt.Errorf("process %d: %d workers, want 1..%d", cfg.ID, cfg.Workers, model.MaxProcesses-1)
	}
	if int(cfg.ID) > cfg.Workers {
		return nil, fmt.Errorf("process %d: id outside 0..%d", cfg.ID, cfg.Workers)
	}
	p := &Process{
		id:      cfg.ID,
		workers: model.Workers(cfg.Workers),
		tr:      cfg.Transport,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		warn:    cfg.Warn,
		pid:     cfg.PID,
		ppid:    cfg.ParentPID,
		tally:   NewTally(),
		agg:     NewAggregator(cfg.Workers),
	}
	if p.warn == nil {
		p.warn = os.Stderr
	}
	if p.pid == 0 {
		p.pid = os.Getpid()
	}
	if p.ppid == 0 {
		p.ppid = os.Getppid()
	}
	initial := cfg.Balance
	if cfg.ID == model.ParentID {
		initial = 0
	}
	p.ledger = ledger.New(cfg.ID, initial, &p.clock)
	return p, nil
}

// ID returns the process id.
func (p *Process) ID() model.ProcessID { return p.id }

// Time returns the current Lamport time.
func (p *Process) Time() int64 { return p.clock.Value() }

// Balance returns the current balance.
func (p *Process) Balance() model.Balance { return p.ledger.Balance() }

// History returns a copy of the process's balance history.
func (p *Process) History() model.BalanceHistory { return p.ledger.History() }

// Stopped reports whether a Stop message has been received.
func (p *Process) Stopped() bool { return p.stopped }

// Acks returns how many ACK messages the process has handled.
func (p *Process) Acks() int { return p.acks }

// Tally returns the process's message tally.
func (p *Process) Tally() *Tally { return p.tally }

// Histories returns the balance histories reported to this process so far.
func (p *Process) Histories() model.AllHistory { return p.agg.Histories() }

// send ticks the clock and delivers one message of type t to each target.
// A multicast is a single send event: every copy carries the same time.
func (p *Process) send(ctx context.Context, t model.MessageType, payload codec.Payload, to ...model.ProcessID) (int64, error) {
	ts := p.clock.Tick()
	msg, err := codec.New(t, ts, payload)
	if err != nil {
		return ts, fmt.Errorf("process %d: build %s: %w", p.id, t, err)
	}
	for _, dst := range to {
		if err := p.tr.Send(ctx, p.id, dst, msg); err != nil {
			return ts, fmt.Errorf("process %d: send %s to %d: %w", p.id, t, dst, err)
		}
	}
	p.metrics.RecordSend(p.id, t, ts)
	return ts, nil
}

// others returns every process id except p's own, coordinator included.
func (p *Process) others() []model.ProcessID {
	ids := make([]model.ProcessID, 0, len(p.workers))
	for _, id := range append([]model.ProcessID{model.ParentID}, p.workers...) {
		if id != p.id {
			ids = append(ids, id)
		}
	}
	return ids
}

// Step receives the next message addressed to p and handles it.
func (p *Process) Step(ctx context.Context) error {
	from, msg, err := p.tr.ReceiveAny(ctx, p.id)
	if err != nil {
		return fmt.Errorf("process %d: receive: %w", p.id, err)
	}
	return p.Handle(ctx, from, msg)
}

// Handle applies the Lamport receive rule and dispatches msg on its type.
func (p *Process) Handle(ctx context.Context, from model.ProcessID, msg *codec.Message) error {
	ts := p.clock.Receive(msg.Time())
	p.metrics.RecordReceive(p.id, msg.Type(), ts)

	switch msg.Type() {
	case model.Started, model.Done:
		s, err := msg.Status()
		if err != nil {
			return fmt.Errorf("process %d: %s from %d: %w", p.id, msg.Type(), from, err)
		}
		p.tally.Record(msg.Type(), s.ID)
	case model.Stop:
		p.stopped = true
	case model.Transfer:
		order, err := msg.Order()
		if err != nil {
			return fmt.Errorf("process %d: transfer from %d: %w", p.id, from, err)
		}
		return p.handleTransfer(ctx, order)
	case model.Ack:
		p.awaitingAck = false
		p.acks++
	case model.BalanceHistoryMsg:
		h, err := msg.History()
		if err != nil {
			return fmt.Errorf("process %d: history from %d: %w", p.id, from, err)
		}
		p.agg.Record(h)
		p.tally.Record(model.BalanceHistoryMsg, h.ID)
		p.metrics.RecordHistory()
	default:
		return fmt.Errorf("process %d: %w: %d", p.id, codec.ErrUnknownMessageType, msg.Type())
	}
	return nil
}

// waitUntil keeps receiving and dispatching messages until done holds.
// There is no timeout: only the caller's context can end the wait early.
func (p *Process) waitUntil(ctx context.Context, done func() bool) error {
	for !done() {
		if err := p.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}
