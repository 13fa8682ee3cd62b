package bank

import (
	"context"
	"fmt"

	"github.com/daviddao/clockbank/pkg/codec"
	"github.com/daviddao/clockbank/pkg/model"
)

// announce multicasts a Started or Done status line to every other process
// and counts it for p itself.
func (p *Process) announce(ctx context.Context, kind model.MessageType) error {
	s := codec.StatusLine{
		Kind:      kind,
		Time:      p.clock.Value() + 1, // the send below ticks to this value
		ID:        p.id,
		PID:       p.pid,
		ParentPID: p.ppid,
		Balance:   p.ledger.Balance(),
	}
	if _, err := p.send(ctx, kind, s, p.others()...); err != nil {
		return err
	}
	p.tally.Record(kind, p.id)
	if err := p.audit.Status(s); err != nil {
		return fmt.Errorf("process %d: %w", p.id, err)
	}
	return nil
}

// awaitAll dispatches messages until every worker has been seen for kind.
func (p *Process) awaitAll(ctx context.Context, kind model.MessageType) error {
	if err := p.waitUntil(ctx, func() bool { return p.tally.SeenAll(kind, p.workers) }); err != nil {
		return err
	}
	if err := p.audit.ReceivedAll(p.clock.Value(), p.id, kind); err != nil {
		return fmt.Errorf("process %d: %w", p.id, err)
	}
	return nil
}

// RunWorker drives a worker through its whole life:
//
//  1. multicast Started, wait for Started from every worker;
//  2. handle messages (transfers) until Stop arrives;
//  3. multicast Done, wait for Done from every worker;
//  4. close the history gap with ApplyDelta(0) and report it to the
//     coordinator.
//
// It returns the history that was reported.
func (p *Process) RunWorker(ctx context.Context) (model.BalanceHistory, error) {
	if p.id == model.ParentID {
		return model.BalanceHistory{}, fmt.Errorf("process %d: RunWorker on the coordinator", p.id)
	}
	if err := p.announce(ctx, model.Started); err != nil {
		return model.BalanceHistory{}, err
	}
	if err := p.awaitAll(ctx, model.Started); err != nil {
		return model.BalanceHistory{}, err
	}
	if err := p.waitUntil(ctx, func() bool { return p.stopped }); err != nil {
		return model.BalanceHistory{}, err
	}
	if err := p.announce(ctx, model.Done); err != nil {
		return model.BalanceHistory{}, err
	}
	if err := p.awaitAll(ctx, model.Done); err != nil {
		return model.BalanceHistory{}, err
	}
	return p.Report(ctx)
}

// Report flushes the history up to the current time and sends it to the
// coordinator.
func (p *Process) Report(ctx context.Context) (model.BalanceHistory, error) {
	p.ledger.ApplyDelta(0)
	h := p.ledger.History()
	if _, err := p.send(ctx, model.BalanceHistoryMsg, h, model.ParentID); err != nil {
		return model.BalanceHistory{}, err
	}
	return h, nil
}

// RunCoordinator drives the coordinator through a whole run:
//
//  1. wait for Started from every worker;
//  2. execute orders one at a time, each waiting for its ACK;
//  3. multicast Stop to every worker;
//  4. wait for Done from every worker;
//  5. wait until every worker's balance history has arrived.
func (p *Process) RunCoordinator(ctx context.Context, orders []model.TransferOrder) (model.AllHistory, error) {
	if p.id != model.ParentID {
		return nil, fmt.Errorf("process %d: RunCoordinator: %w", p.id, ErrNotCoordinator)
	}
	if err := p.awaitAll(ctx, model.Started); err != nil {
		return nil, err
	}
	for _, o := range orders {
		if err := p.Transfer(ctx, o.Src, o.Dst, o.Amount); err != nil {
			return nil, err
		}
	}
	if _, err := p.send(ctx, model.Stop, nil, p.workers...); err != nil {
		return nil, err
	}
	if err := p.awaitAll(ctx, model.Done); err != nil {
		return nil, err
	}
	if err := p.waitUntil(ctx, p.agg.Complete); err != nil {
		return nil, err
	}
	return p.agg.Histories(), nil
}

// Robbery returns the classic load: each worker i < n sends $i to i+1,
// then worker n sends $1 back to worker 1.
func Robbery(n int) []model.TransferOrder {
	var orders []model.TransferOrder
	for i := 1; i < n; i++ {
		orders = append(orders, model.TransferOrder{
			Src:    model.ProcessID(i),
			Dst:    model.ProcessID(i + 1),
			Amount: model.Balance(i),
		})
	}
	if n > 1 {
		orders = append(orders, model.TransferOrder{Src: model.ProcessID(n), Dst: 1, Amount: 1})
	}
	return orders
}
