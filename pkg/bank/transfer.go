package bank

import (
	"context"
	"fmt"

	"github.com/daviddao/clockbank/pkg/model"
)

// Transfer moves amount from src to dst and blocks until the destination's
// ACK arrives. While it waits, every other incoming message is dispatched
// normally. There is no timeout: if the ACK never comes, Transfer only
// returns when ctx is cancelled by the caller.
//
// Only the coordinator may call Transfer, and only one transfer may be in
// flight at a time.
func (p *Process) Transfer(ctx context.Context, src, dst model.ProcessID, amount model.Balance) error {
	if p.id != model.ParentID {
		return fmt.Errorf("process %d: transfer: %w", p.id, ErrNotCoordinator)
	}
	if p.awaitingAck {
		return fmt.Errorf("process %d: transfer %d->%d: %w", p.id, src, dst, ErrTransferInFlight)
	}
	order := model.TransferOrder{Src: src, Dst: dst, Amount: amount}
	if _, err := p.send(ctx, model.Transfer, order, src); err != nil {
		return err
	}
	p.awaitingAck = true
	return p.waitUntil(ctx, func() bool { return !p.awaitingAck })
}

// AwaitingAck reports whether a transfer is waiting for its ACK.
func (p *Process) AwaitingAck() bool { return p.awaitingAck }

// handleTransfer runs the source and destination sides of the protocol.
// Both checks apply to the same order: for a self-transfer one message
// debits, forwards a copy to the process itself, credits and ACKs.
func (p *Process) handleTransfer(ctx context.Context, order model.TransferOrder) error {
	if p.id == order.Src {
		ts := p.ledger.ApplyDelta(-order.Amount)
		p.metrics.RecordDebit()
		if p.stopped {
			// A stopped source keeps the debit but never forwards, so the
			// coordinator's ACK wait will not be satisfied.
			fmt.Fprintf(p.warn, "clockbank: process %d is stopped; transfer of $%d to process %d not forwarded\n",
				p.id, order.Amount, order.Dst)
		} else {
			if err := p.audit.TransferOut(ts, p.id, order.Amount, order.Dst); err != nil {
				return fmt.Errorf("process %d: %w", p.id, err)
			}
			if _, err := p.send(ctx, model.Transfer, order, order.Dst); err != nil {
				return err
			}
		}
	}
	if p.id == order.Dst {
		ts := p.ledger.ApplyDelta(order.Amount)
		p.metrics.RecordCredit()
		if err := p.audit.TransferIn(ts, p.id, order.Amount, order.Src); err != nil {
			return fmt.Errorf("process %d: %w", p.id, err)
		}
		if _, err := p.send(ctx, model.Ack, nil, model.ParentID); err != nil {
			return err
		}
	}
	return nil
}
