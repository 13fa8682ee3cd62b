// Package ledger keeps a process's balance and its dense balance history.
//
// The history has exactly one entry per logical tick from 0 to the time of
// the last recorded transaction. Ticks at which nothing happened carry the
// previous balance forward, so two processes' histories can be lined up
// index by index when the coordinator rebuilds a global snapshot.
//
// A Ledger is owned by a single process and is not goroutine-safe.
package ledger

import (
	"github.com/daviddao/clockbank/pkg/clock"
	"github.com/daviddao/clockbank/pkg/model"
)

// Ledger is the balance bookkeeping of one process.
type Ledger struct {
	clk     *clock.Clock
	id      model.ProcessID
	history []model.BalanceState
}

// New creates a ledger holding initial at the clock's current time. At
// process start that is time 0.
func New(id model.ProcessID, initial model.Balance, clk *clock.Clock) *Ledger {
	return &Ledger{
		clk: clk,
		id:  id,
		history: []model.BalanceState{
			{Balance: initial, Time: clk.Value()},
		},
	}
}

// Balance returns the latest applied balance.
func (l *Ledger) Balance() model.Balance {
	return l.history[len(l.history)-1].Balance
}

// Len returns the number of history entries.
func (l *Ledger) Len() int { return len(l.history) }

// History returns a copy of the balance history.
func (l *Ledger) History() model.BalanceHistory {
	states := make([]model.BalanceState, len(l.history))
	copy(states, l.history)
	return model.BalanceHistory{ID: l.id, States: states}
}

// ApplyDelta ticks the clock and records balance+amount at the new time,
// first filling every skipped tick with the unchanged balance. Returns the
// time of the new entry.
//
// ApplyDelta(0) only densifies: it closes the gap up to the current time
// without changing the balance.
func (l *Ledger) ApplyDelta(amount model.Balance) int64 {
	now := l.clk.Tick()
	last := l.history[len(l.history)-1]
	for t := last.Time + 1; t < now; t++ {
		l.history = append(l.history, model.BalanceState{Balance: last.Balance, Time: t})
	}
	if now <= last.Time {
		// The clock was rewound below the history (only after ResetTo).
		l.history[len(l.history)-1].Balance += amount
		return last.Time
	}
	l.history = append(l.history, model.BalanceState{Balance: last.Balance + amount, Time: now})
	return now
}

// ResetTo replaces the ledger's contents with a copy of h. An empty h
// leaves the ledger unchanged.
func (l *Ledger) ResetTo(h model.BalanceHistory) {
	if len(h.States) == 0 {
		return
	}
	l.id = h.ID
	l.history = make([]model.BalanceState, len(h.States))
	copy(l.history, h.States)
}
