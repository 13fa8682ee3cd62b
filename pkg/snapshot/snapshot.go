// Package snapshot turns the balance histories collected by the coordinator
// into a global view: one row per Lamport tick with every process's balance
// at that tick.
//
// Because each history is dense (entry i is the balance at time i), the row
// for tick t is a consistent cut: it reflects every event with timestamp <= t.
// Money that has left a source but not yet reached its destination shows up
// as a temporary dip in the row total.
package snapshot

import (
	"fmt"
	"io"
	"strings"

	"github.com/daviddao/clockbank/pkg/model"
)

// Row is the state of every process at one tick.
type Row struct {
	Time     int64           `json:"time"`
	Balances []model.Balance `json:"balances"` // ordered like Table.IDs
	Total    model.Balance   `json:"total"`
}

// Table is the per-tick view of a run.
type Table struct {
	IDs  []model.ProcessID `json:"ids"`
	Rows []Row             `json:"rows"`
}

// Compute builds the table for all. Histories shorter than the longest one
// keep their last balance for the remaining ticks.
func Compute(all model.AllHistory) Table {
	t := Table{IDs: all.IDs()}
	var end int64 = -1
	for _, id := range t.IDs {
		if last := int64(len(all[id].States)) - 1; last > end {
			end = last
		}
	}
	for tick := int64(0); tick <= end; tick++ {
		r := Row{Time: tick, Balances: make([]model.Balance, len(t.IDs))}
		for i, id := range t.IDs {
			r.Balances[i] = balanceAt(all[id], tick)
			r.Total += r.Balances[i]
		}
		t.Rows = append(t.Rows, r)
	}
	return t
}

func balanceAt(h model.BalanceHistory, tick int64) model.Balance {
	if len(h.States) == 0 {
		return 0
	}
	if tick >= int64(len(h.States)) {
		return h.Last().Balance
	}
	return h.States[tick].Balance
}

// Initial returns the total at tick 0, or 0 for an empty table.
func (t Table) Initial() model.Balance {
	if len(t.Rows) == 0 {
		return 0
	}
	return t.Rows[0].Total
}

// Final returns the total at the last tick, or 0 for an empty table.
func (t Table) Final() model.Balance {
	if len(t.Rows) == 0 {
		return 0
	}
	return t.Rows[len(t.Rows)-1].Total
}

// Conserved reports whether the run ended with the money it started with.
func (t Table) Conserved() bool { return t.Initial() == t.Final() }

// InFlight returns the ticks at which some money had been debited but not
// yet credited, with the amount in transit.
func (t Table) InFlight() map[int64]model.Balance {
	out := map[int64]model.Balance{}
	start := t.Initial()
	for _, r := range t.Rows {
		if d := start - r.Total; d != 0 {
			out[r.Time] = d
		}
	}
	return out
}

// Render writes the table as fixed-width text.
func (t Table) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%6s", "t"))
	for _, id := range t.IDs {
		b.WriteString(fmt.Sprintf(" %8s", fmt.Sprintf("p%d", id)))
	}
	b.WriteString(fmt.Sprintf(" %8s\n", "total"))
	for _, r := range t.Rows {
		b.WriteString(fmt.Sprintf("%6d", r.Time))
		for _, v := range r.Balances {
			b.WriteString(fmt.Sprintf(" %8d", v))
		}
		b.WriteString(fmt.Sprintf(" %8d", r.Total))
		if d := t.Initial() - r.Total; d != 0 {
			b.WriteString(fmt.Sprintf("  ($%d in flight)", d))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
