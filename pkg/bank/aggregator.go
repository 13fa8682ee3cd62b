package bank

import "github.com/daviddao/clockbank/pkg/model"

// Aggregator collects the final balance history of every worker on the
// coordinator. A later report for the same worker replaces the earlier one.
type Aggregator struct {
	workers int
	all     model.AllHistory
}

// NewAggregator expects reports from workers 1..workers.
func NewAggregator(workers int) *Aggregator {
	return &Aggregator{workers: workers, all: make(model.AllHistory, workers)}
}

// Record stores a copy of h under h.ID.
func (a *Aggregator) Record(h model.BalanceHistory) {
	a.all[h.ID] = h.Clone()
}

// Get returns the stored history for id.
func (a *Aggregator) Get(id model.ProcessID) (model.BalanceHistory, bool) {
	h, ok := a.all[id]
	return h, ok
}

// Len returns the number of workers that have reported.
func (a *Aggregator) Len() int { return len(a.all) }

// Complete reports whether every configured worker has reported.
func (a *Aggregator) Complete() bool { return a.all.Complete(a.workers) }

// Histories returns a deep copy of everything recorded so far.
func (a *Aggregator) Histories() model.AllHistory {
	out := make(model.AllHistory, len(a.all))
	for id, h := range a.all {
		out[id] = h.Clone()
	}
	return out
}
