package bank

import "github.com/daviddao/clockbank/pkg/model"

// Tally counts, per message type, how many messages each process has been
// seen to send. A process owns its own Tally; nothing is shared.
type Tally struct {
	counts map[model.MessageType]map[model.ProcessID]int
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[model.MessageType]map[model.ProcessID]int)}
}

// Record counts one message of type t from id.
func (t *Tally) Record(typ model.MessageType, id model.ProcessID) {
	byID, ok := t.counts[typ]
	if !ok {
		byID = make(map[model.ProcessID]int)
		t.counts[typ] = byID
	}
	byID[id]++
}

// Count returns how many messages of type typ came from id.
func (t *Tally) Count(typ model.MessageType, id model.ProcessID) int {
	return t.counts[typ][id]
}

// Seen reports whether at least one message of type typ came from id.
func (t *Tally) Seen(typ model.MessageType, id model.ProcessID) bool {
	return t.Count(typ, id) > 0
}

// SeenAll reports whether every id in ids has been seen for typ.
func (t *Tally) SeenAll(typ model.MessageType, ids []model.ProcessID) bool {
	for _, id := range ids {
		if !t.Seen(typ, id) {
			return false
		}
	}
	return true
}

// Distinct returns the number of distinct processes seen for typ.
func (t *Tally) Distinct(typ model.MessageType) int {
	return len(t.counts[typ])
}
