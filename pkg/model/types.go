// Package model defines the core domain types for clockbank.
//
// Clockbank simulates a coordinator and a set of worker processes that move
// money between each other by message passing:
//
//   - Every process keeps a Lamport clock (1978). Messages carry the sender's
//     timestamp; on receipt the clock advances to max(own, received) + 1.
//
//   - Every worker keeps a balance history with one entry per logical tick.
//     Because histories are dense, the coordinator can line them up tick by
//     tick and read off a consistent snapshot of all balances at any time.
package model

import (
	"sort"
	"time"
)

// ProcessID identifies a process. The coordinator is always ParentID and
// workers are numbered 1..N.
type ProcessID uint8

// ParentID is the coordinator's process id.
const ParentID ProcessID = 0

// MaxProcesses bounds the number of processes (coordinator included) so that
// ids fit into a single byte on the wire.
const MaxProcesses = 256

// Balance is an amount of money in whole units.
type Balance int64

// BalanceState is one ledger entry: the balance held at logical time Time.
type BalanceState struct {
	Balance Balance `json:"balance"`
	Time    int64   `json:"time"`
}

// BalanceHistory is the dense, zero-indexed sequence of a process's balance
// states: States[i].Time == i for every i.
type BalanceHistory struct {
	ID     ProcessID      `json:"id"`
	States []BalanceState `json:"states"`
}

// Last returns the most recent state. The zero value is returned for an
// empty history.
func (h BalanceHistory) Last() BalanceState {
	if len(h.States) == 0 {
		return BalanceState{}
	}
	return h.States[len(h.States)-1]
}

// Dense reports whether every entry sits at the tick equal to its index.
func (h BalanceHistory) Dense() bool {
	for i, s := range h.States {
		if s.Time != int64(i) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of h.
func (h BalanceHistory) Clone() BalanceHistory {
	states := make([]BalanceState, len(h.States))
	copy(states, h.States)
	return BalanceHistory{ID: h.ID, States: states}
}

// TransferOrder moves Amount from Src to Dst.
type TransferOrder struct {
	Src    ProcessID `json:"src"`
	Dst    ProcessID `json:"dst"`
	Amount Balance   `json:"amount"`
}

// AllHistory is the coordinator's view of every worker's final history.
type AllHistory map[ProcessID]BalanceHistory

// Complete reports whether a history is present for each of workers 1..n.
func (a AllHistory) Complete(n int) bool {
	for id := 1; id <= n; id++ {
		if _, ok := a[ProcessID(id)]; !ok {
			return false
		}
	}
	return true
}

// IDs returns the process ids present in a, in ascending order.
func (a AllHistory) IDs() []ProcessID {
	ids := make([]ProcessID, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MessageType enumerates the closed set of protocol messages.
type MessageType uint16

const (
	Started MessageType = iota
	Done
	Ack
	Stop
	Transfer
	BalanceHistoryMsg
)

// Valid reports whether t belongs to the protocol.
func (t MessageType) Valid() bool { return t <= BalanceHistoryMsg }

func (t MessageType) String() string {
	switch t {
	case Started:
		return "STARTED"
	case Done:
		return "DONE"
	case Ack:
		return "ACK"
	case Stop:
		return "STOP"
	case Transfer:
		return "TRANSFER"
	case BalanceHistoryMsg:
		return "BALANCE_HISTORY"
	default:
		return "UNKNOWN"
	}
}

// Workers returns the ids 1..n.
func Workers(n int) []ProcessID {
	ids := make([]ProcessID, n)
	for i := range ids {
		ids[i] = ProcessID(i + 1)
	}
	return ids
}

// EventKind enumerates the audit log entries a process emits.
type EventKind string

const (
	EventStarted            EventKind = "started"
	EventDone               EventKind = "done"
	EventTransferOut        EventKind = "transfer_out"
	EventTransferIn         EventKind = "transfer_in"
	EventReceivedAllStarted EventKind = "received_all_started"
	EventReceivedAllDone    EventKind = "received_all_done"
)

// Event is a single line of a run's audit log.
type Event struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	ProcessID ProcessID `json:"process_id"`
	LamportTS int64     `json:"lamport_ts"`
	Kind      EventKind `json:"kind"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Run describes one stored simulation.
type Run struct {
	ID        string    `json:"id"`
	Workers   int       `json:"workers"`
	Transport string    `json:"transport"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
