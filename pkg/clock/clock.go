// Package clock implements a Lamport logical clock.
//
// From Lamport (1978), two implementation rules govern the clock:
//
//	IR1 (local event): Before sending a message or recording a ledger
//	     entry, increment the clock.
//	IR2 (message receipt): On receiving a message with timestamp t,
//	     set the clock to max(own, t) + 1.
//
// TotalOrderLess breaks ties deterministically using process ids, giving
// every reader the same ordering of events without coordination.
//
// Note: Clock is not goroutine-safe. Each process owns exactly one Clock
// and only its own sequential message loop touches it.
package clock

import "github.com/daviddao/clockbank/pkg/model"

// Clock is a Lamport logical clock. The zero value starts at time 0.
type Clock struct {
	ts int64
}

// Tick implements IR1. Returns the new timestamp.
func (c *Clock) Tick() int64 {
	c.ts++
	return c.ts
}

// Receive implements IR2: set the clock to max(own, received) + 1.
// Returns the new timestamp, which is always greater than both inputs.
func (c *Clock) Receive(received int64) int64 {
	if received > c.ts {
		c.ts = received
	}
	c.ts++
	return c.ts
}

// Value returns the current clock value without advancing it.
func (c *Clock) Value() int64 { return c.ts }

// Set initializes the clock to a specific value.
func (c *Clock) Set(v int64) { c.ts = v }

// TotalOrderLess defines a deterministic total order over events.
// Event A (tsA, idA) is "less" than event B if:
//
//	tsA < tsB, or
//	tsA == tsB and idA < idB
func TotalOrderLess(tsA int64, idA model.ProcessID, tsB int64, idB model.ProcessID) bool {
	if tsA != tsB {
		return tsA < tsB
	}
	return idA < idB
}
