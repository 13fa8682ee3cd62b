package clock

import (
	"math/rand"
	"testing"

	"github.com/daviddao/clockbank/pkg/model"
)

func TestTickMonotonicallyIncreases(t *testing.T) {
	var c Clock
	prev := c.Value()
	for i := 0; i < 100; i++ {
		ts := c.Tick()
		if ts <= prev {
			t.Fatalf("Tick %d: got %d, want > %d", i, ts, prev)
		}
		prev = ts
	}
}

func TestTickStartsFromZero(t *testing.T) {
	var c Clock
	if v := c.Value(); v != 0 {
		t.Fatalf("new clock: got %d, want 0", v)
	}
	if ts := c.Tick(); ts != 1 {
		t.Fatalf("first Tick: got %d, want 1", ts)
	}
}

func TestReceiveMaxPlusOne(t *testing.T) {
	var c Clock
	c.Set(5)

	// max(5, 10)+1 = 11
	if ts := c.Receive(10); ts != 11 {
		t.Fatalf("Receive(10) from 5: got %d, want 11", ts)
	}
	// max(11, 3)+1 = 12
	if ts := c.Receive(3); ts != 12 {
		t.Fatalf("Receive(3) from 11: got %d, want 12", ts)
	}
}

func TestReceiveEqualTimestamp(t *testing.T) {
	var c Clock
	c.Set(10)
	if ts := c.Receive(10); ts != 11 {
		t.Fatalf("Receive(10) from 10: got %d, want 11", ts)
	}
}

// Any interleaving of sends and receives yields strictly increasing times,
// and a receive never lowers the clock below the observed timestamp.
func TestMixedSequenceStrictlyIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var c Clock
	prev := c.Value()
	for i := 0; i < 1000; i++ {
		var ts int64
		if rng.Intn(2) == 0 {
			ts = c.Tick()
		} else {
			remote := rng.Int63n(2000)
			ts = c.Receive(remote)
			if ts <= remote {
				t.Fatalf("step %d: Receive(%d) = %d, want > remote", i, remote, ts)
			}
		}
		if ts <= prev {
			t.Fatalf("step %d: got %d, want > %d", i, ts, prev)
		}
		prev = ts
	}
}

func TestSetThenTick(t *testing.T) {
	var c Clock
	c.Set(100)
	if ts := c.Tick(); ts != 101 {
		t.Fatalf("Tick after Set(100): got %d, want 101", ts)
	}
}

func TestTotalOrderLess(t *testing.T) {
	cases := []struct {
		name     string
		tsA, tsB int64
		idA, idB model.ProcessID
		expect   bool
	}{
		{"earlier timestamp wins", 1, 2, 2, 1, true},
		{"later timestamp loses", 2, 1, 1, 2, false},
		{"tie broken by id", 5, 5, 1, 2, true},
		{"tie broken by id, reversed", 5, 5, 2, 1, false},
		{"identical is not less", 5, 5, 1, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TotalOrderLess(tc.tsA, tc.idA, tc.tsB, tc.idB)
			if got != tc.expect {
				t.Fatalf("TotalOrderLess = %v, want %v", got, tc.expect)
			}
		})
	}
}
