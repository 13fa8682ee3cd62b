package model

import "testing"

func TestBalanceHistory_Dense(t *testing.T) {
	cases := []struct {
		name   string
		states []BalanceState
		expect bool
	}{
		{"empty", nil, true},
		{"single", []BalanceState{{Balance: 10, Time: 0}}, true},
		{"contiguous", []BalanceState{{10, 0}, {10, 1}, {7, 2}}, true},
		{"gap", []BalanceState{{10, 0}, {7, 2}}, false},
		{"not zero based", []BalanceState{{10, 1}, {10, 2}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := BalanceHistory{ID: 1, States: tc.states}
			if got := h.Dense(); got != tc.expect {
				t.Fatalf("Dense() = %v, want %v", got, tc.expect)
			}
		})
	}
}

func TestBalanceHistory_LastEmpty(t *testing.T) {
	var h BalanceHistory
	if got := h.Last(); got != (BalanceState{}) {
		t.Fatalf("Last() on empty history = %+v, want zero", got)
	}
}

func TestBalanceHistory_CloneIsDeep(t *testing.T) {
	h := BalanceHistory{ID: 2, States: []BalanceState{{5, 0}}}
	c := h.Clone()
	c.States[0].Balance = 99
	if h.States[0].Balance != 5 {
		t.Fatal("Clone shares backing array with the original")
	}
}

func TestAllHistory_Complete(t *testing.T) {
	a := AllHistory{}
	if !a.Complete(0) {
		t.Fatal("no workers: should be complete")
	}
	a[2] = BalanceHistory{ID: 2}
	if a.Complete(2) {
		t.Fatal("missing worker 1: should not be complete")
	}
	a[1] = BalanceHistory{ID: 1}
	if !a.Complete(2) {
		t.Fatal("workers 1 and 2 present: should be complete")
	}
}

func TestAllHistory_IDsSorted(t *testing.T) {
	a := AllHistory{3: {}, 1: {}, 2: {}}
	ids := a.IDs()
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("IDs() = %v, want [1 2 3]", ids)
	}
}

func TestMessageType_String(t *testing.T) {
	if BalanceHistoryMsg.String() != "BALANCE_HISTORY" {
		t.Fatalf("got %q", BalanceHistoryMsg.String())
	}
	if MessageType(42).Valid() {
		t.Fatal("42 should not be a valid message type")
	}
	if MessageType(42).String() != "UNKNOWN" {
		t.Fatalf("got %q", MessageType(42).String())
	}
}

func TestWorkers(t *testing.T) {
	ids := Workers(3)
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("Workers(3) = %v", ids)
	}
}
