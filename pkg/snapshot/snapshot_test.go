package snapshot

import (
	"bytes"
	"strings"
	"testing"

	"github.com/daviddao/clockbank/pkg/model"
)

func hist(id model.ProcessID, balances ...model.Balance) model.BalanceHistory {
	h := model.BalanceHistory{ID: id}
	for i, b := range balances {
		h.States = append(h.States, model.BalanceState{Balance: b, Time: int64(i)})
	}
	return h
}

func TestCompute_Empty(t *testing.T) {
	tab := Compute(model.AllHistory{})
	if len(tab.Rows) != 0 || len(tab.IDs) != 0 {
		t.Fatalf("empty input: got %+v", tab)
	}
	if !tab.Conserved() {
		t.Fatal("empty table should be conserved")
	}
}

func TestCompute_TransferInFlight(t *testing.T) {
	// p1 debits 30 at tick 2, p2 credits it at tick 3.
	all := model.AllHistory{
		1: hist(1, 100, 100, 70, 70),
		2: hist(2, 50, 50, 50, 80),
	}
	tab := Compute(all)
	if len(tab.Rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(tab.Rows))
	}
	wantTotals := []model.Balance{150, 150, 120, 150}
	for i, r := range tab.Rows {
		if r.Time != int64(i) {
			t.Errorf("row %d time = %d", i, r.Time)
		}
		if r.Total != wantTotals[i] {
			t.Errorf("row %d total = %d, want %d", i, r.Total, wantTotals[i])
		}
	}
	if !tab.Conserved() {
		t.Fatal("transfer should conserve the total")
	}
	fl := tab.InFlight()
	if len(fl) != 1 || fl[2] != 30 {
		t.Fatalf("InFlight = %v, want {2:30}", fl)
	}
}

func TestCompute_CarriesShortHistories(t *testing.T) {
	all := model.AllHistory{
		1: hist(1, 10, 7),
		2: hist(2, 5, 5, 5, 8),
	}
	tab := Compute(all)
	if len(tab.Rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(tab.Rows))
	}
	last := tab.Rows[3]
	if last.Balances[0] != 7 || last.Balances[1] != 8 {
		t.Fatalf("last row = %v, want [7 8]", last.Balances)
	}
}

func TestCompute_IDsSorted(t *testing.T) {
	all := model.AllHistory{
		3: hist(3, 1),
		1: hist(1, 2),
		2: hist(2, 3),
	}
	tab := Compute(all)
	for i, id := range []model.ProcessID{1, 2, 3} {
		if tab.IDs[i] != id {
			t.Fatalf("IDs = %v", tab.IDs)
		}
	}
	if got := tab.Rows[0].Balances; got[0] != 2 || got[1] != 3 || got[2] != 1 {
		t.Fatalf("row 0 = %v, want [2 3 1]", got)
	}
}

func TestConserved_Leak(t *testing.T) {
	// Debited at a stopped source and never forwarded.
	all := model.AllHistory{
		1: hist(1, 10, 10, 4),
		2: hist(2, 10, 10, 10),
	}
	tab := Compute(all)
	if tab.Conserved() {
		t.Fatal("a lost debit should not be conserved")
	}
	if tab.Initial() != 20 || tab.Final() != 14 {
		t.Fatalf("initial/final = %d/%d, want 20/14", tab.Initial(), tab.Final())
	}
}

func TestRender(t *testing.T) {
	tab := Compute(model.AllHistory{
		1: hist(1, 100, 70),
		2: hist(2, 50, 50, 80),
	})
	var buf bytes.Buffer
	if err := tab.Render(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3 rows:\n%s", len(lines), buf.String())
	}
	for _, col := range []string{"t", "p1", "p2", "total"} {
		if !strings.Contains(lines[0], col) {
			t.Errorf("header %q missing %q", lines[0], col)
		}
	}
	if !strings.Contains(lines[2], "($30 in flight)") {
		t.Errorf("tick 1 should show money in flight: %q", lines[2])
	}
	if strings.Contains(lines[3], "in flight") {
		t.Errorf("tick 2 should be settled: %q", lines[3])
	}
}
