package registry_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"exchange-core/src/registry"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return v
}

func TestRegisterAssignsMonotonicIDs(t *testing.T) {
	r := registry.NewRegistry()

	first := r.Register("1", "SPY", registry.SideBuy, dec(t, "10"), dec(t, "100"))
	second := r.Register("1", "SPY", registry.SideSell, dec(t, "5"), dec(t, "101"))

	if first.ID != 1 || second.ID != 2 {
		t.Errorf("Expected ids 1 and 2, got: %d and %d", first.ID, second.ID)
	}

	if _, err := r.Get(first.ID); err != nil {
		t.Errorf("Expected order to be retrievable, got: %v", err)
	}
	if _, err := r.Get(99); !errors.Is(err, registry.ErrUnknownOrder) {
		t.Errorf("Expected ErrUnknownOrder, got: %v", err)
	}
}

func TestConcurrentRegisterIDsUnique(t *testing.T) {
	r := registry.NewRegistry()

	numGoroutines := 50
	perGoroutine := 20

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				o := r.Register("1", "X", registry.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(1))
				mu.Lock()
				if seen[o.ID] {
					t.Errorf("Duplicate order id assigned: %d", o.ID)
				}
				seen[o.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != numGoroutines*perGoroutine {
		t.Errorf("Expected %d unique ids, got: %d", numGoroutines*perGoroutine, len(seen))
	}
}

func TestApplyFillConservation(t *testing.T) {
	r := registry.NewRegistry()
	o := r.Register("1", "SPY", registry.SideBuy, dec(t, "100"), dec(t, "50"))

	if err := o.ApplyFill(dec(t, "40"), dec(t, "49"), 1000); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !o.Open().Equal(dec(t, "60")) {
		t.Errorf("Expected open 60, got: %s", o.Open())
	}

	// edge case: a fill larger than the remainder is an invariant violation
	if err := o.ApplyFill(dec(t, "61"), dec(t, "49"), 1001); !errors.Is(err, registry.ErrOverfill) {
		t.Errorf("Expected ErrOverfill, got: %v", err)
	}

	st := o.Snapshot()
	total := st.Open
	for _, fill := range st.Fills {
		total = total.Add(fill.Shares)
	}
	if !total.Equal(st.Original) {
		t.Errorf("Conservation violated: open + fills = %s, original = %s", total, st.Original)
	}
}

func TestApplyCancel(t *testing.T) {
	r := registry.NewRegistry()
	o := r.Register("1", "SPY", registry.SideSell, dec(t, "100"), dec(t, "50"))

	_ = o.ApplyFill(dec(t, "30"), dec(t, "50"), 1000)

	rec, err := o.ApplyCancel(2000)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !rec.Shares.Equal(dec(t, "70")) {
		t.Errorf("Expected 70 shares canceled, got: %s", rec.Shares)
	}
	if rec.Time != 2000 {
		t.Errorf("Expected cancel time 2000, got: %d", rec.Time)
	}

	if o.IsOpen() {
		t.Error("Expected order to be closed after cancel")
	}

	// Cancellation is permanent; a second cancel reports not open.
	if _, err := o.ApplyCancel(3000); !errors.Is(err, registry.ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen, got: %v", err)
	}

	st := o.Snapshot()
	total := st.Open.Add(st.Cancel.Shares)
	for _, fill := range st.Fills {
		total = total.Add(fill.Shares)
	}
	if !total.Equal(st.Original) {
		t.Errorf("Conservation violated: open + fills + canceled = %s, original = %s", total, st.Original)
	}
}

func TestCancelFullyExecutedOrder(t *testing.T) {
	r := registry.NewRegistry()
	o := r.Register("1", "SPY", registry.SideBuy, dec(t, "10"), dec(t, "50"))

	_ = o.ApplyFill(dec(t, "10"), dec(t, "50"), 1000)

	if _, err := o.ApplyCancel(2000); !errors.Is(err, registry.ErrNotOpen) {
		t.Errorf("Expected ErrNotOpen for fully executed order, got: %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	r := registry.NewRegistry()
	o := r.Register("1", "SPY", registry.SideBuy, dec(t, "10"), dec(t, "50"))

	st := o.Snapshot()
	_ = o.ApplyFill(dec(t, "10"), dec(t, "50"), 1000)

	if !st.Open.Equal(dec(t, "10")) {
		t.Errorf("Snapshot mutated by later fill: open = %s", st.Open)
	}
	if len(st.Fills) != 0 {
		t.Errorf("Snapshot mutated by later fill: %d fills", len(st.Fills))
	}
}
