package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"exchange-core/src/registry"
)

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return v
}

func newBookOrder(t *testing.T, r *registry.Registry, side registry.Side, amount, limit string, createdAt int64) *registry.Order {
	t.Helper()
	o := r.Register("1", "X", side, d(t, amount), d(t, limit))
	o.CreatedAt = createdAt
	return o
}

func TestBestBidIsHighestPrice(t *testing.T) {
	r := registry.NewRegistry()
	b := newBook("X")

	low := newBookOrder(t, r, registry.SideBuy, "10", "125", 1)
	high := newBookOrder(t, r, registry.SideBuy, "10", "127", 2)
	mid := newBookOrder(t, r, registry.SideBuy, "10", "126", 3)
	b.insert(low)
	b.insert(high)
	b.insert(mid)

	sell := newBookOrder(t, r, registry.SideSell, "10", "100", 4)
	if got := b.bestContra(sell); got != high {
		t.Errorf("Expected best bid %d (limit 127), got: %d (limit %s)", high.ID, got.ID, got.Limit)
	}

	b.remove(high)
	if got := b.bestContra(sell); got != mid {
		t.Errorf("Expected best bid %d after removal, got: %d", mid.ID, got.ID)
	}
}

func TestBestAskIsLowestPrice(t *testing.T) {
	r := registry.NewRegistry()
	b := newBook("X")

	b.insert(newBookOrder(t, r, registry.SideSell, "10", "130", 1))
	cheap := newBookOrder(t, r, registry.SideSell, "10", "128", 2)
	b.insert(cheap)
	b.insert(newBookOrder(t, r, registry.SideSell, "10", "140", 3))

	buy := newBookOrder(t, r, registry.SideBuy, "10", "200", 4)
	if got := b.bestContra(buy); got != cheap {
		t.Errorf("Expected best ask %d (limit 128), got: %d (limit %s)", cheap.ID, got.ID, got.Limit)
	}
}

func TestEqualPriceBreaksTiesByTimeThenID(t *testing.T) {
	r := registry.NewRegistry()
	b := newBook("X")

	later := newBookOrder(t, r, registry.SideBuy, "10", "125", 20) // id 1
	earlier := newBookOrder(t, r, registry.SideBuy, "10", "125", 10) // id 2
	b.insert(later)
	b.insert(earlier)

	sell := newBookOrder(t, r, registry.SideSell, "10", "100", 30)
	if got := b.bestContra(sell); got != earlier {
		t.Errorf("Expected earlier created_at to win the tie, got order %d", got.ID)
	}

	// Same price, same created_at: the lower id was accepted first.
	b2 := newBook("Y")
	first := newBookOrder(t, r, registry.SideSell, "10", "50", 10)
	second := newBookOrder(t, r, registry.SideSell, "10", "50", 10)
	b2.insert(second)
	b2.insert(first)

	buy := newBookOrder(t, r, registry.SideBuy, "10", "60", 30)
	if got := b2.bestContra(buy); got != first {
		t.Errorf("Expected lower id to win the tie, got order %d", got.ID)
	}
}

func TestBestContraOnEmptyBook(t *testing.T) {
	r := registry.NewRegistry()
	b := newBook("X")

	buy := newBookOrder(t, r, registry.SideBuy, "10", "60", 1)
	if got := b.bestContra(buy); got != nil {
		t.Errorf("Expected nil on empty book, got order %d", got.ID)
	}
}

func TestDepthAggregatesPriceLevels(t *testing.T) {
	r := registry.NewRegistry()
	b := newBook("X")

	b.insert(newBookOrder(t, r, registry.SideBuy, "300", "125", 1))
	b.insert(newBookOrder(t, r, registry.SideBuy, "400", "125", 2))
	b.insert(newBookOrder(t, r, registry.SideBuy, "200", "127", 3))
	b.insert(newBookOrder(t, r, registry.SideSell, "100", "130", 4))

	bids, asks := b.depth(10)

	if len(bids) != 2 {
		t.Fatalf("Expected 2 bid levels, got: %d", len(bids))
	}
	if !bids[0].Price.Equal(d(t, "127")) || !bids[0].Quantity.Equal(d(t, "200")) {
		t.Errorf("Expected best bid level 200@127, got: %s@%s", bids[0].Quantity, bids[0].Price)
	}
	if !bids[1].Price.Equal(d(t, "125")) || !bids[1].Quantity.Equal(d(t, "700")) {
		t.Errorf("Expected second bid level 700@125, got: %s@%s", bids[1].Quantity, bids[1].Price)
	}

	if len(asks) != 1 {
		t.Fatalf("Expected 1 ask level, got: %d", len(asks))
	}
	if !asks[0].Price.Equal(d(t, "130")) || !asks[0].Quantity.Equal(d(t, "100")) {
		t.Errorf("Expected ask level 100@130, got: %s@%s", asks[0].Quantity, asks[0].Price)
	}
}

func TestDepthLimit(t *testing.T) {
	r := registry.NewRegistry()
	b := newBook("X")

	for i := 0; i < 5; i++ {
		b.insert(newBookOrder(t, r, registry.SideSell, "10", decimal.NewFromInt(int64(100+i)).String(), int64(i)))
	}

	_, asks := b.depth(3)
	if len(asks) != 3 {
		t.Errorf("Expected depth capped at 3 levels, got: %d", len(asks))
	}
	if !asks[0].Price.Equal(d(t, "100")) {
		t.Errorf("Expected best ask 100 first, got: %s", asks[0].Price)
	}
}
