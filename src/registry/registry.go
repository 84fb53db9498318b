// Package registry assigns order ids and owns the authoritative record of
// every order ever accepted: its immutable descriptor plus its mutable
// execution history.
package registry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownOrder = errors.New("order not found")
	ErrNotOpen      = errors.New("order has no open shares")
	ErrOverfill     = errors.New("fill exceeds open shares")
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Fill records one execution applied to an order.
type Fill struct {
	Shares decimal.Decimal
	Price  decimal.Decimal
	Time   int64
}

// Cancel records the cancellation of an order's open remainder.
type Cancel struct {
	Shares decimal.Decimal
	Time   int64
}

// Order holds one order's immutable descriptor and mutable history. Apart from
// CreatedAt, which the engine sets once after Register, the descriptor fields
// never change after Register; the history is guarded by mu.
type Order struct {
	ID        int64
	AccountID string
	Symbol    string
	Side      Side
	Limit     decimal.Decimal
	Original  decimal.Decimal
	CreatedAt int64 // stamped by the engine under the symbol lock

	mu     sync.Mutex
	open   decimal.Decimal
	fills  []Fill
	cancel *Cancel
}

// Status is an immutable view of an order, sufficient to build a reply.
type Status struct {
	ID        int64
	AccountID string
	Symbol    string
	Side      Side
	Limit     decimal.Decimal
	Original  decimal.Decimal
	Open      decimal.Decimal
	Fills     []Fill
	Cancel    *Cancel
}

func (o *Order) IsBuy() bool {
	return o.Side == SideBuy
}

// Open returns the remaining unmatched portion.
func (o *Order) Open() decimal.Decimal {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}

// IsOpen reports whether the order may still match or be cancelled.
func (o *Order) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open.Sign() > 0 && o.cancel == nil
}

// ApplyFill appends a fill record and decrements the open remainder. A fill
// larger than the remainder is an invariant violation reported as ErrOverfill.
func (o *Order) ApplyFill(shares, price decimal.Decimal, time int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if shares.GreaterThan(o.open) {
		return ErrOverfill
	}
	o.open = o.open.Sub(shares)
	o.fills = append(o.fills, Fill{Shares: shares, Price: price, Time: time})
	return nil
}

// ApplyCancel zeroes the open remainder exactly once and records when. The
// second cancel of an order, or a cancel of a fully executed order, returns
// ErrNotOpen.
func (o *Order) ApplyCancel(time int64) (Cancel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.open.Sign() <= 0 || o.cancel != nil {
		return Cancel{}, ErrNotOpen
	}
	rec := Cancel{Shares: o.open, Time: time}
	o.open = decimal.Zero
	o.cancel = &rec
	return rec, nil
}

// Snapshot copies the order's current state.
func (o *Order) Snapshot() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	fills := make([]Fill, len(o.fills))
	copy(fills, o.fills)

	var cancel *Cancel
	if o.cancel != nil {
		c := *o.cancel
		cancel = &c
	}

	return Status{
		ID:        o.ID,
		AccountID: o.AccountID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Limit:     o.Limit,
		Original:  o.Original,
		Open:      o.open,
		Fills:     fills,
		Cancel:    cancel,
	}
}

// Registry assigns ids from a monotonic counter and stores every order.
type Registry struct {
	nextID atomic.Int64
	mu     sync.RWMutex
	orders map[int64]*Order
}

func NewRegistry() *Registry {
	return &Registry{
		orders: make(map[int64]*Order),
	}
}

// Register stores a new open order and returns it with its assigned id. Ids
// are monotonically increasing and double as the deterministic tie-break key.
func (r *Registry) Register(accountID, symbol string, side Side, amount, limit decimal.Decimal) *Order {
	o := &Order{
		ID:        r.nextID.Add(1),
		AccountID: accountID,
		Symbol:    symbol,
		Side:      side,
		Limit:     limit,
		Original:  amount,
		open:      amount,
	}

	r.mu.Lock()
	r.orders[o.ID] = o
	r.mu.Unlock()

	return o
}

// Get returns the live order for id.
func (r *Registry) Get(id int64) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	return o, nil
}

// Status returns an immutable view of the order for id.
func (r *Registry) Status(id int64) (Status, error) {
	o, err := r.Get(id)
	if err != nil {
		return Status{}, err
	}
	return o.Snapshot(), nil
}
