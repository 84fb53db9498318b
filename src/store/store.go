// Package store is the persistence collaborator: it journals accounts,
// symbol grants, orders, fills and cancellations. The engine owns the
// in-memory truth; the store records it.
package store

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderRecord is the immutable descriptor persisted when an order is accepted.
type OrderRecord struct {
	ID        int64
	AccountID string
	Symbol    string
	Side      string
	Amount    decimal.Decimal
	Limit     decimal.Decimal
	CreatedAt int64
}

// FillRecord is one execution applied to one order.
type FillRecord struct {
	ExecutionID string
	OrderID     int64
	Shares      decimal.Decimal
	Price       decimal.Decimal
	Time        int64
}

// CancelRecord is the cancellation of an order's open remainder.
type CancelRecord struct {
	OrderID int64
	Shares  decimal.Decimal
	Time    int64
}

// Store journals exchange state changes. Implementations must be safe for
// concurrent use; a returned error means the change was not recorded.
type Store interface {
	SaveAccount(ctx context.Context, id string, balance decimal.Decimal) error
	SaveSymbolGrant(ctx context.Context, sym, accountID string, amount decimal.Decimal) error
	SaveOrder(ctx context.Context, rec OrderRecord) error
	SaveFill(ctx context.Context, rec FillRecord) error
	SaveCancel(ctx context.Context, rec CancelRecord) error
	Close()
}
