package wire

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"exchange-core/src/engine"
	"exchange-core/src/ledger"
	"exchange-core/src/registry"
)

// Dispatcher executes parsed requests against the exchange and renders the
// reply. Children of one bundle run sequentially in input order; replies
// appear in the same order. A failing child never affects its siblings.
type Dispatcher struct {
	ex *engine.Exchange
}

func NewDispatcher(ex *engine.Exchange) *Dispatcher {
	return &Dispatcher{ex: ex}
}

// Process handles one request document and returns the reply document.
func (d *Dispatcher) Process(ctx context.Context, data []byte) []byte {
	req, err := Parse(data)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(data)).Msg("Unparseable request")
		return TopLevelError("Invalid XML")
	}

	switch r := req.(type) {
	case *CreateRequest:
		return d.processCreate(ctx, r)
	case *TransactionsRequest:
		return d.processTransactions(ctx, r)
	default:
		return TopLevelError("Unknown request type")
	}
}

func (d *Dispatcher) processCreate(ctx context.Context, req *CreateRequest) []byte {
	w := NewResultWriter()

	for _, child := range req.Children {
		switch c := child.(type) {
		case *AccountCreate:
			balance, err := decimal.NewFromString(c.Balance)
			if err != nil {
				w.Error([]Attr{{"id", c.ID}}, "Invalid balance")
				continue
			}
			if err := d.ex.CreateAccount(ctx, c.ID, balance); err != nil {
				w.Error([]Attr{{"id", c.ID}}, errorMessage(err))
				continue
			}
			w.CreatedAccount(c.ID)

		case *SymbolCreate:
			for _, grant := range c.Grants {
				amount, err := decimal.NewFromString(grant.Amount)
				if err != nil {
					w.Error([]Attr{{"sym", c.Sym}, {"id", grant.AccountID}}, "Invalid share amount")
					continue
				}
				if err := d.ex.CreateOrAddShares(ctx, c.Sym, grant.AccountID, amount); err != nil {
					w.Error([]Attr{{"sym", c.Sym}, {"id", grant.AccountID}}, errorMessage(err))
					continue
				}
				w.CreatedSymbol(c.Sym, grant.AccountID)
			}
		}
	}

	return w.Bytes()
}

func (d *Dispatcher) processTransactions(ctx context.Context, req *TransactionsRequest) []byte {
	w := NewResultWriter()

	// edge case: invalid account fails every child with its own attributes
	if !d.ex.HasAccount(req.AccountID) {
		for _, child := range req.Children {
			w.Error(childAttrs(child), "Account not found")
		}
		return w.Bytes()
	}

	for _, child := range req.Children {
		switch c := child.(type) {
		case *OrderRequest:
			d.processOrder(ctx, w, req.AccountID, c)
		case *QueryRequest:
			d.processQuery(w, c)
		case *CancelRequest:
			d.processCancel(ctx, w, c)
		}
	}

	return w.Bytes()
}

func (d *Dispatcher) processOrder(ctx context.Context, w *ResultWriter, accountID string, c *OrderRequest) {
	attrs := []Attr{{"sym", c.Sym}, {"amount", c.Amount}, {"limit", c.Limit}}

	amount, err := decimal.NewFromString(c.Amount)
	if err != nil {
		w.Error(attrs, "Invalid amount")
		return
	}
	limit, err := decimal.NewFromString(c.Limit)
	if err != nil {
		w.Error(attrs, "Invalid limit price")
		return
	}

	id, err := d.ex.PlaceOrder(ctx, accountID, c.Sym, amount, limit)
	if err != nil {
		w.Error(attrs, errorMessage(err))
		return
	}
	w.Opened(c.Sym, c.Amount, c.Limit, id)
}

func (d *Dispatcher) processQuery(w *ResultWriter, c *QueryRequest) {
	id, err := strconv.ParseInt(c.ID, 10, 64)
	if err != nil {
		w.Error([]Attr{{"id", c.ID}}, "Invalid order id")
		return
	}

	st, err := d.ex.Query(id)
	if err != nil {
		w.Error([]Attr{{"id", c.ID}}, errorMessage(err))
		return
	}
	w.Status(c.ID, st)
}

func (d *Dispatcher) processCancel(ctx context.Context, w *ResultWriter, c *CancelRequest) {
	id, err := strconv.ParseInt(c.ID, 10, 64)
	if err != nil {
		w.Error([]Attr{{"id", c.ID}}, "Invalid order id")
		return
	}

	st, err := d.ex.Cancel(ctx, id)
	if err != nil {
		w.Error([]Attr{{"id", c.ID}}, errorMessage(err))
		return
	}
	w.Canceled(c.ID, st)
}

func childAttrs(child TxChild) []Attr {
	switch c := child.(type) {
	case *OrderRequest:
		return []Attr{{"sym", c.Sym}, {"amount", c.Amount}, {"limit", c.Limit}}
	case *QueryRequest:
		return []Attr{{"id", c.ID}}
	case *CancelRequest:
		return []Attr{{"id", c.ID}}
	default:
		return nil
	}
}

// errorMessage maps core error kinds to the wording the wire replies carry.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrDuplicateAccount):
		return "Account already exists"
	case errors.Is(err, ledger.ErrUnknownAccount):
		return "Account not found"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "Insufficient funds"
	case errors.Is(err, ledger.ErrInsufficientShares):
		return "Insufficient shares"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "Share amount must be positive"
	case errors.Is(err, ledger.ErrNegativeBalance):
		return "Initial balance cannot be negative"
	case errors.Is(err, registry.ErrUnknownOrder):
		return "Order not found"
	case errors.Is(err, registry.ErrNotOpen):
		return "Order has no open shares to cancel"
	case errors.Is(err, engine.ErrMalformedOrder):
		return "Invalid order: amount must be non-zero and limit price positive"
	default:
		return "Internal server error"
	}
}
