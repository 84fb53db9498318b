// Package ledger is the authoritative store of accounts and symbols. Every
// balance and position mutation is atomic per account, and neither a balance
// nor a position may ever be observed below zero.
package ledger

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

type account struct {
	id        string
	balance   decimal.Decimal
	positions map[string]decimal.Decimal
	mu        sync.Mutex
}

// Ledger holds all accounts and the symbol registry.
type Ledger struct {
	accounts map[string]*account
	symbols  map[string]struct{}
	mu       sync.RWMutex
}

func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		symbols:  make(map[string]struct{}),
	}
}

// AccountSnapshot is a point-in-time copy of one account for read surfaces.
type AccountSnapshot struct {
	ID        string
	Balance   decimal.Decimal
	Positions map[string]decimal.Decimal
}

func (l *Ledger) get(id string) (*account, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[id]
	return a, ok
}

// CreateAccount registers a new account with the given starting balance.
func (l *Ledger) CreateAccount(id string, balance decimal.Decimal) error {
	if balance.Sign() < 0 {
		return ErrNegativeBalance
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.accounts[id]; exists {
		return ErrDuplicateAccount
	}

	l.accounts[id] = &account{
		id:        id,
		balance:   balance,
		positions: make(map[string]decimal.Decimal),
	}
	return nil
}

// HasAccount reports whether the account id is known.
func (l *Ledger) HasAccount(id string) bool {
	_, ok := l.get(id)
	return ok
}

// CreateOrAddShares registers sym (idempotent) and adds num shares to the
// account's position in sym. num must be positive.
func (l *Ledger) CreateOrAddShares(sym, id string, num decimal.Decimal) error {
	if num.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	l.symbols[sym] = struct{}{}
	a, ok := l.accounts[id]
	l.mu.Unlock()

	if !ok {
		return ErrUnknownAccount
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[sym] = a.positions[sym].Add(num)
	return nil
}

// ReserveFunds decreases the balance by amount if it covers it. Used when a
// buy order is accepted so simultaneous fills cannot double-spend.
func (l *Ledger) ReserveFunds(id string, amount decimal.Decimal) error {
	a, ok := l.get(id)
	if !ok {
		return ErrUnknownAccount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	a.balance = a.balance.Sub(amount)
	return nil
}

// ReserveShares decreases the position in sym by num if it covers it. Used
// when a sell order is accepted. A position drained to zero stays in the map.
func (l *Ledger) ReserveShares(id, sym string, num decimal.Decimal) error {
	a, ok := l.get(id)
	if !ok {
		return ErrUnknownAccount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	held := a.positions[sym]
	if held.LessThan(num) {
		return ErrInsufficientShares
	}
	a.positions[sym] = held.Sub(num)
	return nil
}

// CreditFunds increases the balance. Infallible on a known account.
func (l *Ledger) CreditFunds(id string, amount decimal.Decimal) error {
	a, ok := l.get(id)
	if !ok {
		return ErrUnknownAccount
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = a.balance.Add(amount)
	return nil
}

// RefundFunds returns a previously reserved amount to the balance.
func (l *Ledger) RefundFunds(id string, amount decimal.Decimal) error {
	return l.CreditFunds(id, amount)
}

// CreditShares increases the position in sym, creating it if absent.
func (l *Ledger) CreditShares(id, sym string, num decimal.Decimal) error {
	a, ok := l.get(id)
	if !ok {
		return ErrUnknownAccount
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[sym] = a.positions[sym].Add(num)
	return nil
}

// Snapshot returns a copy of the account's balance and positions.
func (l *Ledger) Snapshot(id string) (AccountSnapshot, error) {
	a, ok := l.get(id)
	if !ok {
		return AccountSnapshot{}, ErrUnknownAccount
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]decimal.Decimal, len(a.positions))
	for sym, amount := range a.positions {
		positions[sym] = amount
	}
	return AccountSnapshot{ID: a.id, Balance: a.balance, Positions: positions}, nil
}

// Symbols lists the registered symbols in lexical order.
func (l *Ledger) Symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	syms := make([]string, 0, len(l.symbols))
	for sym := range l.symbols {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}
