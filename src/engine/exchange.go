// Package engine owns the order books and drives matching under strict
// price-time priority, orchestrating atomic execution across the ledger and
// the order registry.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"exchange-core/src/ledger"
	"exchange-core/src/registry"
	"exchange-core/src/store"
)

// Exchange holds the per-symbol books and locks and exposes the in-process
// API consumed by the wire collaborator.
type Exchange struct {
	ledger   *ledger.Ledger
	registry *registry.Registry
	store    store.Store
	clock    Clock

	books map[string]*book
	mu    sync.RWMutex

	startTime       time.Time
	ordersPlaced    atomic.Int64
	ordersRejected  atomic.Int64
	ordersCanceled  atomic.Int64
	tradesExecuted  atomic.Int64

	latencies    []time.Duration
	latenciesMu  sync.RWMutex
	maxLatencies int
}

func NewExchange(l *ledger.Ledger, r *registry.Registry, s store.Store, clock Clock) *Exchange {
	return &Exchange{
		ledger:       l,
		registry:     r,
		store:        s,
		clock:        clock,
		books:        make(map[string]*book),
		startTime:    time.Now(),
		latencies:    make([]time.Duration, 0, 10000),
		maxLatencies: 10000,
	}
}

func (e *Exchange) Ledger() *ledger.Ledger {
	return e.ledger
}

func (e *Exchange) getOrCreateBook(symbol string) *book {
	e.mu.RLock()
	if b, exists := e.books[symbol]; exists {
		e.mu.RUnlock()
		return b
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// edge case: double-check after acquiring write lock
	if b, exists := e.books[symbol]; exists {
		return b
	}

	b := newBook(symbol)
	e.books[symbol] = b
	return b
}

// CreateAccount registers a new account with the given starting balance.
func (e *Exchange) CreateAccount(ctx context.Context, id string, balance decimal.Decimal) error {
	if err := e.ledger.CreateAccount(id, balance); err != nil {
		return err
	}
	if err := e.store.SaveAccount(ctx, id, balance); err != nil {
		log.Error().Err(err).Str("account_id", id).Msg("Failed to persist account")
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	log.Info().Str("account_id", id).Str("balance", balance.String()).Msg("Account created")
	return nil
}

// CreateOrAddShares registers sym if needed and grants num shares to account.
func (e *Exchange) CreateOrAddShares(ctx context.Context, sym, accountID string, num decimal.Decimal) error {
	if err := e.ledger.CreateOrAddShares(sym, accountID, num); err != nil {
		return err
	}
	if err := e.store.SaveSymbolGrant(ctx, sym, accountID, num); err != nil {
		log.Error().Err(err).Str("symbol", sym).Str("account_id", accountID).Msg("Failed to persist symbol grant")
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

// HasAccount reports whether the account id is known.
func (e *Exchange) HasAccount(id string) bool {
	return e.ledger.HasAccount(id)
}

// AccountSnapshot exposes one account's balance and positions.
func (e *Exchange) AccountSnapshot(id string) (ledger.AccountSnapshot, error) {
	return e.ledger.Snapshot(id)
}

// PlaceOrder accepts a new order: positive amount buys, negative sells. The
// reservation happens before registration, so a rejected order leaves no
// trace; the match loop runs under the symbol lock before any remainder is
// parked on the book. Returns the assigned order id.
func (e *Exchange) PlaceOrder(ctx context.Context, accountID, sym string, amount, limit decimal.Decimal) (int64, error) {
	start := time.Now()

	if amount.Sign() == 0 || limit.Sign() <= 0 {
		e.ordersRejected.Add(1)
		return 0, ErrMalformedOrder
	}

	side := registry.SideBuy
	if amount.Sign() < 0 {
		side = registry.SideSell
	}
	qty := amount.Abs()

	if side == registry.SideBuy {
		if err := e.ledger.ReserveFunds(accountID, qty.Mul(limit)); err != nil {
			e.ordersRejected.Add(1)
			return 0, err
		}
	} else {
		if err := e.ledger.ReserveShares(accountID, sym, qty); err != nil {
			e.ordersRejected.Add(1)
			return 0, err
		}
	}

	o := e.registry.Register(accountID, sym, side, qty, limit)

	b := e.getOrCreateBook(sym)
	b.mu.Lock()

	o.CreatedAt = e.clock.Now()

	if err := e.store.SaveOrder(ctx, store.OrderRecord{
		ID:        o.ID,
		AccountID: accountID,
		Symbol:    sym,
		Side:      string(side),
		Amount:    qty,
		Limit:     limit,
		CreatedAt: o.CreatedAt,
	}); err != nil {
		// Roll back: void the order and release the reservation.
		_, _ = o.ApplyCancel(o.CreatedAt)
		b.mu.Unlock()
		if side == registry.SideBuy {
			_ = e.ledger.RefundFunds(accountID, qty.Mul(limit))
		} else {
			_ = e.ledger.CreditShares(accountID, sym, qty)
		}
		e.ordersRejected.Add(1)
		log.Error().Err(err).Int64("order_id", o.ID).Msg("Failed to persist order")
		return 0, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e.match(ctx, b, o)

	if o.IsOpen() {
		b.insert(o)
	}
	b.mu.Unlock()

	e.ordersPlaced.Add(1)
	e.recordLatency(time.Since(start))

	log.Info().
		Int64("order_id", o.ID).
		Str("account_id", accountID).
		Str("symbol", sym).
		Str("side", string(side)).
		Str("amount", qty.String()).
		Str("limit", limit.String()).
		Str("open", o.Open().String()).
		Msg("Order placed")

	return o.ID, nil
}

// match runs the match loop for the newly accepted order o. The caller holds
// the symbol lock; every fill it produces is atomic with respect to other
// trades on this symbol.
func (e *Exchange) match(ctx context.Context, b *book, o *registry.Order) {
	for o.Open().Sign() > 0 {
		contra := b.bestContra(o)
		if contra == nil {
			return
		}

		if o.IsBuy() {
			if contra.Limit.GreaterThan(o.Limit) {
				return
			}
		} else {
			if contra.Limit.LessThan(o.Limit) {
				return
			}
		}

		fillShares := decimal.Min(o.Open(), contra.Open())

		// Execution price is the limit of whichever order was open first.
		price := contra.Limit
		if olderOf(o, contra) == o {
			price = o.Limit
		}

		buyer, seller := o, contra
		if !o.IsBuy() {
			buyer, seller = contra, o
		}

		now := e.clock.Now()

		if err := e.ledger.CreditFunds(seller.AccountID, price.Mul(fillShares)); err != nil {
			log.Fatal().Err(err).Int64("order_id", seller.ID).Msg("Seller credit failed during fill")
		}
		if err := e.ledger.CreditShares(buyer.AccountID, b.symbol, fillShares); err != nil {
			log.Fatal().Err(err).Int64("order_id", buyer.ID).Msg("Buyer credit failed during fill")
		}

		// The buy reservation was taken at the buyer's limit; a cheaper fill
		// returns the difference.
		overpay := buyer.Limit.Sub(price).Mul(fillShares)
		if overpay.Sign() > 0 {
			if err := e.ledger.CreditFunds(buyer.AccountID, overpay); err != nil {
				log.Fatal().Err(err).Int64("order_id", buyer.ID).Msg("Overpay refund failed during fill")
			}
		}

		if err := o.ApplyFill(fillShares, price, now); err != nil {
			log.Fatal().Err(err).Int64("order_id", o.ID).Msg("Fill exceeded open shares")
		}
		if err := contra.ApplyFill(fillShares, price, now); err != nil {
			log.Fatal().Err(err).Int64("order_id", contra.ID).Msg("Fill exceeded open shares")
		}

		executionID := uuid.New().String()
		for _, filled := range []*registry.Order{o, contra} {
			if err := e.store.SaveFill(ctx, store.FillRecord{
				ExecutionID: executionID + "-" + fmt.Sprint(filled.ID),
				OrderID:     filled.ID,
				Shares:      fillShares,
				Price:       price,
				Time:        now,
			}); err != nil {
				log.Fatal().Err(err).Int64("order_id", filled.ID).Msg("Failed to persist fill")
			}
		}

		e.tradesExecuted.Add(1)

		log.Info().
			Str("execution_id", executionID).
			Str("symbol", b.symbol).
			Int64("buy_order_id", buyer.ID).
			Int64("sell_order_id", seller.ID).
			Str("shares", fillShares.String()).
			Str("price", price.String()).
			Msg("Trade executed")

		if contra.Open().Sign() == 0 {
			b.remove(contra)
		}
	}
}

// olderOf picks the order that was observably open first: earlier created_at,
// ties broken by lower id.
func olderOf(a, b *registry.Order) *registry.Order {
	if a.CreatedAt != b.CreatedAt {
		if a.CreatedAt < b.CreatedAt {
			return a
		}
		return b
	}
	if a.ID < b.ID {
		return a
	}
	return b
}

// Cancel removes the order's open remainder from its book, refunds the
// un-consumed reservation, and records the cancellation. Fills that happened
// before the symbol lock was acquired are permanent.
func (e *Exchange) Cancel(ctx context.Context, orderID int64) (registry.Status, error) {
	o, err := e.registry.Get(orderID)
	if err != nil {
		return registry.Status{}, err
	}

	b := e.getOrCreateBook(o.Symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, err := o.ApplyCancel(e.clock.Now())
	if err != nil {
		return registry.Status{}, err
	}

	b.remove(o)

	if o.IsBuy() {
		if err := e.ledger.RefundFunds(o.AccountID, rec.Shares.Mul(o.Limit)); err != nil {
			log.Fatal().Err(err).Int64("order_id", o.ID).Msg("Cancel refund failed")
		}
	} else {
		if err := e.ledger.CreditShares(o.AccountID, o.Symbol, rec.Shares); err != nil {
			log.Fatal().Err(err).Int64("order_id", o.ID).Msg("Cancel share return failed")
		}
	}

	if err := e.store.SaveCancel(ctx, store.CancelRecord{
		OrderID: o.ID,
		Shares:  rec.Shares,
		Time:    rec.Time,
	}); err != nil {
		log.Fatal().Err(err).Int64("order_id", o.ID).Msg("Failed to persist cancellation")
	}

	e.ordersCanceled.Add(1)

	log.Info().
		Int64("order_id", o.ID).
		Str("symbol", o.Symbol).
		Str("canceled_shares", rec.Shares.String()).
		Msg("Order canceled")

	return o.Snapshot(), nil
}

// Query returns the order's recorded status. It reads the registry snapshot
// only and takes no symbol lock.
func (e *Exchange) Query(orderID int64) (registry.Status, error) {
	return e.registry.Status(orderID)
}

// BookDepth aggregates up to depth price levels per side, best first.
func (e *Exchange) BookDepth(symbol string, depth int) (bids []DepthLevel, asks []DepthLevel) {
	b := e.getOrCreateBook(symbol)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depth(depth)
}

// Stats is a point-in-time view of the engine counters for the ops surface.
type Stats struct {
	OrdersPlaced   int64
	OrdersRejected int64
	OrdersCanceled int64
	TradesExecuted int64
	OrdersInBook   int64
	UptimeSeconds  int64
	LatencyP50Ms   float64
	LatencyP99Ms   float64
	LatencyP999Ms  float64
	OrdersPerSec   float64
}

func (e *Exchange) Stats() Stats {
	var inBook int64
	e.mu.RLock()
	books := make([]*book, 0, len(e.books))
	for _, b := range e.books {
		books = append(books, b)
	}
	e.mu.RUnlock()
	for _, b := range books {
		b.mu.Lock()
		inBook += int64(b.size())
		b.mu.Unlock()
	}

	p50, p99, p999 := e.latencyPercentiles()
	uptime := time.Since(e.startTime).Seconds()

	placed := e.ordersPlaced.Load()
	throughput := 0.0
	if uptime > 0 {
		throughput = float64(placed) / uptime
	}

	return Stats{
		OrdersPlaced:   placed,
		OrdersRejected: e.ordersRejected.Load(),
		OrdersCanceled: e.ordersCanceled.Load(),
		TradesExecuted: e.tradesExecuted.Load(),
		OrdersInBook:   inBook,
		UptimeSeconds:  int64(uptime),
		LatencyP50Ms:   p50,
		LatencyP99Ms:   p99,
		LatencyP999Ms:  p999,
		OrdersPerSec:   throughput,
	}
}

func (e *Exchange) recordLatency(latency time.Duration) {
	e.latenciesMu.Lock()
	defer e.latenciesMu.Unlock()

	e.latencies = append(e.latencies, latency)

	// edge case: maintain rolling window by removing oldest measurements
	if len(e.latencies) > e.maxLatencies {
		removeCount := len(e.latencies) - e.maxLatencies
		e.latencies = e.latencies[removeCount:]
	}
}

func (e *Exchange) latencyPercentiles() (p50, p99, p999 float64) {
	e.latenciesMu.RLock()
	defer e.latenciesMu.RUnlock()

	if len(e.latencies) == 0 {
		return 0, 0, 0
	}

	latenciesCopy := make([]time.Duration, len(e.latencies))
	copy(latenciesCopy, e.latencies)

	sort.Slice(latenciesCopy, func(i, j int) bool {
		return latenciesCopy[i] < latenciesCopy[j]
	})

	pick := func(q float64) float64 {
		idx := int(float64(len(latenciesCopy)) * q)
		// edge case: ensure index is within bounds
		if idx >= len(latenciesCopy) {
			idx = len(latenciesCopy) - 1
		}
		return float64(latenciesCopy[idx].Nanoseconds()) / 1e6
	}

	return pick(0.50), pick(0.99), pick(0.999)
}
