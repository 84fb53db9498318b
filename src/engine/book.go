package engine

import (
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"exchange-core/src/registry"
)

// bidItem orders the buy side: highest limit first, then earliest created_at,
// then lowest id. btree.Min() is therefore the best bid.
type bidItem struct {
	order *registry.Order
}

func (p *bidItem) Less(than btree.Item) bool {
	other := than.(*bidItem)
	if cmp := p.order.Limit.Cmp(other.order.Limit); cmp != 0 {
		return cmp > 0
	}
	if p.order.CreatedAt != other.order.CreatedAt {
		return p.order.CreatedAt < other.order.CreatedAt
	}
	return p.order.ID < other.order.ID
}

// askItem orders the sell side: lowest limit first, then earliest created_at,
// then lowest id. btree.Min() is therefore the best ask.
type askItem struct {
	order *registry.Order
}

func (p *askItem) Less(than btree.Item) bool {
	other := than.(*askItem)
	if cmp := p.order.Limit.Cmp(other.order.Limit); cmp != 0 {
		return cmp < 0
	}
	if p.order.CreatedAt != other.order.CreatedAt {
		return p.order.CreatedAt < other.order.CreatedAt
	}
	return p.order.ID < other.order.ID
}

// book holds both sides of one symbol's order book. mu is the symbol lock:
// it guards the trees and every fill involving this symbol. Callers hold it;
// book methods do not lock.
type book struct {
	symbol string
	bids   *btree.BTree
	asks   *btree.BTree
	mu     sync.Mutex
}

func newBook(symbol string) *book {
	return &book{
		symbol: symbol,
		bids:   btree.New(32),
		asks:   btree.New(32),
	}
}

func (b *book) insert(o *registry.Order) {
	if o.IsBuy() {
		b.bids.ReplaceOrInsert(&bidItem{order: o})
	} else {
		b.asks.ReplaceOrInsert(&askItem{order: o})
	}
}

func (b *book) remove(o *registry.Order) {
	if o.IsBuy() {
		b.bids.Delete(&bidItem{order: o})
	} else {
		b.asks.Delete(&askItem{order: o})
	}
}

// bestContra returns the best order on the opposite side of incoming, or nil.
func (b *book) bestContra(incoming *registry.Order) *registry.Order {
	if incoming.IsBuy() {
		item := b.asks.Min()
		if item == nil {
			return nil
		}
		return item.(*askItem).order
	}
	item := b.bids.Min()
	if item == nil {
		return nil
	}
	return item.(*bidItem).order
}

// DepthLevel aggregates the open quantity resting at one price.
type DepthLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// depth aggregates up to n price levels per side, best first.
func (b *book) depth(n int) (bids []DepthLevel, asks []DepthLevel) {
	bids = collectDepth(b.bids, n, func(item btree.Item) *registry.Order {
		return item.(*bidItem).order
	})
	asks = collectDepth(b.asks, n, func(item btree.Item) *registry.Order {
		return item.(*askItem).order
	})
	return bids, asks
}

func collectDepth(tree *btree.BTree, n int, orderOf func(btree.Item) *registry.Order) []DepthLevel {
	levels := make([]DepthLevel, 0, n)
	tree.Ascend(func(item btree.Item) bool {
		o := orderOf(item)
		open := o.Open()
		if open.Sign() <= 0 {
			return true
		}
		if len(levels) > 0 && levels[len(levels)-1].Price.Equal(o.Limit) {
			levels[len(levels)-1].Quantity = levels[len(levels)-1].Quantity.Add(open)
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, DepthLevel{Price: o.Limit, Quantity: open})
		return true
	})
	return levels
}

// size counts resting orders on both sides.
func (b *book) size() int {
	return b.bids.Len() + b.asks.Len()
}
