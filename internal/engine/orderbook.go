package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// OrderBook holds the resting orders for the single commodity and hands out
// priority-ordered views for matching. It has no internal locking: the
// engine loop is the only writer and the only reader during a match.
type OrderBook struct {
	buys  []*BuyOrder
	sells []*SellOrder

	buysByID  map[string]*BuyOrder
	sellsByID map[string]*SellOrder

	// submission counter; assigned on insert, breaks price ties
	seq uint64
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		buysByID:  make(map[string]*BuyOrder),
		sellsByID: make(map[string]*SellOrder),
	}
}

// AddBuy validates and inserts a bid, assigning its submission sequence.
func (ob *OrderBook) AddBuy(o *BuyOrder) error {
	if err := validateOrder(o.ID, o.Remaining, o.MaxPrice); err != nil {
		return err
	}
	if _, dup := ob.buysByID[o.ID]; dup {
		return errDuplicateID(o.ID)
	}
	ob.seq++
	o.Seq = ob.seq
	ob.buys = append(ob.buys, o)
	ob.buysByID[o.ID] = o
	return nil
}

// AddSell validates and inserts an ask, assigning its submission sequence.
func (ob *OrderBook) AddSell(o *SellOrder) error {
	if err := validateOrder(o.ID, o.Remaining, o.Price); err != nil {
		return err
	}
	if _, dup := ob.sellsByID[o.ID]; dup {
		return errDuplicateID(o.ID)
	}
	ob.seq++
	o.Seq = ob.seq
	ob.sells = append(ob.sells, o)
	ob.sellsByID[o.ID] = o
	return nil
}

// RestoreBuy re-inserts an order loaded from storage, keeping its persisted
// sequence so price ties replay identically after a restart. Restored
// orders may be partially filled, so zero remaining is allowed here.
func (ob *OrderBook) RestoreBuy(o *BuyOrder) error {
	if o.Remaining.Sign() < 0 || o.MaxPrice.Sign() < 0 {
		return errNegativeState("buy", o.ID)
	}
	if _, dup := ob.buysByID[o.ID]; dup {
		return errDuplicateID(o.ID)
	}
	ob.buys = append(ob.buys, o)
	ob.buysByID[o.ID] = o
	if o.Seq > ob.seq {
		ob.seq = o.Seq
	}
	return nil
}

// RestoreSell is the ask-side counterpart of RestoreBuy.
func (ob *OrderBook) RestoreSell(o *SellOrder) error {
	if o.Remaining.Sign() < 0 || o.Price.Sign() < 0 {
		return errNegativeState("sell", o.ID)
	}
	if _, dup := ob.sellsByID[o.ID]; dup {
		return errDuplicateID(o.ID)
	}
	ob.sells = append(ob.sells, o)
	ob.sellsByID[o.ID] = o
	if o.Seq > ob.seq {
		ob.seq = o.Seq
	}
	return nil
}

// Bids returns all buy orders, highest willingness-to-pay first, earlier
// submission first among equal prices.
func (ob *OrderBook) Bids() []*BuyOrder {
	out := make([]*BuyOrder, len(ob.buys))
	copy(out, ob.buys)
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].MaxPrice.Cmp(out[j].MaxPrice); c != 0 {
			return c > 0
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Asks returns all sell orders, cheapest first, earlier submission first
// among equal prices.
func (ob *OrderBook) Asks() []*SellOrder {
	out := make([]*SellOrder, len(ob.sells))
	copy(out, ob.sells)
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Price.Cmp(out[j].Price); c != 0 {
			return c < 0
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// Buy and Sell look up resting orders by id.
func (ob *OrderBook) Buy(id string) (*BuyOrder, bool) {
	o, ok := ob.buysByID[id]
	return o, ok
}

func (ob *OrderBook) Sell(id string) (*SellOrder, bool) {
	o, ok := ob.sellsByID[id]
	return o, ok
}

func (ob *OrderBook) removeBuy(id string) {
	delete(ob.buysByID, id)
	for i, o := range ob.buys {
		if o.ID == id {
			ob.buys = append(ob.buys[:i], ob.buys[i+1:]...)
			return
		}
	}
}

func (ob *OrderBook) removeSell(id string) {
	delete(ob.sellsByID, id)
	for i, o := range ob.sells {
		if o.ID == id {
			ob.sells = append(ob.sells[:i], ob.sells[i+1:]...)
			return
		}
	}
}

// bookSnapshot captures every residual so a failed commit can put the book
// back exactly as it was before the sweep.
type bookSnapshot struct {
	buys  map[string]decimal.Decimal
	sells map[string]decimal.Decimal
}

func (ob *OrderBook) snapshotRemaining() bookSnapshot {
	snap := bookSnapshot{
		buys:  make(map[string]decimal.Decimal, len(ob.buys)),
		sells: make(map[string]decimal.Decimal, len(ob.sells)),
	}
	for _, o := range ob.buys {
		snap.buys[o.ID] = o.Remaining
	}
	for _, o := range ob.sells {
		snap.sells[o.ID] = o.Remaining
	}
	return snap
}

func (ob *OrderBook) restoreRemaining(snap bookSnapshot) {
	for id, rem := range snap.buys {
		if o, ok := ob.buysByID[id]; ok {
			o.Remaining = rem
		}
	}
	for id, rem := range snap.sells {
		if o, ok := ob.sellsByID[id]; ok {
			o.Remaining = rem
		}
	}
}
