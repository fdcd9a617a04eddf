package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one execution between a bid and an ask. ID and ExecutedAt are
// assigned by the TradeLedger; the matcher leaves them zero.
type Trade struct {
	ID         int64
	BuyerID    string
	SellerID   string
	Quantity   decimal.Decimal
	Price      decimal.Decimal // the matched seller's ask
	ExecutedAt time.Time
}

// Matcher binds the sweep to a book.
type Matcher struct {
	book *OrderBook
}

func NewMatcher(book *OrderBook) *Matcher {
	return &Matcher{book: book}
}

// Match runs one greedy sweep over the current book.
func (m *Matcher) Match() ([]Trade, error) {
	return Match(m.book.Bids(), m.book.Asks())
}

// Match pairs bids against asks in price-time priority and returns the
// executed trades, buyer-major. It decrements Remaining on both sides of
// every trade and touches nothing else; it performs no I/O, so the caller
// can run it against snapshots with no storage in sight.
//
// Both inputs must already be priority-ordered (Bids/Asks on OrderBook).
// Preconditions are checked before any mutation: if an order carries a
// negative residual or price the sweep aborts with ErrInvariantViolation
// and the orders are left untouched.
func Match(bids []*BuyOrder, asks []*SellOrder) ([]Trade, error) {
	for _, b := range bids {
		if b.Remaining.Sign() < 0 || b.MaxPrice.Sign() < 0 {
			return nil, errNegativeState("buy", b.ID)
		}
	}
	for _, s := range asks {
		if s.Remaining.Sign() < 0 || s.Price.Sign() < 0 {
			return nil, errNegativeState("sell", s.ID)
		}
	}

	trades := make([]Trade, 0)
	for _, b := range bids {
		if b.Remaining.IsZero() {
			continue
		}
		for _, s := range asks {
			if b.Remaining.IsZero() {
				break // buyer satisfied
			}
			if s.Remaining.IsZero() {
				continue // exhausted earlier in this sweep, still resting
			}
			if s.Price.GreaterThan(b.MaxPrice) {
				// asks are ascending, nothing further can cross
				break
			}

			qty := decimal.Min(b.Remaining, s.Remaining)
			trades = append(trades, Trade{
				BuyerID:  b.ID,
				SellerID: s.ID,
				Quantity: qty,
				Price:    s.Price,
			})
			b.Remaining = b.Remaining.Sub(qty)
			s.Remaining = s.Remaining.Sub(qty)
		}
	}
	return trades, nil
}
