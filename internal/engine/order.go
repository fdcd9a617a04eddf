package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status describes where an order is in its fill lifecycle.
type Status string

const (
	StatusActive          Status = "ACTIVE"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
)

// SellOrder is a resting commitment to sell at a fixed per-unit price.
// Remaining is only ever decremented, by the matcher.
type SellOrder struct {
	ID        string
	Quantity  decimal.Decimal // as submitted
	Remaining decimal.Decimal
	Price     decimal.Decimal // per unit
	Seq       uint64          // submission sequence, price-tie key
	CreatedAt time.Time
}

// BuyOrder is a resting commitment to buy up to MaxPrice per unit.
type BuyOrder struct {
	ID        string
	Quantity  decimal.Decimal
	Remaining decimal.Decimal
	MaxPrice  decimal.Decimal // per unit, upper bound
	Seq       uint64
	CreatedAt time.Time
}

// NewSellOrder validates quantity and price up front so a bad order can
// never enter a priority view.
func NewSellOrder(id string, quantity, price decimal.Decimal) (*SellOrder, error) {
	if err := validateOrder(id, quantity, price); err != nil {
		return nil, err
	}
	return &SellOrder{
		ID:        id,
		Quantity:  quantity,
		Remaining: quantity,
		Price:     price,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewBuyOrder mirrors NewSellOrder for the bid side.
func NewBuyOrder(id string, quantity, maxPrice decimal.Decimal) (*BuyOrder, error) {
	if err := validateOrder(id, quantity, maxPrice); err != nil {
		return nil, err
	}
	return &BuyOrder{
		ID:        id,
		Quantity:  quantity,
		Remaining: quantity,
		MaxPrice:  maxPrice,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func validateOrder(id string, quantity, price decimal.Decimal) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidOrder)
	}
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidOrder, quantity)
	}
	if price.Sign() < 0 {
		return fmt.Errorf("%w: price must be non-negative, got %s", ErrInvalidOrder, price)
	}
	return nil
}

func (o *SellOrder) Status() Status { return fillStatus(o.Quantity, o.Remaining) }
func (o *BuyOrder) Status() Status  { return fillStatus(o.Quantity, o.Remaining) }

func fillStatus(quantity, remaining decimal.Decimal) Status {
	switch {
	case remaining.IsZero():
		return StatusFilled
	case remaining.LessThan(quantity):
		return StatusPartiallyFilled
	default:
		return StatusActive
	}
}
