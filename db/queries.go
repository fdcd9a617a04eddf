// Package db holds the persistence layer: a pgx pool plus hand-written
// queries following the sqlc shape (New / WithTx / typed params).
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const insertBuyOrder = `
INSERT INTO buy_orders (id, quantity, remaining_quantity, max_price_per_unit, seq, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

type InsertBuyOrderParams struct {
	ID        pgtype.UUID
	Quantity  pgtype.Numeric
	Remaining pgtype.Numeric
	MaxPrice  pgtype.Numeric
	Seq       int64
	CreatedAt pgtype.Timestamptz
}

func (q *Queries) InsertBuyOrder(ctx context.Context, arg InsertBuyOrderParams) error {
	_, err := q.db.Exec(ctx, insertBuyOrder,
		arg.ID, arg.Quantity, arg.Remaining, arg.MaxPrice, arg.Seq, arg.CreatedAt)
	return err
}

const insertSellOrder = `
INSERT INTO sell_orders (id, quantity, remaining_quantity, price_per_unit, seq, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

type InsertSellOrderParams struct {
	ID        pgtype.UUID
	Quantity  pgtype.Numeric
	Remaining pgtype.Numeric
	Price     pgtype.Numeric
	Seq       int64
	CreatedAt pgtype.Timestamptz
}

func (q *Queries) InsertSellOrder(ctx context.Context, arg InsertSellOrderParams) error {
	_, err := q.db.Exec(ctx, insertSellOrder,
		arg.ID, arg.Quantity, arg.Remaining, arg.Price, arg.Seq, arg.CreatedAt)
	return err
}

const setBuyOrderRemaining = `
UPDATE buy_orders SET remaining_quantity = $2 WHERE id = $1`

func (q *Queries) SetBuyOrderRemaining(ctx context.Context, id pgtype.UUID, remaining pgtype.Numeric) error {
	_, err := q.db.Exec(ctx, setBuyOrderRemaining, id, remaining)
	return err
}

const setSellOrderRemaining = `
UPDATE sell_orders SET remaining_quantity = $2 WHERE id = $1`

func (q *Queries) SetSellOrderRemaining(ctx context.Context, id pgtype.UUID, remaining pgtype.Numeric) error {
	_, err := q.db.Exec(ctx, setSellOrderRemaining, id, remaining)
	return err
}

const insertTrade = `
INSERT INTO trades (id, buyer_order_id, seller_order_id, quantity, price, executed_at)
VALUES ($1, $2, $3, $4, $5, $6)`

type InsertTradeParams struct {
	ID            int64
	BuyerOrderID  pgtype.UUID
	SellerOrderID pgtype.UUID
	Quantity      pgtype.Numeric
	Price         pgtype.Numeric
	ExecutedAt    pgtype.Timestamptz
}

func (q *Queries) InsertTrade(ctx context.Context, arg InsertTradeParams) error {
	_, err := q.db.Exec(ctx, insertTrade,
		arg.ID, arg.BuyerOrderID, arg.SellerOrderID, arg.Quantity, arg.Price, arg.ExecutedAt)
	return err
}

const listOpenBuyOrders = `
SELECT id, quantity, remaining_quantity, max_price_per_unit, seq, created_at
FROM buy_orders
WHERE remaining_quantity > 0
ORDER BY seq`

type BuyOrderRow struct {
	ID        pgtype.UUID
	Quantity  pgtype.Numeric
	Remaining pgtype.Numeric
	MaxPrice  pgtype.Numeric
	Seq       int64
	CreatedAt pgtype.Timestamptz
}

func (q *Queries) ListOpenBuyOrders(ctx context.Context) ([]BuyOrderRow, error) {
	rows, err := q.db.Query(ctx, listOpenBuyOrders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BuyOrderRow
	for rows.Next() {
		var r BuyOrderRow
		if err := rows.Scan(&r.ID, &r.Quantity, &r.Remaining, &r.MaxPrice, &r.Seq, &r.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const listOpenSellOrders = `
SELECT id, quantity, remaining_quantity, price_per_unit, seq, created_at
FROM sell_orders
WHERE remaining_quantity > 0
ORDER BY seq`

type SellOrderRow struct {
	ID        pgtype.UUID
	Quantity  pgtype.Numeric
	Remaining pgtype.Numeric
	Price     pgtype.Numeric
	Seq       int64
	CreatedAt pgtype.Timestamptz
}

func (q *Queries) ListOpenSellOrders(ctx context.Context) ([]SellOrderRow, error) {
	rows, err := q.db.Query(ctx, listOpenSellOrders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SellOrderRow
	for rows.Next() {
		var r SellOrderRow
		if err := rows.Scan(&r.ID, &r.Quantity, &r.Remaining, &r.Price, &r.Seq, &r.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const listTrades = `
SELECT id, buyer_order_id, seller_order_id, quantity, price, executed_at
FROM trades
ORDER BY id`

type TradeRow struct {
	ID            int64
	BuyerOrderID  pgtype.UUID
	SellerOrderID pgtype.UUID
	Quantity      pgtype.Numeric
	Price         pgtype.Numeric
	ExecutedAt    pgtype.Timestamptz
}

func (q *Queries) ListTrades(ctx context.Context) ([]TradeRow, error) {
	rows, err := q.db.Query(ctx, listTrades)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TradeRow
	for rows.Next() {
		var r TradeRow
		if err := rows.Scan(&r.ID, &r.BuyerOrderID, &r.SellerOrderID, &r.Quantity, &r.Price, &r.ExecutedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
