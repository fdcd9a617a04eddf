package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grainex/exchange-core/db"
)

// txBeginner is the one capability the engine needs from the pool: opening
// the transaction that makes a match commit all-or-nothing.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Engine owns the order book and trade ledger and serializes every
// operation through a single command loop. With a nil pool it runs purely
// in memory; with a pool, each match commits its trades and residual
// decrements in one transaction before the in-memory state is allowed to
// stand.
type Engine struct {
	book    *OrderBook
	matcher *Matcher
	ledger  *TradeLedger
	cmds    chan Command
	done    chan struct{}

	pool    txBeginner
	queries *db.Queries
	log     *zap.Logger
}

func NewEngine(buffer int, pool *pgxpool.Pool, queries *db.Queries, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	var tb txBeginner
	if pool != nil {
		tb = pool
	}
	book := NewOrderBook()
	return &Engine{
		book:    book,
		matcher: NewMatcher(book),
		ledger:  NewTradeLedger(),
		cmds:    make(chan Command, buffer),
		done:    make(chan struct{}),
		pool:    tb,
		queries: queries,
		log:     log,
	}
}

// Reload rebuilds the book and ledger from storage. Call it before Run;
// open orders come back with their persisted sequence numbers so price
// ties resolve exactly as they would have before the restart.
func (e *Engine) Reload(ctx context.Context) error {
	if e.pool == nil || e.queries == nil {
		return nil
	}

	buys, err := e.queries.ListOpenBuyOrders(ctx)
	if err != nil {
		return fmt.Errorf("load buy orders: %w", err)
	}
	for _, r := range buys {
		o := &BuyOrder{
			ID:        uuidString(r.ID),
			Quantity:  decimalFromNumeric(r.Quantity),
			Remaining: decimalFromNumeric(r.Remaining),
			MaxPrice:  decimalFromNumeric(r.MaxPrice),
			Seq:       uint64(r.Seq),
			CreatedAt: r.CreatedAt.Time,
		}
		if err := e.book.RestoreBuy(o); err != nil {
			return err
		}
	}

	sells, err := e.queries.ListOpenSellOrders(ctx)
	if err != nil {
		return fmt.Errorf("load sell orders: %w", err)
	}
	for _, r := range sells {
		o := &SellOrder{
			ID:        uuidString(r.ID),
			Quantity:  decimalFromNumeric(r.Quantity),
			Remaining: decimalFromNumeric(r.Remaining),
			Price:     decimalFromNumeric(r.Price),
			Seq:       uint64(r.Seq),
			CreatedAt: r.CreatedAt.Time,
		}
		if err := e.book.RestoreSell(o); err != nil {
			return err
		}
	}

	rows, err := e.queries.ListTrades(ctx)
	if err != nil {
		return fmt.Errorf("load trade history: %w", err)
	}
	history := make([]Trade, len(rows))
	for i, r := range rows {
		history[i] = Trade{
			ID:         r.ID,
			BuyerID:    uuidString(r.BuyerOrderID),
			SellerID:   uuidString(r.SellerOrderID),
			Quantity:   decimalFromNumeric(r.Quantity),
			Price:      decimalFromNumeric(r.Price),
			ExecutedAt: r.ExecutedAt.Time,
		}
	}
	e.ledger.Restore(history)

	e.log.Info("state reloaded",
		zap.Int("open_bids", len(buys)),
		zap.Int("open_asks", len(sells)),
		zap.Int("trades", len(history)))
	return nil
}

// Run consumes commands until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)

	for {
		select {
		case cmd := <-e.cmds:
			switch cmd.Type {
			case CmdSubmitBuy:
				cmd.Resp <- submitReply{Err: e.handleSubmitBuy(ctx, cmd.Buy)}
			case CmdSubmitSell:
				cmd.Resp <- submitReply{Err: e.handleSubmitSell(ctx, cmd.Sell)}
			case CmdMatch:
				trades, err := e.handleMatch(ctx)
				cmd.Resp <- matchReply{Trades: trades, Err: err}
			case CmdTrades:
				cmd.Resp <- tradesReply{Trades: e.ledger.All()}
			case CmdBook:
				cmd.Resp <- e.handleBook()
			}
		case <-ctx.Done():
			return
		}
	}
}

// SubmitBuy places a bid into the book (and storage, when configured).
func (e *Engine) SubmitBuy(ctx context.Context, o *BuyOrder) error {
	v, err := e.send(ctx, Command{Type: CmdSubmitBuy, Buy: o})
	if err != nil {
		return err
	}
	return v.(submitReply).Err
}

// SubmitSell places an ask into the book (and storage, when configured).
func (e *Engine) SubmitSell(ctx context.Context, o *SellOrder) error {
	v, err := e.send(ctx, Command{Type: CmdSubmitSell, Sell: o})
	if err != nil {
		return err
	}
	return v.(submitReply).Err
}

// RunMatch sweeps the book once and returns the executed trades with their
// ledger ids assigned.
func (e *Engine) RunMatch(ctx context.Context) ([]Trade, error) {
	v, err := e.send(ctx, Command{Type: CmdMatch})
	if err != nil {
		return nil, err
	}
	r := v.(matchReply)
	return r.Trades, r.Err
}

// Trades returns the full ledger history.
func (e *Engine) Trades(ctx context.Context) ([]Trade, error) {
	v, err := e.send(ctx, Command{Type: CmdTrades})
	if err != nil {
		return nil, err
	}
	return v.(tradesReply).Trades, nil
}

// Book returns a value-copy snapshot of the resting orders.
func (e *Engine) Book(ctx context.Context) (BookView, error) {
	v, err := e.send(ctx, Command{Type: CmdBook})
	if err != nil {
		return BookView{}, err
	}
	return v.(BookView), nil
}

func (e *Engine) send(ctx context.Context, cmd Command) (any, error) {
	cmd.Resp = make(chan any, 1)
	select {
	case e.cmds <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, errEngineStopped
	}
	select {
	case v := <-cmd.Resp:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		// the loop may have replied right before exiting
		select {
		case v := <-cmd.Resp:
			return v, nil
		default:
			return nil, errEngineStopped
		}
	}
}

func (e *Engine) handleSubmitBuy(ctx context.Context, o *BuyOrder) error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if err := e.book.AddBuy(o); err != nil {
		return err
	}
	if e.queries == nil {
		return nil
	}
	id, err := uuidFromString(o.ID)
	if err != nil {
		e.book.removeBuy(o.ID)
		return fmt.Errorf("%w: id must be a uuid: %v", ErrInvalidOrder, err)
	}
	err = e.queries.InsertBuyOrder(ctx, db.InsertBuyOrderParams{
		ID:        id,
		Quantity:  numericFromDecimal(o.Quantity),
		Remaining: numericFromDecimal(o.Remaining),
		MaxPrice:  numericFromDecimal(o.MaxPrice),
		Seq:       int64(o.Seq),
		CreatedAt: timestamptz(o.CreatedAt),
	})
	if err != nil {
		e.book.removeBuy(o.ID)
		return fmt.Errorf("persist buy order: %w", err)
	}
	return nil
}

func (e *Engine) handleSubmitSell(ctx context.Context, o *SellOrder) error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if err := e.book.AddSell(o); err != nil {
		return err
	}
	if e.queries == nil {
		return nil
	}
	id, err := uuidFromString(o.ID)
	if err != nil {
		e.book.removeSell(o.ID)
		return fmt.Errorf("%w: id must be a uuid: %v", ErrInvalidOrder, err)
	}
	err = e.queries.InsertSellOrder(ctx, db.InsertSellOrderParams{
		ID:        id,
		Quantity:  numericFromDecimal(o.Quantity),
		Remaining: numericFromDecimal(o.Remaining),
		Price:     numericFromDecimal(o.Price),
		Seq:       int64(o.Seq),
		CreatedAt: timestamptz(o.CreatedAt),
	})
	if err != nil {
		e.book.removeSell(o.ID)
		return fmt.Errorf("persist sell order: %w", err)
	}
	return nil
}

// handleMatch runs one sweep and makes it stick all-or-nothing: the sweep
// mutates residuals in memory, then trades and decrements go to storage in
// a single transaction. If the commit fails the residuals are restored
// from the pre-sweep snapshot and the ledger is untouched, so a later
// match cannot double-spend quantity that was never durably consumed.
func (e *Engine) handleMatch(ctx context.Context) ([]Trade, error) {
	snap := e.book.snapshotRemaining()

	raw, err := e.matcher.Match()
	if err != nil {
		// precondition failure: the sweep mutated nothing
		return nil, err
	}

	stamped := e.ledger.stamp(raw)
	if len(stamped) > 0 && e.pool != nil && e.queries != nil {
		if err := e.persistMatch(ctx, stamped); err != nil {
			e.book.restoreRemaining(snap)
			return nil, err
		}
	}
	e.ledger.commit(stamped)

	if len(stamped) > 0 {
		e.log.Info("match executed", zap.Int("trades", len(stamped)))
	}
	return stamped, nil
}

func (e *Engine) persistMatch(ctx context.Context, trades []Trade) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	qtx := e.queries.WithTx(tx)
	touchedBuys := make(map[string]struct{})
	touchedSells := make(map[string]struct{})

	for _, tr := range trades {
		buyerID, err := uuidFromString(tr.BuyerID)
		if err != nil {
			return err
		}
		sellerID, err := uuidFromString(tr.SellerID)
		if err != nil {
			return err
		}
		err = qtx.InsertTrade(ctx, db.InsertTradeParams{
			ID:            tr.ID,
			BuyerOrderID:  buyerID,
			SellerOrderID: sellerID,
			Quantity:      numericFromDecimal(tr.Quantity),
			Price:         numericFromDecimal(tr.Price),
			ExecutedAt:    timestamptz(tr.ExecutedAt),
		})
		if err != nil {
			return fmt.Errorf("insert trade %d: %w", tr.ID, err)
		}
		touchedBuys[tr.BuyerID] = struct{}{}
		touchedSells[tr.SellerID] = struct{}{}
	}

	for id := range touchedBuys {
		o, ok := e.book.Buy(id)
		if !ok {
			return fmt.Errorf("matched buy order %q not in book", id)
		}
		pgID, err := uuidFromString(id)
		if err != nil {
			return err
		}
		if err := qtx.SetBuyOrderRemaining(ctx, pgID, numericFromDecimal(o.Remaining)); err != nil {
			return fmt.Errorf("update buy order %q: %w", id, err)
		}
	}
	for id := range touchedSells {
		o, ok := e.book.Sell(id)
		if !ok {
			return fmt.Errorf("matched sell order %q not in book", id)
		}
		pgID, err := uuidFromString(id)
		if err != nil {
			return err
		}
		if err := qtx.SetSellOrderRemaining(ctx, pgID, numericFromDecimal(o.Remaining)); err != nil {
			return fmt.Errorf("update sell order %q: %w", id, err)
		}
	}

	return tx.Commit(ctx)
}

func (e *Engine) handleBook() BookView {
	bids := e.book.Bids()
	asks := e.book.Asks()
	view := BookView{
		Bids: make([]BuyOrder, len(bids)),
		Asks: make([]SellOrder, len(asks)),
	}
	for i, o := range bids {
		view.Bids[i] = *o
	}
	for i, o := range asks {
		view.Asks[i] = *o
	}
	return view
}

func uuidFromString(id string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, err
	}
	var out pgtype.UUID
	out.Valid = true
	out.Bytes = parsed
	return out, nil
}

func uuidString(id pgtype.UUID) string {
	return uuid.UUID(id.Bytes).String()
}

func numericFromDecimal(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func decimalFromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
