package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grainex/exchange-core/db"
)

func startEngine(t *testing.T) (*Engine, context.Context) {
	t.Helper()
	eng := NewEngine(16, nil, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go eng.Run(ctx)
	return eng, ctx
}

func TestEngineSubmitMatchAndHistory(t *testing.T) {
	eng, ctx := startEngine(t)

	require.NoError(t, eng.SubmitSell(ctx, mustSell(t, "S1", "3", "8")))
	require.NoError(t, eng.SubmitSell(ctx, mustSell(t, "S2", "5", "9")))
	require.NoError(t, eng.SubmitBuy(ctx, mustBuy(t, "B1", "5", "10")))

	trades, err := eng.RunMatch(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(1), trades[0].ID)
	assert.Equal(t, int64(2), trades[1].ID)
	assert.Equal(t, "S1", trades[0].SellerID)
	assert.Equal(t, "S2", trades[1].SellerID)

	history, err := eng.Trades(ctx)
	require.NoError(t, err)
	assert.Equal(t, trades, history)

	// nothing left to cross
	again, err := eng.RunMatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestEngineRejectsInvalidSubmission(t *testing.T) {
	eng, ctx := startEngine(t)

	bad := &BuyOrder{ID: "B1", Quantity: decimal.Zero, Remaining: decimal.Zero, MaxPrice: decimal.NewFromInt(5)}
	err := eng.SubmitBuy(ctx, bad)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	view, err := eng.Book(ctx)
	require.NoError(t, err)
	assert.Empty(t, view.Bids)
}

func TestEngineBookViewIsDetached(t *testing.T) {
	eng, ctx := startEngine(t)
	require.NoError(t, eng.SubmitBuy(ctx, mustBuy(t, "B1", "4", "7")))

	view, err := eng.Book(ctx)
	require.NoError(t, err)
	require.Len(t, view.Bids, 1)

	view.Bids[0].Remaining = decimal.Zero

	fresh, err := eng.Book(ctx)
	require.NoError(t, err)
	assert.True(t, fresh.Bids[0].Remaining.Equal(decimal.NewFromInt(4)),
		"mutating a view must not reach the live book")
}

// Concurrent submitters and matchers all funnel through the loop; totals
// still conserve.
func TestEngineSerializesConcurrentCallers(t *testing.T) {
	eng, ctx := startEngine(t)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			o := &SellOrder{ID: sellID(i), Quantity: decimal.NewFromInt(1), Remaining: decimal.NewFromInt(1), Price: decimal.NewFromInt(5)}
			assert.NoError(t, eng.SubmitSell(ctx, o))
		}(i)
		go func(i int) {
			defer wg.Done()
			o := &BuyOrder{ID: buyID(i), Quantity: decimal.NewFromInt(1), Remaining: decimal.NewFromInt(1), MaxPrice: decimal.NewFromInt(5)}
			assert.NoError(t, eng.SubmitBuy(ctx, o))
		}(i)
	}
	wg.Wait()

	trades, err := eng.RunMatch(ctx)
	require.NoError(t, err)
	require.Len(t, trades, n)

	total := decimal.Zero
	for _, tr := range trades {
		total = total.Add(tr.Quantity)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(n)))
}

func sellID(i int) string { return "S-" + string(rune('a'+i%26)) + string(rune('a'+i/26)) }
func buyID(i int) string  { return "B-" + string(rune('a'+i%26)) + string(rune('a'+i/26)) }

// failing transaction plumbing for the rollback path

type beginFailer struct{ err error }

func (b beginFailer) Begin(ctx context.Context) (pgx.Tx, error) { return nil, b.err }

type txSupplier struct{ tx pgx.Tx }

func (s txSupplier) Begin(ctx context.Context) (pgx.Tx, error) { return s.tx, nil }

// execFailTx fails every statement; Rollback succeeds so the deferred
// cleanup in persistMatch runs clean.
type execFailTx struct{ err error }

func (tx *execFailTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, tx.err }
func (tx *execFailTx) Commit(ctx context.Context) error          { return tx.err }
func (tx *execFailTx) Rollback(ctx context.Context) error        { return nil }
func (tx *execFailTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, tx.err
}
func (tx *execFailTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (tx *execFailTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (tx *execFailTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, tx.err
}
func (tx *execFailTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, tx.err
}
func (tx *execFailTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, tx.err
}
func (tx *execFailTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (tx *execFailTx) Conn() *pgx.Conn                                               { return nil }

// A commit that cannot go through must leave residuals and the ledger
// exactly as they were, and the same match must replay cleanly once
// persistence recovers.
func TestFailedCommitLeavesBookAndLedgerUntouched(t *testing.T) {
	const (
		buyerID  = "6f1f3b0a-9c44-4d3e-9e55-1a2b3c4d5e6f"
		sellerID = "c0a8012b-7e4d-4f0a-8b1e-2f3a4b5c6d7e"
	)

	cases := []struct {
		name string
		pool txBeginner
	}{
		{"begin fails", beginFailer{err: errors.New("pool exhausted")}},
		{"statement fails", txSupplier{tx: &execFailTx{err: errors.New("disk full")}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := NewEngine(1, nil, nil, zap.NewNop())
			b := mustBuy(t, buyerID, "5", "10")
			s := mustSell(t, sellerID, "3", "8")
			require.NoError(t, eng.book.AddBuy(b))
			require.NoError(t, eng.book.AddSell(s))

			eng.pool = tc.pool
			eng.queries = db.New(nil) // statements go through the injected tx

			trades, err := eng.handleMatch(context.Background())
			require.Error(t, err)
			assert.Nil(t, trades)

			assert.True(t, b.Remaining.Equal(decimal.NewFromInt(5)),
				"buyer residual not restored: %s", b.Remaining)
			assert.True(t, s.Remaining.Equal(decimal.NewFromInt(3)),
				"seller residual not restored: %s", s.Remaining)
			assert.Zero(t, eng.ledger.Len(), "failed commit reached the ledger")

			// persistence recovers: the retry recomputes the same trade
			// with the same id, so nothing was double-spent or skipped
			eng.pool = nil
			eng.queries = nil
			replay, err := eng.handleMatch(context.Background())
			require.NoError(t, err)
			require.Len(t, replay, 1)
			assert.Equal(t, int64(1), replay[0].ID)
			assert.Equal(t, buyerID, replay[0].BuyerID)
			assert.True(t, replay[0].Quantity.Equal(decimal.NewFromInt(3)))
		})
	}
}

func TestEngineStopsOnContextCancel(t *testing.T) {
	eng := NewEngine(1, nil, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	cancel()
	<-eng.done

	_, err := eng.RunMatch(context.Background())
	assert.Error(t, err)
}
