// Package quote keeps a read-side snapshot of market state so reporting
// endpoints never have to touch the engine on the hot path.
package quote

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grainex/exchange-core/internal/engine"
)

// Snapshot is the latest observed market state.
type Snapshot struct {
	LastPrice  decimal.Decimal
	HasTraded  bool
	TradeCount int
	BidDepth   decimal.Decimal // total resting buy quantity
	AskDepth   decimal.Decimal // total resting sell quantity
	UpdatedAt  time.Time
}

// Cache stores the latest snapshot in memory.
type Cache struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) Set(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
}

func (c *Cache) Get() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// StartRefresher periodically rebuilds the snapshot from the engine.
func StartRefresher(ctx context.Context, eng *engine.Engine, cache *Cache, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refreshOnce(ctx, eng, cache, log)

	for {
		select {
		case <-ticker.C:
			refreshOnce(ctx, eng, cache, log)
		case <-ctx.Done():
			return
		}
	}
}

func refreshOnce(ctx context.Context, eng *engine.Engine, cache *Cache, log *zap.Logger) {
	view, err := eng.Book(ctx)
	if err != nil {
		log.Warn("quote refresh: book snapshot failed", zap.Error(err))
		return
	}
	trades, err := eng.Trades(ctx)
	if err != nil {
		log.Warn("quote refresh: trade history failed", zap.Error(err))
		return
	}
	cache.Set(Build(view, trades))
}

// Build derives a snapshot from a book view and the trade history.
func Build(view engine.BookView, trades []engine.Trade) Snapshot {
	snap := Snapshot{
		BidDepth:   decimal.Zero,
		AskDepth:   decimal.Zero,
		TradeCount: len(trades),
		UpdatedAt:  time.Now().UTC(),
	}
	for _, o := range view.Bids {
		snap.BidDepth = snap.BidDepth.Add(o.Remaining)
	}
	for _, o := range view.Asks {
		snap.AskDepth = snap.AskDepth.Add(o.Remaining)
	}
	if len(trades) > 0 {
		snap.LastPrice = trades[len(trades)-1].Price
		snap.HasTraded = true
	}
	return snap
}
