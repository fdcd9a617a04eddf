package engine

import "time"

// TradeLedger is the append-only record of executed trades. Ids are
// strictly increasing in arrival order and are never reused; entries are
// never mutated or removed.
type TradeLedger struct {
	trades []Trade
	nextID int64
}

func NewTradeLedger() *TradeLedger {
	return &TradeLedger{nextID: 1}
}

// Restore replays an already-persisted history into the ledger and moves
// the id counter past the highest replayed id, so post-restart recording
// continues where the stored history ends. The counter only ever moves
// forward.
func (l *TradeLedger) Restore(trades []Trade) {
	l.trades = append(l.trades, trades...)
	for _, tr := range trades {
		if tr.ID >= l.nextID {
			l.nextID = tr.ID + 1
		}
	}
}

// Record assigns ids and timestamps to the trades of one match invocation
// and appends them, returning the stamped copies.
func (l *TradeLedger) Record(trades []Trade) []Trade {
	return l.commit(l.stamp(trades))
}

// All returns the full history in creation order. The slice is a copy;
// callers cannot reach the ledger's own entries through it.
func (l *TradeLedger) All() []Trade {
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

func (l *TradeLedger) Len() int { return len(l.trades) }

// stamp assigns ids and timestamps without advancing the ledger, so the
// engine can persist a match and only commit here once the transaction is
// through. The stamped ids are consumed by commit.
func (l *TradeLedger) stamp(trades []Trade) []Trade {
	now := time.Now().UTC()
	out := make([]Trade, len(trades))
	for i, tr := range trades {
		tr.ID = l.nextID + int64(i)
		tr.ExecutedAt = now
		out[i] = tr
	}
	return out
}

func (l *TradeLedger) commit(stamped []Trade) []Trade {
	l.trades = append(l.trades, stamped...)
	l.nextID += int64(len(stamped))
	return stamped
}
