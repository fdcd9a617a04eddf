package engine

import (
	"testing"

	"github.com/shopspring/decimal"
)

func someTrades(n int) []Trade {
	out := make([]Trade, n)
	for i := range out {
		out[i] = Trade{
			BuyerID:  "b1",
			SellerID: "s1",
			Quantity: decimal.NewFromInt(1),
			Price:    decimal.NewFromInt(int64(i + 1)),
		}
	}
	return out
}

func TestLedgerAssignsIncreasingIDs(t *testing.T) {
	l := NewTradeLedger()

	first := l.Record(someTrades(3))
	for i, tr := range first {
		if tr.ID != int64(i+1) {
			t.Fatalf("first batch id[%d] = %d, want %d", i, tr.ID, i+1)
		}
		if tr.ExecutedAt.IsZero() {
			t.Fatalf("trade %d missing timestamp", tr.ID)
		}
	}

	second := l.Record(someTrades(2))
	if second[0].ID != 4 || second[1].ID != 5 {
		t.Fatalf("second batch ids = %d, %d, want 4, 5", second[0].ID, second[1].ID)
	}

	if l.Len() != 5 {
		t.Fatalf("ledger holds %d trades, want 5", l.Len())
	}
}

func TestLedgerRestoreRebuildsHistory(t *testing.T) {
	stored := []Trade{
		{ID: 5, BuyerID: "b1", SellerID: "s1", Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(8)},
		{ID: 7, BuyerID: "b2", SellerID: "s1", Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(9)},
	}

	l := NewTradeLedger()
	l.Restore(stored)

	history := l.All()
	if len(history) != 2 {
		t.Fatalf("restored ledger reports %d trades, want 2", len(history))
	}
	if history[0].ID != 5 || history[1].ID != 7 {
		t.Fatalf("restored ids = %d, %d, want 5, 7", history[0].ID, history[1].ID)
	}
	if !history[0].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("restored quantity = %s, want 2", history[0].Quantity)
	}

	// new recording continues past the stored history
	next := l.Record(someTrades(1))
	if next[0].ID != 8 {
		t.Fatalf("post-restore id = %d, want 8", next[0].ID)
	}

	// restoring nothing must not move the counter backwards
	l.Restore(nil)
	if again := l.Record(someTrades(1)); again[0].ID != 9 {
		t.Fatalf("empty restore reused ids: got %d, want 9", again[0].ID)
	}
}

func TestLedgerAllReturnsCopy(t *testing.T) {
	l := NewTradeLedger()
	l.Record(someTrades(2))

	history := l.All()
	history[0].Quantity = decimal.NewFromInt(999)

	if !l.All()[0].Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatal("mutating the returned history changed the ledger")
	}
}

func TestLedgerEmptyRecord(t *testing.T) {
	l := NewTradeLedger()
	if got := l.Record(nil); len(got) != 0 {
		t.Fatalf("recording nothing returned %d trades", len(got))
	}
	alsoEmpty := l.Record(someTrades(1))
	if alsoEmpty[0].ID != 1 {
		t.Fatalf("empty record advanced the id counter: got %d", alsoEmpty[0].ID)
	}
}

func TestLedgerStampDoesNotAdvance(t *testing.T) {
	l := NewTradeLedger()
	stamped := l.stamp(someTrades(2))
	if stamped[0].ID != 1 || stamped[1].ID != 2 {
		t.Fatalf("stamp ids = %d, %d", stamped[0].ID, stamped[1].ID)
	}
	if l.Len() != 0 {
		t.Fatal("stamp must not append")
	}

	// a failed commit is simply never committed; the next stamp reuses ids
	stamped = l.stamp(someTrades(1))
	if stamped[0].ID != 1 {
		t.Fatalf("restamp id = %d, want 1", stamped[0].ID)
	}
	l.commit(stamped)
	if next := l.Record(someTrades(1)); next[0].ID != 2 {
		t.Fatalf("post-commit id = %d, want 2", next[0].ID)
	}
}
