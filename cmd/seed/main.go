package main

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/grainex/exchange-core/internal/engine"
)

// Small in-memory walkthrough of the matching core: two offers, one bid,
// one sweep.
func main() {
	book := engine.NewOrderBook()
	matcher := engine.NewMatcher(book)
	ledger := engine.NewTradeLedger()

	cheap, err := engine.NewSellOrder("offer-cheap", decimal.NewFromInt(3), decimal.NewFromInt(8))
	if err != nil {
		log.Fatal(err)
	}
	dear, err := engine.NewSellOrder("offer-dear", decimal.NewFromInt(5), decimal.NewFromInt(9))
	if err != nil {
		log.Fatal(err)
	}
	bid, err := engine.NewBuyOrder("bid-1", decimal.NewFromInt(5), decimal.NewFromInt(10))
	if err != nil {
		log.Fatal(err)
	}

	for _, e := range []error{book.AddSell(cheap), book.AddSell(dear), book.AddBuy(bid)} {
		if e != nil {
			log.Fatal(e)
		}
	}

	trades, err := matcher.Match()
	if err != nil {
		log.Fatal(err)
	}
	for _, tr := range ledger.Record(trades) {
		fmt.Printf("trade %d: %s <- %s qty=%s price=%s\n",
			tr.ID, tr.BuyerID, tr.SellerID, tr.Quantity, tr.Price)
	}
	fmt.Printf("residuals: bid=%s cheap=%s dear=%s\n",
		bid.Remaining, cheap.Remaining, dear.Remaining)
}
