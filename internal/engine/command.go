package engine

type CommandType int

const (
	CmdSubmitBuy CommandType = iota
	CmdSubmitSell
	CmdMatch
	CmdTrades
	CmdBook
)

// Command is one operation routed through the engine loop. The loop is the
// only goroutine that touches the book and ledger, which is what makes the
// match/submit exclusivity contract hold.
type Command struct {
	Type CommandType
	Buy  *BuyOrder  // CmdSubmitBuy
	Sell *SellOrder // CmdSubmitSell
	Resp chan any
}

type submitReply struct {
	Err error
}

type matchReply struct {
	Trades []Trade
	Err    error
}

type tradesReply struct {
	Trades []Trade
}

// BookView is a value-copy snapshot of the resting book, safe to hand to
// readers while the loop keeps mutating the live orders.
type BookView struct {
	Bids []BuyOrder
	Asks []SellOrder
}
