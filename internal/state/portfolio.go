package state

import (
	"time"

	"PaperFolio/internal/ledger"
)

// Portfolio holds the virtual balances of one session, all in the quote
// currency at quote scale. TotalBalance moves only with realized P&L;
// unrealized P&L enters equity alone.
type Portfolio struct {
	InitialBalance     int64
	TotalBalance       int64
	AvailableBalance   int64
	LockedBalance      int64
	TotalUnrealizedPnL int64
	TotalRealizedPnL   int64
}

// Equity is the mark-to-market account value.
func (p Portfolio) Equity() int64 {
	return p.TotalBalance + p.TotalUnrealizedPnL
}

// BalanceDelta is a partial balance update. Nil fields are left untouched
// by a merge.
type BalanceDelta struct {
	TotalBalance       *int64
	AvailableBalance   *int64
	LockedBalance      *int64
	TotalUnrealizedPnL *int64
	TotalRealizedPnL   *int64
}

// Snapshot is a complete, self-consistent copy of the session state.
// Returned copies share no memory with the store.
type Snapshot struct {
	Portfolio   Portfolio
	Positions   []ledger.Position
	Trades      []ledger.Trade
	Performance ledger.Performance
	AsOf        time.Time
}

func clonePosition(p ledger.Position) ledger.Position {
	cp := p
	if p.StopLoss != nil {
		v := *p.StopLoss
		cp.StopLoss = &v
	}
	if len(p.TakeProfits) > 0 {
		cp.TakeProfits = append([]int64(nil), p.TakeProfits...)
	}
	return cp
}
