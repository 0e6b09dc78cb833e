package ledger

import (
	"sort"

	fpmath "PaperFolio/internal/math"
)

// Result is the full output of one ledger computation.
type Result struct {
	// Positions holds the remaining open position per symbol. Symbols whose
	// net quantity reached zero are absent.
	Positions map[string]Position

	// Samples are all realized-P&L samples in symbol-chronological order,
	// merged across symbols by execution time.
	Samples []RealizedSample

	Performance Performance
}

// Compute replays a trade history into open positions, realized-P&L samples
// and aggregate performance. Pure: no hidden state, same input yields the
// same output. The input need not be sorted — trades are resorted by
// ExecutedAt ascending per symbol before processing, so the result depends
// only on symbol-chronological order.
func Compute(trades []Trade, initialBalance int64) Result {
	bySymbol := make(map[string][]Trade)
	var symbols []string
	for _, t := range trades {
		if t.Validate() != nil {
			continue
		}
		if _, seen := bySymbol[t.Symbol]; !seen {
			symbols = append(symbols, t.Symbol)
		}
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
	}
	sort.Strings(symbols)

	result := Result{Positions: make(map[string]Position)}
	var totalFees, totalVolume int64

	for _, symbol := range symbols {
		symTrades := bySymbol[symbol]
		sort.SliceStable(symTrades, func(i, j int) bool {
			return symTrades[i].ExecutedAt.Before(symTrades[j].ExecutedAt)
		})

		book := symbolBook{symbol: symbol}
		for _, t := range symTrades {
			result.Samples = append(result.Samples, book.apply(t)...)
			totalFees += t.Fee
			totalVolume += fpmath.ComputeNotional(t.Quantity, t.Price)
		}

		if pos, open := book.position(); open {
			result.Positions[symbol] = pos
		}
	}

	sort.SliceStable(result.Samples, func(i, j int) bool {
		return result.Samples[i].ExecutedAt.Before(result.Samples[j].ExecutedAt)
	})

	result.Performance = aggregate(result.Samples, totalFees, totalVolume, initialBalance)
	return result
}

// symbolBook is the running per-symbol state while replaying trades:
// a signed net quantity (positive = long, negative = short) and the
// volume-weighted average cost of the open quantity.
type symbolBook struct {
	symbol    string
	net       int64 // Signed, quantity scale
	avgPrice  int64 // Price scale, 0 when flat
	lastPrice int64 // Price of the most recent trade, used as the mark
}

// apply processes one trade and returns the realized samples it produced
// (at most one — a crossing closes and reopens within a single step).
func (b *symbolBook) apply(t Trade) []RealizedSample {
	signed := t.Quantity
	if t.Side == SideSell {
		signed = -t.Quantity
	}
	b.lastPrice = t.Price

	// Same direction (or flat): the whole quantity opens/extends.
	if b.net == 0 || (b.net > 0) == (signed > 0) {
		b.avgPrice = fpmath.ComputeAvgEntryPrice(abs(b.net), b.avgPrice, t.Quantity, t.Price)
		b.net += signed
		return nil
	}

	// Opposite direction: close first, then any remainder opens the other side.
	matched := min64(t.Quantity, abs(b.net))
	sideSign := int64(1)
	if b.net < 0 {
		sideSign = -1
	}

	pnl := fpmath.ComputeRealizedPnL(sideSign, t.Price, b.avgPrice, matched)
	pnl -= fpmath.ApportionFee(t.Fee, matched, t.Quantity)

	sample := RealizedSample{
		Symbol:     b.symbol,
		TradeID:    t.ID,
		Quantity:   matched,
		PnL:        pnl,
		ExecutedAt: t.ExecutedAt,
	}

	remainder := t.Quantity - matched
	b.net += signed
	if b.net == 0 {
		b.avgPrice = 0
	}
	if remainder > 0 {
		// Crossed through zero: the opening sub-match carries the trade price
		// as the new cost basis. Both sub-matches happen within this one call.
		b.avgPrice = t.Price
	}

	return []RealizedSample{sample}
}

// position returns the remaining open position, if any.
func (b *symbolBook) position() (Position, bool) {
	if b.net == 0 {
		return Position{}, false
	}

	side := PositionLong
	if b.net < 0 {
		side = PositionShort
	}

	pos := Position{
		Symbol:     b.symbol,
		Side:       side,
		Size:       abs(b.net),
		EntryPrice: b.avgPrice,
	}
	pos.Mark(b.lastPrice)
	return pos, true
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
