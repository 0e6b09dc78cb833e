package ledger

import (
	fpmath "PaperFolio/internal/math"
)

// PositionSide represents net position direction
type PositionSide int32

const (
	PositionFlat PositionSide = iota
	PositionLong
	PositionShort
)

func (ps PositionSide) String() string {
	switch ps {
	case PositionFlat:
		return "flat"
	case PositionLong:
		return "long"
	case PositionShort:
		return "short"
	default:
		return "Unknown"
	}
}

// ParsePositionSide converts a wire side string to a PositionSide.
func ParsePositionSide(s string) PositionSide {
	switch s {
	case "long":
		return PositionLong
	case "short":
		return PositionShort
	default:
		return PositionFlat
	}
}

// Position is the net open exposure for one symbol. A position with
// Size == 0 is removed, never retained as a zero row.
type Position struct {
	Symbol        string
	Side          PositionSide
	Size          int64 // > 0, quantity scale
	EntryPrice    int64 // Volume-weighted avg cost of the open quantity, price scale
	CurrentPrice  int64 // Latest mark, price scale
	UnrealizedPnL int64 // Quote scale
	StopLoss      *int64  // Nullable, price scale
	TakeProfits   []int64 // Ordered levels, price scale
}

// SideSign returns +1 for long, -1 for short, 0 for flat
func (p *Position) SideSign() int64 {
	switch p.Side {
	case PositionLong:
		return 1
	case PositionShort:
		return -1
	default:
		return 0
	}
}

// Mark updates the mark price and derived unrealized P&L. EntryPrice is
// never touched by a mark update.
func (p *Position) Mark(price int64) {
	p.CurrentPrice = price
	p.UnrealizedPnL = fpmath.ComputeUnrealizedPnL(p.SideSign(), price, p.EntryPrice, p.Size)
}
