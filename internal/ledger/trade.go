package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side represents trade direction
type Side int32

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "Unknown"
	}
}

// ParseSide converts a wire side string to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY", "buy":
		return SideBuy, nil
	case "SELL", "sell":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("unknown trade side: %q", s)
	}
}

// Trade is an immutable simulated execution record.
// Idempotency key: trade ID (UUID from the execution collaborator).
type Trade struct {
	ID         uuid.UUID
	Symbol     string
	Side       Side
	Quantity   int64 // Fixed-point: quantity scale
	Price      int64 // Fixed-point: price scale
	Fee        int64 // Fixed-point: quote scale
	Slippage   int64 // Fixed-point: quote scale, signed (execution cost vs. quote)
	ExecutedAt time.Time
	OrderID    *uuid.UUID // Nullable
	SignalID   *string    // Nullable
}

// Validate rejects structurally invalid executions. Opening a short via a
// SELL with no prior position is valid and so is not checked here.
func (t *Trade) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("trade missing id")
	}
	if t.Symbol == "" {
		return fmt.Errorf("trade %s: empty symbol", t.ID)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("trade %s: non-positive quantity %d", t.ID, t.Quantity)
	}
	if t.Price <= 0 {
		return fmt.Errorf("trade %s: non-positive price %d", t.ID, t.Price)
	}
	if t.Fee < 0 {
		return fmt.Errorf("trade %s: negative fee %d", t.ID, t.Fee)
	}
	return nil
}

// RealizedSample is one closing match: a (partial) position close with its
// locked-in P&L, fee share already subtracted.
type RealizedSample struct {
	Symbol     string
	TradeID    uuid.UUID
	Quantity   int64 // Closed quantity, quantity scale
	PnL        int64 // Quote scale
	ExecutedAt time.Time
}

// IsWin classifies the sample. Exactly zero P&L counts as a loss.
func (s RealizedSample) IsWin() bool {
	return s.PnL > 0
}
