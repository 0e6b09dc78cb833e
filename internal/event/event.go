// Package event defines the typed stream messages flowing from the upstream
// trading session into the portfolio synchronizer. Each message kind carries
// a concrete payload struct; consumers implement Handler and route through
// Dispatch, so adding a kind is a compile-visible change rather than a new
// string case.
package event

import (
	"fmt"
	"time"

	"PaperFolio/internal/ledger"
	"PaperFolio/internal/state"
)

// Kind tags a stream message.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInitialPortfolioData
	KindPortfolioUpdate
	KindPositionsUpdate
	KindTradeExecuted
	KindBalanceUpdate
	KindPositionUpdate
	KindMarkPriceUpdate
)

func (k Kind) String() string {
	switch k {
	case KindInitialPortfolioData:
		return "initial_portfolio_data"
	case KindPortfolioUpdate:
		return "portfolio_update"
	case KindPositionsUpdate:
		return "positions_update"
	case KindTradeExecuted:
		return "trade_executed"
	case KindBalanceUpdate:
		return "balance_update"
	case KindPositionUpdate:
		return "position_update"
	case KindMarkPriceUpdate:
		return "mark_price_update"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire tag back to its Kind. Unknown tags return KindUnknown.
func ParseKind(s string) Kind {
	for k := KindInitialPortfolioData; k <= KindMarkPriceUpdate; k++ {
		if k.String() == s {
			return k
		}
	}
	return KindUnknown
}

// Message is the tagged-union interface over all stream payloads. DedupKey
// returns a stable identity for messages that may be redelivered; the empty
// string means the message has no identity and is always applied.
type Message interface {
	Kind() Kind
	DedupKey() string
}

// InitialPortfolioData carries the full authoritative session state sent
// once after a subscription is established.
type InitialPortfolioData struct {
	Snapshot state.Snapshot
}

func (InitialPortfolioData) Kind() Kind       { return KindInitialPortfolioData }
func (InitialPortfolioData) DedupKey() string { return "" }

// PortfolioUpdate carries a balance delta, optionally together with the
// current position list.
type PortfolioUpdate struct {
	Balances  state.BalanceDelta
	Positions []ledger.Position
	At        time.Time
}

func (PortfolioUpdate) Kind() Kind       { return KindPortfolioUpdate }
func (PortfolioUpdate) DedupKey() string { return "" }

// PositionsUpdate replaces the whole open-position list.
type PositionsUpdate struct {
	Positions []ledger.Position
	At        time.Time
}

func (PositionsUpdate) Kind() Kind       { return KindPositionsUpdate }
func (PositionsUpdate) DedupKey() string { return "" }

// TradeExecuted reports one fill. Redeliveries share the trade ID.
type TradeExecuted struct {
	Trade ledger.Trade
}

func (TradeExecuted) Kind() Kind         { return KindTradeExecuted }
func (m TradeExecuted) DedupKey() string { return m.Trade.ID.String() }

// BalanceUpdate carries balance fields only; nil fields are left untouched.
type BalanceUpdate struct {
	Balances state.BalanceDelta
	At       time.Time
}

func (BalanceUpdate) Kind() Kind       { return KindBalanceUpdate }
func (BalanceUpdate) DedupKey() string { return "" }

// PositionUpdate upserts a single position; size zero removes it.
type PositionUpdate struct {
	Position ledger.Position
	At       time.Time
}

func (PositionUpdate) Kind() Kind       { return KindPositionUpdate }
func (PositionUpdate) DedupKey() string { return "" }

// MarkPriceUpdate refreshes the mark for one symbol.
type MarkPriceUpdate struct {
	Symbol string
	Price  int64 // Price scale
	At     time.Time
}

func (MarkPriceUpdate) Kind() Kind       { return KindMarkPriceUpdate }
func (MarkPriceUpdate) DedupKey() string { return "" }

// Handler receives dispatched messages, one method per kind.
type Handler interface {
	HandleInitialPortfolioData(InitialPortfolioData)
	HandlePortfolioUpdate(PortfolioUpdate)
	HandlePositionsUpdate(PositionsUpdate)
	HandleTradeExecuted(TradeExecuted)
	HandleBalanceUpdate(BalanceUpdate)
	HandlePositionUpdate(PositionUpdate)
	HandleMarkPriceUpdate(MarkPriceUpdate)
}

// Dispatch routes msg to the handler method matching its concrete type.
// A message type it does not know is an error, not a silent drop.
func Dispatch(msg Message, h Handler) error {
	switch m := msg.(type) {
	case InitialPortfolioData:
		h.HandleInitialPortfolioData(m)
	case PortfolioUpdate:
		h.HandlePortfolioUpdate(m)
	case PositionsUpdate:
		h.HandlePositionsUpdate(m)
	case TradeExecuted:
		h.HandleTradeExecuted(m)
	case BalanceUpdate:
		h.HandleBalanceUpdate(m)
	case PositionUpdate:
		h.HandlePositionUpdate(m)
	case MarkPriceUpdate:
		h.HandleMarkPriceUpdate(m)
	default:
		return fmt.Errorf("dispatch: unhandled message type %T", msg)
	}
	return nil
}
