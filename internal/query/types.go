package query

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"PaperFolio/internal/ledger"
	fpmath "PaperFolio/internal/math"
	"PaperFolio/internal/state"
)

// Response DTOs for the query subjects. Amounts are decimal strings; the
// fixed-point scaling is an internal representation and never crosses this
// boundary. The HTTP facade reuses these shapes for its JSON rendering.

// PortfolioResponse represents account balances for API queries.
type PortfolioResponse struct {
	InitialBalance     string `json:"initial_balance"`
	TotalBalance       string `json:"total_balance"`
	AvailableBalance   string `json:"available_balance"`
	LockedBalance      string `json:"locked_balance"`
	TotalUnrealizedPnL string `json:"total_unrealized_pnl"`
	TotalRealizedPnL   string `json:"total_realized_pnl"`
	Equity             string `json:"equity"`
}

// PositionResponse represents one open position for API queries.
type PositionResponse struct {
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	Size          string   `json:"size"`
	EntryPrice    string   `json:"entry_price"`
	CurrentPrice  string   `json:"current_price"`
	UnrealizedPnL string   `json:"unrealized_pnl"`
	StopLoss      *string  `json:"stop_loss,omitempty"`
	TakeProfits   []string `json:"take_profits,omitempty"`
}

// TradeResponse represents one executed trade for API queries.
type TradeResponse struct {
	TradeID      string `json:"trade_id"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Quantity     string `json:"quantity"`
	Price        string `json:"price"`
	Fee          string `json:"fee"`
	Slippage     string `json:"slippage"`
	ExecutedAtMs int64  `json:"executed_at_ms"`
	OrderID      string `json:"order_id,omitempty"`
	SignalID     string `json:"signal_id,omitempty"`
}

// PerformanceResponse represents derived trading metrics for API queries.
type PerformanceResponse struct {
	TotalTrades        int     `json:"total_trades"`
	WinningTrades      int     `json:"winning_trades"`
	LosingTrades       int     `json:"losing_trades"`
	WinRate            float64 `json:"win_rate"`
	AverageWin         string  `json:"average_win"`
	AverageLoss        string  `json:"average_loss"`
	LargestWin         string  `json:"largest_win"`
	LargestLoss        string  `json:"largest_loss"`
	ProfitFactor       float64 `json:"profit_factor"`
	TotalReturn        string  `json:"total_return"`
	TotalReturnPercent float64 `json:"total_return_percent"`
	TotalFees          string  `json:"total_fees"`
	TotalVolume        string  `json:"total_volume"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	CurrentDrawdown    float64 `json:"current_drawdown"`
}

// SnapshotResponse is the composite full-state reply.
type SnapshotResponse struct {
	Portfolio   PortfolioResponse   `json:"portfolio"`
	Positions   []PositionResponse  `json:"positions"`
	Trades      []TradeResponse     `json:"trades"`
	Performance PerformanceResponse `json:"performance"`
	TimestampMs int64               `json:"timestamp_ms"`
}

// --- domain -> DTO ---

func NewPortfolioResponse(p state.Portfolio) PortfolioResponse {
	return PortfolioResponse{
		InitialBalance:     fpmath.FormatQuote(p.InitialBalance),
		TotalBalance:       fpmath.FormatQuote(p.TotalBalance),
		AvailableBalance:   fpmath.FormatQuote(p.AvailableBalance),
		LockedBalance:      fpmath.FormatQuote(p.LockedBalance),
		TotalUnrealizedPnL: fpmath.FormatQuote(p.TotalUnrealizedPnL),
		TotalRealizedPnL:   fpmath.FormatQuote(p.TotalRealizedPnL),
		Equity:             fpmath.FormatQuote(p.Equity()),
	}
}

func NewPositionResponse(p ledger.Position) PositionResponse {
	r := PositionResponse{
		Symbol:        p.Symbol,
		Side:          p.Side.String(),
		Size:          fpmath.FormatQuantity(p.Size),
		EntryPrice:    fpmath.FormatPrice(p.EntryPrice),
		CurrentPrice:  fpmath.FormatPrice(p.CurrentPrice),
		UnrealizedPnL: fpmath.FormatQuote(p.UnrealizedPnL),
	}
	if p.StopLoss != nil {
		sl := fpmath.FormatPrice(*p.StopLoss)
		r.StopLoss = &sl
	}
	for _, tp := range p.TakeProfits {
		r.TakeProfits = append(r.TakeProfits, fpmath.FormatPrice(tp))
	}
	return r
}

func NewPositionResponses(ps []ledger.Position) []PositionResponse {
	out := make([]PositionResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, NewPositionResponse(p))
	}
	return out
}

func NewTradeResponse(t ledger.Trade) TradeResponse {
	r := TradeResponse{
		TradeID:      t.ID.String(),
		Symbol:       t.Symbol,
		Side:         t.Side.String(),
		Quantity:     fpmath.FormatQuantity(t.Quantity),
		Price:        fpmath.FormatPrice(t.Price),
		Fee:          fpmath.FormatQuote(t.Fee),
		Slippage:     fpmath.FormatQuote(t.Slippage),
		ExecutedAtMs: t.ExecutedAt.UnixMilli(),
	}
	if t.OrderID != nil {
		r.OrderID = t.OrderID.String()
	}
	if t.SignalID != nil {
		r.SignalID = *t.SignalID
	}
	return r
}

func NewTradeResponses(ts []ledger.Trade) []TradeResponse {
	out := make([]TradeResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, NewTradeResponse(t))
	}
	return out
}

func NewPerformanceResponse(p ledger.Performance) PerformanceResponse {
	return PerformanceResponse{
		TotalTrades:        p.TotalTrades,
		WinningTrades:      p.WinningTrades,
		LosingTrades:       p.LosingTrades,
		WinRate:            p.WinRate,
		AverageWin:         fpmath.FormatQuote(p.AverageWin),
		AverageLoss:        fpmath.FormatQuote(p.AverageLoss),
		LargestWin:         fpmath.FormatQuote(p.LargestWin),
		LargestLoss:        fpmath.FormatQuote(p.LargestLoss),
		ProfitFactor:       p.ProfitFactor,
		TotalReturn:        fpmath.FormatQuote(p.TotalReturn),
		TotalReturnPercent: p.TotalReturnPercent,
		TotalFees:          fpmath.FormatQuote(p.TotalFees),
		TotalVolume:        fpmath.FormatQuote(p.TotalVolume),
		MaxDrawdown:        p.MaxDrawdown,
		CurrentDrawdown:    p.CurrentDrawdown,
	}
}

func NewSnapshotResponse(snap state.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		Portfolio:   NewPortfolioResponse(snap.Portfolio),
		Positions:   NewPositionResponses(snap.Positions),
		Trades:      NewTradeResponses(snap.Trades),
		Performance: NewPerformanceResponse(snap.Performance),
		TimestampMs: snap.AsOf.UnixMilli(),
	}
}

// --- DTO -> domain ---

func (r PortfolioResponse) ToPortfolio() (state.Portfolio, error) {
	var p state.Portfolio
	var err error
	if p.InitialBalance, err = fpmath.ParseQuote(r.InitialBalance); err != nil {
		return p, fmt.Errorf("initial_balance: %w", err)
	}
	if p.TotalBalance, err = fpmath.ParseQuote(r.TotalBalance); err != nil {
		return p, fmt.Errorf("total_balance: %w", err)
	}
	if p.AvailableBalance, err = fpmath.ParseQuote(r.AvailableBalance); err != nil {
		return p, fmt.Errorf("available_balance: %w", err)
	}
	if p.LockedBalance, err = fpmath.ParseQuote(r.LockedBalance); err != nil {
		return p, fmt.Errorf("locked_balance: %w", err)
	}
	if p.TotalUnrealizedPnL, err = fpmath.ParseQuote(r.TotalUnrealizedPnL); err != nil {
		return p, fmt.Errorf("total_unrealized_pnl: %w", err)
	}
	if p.TotalRealizedPnL, err = fpmath.ParseQuote(r.TotalRealizedPnL); err != nil {
		return p, fmt.Errorf("total_realized_pnl: %w", err)
	}
	return p, nil
}

func (r PositionResponse) ToPosition() (ledger.Position, error) {
	var p ledger.Position
	var err error
	p.Symbol = r.Symbol
	p.Side = ledger.ParsePositionSide(r.Side)
	if p.Size, err = fpmath.ParseQuantity(r.Size); err != nil {
		return p, fmt.Errorf("size: %w", err)
	}
	if p.EntryPrice, err = fpmath.ParsePrice(r.EntryPrice); err != nil {
		return p, fmt.Errorf("entry_price: %w", err)
	}
	if p.CurrentPrice, err = fpmath.ParsePrice(r.CurrentPrice); err != nil {
		return p, fmt.Errorf("current_price: %w", err)
	}
	if p.UnrealizedPnL, err = fpmath.ParseQuote(r.UnrealizedPnL); err != nil {
		return p, fmt.Errorf("unrealized_pnl: %w", err)
	}
	if r.StopLoss != nil {
		sl, err := fpmath.ParsePrice(*r.StopLoss)
		if err != nil {
			return p, fmt.Errorf("stop_loss: %w", err)
		}
		p.StopLoss = &sl
	}
	for i, tp := range r.TakeProfits {
		v, err := fpmath.ParsePrice(tp)
		if err != nil {
			return p, fmt.Errorf("take_profits[%d]: %w", i, err)
		}
		p.TakeProfits = append(p.TakeProfits, v)
	}
	return p, nil
}

func (r TradeResponse) ToTrade() (ledger.Trade, error) {
	var t ledger.Trade
	var err error
	if t.ID, err = uuid.Parse(r.TradeID); err != nil {
		return t, fmt.Errorf("trade_id: %w", err)
	}
	t.Symbol = r.Symbol
	if t.Side, err = ledger.ParseSide(r.Side); err != nil {
		return t, err
	}
	if t.Quantity, err = fpmath.ParseQuantity(r.Quantity); err != nil {
		return t, fmt.Errorf("quantity: %w", err)
	}
	if t.Price, err = fpmath.ParsePrice(r.Price); err != nil {
		return t, fmt.Errorf("price: %w", err)
	}
	if t.Fee, err = fpmath.ParseQuote(r.Fee); err != nil {
		return t, fmt.Errorf("fee: %w", err)
	}
	if t.Slippage, err = fpmath.ParseQuote(r.Slippage); err != nil {
		return t, fmt.Errorf("slippage: %w", err)
	}
	t.ExecutedAt = time.UnixMilli(r.ExecutedAtMs)
	if r.OrderID != "" {
		orderID, err := uuid.Parse(r.OrderID)
		if err != nil {
			return t, fmt.Errorf("order_id: %w", err)
		}
		t.OrderID = &orderID
	}
	if r.SignalID != "" {
		sig := r.SignalID
		t.SignalID = &sig
	}
	return t, nil
}

func (r PerformanceResponse) ToPerformance() (ledger.Performance, error) {
	var p ledger.Performance
	var err error
	p.TotalTrades = r.TotalTrades
	p.WinningTrades = r.WinningTrades
	p.LosingTrades = r.LosingTrades
	p.WinRate = r.WinRate
	if p.AverageWin, err = fpmath.ParseQuote(r.AverageWin); err != nil {
		return p, fmt.Errorf("average_win: %w", err)
	}
	if p.AverageLoss, err = fpmath.ParseQuote(r.AverageLoss); err != nil {
		return p, fmt.Errorf("average_loss: %w", err)
	}
	if p.LargestWin, err = fpmath.ParseQuote(r.LargestWin); err != nil {
		return p, fmt.Errorf("largest_win: %w", err)
	}
	if p.LargestLoss, err = fpmath.ParseQuote(r.LargestLoss); err != nil {
		return p, fmt.Errorf("largest_loss: %w", err)
	}
	p.ProfitFactor = r.ProfitFactor
	if p.TotalReturn, err = fpmath.ParseQuote(r.TotalReturn); err != nil {
		return p, fmt.Errorf("total_return: %w", err)
	}
	p.TotalReturnPercent = r.TotalReturnPercent
	if p.TotalFees, err = fpmath.ParseQuote(r.TotalFees); err != nil {
		return p, fmt.Errorf("total_fees: %w", err)
	}
	if p.TotalVolume, err = fpmath.ParseQuote(r.TotalVolume); err != nil {
		return p, fmt.Errorf("total_volume: %w", err)
	}
	p.MaxDrawdown = r.MaxDrawdown
	p.CurrentDrawdown = r.CurrentDrawdown
	return p, nil
}

func (r SnapshotResponse) ToSnapshot() (state.Snapshot, error) {
	portfolio, err := r.Portfolio.ToPortfolio()
	if err != nil {
		return state.Snapshot{}, err
	}

	positions := make([]ledger.Position, 0, len(r.Positions))
	for i, pr := range r.Positions {
		p, err := pr.ToPosition()
		if err != nil {
			return state.Snapshot{}, fmt.Errorf("positions[%d]: %w", i, err)
		}
		positions = append(positions, p)
	}

	trades := make([]ledger.Trade, 0, len(r.Trades))
	for i, tr := range r.Trades {
		t, err := tr.ToTrade()
		if err != nil {
			return state.Snapshot{}, fmt.Errorf("trades[%d]: %w", i, err)
		}
		trades = append(trades, t)
	}

	performance, err := r.Performance.ToPerformance()
	if err != nil {
		return state.Snapshot{}, err
	}

	return state.Snapshot{
		Portfolio:   portfolio,
		Positions:   positions,
		Trades:      trades,
		Performance: performance,
		AsOf:        time.UnixMilli(r.TimestampMs),
	}, nil
}
