package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"PaperFolio/internal/event"
	"PaperFolio/internal/ledger"
	fpmath "PaperFolio/internal/math"
	"PaperFolio/internal/state"
)

// ParseMessage converts a raw subject payload into a typed stream message.
// An error means the single message is dropped; it never kills the stream.
func ParseMessage(kind event.Kind, data []byte) (event.Message, error) {
	switch kind {
	case event.KindInitialPortfolioData:
		return parseInitialPortfolioData(data)
	case event.KindPortfolioUpdate:
		return parsePortfolioUpdate(data)
	case event.KindPositionsUpdate:
		return parsePositionsUpdate(data)
	case event.KindTradeExecuted:
		return parseTradeExecuted(data)
	case event.KindBalanceUpdate:
		return parseBalanceUpdate(data)
	case event.KindPositionUpdate:
		return parsePositionUpdate(data)
	case event.KindMarkPriceUpdate:
		return parseMarkPriceUpdate(data)
	default:
		return nil, fmt.Errorf("unknown message kind: %v", kind)
	}
}

// --- JSON wire formats ---
// Field names use snake_case and amounts travel as decimal strings, matching
// the upstream session producers. Scaling happens here, once, at the edge.

type tradeJSON struct {
	TradeID      string `json:"trade_id"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"` // "BUY" or "SELL"
	Quantity     string `json:"quantity"`
	Price        string `json:"price"`
	Fee          string `json:"fee,omitempty"`
	Slippage     string `json:"slippage,omitempty"`
	ExecutedAtMs int64  `json:"executed_at_ms"`
	OrderID      string `json:"order_id,omitempty"`
	SignalID     string `json:"signal_id,omitempty"`
}

type positionJSON struct {
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"` // "long" or "short"
	Size          string   `json:"size"`
	EntryPrice    string   `json:"entry_price"`
	CurrentPrice  string   `json:"current_price,omitempty"`
	UnrealizedPnL string   `json:"unrealized_pnl,omitempty"`
	StopLoss      *string  `json:"stop_loss,omitempty"`
	TakeProfits   []string `json:"take_profits,omitempty"`
}

type balancesJSON struct {
	TotalBalance       *string `json:"total_balance,omitempty"`
	AvailableBalance   *string `json:"available_balance,omitempty"`
	LockedBalance      *string `json:"locked_balance,omitempty"`
	TotalUnrealizedPnL *string `json:"total_unrealized_pnl,omitempty"`
	TotalRealizedPnL   *string `json:"total_realized_pnl,omitempty"`
}

type performanceJSON struct {
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

type snapshotJSON struct {
	Portfolio   balancesJSON     `json:"portfolio"`
	Positions   []positionJSON   `json:"positions"`
	Trades      []tradeJSON      `json:"trades"`
	Performance *performanceJSON `json:"performance,omitempty"`
	TimestampMs int64            `json:"timestamp_ms"`
}

type portfolioUpdateJSON struct {
	Balances    balancesJSON   `json:"balances"`
	Positions   []positionJSON `json:"positions,omitempty"`
	TimestampMs int64          `json:"timestamp_ms"`
}

type positionsUpdateJSON struct {
	Positions   []positionJSON `json:"positions"`
	TimestampMs int64          `json:"timestamp_ms"`
}

type positionUpdateJSON struct {
	Position    positionJSON `json:"position"`
	TimestampMs int64        `json:"timestamp_ms"`
}

type markPriceJSON struct {
	Symbol      string `json:"symbol"`
	Price       string `json:"price"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// --- parse functions ---

func parseInitialPortfolioData(data []byte) (event.Message, error) {
	var j snapshotJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse initial_portfolio_data: %w", err)
	}

	snap, err := parseSnapshot(j)
	if err != nil {
		return nil, fmt.Errorf("parse initial_portfolio_data: %w", err)
	}
	return event.InitialPortfolioData{Snapshot: snap}, nil
}

func parsePortfolioUpdate(data []byte) (event.Message, error) {
	var j portfolioUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse portfolio_update: %w", err)
	}

	balances, err := parseBalances(j.Balances)
	if err != nil {
		return nil, fmt.Errorf("parse portfolio_update: %w", err)
	}
	var positions []ledger.Position
	if j.Positions != nil {
		positions, err = parsePositions(j.Positions)
		if err != nil {
			return nil, fmt.Errorf("parse portfolio_update: %w", err)
		}
	}
	return event.PortfolioUpdate{
		Balances:  balances,
		Positions: positions,
		At:        time.UnixMilli(j.TimestampMs),
	}, nil
}

func parsePositionsUpdate(data []byte) (event.Message, error) {
	var j positionsUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse positions_update: %w", err)
	}
	positions, err := parsePositions(j.Positions)
	if err != nil {
		return nil, fmt.Errorf("parse positions_update: %w", err)
	}
	return event.PositionsUpdate{
		Positions: positions,
		At:        time.UnixMilli(j.TimestampMs),
	}, nil
}

func parseTradeExecuted(data []byte) (event.Message, error) {
	var j tradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse trade_executed: %w", err)
	}
	trade, err := parseTrade(j)
	if err != nil {
		return nil, fmt.Errorf("parse trade_executed: %w", err)
	}
	return event.TradeExecuted{Trade: trade}, nil
}

func parseBalanceUpdate(data []byte) (event.Message, error) {
	var j struct {
		Balances    balancesJSON `json:"balances"`
		TimestampMs int64        `json:"timestamp_ms"`
	}
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse balance_update: %w", err)
	}
	balances, err := parseBalances(j.Balances)
	if err != nil {
		return nil, fmt.Errorf("parse balance_update: %w", err)
	}
	return event.BalanceUpdate{
		Balances: balances,
		At:       time.UnixMilli(j.TimestampMs),
	}, nil
}

func parsePositionUpdate(data []byte) (event.Message, error) {
	var j positionUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse position_update: %w", err)
	}
	pos, err := parsePosition(j.Position)
	if err != nil {
		return nil, fmt.Errorf("parse position_update: %w", err)
	}
	return event.PositionUpdate{
		Position: pos,
		At:       time.UnixMilli(j.TimestampMs),
	}, nil
}

func parseMarkPriceUpdate(data []byte) (event.Message, error) {
	var j markPriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse mark_price_update: %w", err)
	}
	if j.Symbol == "" {
		return nil, fmt.Errorf("parse mark_price_update: empty symbol")
	}
	price, err := fpmath.ParsePrice(j.Price)
	if err != nil {
		return nil, fmt.Errorf("parse mark_price_update price: %w", err)
	}
	return event.MarkPriceUpdate{
		Symbol: j.Symbol,
		Price:  price,
		At:     time.UnixMilli(j.TimestampMs),
	}, nil
}

// --- shared converters ---

func parseTrade(j tradeJSON) (ledger.Trade, error) {
	id, err := uuid.Parse(j.TradeID)
	if err != nil {
		return ledger.Trade{}, fmt.Errorf("trade_id: %w", err)
	}
	side, err := ledger.ParseSide(j.Side)
	if err != nil {
		return ledger.Trade{}, err
	}
	qty, err := fpmath.ParseQuantity(j.Quantity)
	if err != nil {
		return ledger.Trade{}, fmt.Errorf("quantity: %w", err)
	}
	price, err := fpmath.ParsePrice(j.Price)
	if err != nil {
		return ledger.Trade{}, fmt.Errorf("price: %w", err)
	}
	fee, err := parseQuoteOpt(j.Fee)
	if err != nil {
		return ledger.Trade{}, fmt.Errorf("fee: %w", err)
	}
	slippage, err := parseQuoteOpt(j.Slippage)
	if err != nil {
		return ledger.Trade{}, fmt.Errorf("slippage: %w", err)
	}

	t := ledger.Trade{
		ID:         id,
		Symbol:     j.Symbol,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Fee:        fee,
		Slippage:   slippage,
		ExecutedAt: time.UnixMilli(j.ExecutedAtMs),
	}
	if j.OrderID != "" {
		orderID, err := uuid.Parse(j.OrderID)
		if err != nil {
			return ledger.Trade{}, fmt.Errorf("order_id: %w", err)
		}
		t.OrderID = &orderID
	}
	if j.SignalID != "" {
		sig := j.SignalID
		t.SignalID = &sig
	}
	return t, nil
}

func parsePosition(j positionJSON) (ledger.Position, error) {
	if j.Symbol == "" {
		return ledger.Position{}, fmt.Errorf("position: empty symbol")
	}
	size, err := fpmath.ParseQuantity(j.Size)
	if err != nil {
		return ledger.Position{}, fmt.Errorf("size: %w", err)
	}
	entry, err := parsePriceOpt(j.EntryPrice)
	if err != nil {
		return ledger.Position{}, fmt.Errorf("entry_price: %w", err)
	}
	current, err := parsePriceOpt(j.CurrentPrice)
	if err != nil {
		return ledger.Position{}, fmt.Errorf("current_price: %w", err)
	}
	unrealized, err := parseQuoteOpt(j.UnrealizedPnL)
	if err != nil {
		return ledger.Position{}, fmt.Errorf("unrealized_pnl: %w", err)
	}

	p := ledger.Position{
		Symbol:        j.Symbol,
		Side:          ledger.ParsePositionSide(j.Side),
		Size:          size,
		EntryPrice:    entry,
		CurrentPrice:  current,
		UnrealizedPnL: unrealized,
	}
	if j.StopLoss != nil {
		sl, err := fpmath.ParsePrice(*j.StopLoss)
		if err != nil {
			return ledger.Position{}, fmt.Errorf("stop_loss: %w", err)
		}
		p.StopLoss = &sl
	}
	for i, tp := range j.TakeProfits {
		v, err := fpmath.ParsePrice(tp)
		if err != nil {
			return ledger.Position{}, fmt.Errorf("take_profits[%d]: %w", i, err)
		}
		p.TakeProfits = append(p.TakeProfits, v)
	}
	return p, nil
}

func parsePositions(js []positionJSON) ([]ledger.Position, error) {
	out := make([]ledger.Position, 0, len(js))
	for i, j := range js {
		p, err := parsePosition(j)
		if err != nil {
			return nil, fmt.Errorf("positions[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func parseBalances(j balancesJSON) (state.BalanceDelta, error) {
	var d state.BalanceDelta
	var err error
	if d.TotalBalance, err = parseQuotePtr(j.TotalBalance); err != nil {
		return d, fmt.Errorf("total_balance: %w", err)
	}
	if d.AvailableBalance, err = parseQuotePtr(j.AvailableBalance); err != nil {
		return d, fmt.Errorf("available_balance: %w", err)
	}
	if d.LockedBalance, err = parseQuotePtr(j.LockedBalance); err != nil {
		return d, fmt.Errorf("locked_balance: %w", err)
	}
	if d.TotalUnrealizedPnL, err = parseQuotePtr(j.TotalUnrealizedPnL); err != nil {
		return d, fmt.Errorf("total_unrealized_pnl: %w", err)
	}
	if d.TotalRealizedPnL, err = parseQuotePtr(j.TotalRealizedPnL); err != nil {
		return d, fmt.Errorf("total_realized_pnl: %w", err)
	}
	return d, nil
}

func parsePerformance(j performanceJSON) (ledger.Performance, error) {
	avgWin, err := parseQuoteOpt(j.AverageWin)
	if err != nil {
		return ledger.Performance{}, fmt.Errorf("average_win: %w", err)
	}
	avgLoss, err := parseQuoteOpt(j.AverageLoss)
	if err != nil {
		return ledger.Performance{}, fmt.Errorf("average_loss: %w", err)
	}
	largestWin, err := parseQuoteOpt(j.LargestWin)
	if err != nil {
		return ledger.Performance{}, fmt.Errorf("largest_win: %w", err)
	}
	largestLoss, err := parseQuoteOpt(j.LargestLoss)
	if err != nil {
		return ledger.Performance{}, fmt.Errorf("largest_loss: %w", err)
	}
	totalReturn, err := parseQuoteOpt(j.TotalReturn)
	if err != nil {
		return ledger.Performance{}, fmt.Errorf("total_return: %w", err)
	}
	totalFees, err := parseQuoteOpt(j.TotalFees)
	if err != nil {
		return ledger.Performance{}, fmt.Errorf("total_fees: %w", err)
	}
	totalVolume, err := parseQuoteOpt(j.TotalVolume)
	if err != nil {
		return ledger.Performance{}, fmt.Errorf("total_volume: %w", err)
	}

	return ledger.Performance{
		TotalTrades:        j.TotalTrades,
		WinningTrades:      j.WinningTrades,
		LosingTrades:       j.LosingTrades,
		WinRate:            j.WinRate,
		AverageWin:         avgWin,
		AverageLoss:        avgLoss,
		LargestWin:         largestWin,
		LargestLoss:        largestLoss,
		ProfitFactor:       j.ProfitFactor,
		TotalReturn:        totalReturn,
		TotalReturnPercent: j.TotalReturnPercent,
		TotalFees:          totalFees,
		TotalVolume:        totalVolume,
		MaxDrawdown:        j.MaxDrawdown,
		CurrentDrawdown:    j.CurrentDrawdown,
	}, nil
}

func parseSnapshot(j snapshotJSON) (state.Snapshot, error) {
	balances, err := parseBalances(j.Portfolio)
	if err != nil {
		return state.Snapshot{}, err
	}

	var portfolio state.Portfolio
	if balances.TotalBalance != nil {
		portfolio.TotalBalance = *balances.TotalBalance
	}
	if balances.AvailableBalance != nil {
		portfolio.AvailableBalance = *balances.AvailableBalance
	}
	if balances.LockedBalance != nil {
		portfolio.LockedBalance = *balances.LockedBalance
	}
	if balances.TotalUnrealizedPnL != nil {
		portfolio.TotalUnrealizedPnL = *balances.TotalUnrealizedPnL
	}
	if balances.TotalRealizedPnL != nil {
		portfolio.TotalRealizedPnL = *balances.TotalRealizedPnL
	}
	portfolio.InitialBalance = portfolio.TotalBalance - portfolio.TotalRealizedPnL

	positions, err := parsePositions(j.Positions)
	if err != nil {
		return state.Snapshot{}, err
	}

	trades := make([]ledger.Trade, 0, len(j.Trades))
	for i, tj := range j.Trades {
		t, err := parseTrade(tj)
		if err != nil {
			return state.Snapshot{}, fmt.Errorf("trades[%d]: %w", i, err)
		}
		trades = append(trades, t)
	}

	snap := state.Snapshot{
		Portfolio: portfolio,
		Positions: positions,
		Trades:    trades,
		AsOf:      time.UnixMilli(j.TimestampMs),
	}
	if j.Performance != nil {
		perf, err := parsePerformance(*j.Performance)
		if err != nil {
			return state.Snapshot{}, err
		}
		snap.Performance = perf
	}
	return snap, nil
}

func parseQuoteOpt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return fpmath.ParseQuote(s)
}

func parsePriceOpt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return fpmath.ParsePrice(s)
}

func parseQuotePtr(s *string) (*int64, error) {
	if s == nil {
		return nil, nil
	}
	v, err := fpmath.ParseQuote(*s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
