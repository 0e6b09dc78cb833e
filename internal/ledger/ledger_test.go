package ledger_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"

	"PaperFolio/internal/ledger"
)

// Scales: price 1e2, quantity 1e6, quote 1e6.
const (
	oneUnit    = 1_000_000
	initialBal = 10_000_000_000 // 10,000.000000
)

func trade(symbol string, side ledger.Side, qty, price int64, at int64) ledger.Trade {
	return ledger.Trade{
		ID:         uuid.New(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		ExecutedAt: time.Unix(at, 0),
	}
}

// ============================================================================
// Test: core accounting invariants
// ============================================================================

func TestCompute_FlatClose(t *testing.T) {
	trades := []ledger.Trade{
		trade("BTCUSDT", ledger.SideBuy, oneUnit, 10_000, 1),
		trade("BTCUSDT", ledger.SideSell, oneUnit, 10_000, 2),
	}

	res := ledger.Compute(trades, initialBal)

	if len(res.Positions) != 0 {
		t.Errorf("expected no residual position, got %d", len(res.Positions))
	}
	if len(res.Samples) != 1 {
		t.Fatalf("expected 1 realized sample, got %d", len(res.Samples))
	}
	if res.Samples[0].PnL != 0 {
		t.Errorf("flat close: realized pnl = %d, want 0", res.Samples[0].PnL)
	}
}

func TestCompute_Crossing(t *testing.T) {
	// Long 10 @ 100, then SELL 15 @ 110: realized (110-100)*10 = 100,
	// resulting position short 5 @ 110.
	trades := []ledger.Trade{
		trade("ETHUSDT", ledger.SideBuy, 10*oneUnit, 10_000, 1),
		trade("ETHUSDT", ledger.SideSell, 15*oneUnit, 11_000, 2),
	}

	res := ledger.Compute(trades, initialBal)

	if len(res.Samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(res.Samples))
	}
	if res.Samples[0].PnL != 100_000_000 {
		t.Errorf("realized pnl = %d, want 100_000_000", res.Samples[0].PnL)
	}

	pos, ok := res.Positions["ETHUSDT"]
	if !ok {
		t.Fatal("expected residual short position")
	}
	if pos.Side != ledger.PositionShort {
		t.Errorf("side = %s, want short", pos.Side)
	}
	if pos.Size != 5*oneUnit {
		t.Errorf("size = %d, want %d", pos.Size, 5*oneUnit)
	}
	if pos.EntryPrice != 11_000 {
		t.Errorf("entry = %d, want 11_000", pos.EntryPrice)
	}
}

func TestCompute_ExampleScenario(t *testing.T) {
	// BUY 1 @ 100, SELL 0.5 @ 120, BUY 0.5 @ 90.
	trades := []ledger.Trade{
		trade("BTCUSDT", ledger.SideBuy, oneUnit, 10_000, 1),
		trade("BTCUSDT", ledger.SideSell, oneUnit/2, 12_000, 2),
		trade("BTCUSDT", ledger.SideBuy, oneUnit/2, 9_000, 3),
	}

	res := ledger.Compute(trades, initialBal)

	if len(res.Samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(res.Samples))
	}
	// (120-100)*0.5 = 10
	if res.Samples[0].PnL != 10_000_000 {
		t.Errorf("realized pnl = %d, want 10_000_000", res.Samples[0].PnL)
	}

	pos := res.Positions["BTCUSDT"]
	if pos.Size != oneUnit {
		t.Errorf("size = %d, want %d", pos.Size, oneUnit)
	}
	// Weighted average of 0.5@100 and 0.5@90 = 95.
	if pos.EntryPrice != 9_500 {
		t.Errorf("entry = %d, want 9_500", pos.EntryPrice)
	}
	if pos.Side != ledger.PositionLong {
		t.Errorf("side = %s, want long", pos.Side)
	}

	if res.Performance.TotalTrades != 1 {
		t.Errorf("totalTrades = %d, want 1", res.Performance.TotalTrades)
	}
	if res.Performance.WinningTrades != 1 {
		t.Errorf("winningTrades = %d, want 1", res.Performance.WinningTrades)
	}
}

func TestCompute_ShortThenCover(t *testing.T) {
	// SELL with no prior position opens a short; covering below entry wins.
	trades := []ledger.Trade{
		trade("SOLUSDT", ledger.SideSell, 2*oneUnit, 20_000, 1),
		trade("SOLUSDT", ledger.SideBuy, 2*oneUnit, 18_000, 2),
	}

	res := ledger.Compute(trades, initialBal)

	if len(res.Positions) != 0 {
		t.Errorf("expected flat, got %d positions", len(res.Positions))
	}
	// (200-180)*2 = 40
	if got := res.Samples[0].PnL; got != 40_000_000 {
		t.Errorf("realized pnl = %d, want 40_000_000", got)
	}
}

func TestCompute_FeeApportionment(t *testing.T) {
	// Long 10, SELL 15 with fee 3.00: the closing 10/15 of the fee (2.00)
	// reduces the realized sample; the opening share does not.
	trades := []ledger.Trade{
		trade("BTCUSDT", ledger.SideBuy, 10*oneUnit, 10_000, 1),
		trade("BTCUSDT", ledger.SideSell, 15*oneUnit, 11_000, 2),
	}
	trades[1].Fee = 3_000_000

	res := ledger.Compute(trades, initialBal)

	want := int64(100_000_000 - 2_000_000)
	if got := res.Samples[0].PnL; got != want {
		t.Errorf("realized pnl = %d, want %d", got, want)
	}
	if res.Performance.TotalFees != 3_000_000 {
		t.Errorf("totalFees = %d, want 3_000_000", res.Performance.TotalFees)
	}
}

func TestCompute_ZeroPnLCountsAsLoss(t *testing.T) {
	trades := []ledger.Trade{
		trade("BTCUSDT", ledger.SideBuy, oneUnit, 10_000, 1),
		trade("BTCUSDT", ledger.SideSell, oneUnit, 10_000, 2),
	}

	res := ledger.Compute(trades, initialBal)

	if res.Performance.LosingTrades != 1 {
		t.Errorf("losingTrades = %d, want 1", res.Performance.LosingTrades)
	}
	if res.Performance.WinningTrades != 0 {
		t.Errorf("winningTrades = %d, want 0", res.Performance.WinningTrades)
	}
}

func TestCompute_InvalidTradesSkipped(t *testing.T) {
	bad := trade("BTCUSDT", ledger.SideBuy, -oneUnit, 10_000, 1)
	res := ledger.Compute([]ledger.Trade{bad}, initialBal)

	if len(res.Positions) != 0 || len(res.Samples) != 0 {
		t.Error("structurally invalid trade must not affect the ledger")
	}
}

// ============================================================================
// Test: purity and ordering
// ============================================================================

func TestCompute_PureUnderShuffle(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	var trades []ledger.Trade
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	for i := 0; i < 60; i++ {
		side := ledger.SideBuy
		if rng.Intn(2) == 1 {
			side = ledger.SideSell
		}
		tr := trade(symbols[rng.Intn(len(symbols))], side,
			int64(rng.Intn(5)+1)*oneUnit,
			int64(rng.Intn(5_000)+5_000),
			int64(i))
		tr.Fee = int64(rng.Intn(100_000))
		trades = append(trades, tr)
	}

	want := ledger.Compute(trades, initialBal)

	shuffled := make([]ledger.Trade, len(trades))
	copy(shuffled, trades)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	got := ledger.Compute(shuffled, initialBal)

	if got.Performance != want.Performance {
		t.Errorf("performance differs under shuffle:\n got %+v\nwant %+v", got.Performance, want.Performance)
	}
	if len(got.Positions) != len(want.Positions) {
		t.Fatalf("position count differs: got %d, want %d", len(got.Positions), len(want.Positions))
	}
	for sym, wp := range want.Positions {
		gp, ok := got.Positions[sym]
		if !ok {
			t.Errorf("missing position for %s after shuffle", sym)
			continue
		}
		if gp.Size != wp.Size || gp.EntryPrice != wp.EntryPrice || gp.Side != wp.Side {
			t.Errorf("%s: got %+v, want %+v", sym, gp, wp)
		}
	}
}

func TestCompute_SymbolsIndependent(t *testing.T) {
	trades := []ledger.Trade{
		trade("BTCUSDT", ledger.SideBuy, oneUnit, 10_000, 1),
		trade("ETHUSDT", ledger.SideSell, oneUnit, 20_000, 1),
		trade("BTCUSDT", ledger.SideSell, oneUnit, 11_000, 2),
	}

	res := ledger.Compute(trades, initialBal)

	if _, ok := res.Positions["BTCUSDT"]; ok {
		t.Error("BTCUSDT should be flat")
	}
	if pos, ok := res.Positions["ETHUSDT"]; !ok || pos.Side != ledger.PositionShort {
		t.Errorf("ETHUSDT should remain short, got %+v", pos)
	}
}

// ============================================================================
// Test: performance aggregates
// ============================================================================

func TestPerformance_Aggregates(t *testing.T) {
	// Two closed round trips: +100 and -50.
	trades := []ledger.Trade{
		trade("BTCUSDT", ledger.SideBuy, 10*oneUnit, 10_000, 1),
		trade("BTCUSDT", ledger.SideSell, 10*oneUnit, 11_000, 2), // +100
		trade("BTCUSDT", ledger.SideBuy, 5*oneUnit, 11_000, 3),
		trade("BTCUSDT", ledger.SideSell, 5*oneUnit, 10_000, 4), // -50
	}

	perf := ledger.Compute(trades, initialBal).Performance

	if perf.TotalTrades != 2 {
		t.Fatalf("totalTrades = %d, want 2", perf.TotalTrades)
	}
	if perf.WinRate != 50 {
		t.Errorf("winRate = %f, want 50", perf.WinRate)
	}
	if perf.AverageWin != 100_000_000 {
		t.Errorf("averageWin = %d, want 100_000_000", perf.AverageWin)
	}
	if perf.AverageLoss != 50_000_000 {
		t.Errorf("averageLoss = %d, want 50_000_000", perf.AverageLoss)
	}
	if perf.LargestWin != 100_000_000 {
		t.Errorf("largestWin = %d, want 100_000_000", perf.LargestWin)
	}
	if perf.LargestLoss != 50_000_000 {
		t.Errorf("largestLoss = %d, want 50_000_000", perf.LargestLoss)
	}
	if perf.ProfitFactor != 2 {
		t.Errorf("profitFactor = %f, want 2", perf.ProfitFactor)
	}
	if perf.TotalReturn != 50_000_000 {
		t.Errorf("totalReturn = %d, want 50_000_000", perf.TotalReturn)
	}
	if perf.TotalReturnPercent != 0.5 {
		t.Errorf("totalReturnPercent = %f, want 0.5", perf.TotalReturnPercent)
	}
}

func TestPerformance_ProfitFactorNoLosses(t *testing.T) {
	trades := []ledger.Trade{
		trade("BTCUSDT", ledger.SideBuy, oneUnit, 10_000, 1),
		trade("BTCUSDT", ledger.SideSell, oneUnit, 11_000, 2),
	}

	perf := ledger.Compute(trades, initialBal).Performance

	if perf.ProfitFactor != 10 {
		t.Errorf("profitFactor = %f, want 10 (gross wins in quote units)", perf.ProfitFactor)
	}
}

func TestPerformance_EmptyHistory(t *testing.T) {
	perf := ledger.Compute(nil, initialBal).Performance

	if perf.TotalTrades != 0 || perf.ProfitFactor != 0 || perf.WinRate != 0 {
		t.Errorf("empty history must yield zero metrics, got %+v", perf)
	}
}

func TestPerformance_Drawdown(t *testing.T) {
	// +100 then -50: peak 10,100, trough 10,050.
	trades := []ledger.Trade{
		trade("BTCUSDT", ledger.SideBuy, 10*oneUnit, 10_000, 1),
		trade("BTCUSDT", ledger.SideSell, 10*oneUnit, 11_000, 2),
		trade("BTCUSDT", ledger.SideBuy, 5*oneUnit, 11_000, 3),
		trade("BTCUSDT", ledger.SideSell, 5*oneUnit, 10_000, 4),
	}

	perf := ledger.Compute(trades, initialBal).Performance

	want := 100 * 50_000_000.0 / 10_100_000_000.0
	if diff := perf.MaxDrawdown - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("maxDrawdown = %f, want %f", perf.MaxDrawdown, want)
	}
	if perf.CurrentDrawdown != perf.MaxDrawdown {
		t.Errorf("currentDrawdown = %f, want %f", perf.CurrentDrawdown, perf.MaxDrawdown)
	}
}

// ============================================================================
// Test: mark updates
// ============================================================================

func TestPosition_MarkNeverTouchesEntry(t *testing.T) {
	pos := ledger.Position{
		Symbol:     "BTCUSDT",
		Side:       ledger.PositionLong,
		Size:       2 * oneUnit,
		EntryPrice: 10_000,
	}

	pos.Mark(10_500)

	if pos.EntryPrice != 10_000 {
		t.Errorf("entry changed to %d on mark update", pos.EntryPrice)
	}
	if pos.CurrentPrice != 10_500 {
		t.Errorf("currentPrice = %d, want 10_500", pos.CurrentPrice)
	}
	// (105-100)*2 = 10
	if pos.UnrealizedPnL != 10_000_000 {
		t.Errorf("unrealizedPnl = %d, want 10_000_000", pos.UnrealizedPnL)
	}
}

func TestPosition_MarkShort(t *testing.T) {
	pos := ledger.Position{
		Symbol:     "ETHUSDT",
		Side:       ledger.PositionShort,
		Size:       oneUnit,
		EntryPrice: 20_000,
	}

	pos.Mark(21_000)

	if pos.UnrealizedPnL != -10_000_000 {
		t.Errorf("short marked against: unrealizedPnl = %d, want -10_000_000", pos.UnrealizedPnL)
	}
}
