package query

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"PaperFolio/internal/ledger"
	"PaperFolio/internal/state"
)

func TestSnapshotResponse_RoundTrip(t *testing.T) {
	stop := int64(3_900_000)
	sig := "breakout-2"
	orderID := uuid.New()

	in := state.Snapshot{
		Portfolio: state.Portfolio{
			InitialBalance:     10_000_000_000,
			TotalBalance:       10_250_000_000,
			AvailableBalance:   9_250_000_000,
			LockedBalance:      1_000_000_000,
			TotalUnrealizedPnL: 125_000_000,
			TotalRealizedPnL:   250_000_000,
		},
		Positions: []ledger.Position{{
			Symbol:        "BTCUSDT",
			Side:          ledger.PositionLong,
			Size:          500_000,
			EntryPrice:    4_000_000,
			CurrentPrice:  4_025_000,
			UnrealizedPnL: 125_000_000,
			StopLoss:      &stop,
			TakeProfits:   []int64{4_100_000},
		}},
		Trades: []ledger.Trade{{
			ID:         uuid.New(),
			Symbol:     "BTCUSDT",
			Side:       ledger.SideBuy,
			Quantity:   500_000,
			Price:      4_000_000,
			Fee:        10_000_000,
			ExecutedAt: time.UnixMilli(1_700_000_000_000),
			OrderID:    &orderID,
			SignalID:   &sig,
		}},
		Performance: ledger.Performance{
			TotalTrades:   3,
			WinningTrades: 2,
			LosingTrades:  1,
			WinRate:       66.67,
			TotalReturn:   250_000_000,
			ProfitFactor:  2.5,
		},
		AsOf: time.UnixMilli(1_700_000_001_000),
	}

	out, err := NewSnapshotResponse(in).ToSnapshot()
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}

	if out.Portfolio != in.Portfolio {
		t.Errorf("portfolio changed:\n got %+v\nwant %+v", out.Portfolio, in.Portfolio)
	}
	if len(out.Positions) != 1 {
		t.Fatalf("positions lost")
	}
	p := out.Positions[0]
	if p.Size != 500_000 || p.EntryPrice != 4_000_000 || *p.StopLoss != stop {
		t.Errorf("position changed: %+v", p)
	}
	if len(out.Trades) != 1 {
		t.Fatalf("trades lost")
	}
	tr := out.Trades[0]
	if tr.ID != in.Trades[0].ID || tr.Fee != 10_000_000 || *tr.OrderID != orderID || *tr.SignalID != sig {
		t.Errorf("trade changed: %+v", tr)
	}
	if !tr.ExecutedAt.Equal(in.Trades[0].ExecutedAt) {
		t.Errorf("executed at changed: %v", tr.ExecutedAt)
	}
	if out.Performance != in.Performance {
		t.Errorf("performance changed:\n got %+v\nwant %+v", out.Performance, in.Performance)
	}
	if !out.AsOf.Equal(in.AsOf) {
		t.Errorf("as-of changed: %v", out.AsOf)
	}
}
