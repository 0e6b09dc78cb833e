package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PaperFolio/internal/ledger"
	"PaperFolio/internal/state"
	"PaperFolio/internal/testutil"
)

func TestSessionStore_SaveLoadRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ss := NewSessionStore(db)

	if _, ok, err := ss.LoadLatest(ctx); err != nil || ok {
		t.Fatalf("expected cold start, ok=%v err=%v", ok, err)
	}

	in := state.Snapshot{
		Portfolio: state.Portfolio{
			InitialBalance:   10_000_000_000,
			TotalBalance:     10_100_000_000,
			AvailableBalance: 10_100_000_000,
			TotalRealizedPnL: 100_000_000,
		},
		Positions: []ledger.Position{{
			Symbol:     "BTCUSDT",
			Side:       ledger.PositionLong,
			Size:       1_000_000,
			EntryPrice: 4_000_000,
		}},
		Trades: []ledger.Trade{{
			ID:         uuid.New(),
			Symbol:     "BTCUSDT",
			Side:       ledger.SideBuy,
			Quantity:   1_000_000,
			Price:      4_000_000,
			ExecutedAt: time.Now().Truncate(time.Millisecond),
		}},
		AsOf: time.Now().Truncate(time.Millisecond),
	}
	if err := ss.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, ok, err := ss.LoadLatest(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if out.Portfolio != in.Portfolio {
		t.Errorf("portfolio changed:\n got %+v\nwant %+v", out.Portfolio, in.Portfolio)
	}
	if len(out.Positions) != 1 || out.Positions[0].Symbol != "BTCUSDT" {
		t.Errorf("positions lost: %+v", out.Positions)
	}
	if len(out.Trades) != 1 || out.Trades[0].ID != in.Trades[0].ID {
		t.Errorf("trades lost: %+v", out.Trades)
	}
}

func TestSessionStore_PrunesOldRows(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ss := NewSessionStore(db)
	for i := 0; i < snapshotsToKeep+5; i++ {
		snap := state.Snapshot{AsOf: time.Now().Add(time.Duration(i) * time.Millisecond)}
		if err := ss.Save(ctx, snap); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM session_snapshots`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count > snapshotsToKeep {
		t.Errorf("prune failed: %d rows, cap %d", count, snapshotsToKeep)
	}
}
