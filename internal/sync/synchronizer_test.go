package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PaperFolio/internal/event"
	"PaperFolio/internal/ledger"
	"PaperFolio/internal/state"
)

const (
	oneUnit    = 1_000_000
	initialBal = 10_000_000_000
)

// ============================================================
// Fakes
// ============================================================

type fakeSession struct {
	msgs   chan event.Message
	closed chan error
	closes int32
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		msgs:   make(chan event.Message, 16),
		closed: make(chan error, 1),
	}
}

func (f *fakeSession) Messages() <-chan event.Message { return f.msgs }
func (f *fakeSession) Closed() <-chan error           { return f.closed }
func (f *fakeSession) Close() error {
	atomic.AddInt32(&f.closes, 1)
	return nil
}

func (f *fakeSession) fail(err error) { f.closed <- err }

type fakeStream struct {
	mu        stdsync.Mutex
	sessions  []*fakeSession
	failFirst int
	connects  int32
}

func (f *fakeStream) Connect(ctx context.Context) (Session, error) {
	n := atomic.AddInt32(&f.connects, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if int(n) <= f.failFirst {
		return nil, errors.New("connection refused")
	}
	s := newFakeSession()
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeStream) connectCount() int32 { return atomic.LoadInt32(&f.connects) }

func (f *fakeStream) current() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

type fakeQueries struct {
	mu          stdsync.Mutex
	snapshot    state.Snapshot
	portfolio   state.Portfolio
	positions   []ledger.Position
	history     []ledger.Trade
	performance ledger.Performance
	queryErr    error

	portfolioCalls int32
	historyCalls   int32
}

func (f *fakeQueries) Snapshot(ctx context.Context) (state.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.queryErr
}

func (f *fakeQueries) Portfolio(ctx context.Context) (state.Portfolio, error) {
	atomic.AddInt32(&f.portfolioCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.portfolio, f.queryErr
}

func (f *fakeQueries) Positions(ctx context.Context) ([]ledger.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions, f.queryErr
}

func (f *fakeQueries) History(ctx context.Context) ([]ledger.Trade, error) {
	atomic.AddInt32(&f.historyCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, f.queryErr
}

func (f *fakeQueries) Performance(ctx context.Context) (ledger.Performance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.performance, f.queryErr
}

// ============================================================
// Helpers
// ============================================================

func testConfig() Config {
	return Config{
		ReconnectDelay: 20 * time.Millisecond,
		PollInterval:   25 * time.Millisecond,
		RefreshDelay:   10 * time.Millisecond,
		QueryTimeout:   time.Second,
	}
}

func newTestSync(t *testing.T, stream Stream, queries Queries) (*Synchronizer, *state.Store) {
	t.Helper()
	store := state.NewStore(state.Config{InitialBalance: initialBal}, zerolog.Nop(), nil)
	s := New(testConfig(), stream, queries, store, zerolog.Nop(), nil)
	return s, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testTrade(symbol string, side ledger.Side, qty, price int64) ledger.Trade {
	return ledger.Trade{
		ID:         uuid.New(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		ExecutedAt: time.Now(),
	}
}

// ============================================================
// Tests
// ============================================================

func TestSynchronizer_ConnectAppliesInitialSnapshot(t *testing.T) {
	stream := &fakeStream{}
	queries := &fakeQueries{
		snapshot: state.Snapshot{
			Portfolio: state.Portfolio{
				InitialBalance:   initialBal,
				TotalBalance:     initialBal + 500_000_000,
				AvailableBalance: initialBal + 500_000_000,
				TotalRealizedPnL: 500_000_000,
			},
			Positions: []ledger.Position{{
				Symbol:     "BTCUSDT",
				Side:       ledger.PositionLong,
				Size:       oneUnit,
				EntryPrice: 10_000,
			}},
		},
	}

	s, store := newTestSync(t, stream, queries)
	s.Start()
	defer s.Close()

	waitFor(t, "connected", func() bool { return s.Status().State == StateConnected })
	waitFor(t, "snapshot applied", func() bool {
		return store.Snapshot().Portfolio.TotalRealizedPnL == 500_000_000
	})

	snap := store.Snapshot()
	if len(snap.Positions) != 1 || snap.Positions[0].Symbol != "BTCUSDT" {
		t.Errorf("positions not seeded from snapshot: %+v", snap.Positions)
	}
	if s.Status().LastSyncedAt.IsZero() {
		t.Error("last synced timestamp not set")
	}
}

func TestSynchronizer_MessagesMutateStore(t *testing.T) {
	stream := &fakeStream{}
	queries := &fakeQueries{}

	s, store := newTestSync(t, stream, queries)
	s.Start()
	defer s.Close()

	waitFor(t, "connected", func() bool { return s.Status().State == StateConnected })
	sess := stream.current()

	tr := testTrade("ETHUSDT", ledger.SideBuy, oneUnit, 2_000)
	sess.msgs <- event.TradeExecuted{Trade: tr}
	waitFor(t, "trade recorded", func() bool { return len(store.Snapshot().Trades) == 1 })

	sess.msgs <- event.MarkPriceUpdate{Symbol: "ETHUSDT", Price: 2_100}
	waitFor(t, "mark applied", func() bool {
		snap := store.Snapshot()
		return len(snap.Positions) == 1 && snap.Positions[0].CurrentPrice == 2_100
	})

	locked := int64(1_000_000_000)
	sess.msgs <- event.BalanceUpdate{Balances: state.BalanceDelta{LockedBalance: &locked}}
	waitFor(t, "balances applied", func() bool {
		return store.Snapshot().Portfolio.LockedBalance == locked
	})
}

func TestSynchronizer_ReconnectAfterDisconnect(t *testing.T) {
	stream := &fakeStream{}
	queries := &fakeQueries{}

	s, _ := newTestSync(t, stream, queries)
	s.Start()
	defer s.Close()

	waitFor(t, "first connect", func() bool { return s.Status().State == StateConnected })
	stream.current().fail(errors.New("broken pipe"))

	waitFor(t, "disconnect observed", func() bool { return s.Status().State != StateConnected || stream.connectCount() > 1 })
	waitFor(t, "reconnected", func() bool {
		return stream.connectCount() == 2 && s.Status().State == StateConnected
	})

	// One outage, exactly one reconnect attempt. No timer stacking.
	time.Sleep(5 * testConfig().ReconnectDelay)
	if got := stream.connectCount(); got != 2 {
		t.Errorf("connect attempts = %d, want 2", got)
	}
}

func TestSynchronizer_ConnectRetryAfterFailure(t *testing.T) {
	stream := &fakeStream{failFirst: 2}
	queries := &fakeQueries{}

	s, _ := newTestSync(t, stream, queries)
	s.Start()
	defer s.Close()

	waitFor(t, "eventual connect", func() bool { return s.Status().State == StateConnected })
	if got := stream.connectCount(); got != 3 {
		t.Errorf("connect attempts = %d, want 3", got)
	}
}

func TestSynchronizer_FallbackPollWhileDisconnected(t *testing.T) {
	stream := &fakeStream{failFirst: 1 << 20} // never connects
	queries := &fakeQueries{
		portfolio: state.Portfolio{
			InitialBalance:   initialBal,
			TotalBalance:     initialBal + 250_000_000,
			AvailableBalance: initialBal + 250_000_000,
			TotalRealizedPnL: 250_000_000,
		},
		positions: []ledger.Position{{
			Symbol:     "SOLUSDT",
			Side:       ledger.PositionShort,
			Size:       2 * oneUnit,
			EntryPrice: 15_000,
		}},
	}

	s, store := newTestSync(t, stream, queries)
	s.Start()
	defer s.Close()

	waitFor(t, "poll applied portfolio", func() bool {
		return store.Snapshot().Portfolio.TotalRealizedPnL == 250_000_000
	})
	waitFor(t, "poll applied positions", func() bool {
		snap := store.Snapshot()
		return len(snap.Positions) == 1 && snap.Positions[0].Symbol == "SOLUSDT"
	})

	if got := s.Status().State; got == StateConnected {
		t.Errorf("state = %v while stream is down", got)
	}
	if s.Status().Err == "" {
		t.Error("expected surfaced connection error")
	}
}

func TestSynchronizer_TradeSchedulesDeferredRefresh(t *testing.T) {
	stream := &fakeStream{}
	queries := &fakeQueries{portfolio: state.Portfolio{InitialBalance: initialBal, TotalBalance: initialBal}}

	s, store := newTestSync(t, stream, queries)
	s.Start()
	defer s.Close()

	waitFor(t, "connected", func() bool { return s.Status().State == StateConnected })
	before := atomic.LoadInt32(&queries.portfolioCalls)

	stream.current().msgs <- event.TradeExecuted{Trade: testTrade("BTCUSDT", ledger.SideBuy, oneUnit, 10_000)}
	waitFor(t, "trade recorded", func() bool { return len(store.Snapshot().Trades) == 1 })
	waitFor(t, "deferred refresh fired", func() bool {
		return atomic.LoadInt32(&queries.portfolioCalls) > before
	})
}

func TestSynchronizer_InvalidTradeDroppedConnectionKept(t *testing.T) {
	stream := &fakeStream{}
	queries := &fakeQueries{}

	s, store := newTestSync(t, stream, queries)
	s.Start()
	defer s.Close()

	waitFor(t, "connected", func() bool { return s.Status().State == StateConnected })
	sess := stream.current()

	sess.msgs <- event.TradeExecuted{Trade: ledger.Trade{ID: uuid.New(), Symbol: "BTCUSDT"}} // zero qty
	sess.msgs <- event.TradeExecuted{Trade: testTrade("BTCUSDT", ledger.SideBuy, oneUnit, 10_000)}

	waitFor(t, "valid trade recorded", func() bool { return len(store.Snapshot().Trades) == 1 })
	if s.Status().State != StateConnected {
		t.Error("a dropped message must not kill the connection")
	}
}

func TestSynchronizer_ManualRefreshHistoryAndPerformance(t *testing.T) {
	stream := &fakeStream{}
	queries := &fakeQueries{
		history: []ledger.Trade{
			testTrade("BTCUSDT", ledger.SideBuy, oneUnit, 10_000),
			testTrade("BTCUSDT", ledger.SideSell, oneUnit, 10_500),
		},
	}

	s, store := newTestSync(t, stream, queries)
	s.Start()
	defer s.Close()

	waitFor(t, "connected", func() bool { return s.Status().State == StateConnected })

	s.RefreshHistory()
	waitFor(t, "history replaced", func() bool { return len(store.Snapshot().Trades) == 2 })

	// A history replace recomputes; then the explicit performance refresh
	// overrides with whatever the session reports.
	queries.mu.Lock()
	queries.performance = ledger.Performance{TotalTrades: 42}
	queries.mu.Unlock()

	s.RefreshPerformance()
	waitFor(t, "performance replaced", func() bool {
		return store.Snapshot().Performance.TotalTrades == 42
	})
}

func TestSynchronizer_CloseStopsEverything(t *testing.T) {
	stream := &fakeStream{}
	queries := &fakeQueries{}

	s, _ := newTestSync(t, stream, queries)
	s.Start()
	waitFor(t, "connected", func() bool { return s.Status().State == StateConnected })

	sess := stream.current()
	sess.fail(errors.New("gone")) // arms the reconnect timer

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.Status().State == StateConnected {
		t.Error("state still connected after close")
	}

	// No timer may fire after disposal: the connect count must not move.
	after := stream.connectCount()
	time.Sleep(5 * testConfig().ReconnectDelay)
	if got := stream.connectCount(); got != after {
		t.Errorf("reconnect fired after close: %d -> %d", after, got)
	}

	// Refresh calls after close return without blocking.
	s.RefreshPortfolio()
	s.RefreshHistory()
}

func TestSynchronizer_SessionCloseIsDrained(t *testing.T) {
	stream := &fakeStream{}
	queries := &fakeQueries{}

	s, _ := newTestSync(t, stream, queries)
	s.Start()
	waitFor(t, "connected", func() bool { return s.Status().State == StateConnected })
	sess := stream.current()

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if atomic.LoadInt32(&sess.closes) == 0 {
		t.Error("open session not closed on teardown")
	}
}
