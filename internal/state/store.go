package state

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PaperFolio/internal/ledger"
	"PaperFolio/internal/observability"
)

// DefaultHistoryCap bounds the trade history; the oldest entry is evicted
// once the cap is exceeded.
const DefaultHistoryCap = 100

// Config holds store parameters.
type Config struct {
	InitialBalance int64 // Quote scale
	HistoryCap     int
}

// Store is the canonical in-memory session state: balances, positions,
// bounded trade history and derived performance. It is the single source of
// truth — transports only forward payloads, consumers only read snapshots.
// Every mutation is atomic with respect to concurrent reads: a reader
// observes either the pre-mutation or the fully post-mutation state.
type Store struct {
	mu  sync.RWMutex
	cfg Config

	portfolio   Portfolio
	positions   map[string]ledger.Position
	trades      []ledger.Trade
	performance ledger.Performance

	seen  *tradeLRU
	marks map[string]int64 // Latest mark price per symbol

	// Symbols whose position was supplied by an authoritative push since the
	// last ledger recomputation. A pushed position wins over the locally
	// recomputed one for the same symbol within one update cycle.
	pushed map[string]bool

	updatedAt time.Time

	log     zerolog.Logger
	metrics *observability.Metrics
}

// NewStore creates an empty store seeded with the initial balance.
func NewStore(cfg Config, log zerolog.Logger, metrics *observability.Metrics) *Store {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultHistoryCap
	}

	return &Store{
		cfg: cfg,
		portfolio: Portfolio{
			InitialBalance:   cfg.InitialBalance,
			TotalBalance:     cfg.InitialBalance,
			AvailableBalance: cfg.InitialBalance,
		},
		positions: make(map[string]ledger.Position),
		seen:      newTradeLRU(cfg.HistoryCap * 2),
		marks:     make(map[string]int64),
		pushed:    make(map[string]bool),
		log:       log,
		metrics:   metrics,
	}
}

// Snapshot returns a deep read-only copy of the session state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Portfolio:   s.portfolio,
		Positions:   make([]ledger.Position, 0, len(s.positions)),
		Trades:      append([]ledger.Trade(nil), s.trades...),
		Performance: s.performance,
		AsOf:        s.updatedAt,
	}
	for _, pos := range s.positions {
		snap.Positions = append(snap.Positions, clonePosition(pos))
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].Symbol < snap.Positions[j].Symbol
	})

	return snap
}

// ApplyFullSnapshot replaces all state. Used on (re)connect and on restore.
func (s *Store) ApplyFullSnapshot(snap Snapshot) {
	start := time.Now()
	s.mu.Lock()
	defer s.unlock("full_snapshot", start)

	s.portfolio = snap.Portfolio
	if s.portfolio.InitialBalance == 0 {
		s.portfolio.InitialBalance = s.cfg.InitialBalance
	}

	s.positions = make(map[string]ledger.Position, len(snap.Positions))
	s.marks = make(map[string]int64, len(snap.Positions))
	for _, pos := range snap.Positions {
		if pos.Size == 0 {
			continue
		}
		s.positions[pos.Symbol] = clonePosition(pos)
		if pos.CurrentPrice > 0 {
			s.marks[pos.Symbol] = pos.CurrentPrice
		}
	}

	var seen []ledger.Trade
	for _, t := range snap.Trades {
		if err := t.Validate(); err != nil {
			s.log.Warn().Err(err).Msg("snapshot contained invalid trade, dropped")
			continue
		}
		seen = append(seen, t)
	}
	if over := len(seen) - s.cfg.HistoryCap; over > 0 {
		seen = seen[over:]
	}
	s.trades = seen
	s.resetSeen()
	s.performance = snap.Performance
	s.pushed = make(map[string]bool)
	s.refreshDerived()
	s.updatedAt = time.Now()
}

// ApplyBalances merges the non-nil balance fields only.
func (s *Store) ApplyBalances(d BalanceDelta) {
	start := time.Now()
	s.mu.Lock()
	defer s.unlock("balances", start)

	if d.TotalBalance != nil {
		s.portfolio.TotalBalance = *d.TotalBalance
	}
	if d.AvailableBalance != nil {
		s.portfolio.AvailableBalance = *d.AvailableBalance
	}
	if d.LockedBalance != nil {
		s.portfolio.LockedBalance = *d.LockedBalance
	}
	if d.TotalUnrealizedPnL != nil {
		s.portfolio.TotalUnrealizedPnL = *d.TotalUnrealizedPnL
	}
	if d.TotalRealizedPnL != nil {
		s.portfolio.TotalRealizedPnL = *d.TotalRealizedPnL
	}

	if sum := s.portfolio.AvailableBalance + s.portfolio.LockedBalance; sum > s.portfolio.TotalBalance {
		s.log.Warn().
			Int64("available", s.portfolio.AvailableBalance).
			Int64("locked", s.portfolio.LockedBalance).
			Int64("total", s.portfolio.TotalBalance).
			Msg("balance invariant violated by push, clamping available")
		s.portfolio.AvailableBalance = s.portfolio.TotalBalance - s.portfolio.LockedBalance
	}

	s.updatedAt = time.Now()
}

// UpsertPosition inserts or replaces a position by symbol. A zero-size
// upsert removes the position. The symbol is marked push-authoritative for
// the current update cycle.
func (s *Store) UpsertPosition(p ledger.Position) {
	start := time.Now()
	s.mu.Lock()
	defer s.unlock("position_upsert", start)

	s.upsertLocked(p)
	s.refreshDerived()
	s.updatedAt = time.Now()
}

// ReplacePositions replaces the whole position list with an authoritative one.
func (s *Store) ReplacePositions(ps []ledger.Position) {
	start := time.Now()
	s.mu.Lock()
	defer s.unlock("positions_replace", start)

	s.positions = make(map[string]ledger.Position, len(ps))
	s.pushed = make(map[string]bool, len(ps))
	for _, p := range ps {
		s.upsertLocked(p)
	}
	s.refreshDerived()
	s.updatedAt = time.Now()
}

func (s *Store) upsertLocked(p ledger.Position) {
	if p.Size == 0 {
		delete(s.positions, p.Symbol)
		delete(s.pushed, p.Symbol)
		return
	}
	s.positions[p.Symbol] = clonePosition(p)
	s.pushed[p.Symbol] = true
	if p.CurrentPrice > 0 {
		s.marks[p.Symbol] = p.CurrentPrice
	}
}

// RecordTrade validates, dedups and appends one execution, then re-runs the
// ledger over the updated history. A repeat ID is a no-op, not an error.
// Rejected trades never reach the history or derived metrics.
func (s *Store) RecordTrade(t ledger.Trade) error {
	if err := t.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.StoreTradesRejected.WithLabelValues("invalid").Inc()
		}
		return fmt.Errorf("record trade: %w", err)
	}

	start := time.Now()
	s.mu.Lock()
	defer s.unlock("record_trade", start)

	if s.seen.Contains(t.ID) {
		if s.metrics != nil {
			s.metrics.StoreTradesDeduped.Inc()
		}
		return nil
	}
	s.seen.Add(t.ID)

	s.trades = append(s.trades, t)
	for len(s.trades) > s.cfg.HistoryCap {
		s.trades = s.trades[1:]
		if s.metrics != nil {
			s.metrics.StoreHistoryEvicted.Inc()
		}
	}
	if s.metrics != nil {
		s.metrics.StoreTradesRecorded.Inc()
	}

	s.recomputeLocked()
	s.updatedAt = time.Now()
	return nil
}

// ReplaceHistory swaps in an authoritative trade history and recomputes.
func (s *Store) ReplaceHistory(trades []ledger.Trade) {
	start := time.Now()
	s.mu.Lock()
	defer s.unlock("history_replace", start)

	var kept []ledger.Trade
	for _, t := range trades {
		if err := t.Validate(); err != nil {
			s.log.Warn().Err(err).Msg("history contained invalid trade, dropped")
			continue
		}
		kept = append(kept, t)
	}
	if over := len(kept) - s.cfg.HistoryCap; over > 0 {
		kept = kept[over:]
	}

	s.trades = kept
	s.resetSeen()
	s.recomputeLocked()
	s.updatedAt = time.Now()
}

// ReplacePerformance overrides the derived metrics with an authoritative set.
func (s *Store) ReplacePerformance(p ledger.Performance) {
	start := time.Now()
	s.mu.Lock()
	defer s.unlock("performance_replace", start)

	s.performance = p
	s.updatedAt = time.Now()
}

// MarkPrice updates the mark for one symbol. Only CurrentPrice and
// UnrealizedPnL move; EntryPrice never does.
func (s *Store) MarkPrice(symbol string, price int64) {
	if price <= 0 {
		return
	}

	start := time.Now()
	s.mu.Lock()
	defer s.unlock("mark_price", start)

	s.marks[symbol] = price
	if pos, ok := s.positions[symbol]; ok {
		pos.Mark(price)
		s.positions[symbol] = pos
	}
	s.refreshDerived()
	s.updatedAt = time.Now()
}

// recomputeLocked re-runs the ledger engine over the current history and
// merges the result with push-authoritative positions. Flags are consumed:
// after the merge every symbol is locally owned again until the next push.
func (s *Store) recomputeLocked() {
	start := time.Now()
	res := ledger.Compute(s.trades, s.portfolio.InitialBalance)
	if s.metrics != nil {
		s.metrics.LedgerRecomputes.Inc()
		s.metrics.LedgerRecomputeDur.Observe(time.Since(start).Seconds())
	}

	merged := make(map[string]ledger.Position, len(res.Positions))
	for sym, pos := range res.Positions {
		if s.pushed[sym] {
			merged[sym] = s.positions[sym]
			continue
		}
		if mark, ok := s.marks[sym]; ok {
			pos.Mark(mark)
		}
		merged[sym] = pos
	}
	// Pushed positions without local trades survive the recompute too.
	for sym, pos := range s.positions {
		if s.pushed[sym] {
			merged[sym] = pos
		}
	}
	s.positions = merged
	s.pushed = make(map[string]bool)

	s.performance = res.Performance
	s.portfolio.TotalRealizedPnL = res.Performance.TotalReturn
	s.portfolio.TotalBalance = s.portfolio.InitialBalance + s.portfolio.TotalRealizedPnL
	available := s.portfolio.TotalBalance - s.portfolio.LockedBalance
	if available < 0 {
		available = 0
	}
	s.portfolio.AvailableBalance = available

	s.refreshDerived()
}

// refreshDerived recomputes unrealized totals and gauges under the lock.
func (s *Store) refreshDerived() {
	var unrealized int64
	for _, pos := range s.positions {
		unrealized += pos.UnrealizedPnL
	}
	s.portfolio.TotalUnrealizedPnL = unrealized

	if s.metrics != nil {
		s.metrics.StoreHistoryLength.Set(float64(len(s.trades)))
		s.metrics.StoreOpenPositions.Set(float64(len(s.positions)))
	}
}

func (s *Store) resetSeen() {
	ids := make([]uuid.UUID, 0, len(s.trades))
	for _, t := range s.trades {
		ids = append(ids, t.ID)
	}
	s.seen.Reset(ids)
}

func (s *Store) unlock(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.StoreMutationDur.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	s.mu.Unlock()
}
