// Package sync keeps the portfolio store aligned with the upstream trading
// session. A single run goroutine owns all mutation: stream messages, timer
// fires and manual refresh commands are serialized through one select loop,
// so handlers never overlap and the store sees updates in receipt order.
package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"PaperFolio/internal/event"
	"PaperFolio/internal/ledger"
	"PaperFolio/internal/observability"
	"PaperFolio/internal/state"
)

// State is the connection lifecycle phase.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Session is one live stream connection. Messages delivers decoded events
// until the connection dies; Closed delivers the terminal error exactly once.
type Session interface {
	Messages() <-chan event.Message
	Closed() <-chan error
	Close() error
}

// Stream opens sessions. Each call is one connection attempt; reconnect
// policy lives here in the synchronizer, not in the transport.
type Stream interface {
	Connect(ctx context.Context) (Session, error)
}

// Queries is the pull side: authoritative reads used for the initial
// snapshot, fallback polling and manual refreshes.
type Queries interface {
	Snapshot(ctx context.Context) (state.Snapshot, error)
	Portfolio(ctx context.Context) (state.Portfolio, error)
	Positions(ctx context.Context) ([]ledger.Position, error)
	History(ctx context.Context) ([]ledger.Trade, error)
	Performance(ctx context.Context) (ledger.Performance, error)
}

// Status is the externally visible connection state.
type Status struct {
	State        State
	Err          string
	LastSyncedAt time.Time
}

// Config holds synchronizer timing parameters.
type Config struct {
	ReconnectDelay time.Duration // Delay before a reconnect attempt
	PollInterval   time.Duration // Fallback poll cadence while not connected
	RefreshDelay   time.Duration // Deferred re-fetch delay after a trade
	QueryTimeout   time.Duration // Per-request budget on the query client
}

// DefaultConfig returns the timing used in production.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay: 3 * time.Second,
		PollInterval:   10 * time.Second,
		RefreshDelay:   500 * time.Millisecond,
		QueryTimeout:   5 * time.Second,
	}
}

type commandKind int

const (
	cmdRefreshPortfolio commandKind = iota
	cmdRefreshHistory
	cmdRefreshPerformance
)

// Synchronizer drives the reconnect state machine and applies every update
// to the store from its single run goroutine.
type Synchronizer struct {
	cfg     Config
	stream  Stream
	queries Queries
	store   *state.Store
	log     zerolog.Logger
	metrics *observability.Metrics

	commands chan commandKind
	done     chan struct{}
	wg       stdsync.WaitGroup
	once     stdsync.Once

	// Loop-owned; never touched outside the run goroutine.
	session        Session
	reconnectTimer *time.Timer
	refreshTimer   *time.Timer

	mu     stdsync.RWMutex
	status Status
}

// New wires a synchronizer. Zero config fields fall back to DefaultConfig.
func New(cfg Config, stream Stream, queries Queries, store *state.Store, log zerolog.Logger, metrics *observability.Metrics) *Synchronizer {
	def := DefaultConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RefreshDelay <= 0 {
		cfg.RefreshDelay = def.RefreshDelay
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}

	return &Synchronizer{
		cfg:      cfg,
		stream:   stream,
		queries:  queries,
		store:    store,
		log:      log,
		metrics:  metrics,
		commands: make(chan commandKind, 16),
		done:     make(chan struct{}),
	}
}

// Start launches the run goroutine and the first connection attempt.
func (s *Synchronizer) Start() {
	s.wg.Add(1)
	go s.run()
}

// Close tears the synchronizer down. After it returns no timer fires and no
// store mutation happens.
func (s *Synchronizer) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

// Status returns the current connection state.
func (s *Synchronizer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RefreshPortfolio re-fetches authoritative balances and positions.
func (s *Synchronizer) RefreshPortfolio() { s.enqueue(cmdRefreshPortfolio) }

// RefreshHistory re-fetches the authoritative trade history.
func (s *Synchronizer) RefreshHistory() { s.enqueue(cmdRefreshHistory) }

// RefreshPerformance re-fetches the authoritative performance metrics.
func (s *Synchronizer) RefreshPerformance() { s.enqueue(cmdRefreshPerformance) }

func (s *Synchronizer) enqueue(cmd commandKind) {
	select {
	case s.commands <- cmd:
	case <-s.done:
	}
}

func (s *Synchronizer) run() {
	defer s.wg.Done()

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	s.connect()

	for {
		var msgs <-chan event.Message
		var closed <-chan error
		if s.session != nil {
			msgs = s.session.Messages()
			closed = s.session.Closed()
		}
		var reconnectC, refreshC <-chan time.Time
		if s.reconnectTimer != nil {
			reconnectC = s.reconnectTimer.C
		}
		if s.refreshTimer != nil {
			refreshC = s.refreshTimer.C
		}

		select {
		case <-s.done:
			s.teardown()
			return

		case cmd := <-s.commands:
			s.handleCommand(cmd)

		case msg, ok := <-msgs:
			if !ok {
				s.onDisconnect(errors.New("stream closed"))
				continue
			}
			s.handleMessage(msg)

		case err := <-closed:
			s.onDisconnect(err)

		case <-reconnectC:
			s.reconnectTimer = nil
			s.connect()

		case <-refreshC:
			s.refreshTimer = nil
			s.refetchCore()

		case <-poll.C:
			if s.Status().State != StateConnected {
				s.fallbackPoll()
			}
		}
	}
}

func (s *Synchronizer) connect() {
	s.setStatus(StateConnecting, "")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.QueryTimeout)
	sess, err := s.stream.Connect(ctx)
	cancel()
	if err != nil {
		s.log.Warn().Err(err).Msg("stream connect failed")
		s.onDisconnect(err)
		return
	}

	s.session = sess
	s.setStatus(StateConnected, "")
	if s.metrics != nil {
		s.metrics.StreamConnects.Inc()
	}
	s.log.Info().Msg("stream connected")

	// Seed the store with the authoritative full state. On failure the prior
	// state stays visible and the deferred refresh retries shortly.
	ctx, cancel = context.WithTimeout(context.Background(), s.cfg.QueryTimeout)
	snap, err := s.queries.Snapshot(ctx)
	cancel()
	if err != nil {
		s.log.Warn().Err(err).Msg("initial snapshot fetch failed")
		s.armRefresh()
		return
	}
	s.store.ApplyFullSnapshot(snap)
	s.markSynced()
}

// onDisconnect closes the session if any, records the error and arms exactly
// one reconnect timer. A pending timer is cancelled first, so two disconnect
// signals for the same outage never stack attempts.
func (s *Synchronizer) onDisconnect(err error) {
	if s.session != nil {
		_ = s.session.Close()
		s.session = nil
		if s.metrics != nil {
			s.metrics.StreamDisconnects.Inc()
		}
	}

	msg := "connection lost"
	if err != nil {
		msg = err.Error()
	}
	s.setStatus(StateDisconnected, msg)
	s.log.Warn().Str("reason", msg).Msg("stream disconnected")

	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectTimer = time.NewTimer(s.cfg.ReconnectDelay)
	if s.metrics != nil {
		s.metrics.SyncReconnects.Inc()
	}
}

func (s *Synchronizer) handleMessage(msg event.Message) {
	if s.metrics != nil {
		s.metrics.SyncMessages.WithLabelValues(msg.Kind().String()).Inc()
	}
	if err := event.Dispatch(msg, s); err != nil {
		s.log.Error().Err(err).Msg("message dropped")
		if s.metrics != nil {
			s.metrics.SyncMessagesDropped.WithLabelValues("unhandled").Inc()
		}
		return
	}
	s.markSynced()
}

// HandleInitialPortfolioData implements event.Handler.
func (s *Synchronizer) HandleInitialPortfolioData(m event.InitialPortfolioData) {
	s.store.ApplyFullSnapshot(m.Snapshot)
}

// HandlePortfolioUpdate implements event.Handler.
func (s *Synchronizer) HandlePortfolioUpdate(m event.PortfolioUpdate) {
	s.store.ApplyBalances(m.Balances)
	if m.Positions != nil {
		s.store.ReplacePositions(m.Positions)
	}
}

// HandlePositionsUpdate implements event.Handler.
func (s *Synchronizer) HandlePositionsUpdate(m event.PositionsUpdate) {
	s.store.ReplacePositions(m.Positions)
}

// HandleTradeExecuted implements event.Handler. The local recompute lands
// immediately; a deferred re-fetch reconciles against the authoritative
// session shortly after, batching bursts into one round trip.
func (s *Synchronizer) HandleTradeExecuted(m event.TradeExecuted) {
	if err := s.store.RecordTrade(m.Trade); err != nil {
		s.log.Warn().Err(err).Str("trade_id", m.Trade.ID.String()).Msg("trade rejected")
		if s.metrics != nil {
			s.metrics.SyncMessagesDropped.WithLabelValues("invalid_trade").Inc()
		}
		return
	}
	s.armRefresh()
}

// HandleBalanceUpdate implements event.Handler.
func (s *Synchronizer) HandleBalanceUpdate(m event.BalanceUpdate) {
	s.store.ApplyBalances(m.Balances)
}

// HandlePositionUpdate implements event.Handler.
func (s *Synchronizer) HandlePositionUpdate(m event.PositionUpdate) {
	s.store.UpsertPosition(m.Position)
}

// HandleMarkPriceUpdate implements event.Handler.
func (s *Synchronizer) HandleMarkPriceUpdate(m event.MarkPriceUpdate) {
	s.store.MarkPrice(m.Symbol, m.Price)
}

func (s *Synchronizer) handleCommand(cmd commandKind) {
	switch cmd {
	case cmdRefreshPortfolio:
		if s.metrics != nil {
			s.metrics.SyncRefreshes.WithLabelValues("portfolio").Inc()
		}
		s.refetchCore()
	case cmdRefreshHistory:
		if s.metrics != nil {
			s.metrics.SyncRefreshes.WithLabelValues("history").Inc()
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.QueryTimeout)
		trades, err := s.queries.History(ctx)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Msg("history refresh failed")
			return
		}
		s.store.ReplaceHistory(trades)
		s.markSynced()
	case cmdRefreshPerformance:
		if s.metrics != nil {
			s.metrics.SyncRefreshes.WithLabelValues("performance").Inc()
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.QueryTimeout)
		perf, err := s.queries.Performance(ctx)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Msg("performance refresh failed")
			return
		}
		s.store.ReplacePerformance(perf)
		s.markSynced()
	}
}

// refetchCore pulls authoritative balances and positions. Used by the
// deferred post-trade refresh, manual portfolio refresh and fallback polls.
func (s *Synchronizer) refetchCore() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.QueryTimeout)
	defer cancel()

	portfolio, err := s.queries.Portfolio(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("portfolio fetch failed")
		if s.metrics != nil {
			s.metrics.SyncPollErrors.Inc()
		}
		return
	}
	positions, err := s.queries.Positions(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("positions fetch failed")
		if s.metrics != nil {
			s.metrics.SyncPollErrors.Inc()
		}
		return
	}

	s.store.ApplyBalances(balanceDelta(portfolio))
	s.store.ReplacePositions(positions)
	s.markSynced()
}

func (s *Synchronizer) fallbackPoll() {
	if s.metrics != nil {
		s.metrics.SyncFallbackPolls.Inc()
	}
	s.refetchCore()
}

// armRefresh schedules (or pushes back) the deferred re-fetch. At most one
// pending refresh exists at a time.
func (s *Synchronizer) armRefresh() {
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}
	s.refreshTimer = time.NewTimer(s.cfg.RefreshDelay)
}

func (s *Synchronizer) teardown() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	if s.session != nil {
		_ = s.session.Close()
		s.session = nil
	}
	s.setStatus(StateDisconnected, "closed")
	s.log.Info().Msg("synchronizer closed")
}

func (s *Synchronizer) setStatus(st State, errMsg string) {
	s.mu.Lock()
	s.status.State = st
	s.status.Err = errMsg
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SyncState.Set(float64(st))
	}
}

func (s *Synchronizer) markSynced() {
	now := time.Now()
	s.mu.Lock()
	s.status.LastSyncedAt = now
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SyncLastSyncedAt.Set(float64(now.Unix()))
	}
}

// balanceDelta spreads an authoritative portfolio read over every balance
// field so ApplyBalances replaces them all.
func balanceDelta(p state.Portfolio) state.BalanceDelta {
	total := p.TotalBalance
	available := p.AvailableBalance
	locked := p.LockedBalance
	unrealized := p.TotalUnrealizedPnL
	realized := p.TotalRealizedPnL
	return state.BalanceDelta{
		TotalBalance:       &total,
		AvailableBalance:   &available,
		LockedBalance:      &locked,
		TotalUnrealizedPnL: &unrealized,
		TotalRealizedPnL:   &realized,
	}
}
