// papersim is a development collaborator: it plays the upstream trading
// session, publishing a random-walk stream of marks and executions and
// answering the query subjects from its own authoritative book. It also
// re-publishes the occasional duplicate trade and a malformed payload so the
// consumer's dedup and drop paths get exercised outside unit tests.
package main

import (
	"encoding/json"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"PaperFolio/internal/event"
	"PaperFolio/internal/ingestion"
	"PaperFolio/internal/ledger"
	fpmath "PaperFolio/internal/math"
	"PaperFolio/internal/observability"
	"PaperFolio/internal/query"
	"PaperFolio/internal/state"
)

const initialBalance = 10_000_000_000 // 10,000.00 quote units

func main() {
	log := observability.NewLogger("papersim")

	url := envOrDefault("PAPER_NATS_URL", "nats://localhost:4222")
	symbols := splitSymbols(envOrDefault("PAPER_SIM_SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT"))
	tick := 1 * time.Second
	if v := os.Getenv("PAPER_SIM_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			tick = d
		}
	}

	nc, err := nats.Connect(url,
		nats.Name("papersim"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Fatal().Err(err).Str("url", url).Msg("nats connect failed")
	}
	defer nc.Close()

	sim := &simulator{
		book: state.NewStore(state.Config{InitialBalance: initialBalance}, zerolog.Nop(), nil),
		pub:  ingestion.NewPublisher(nc, log),
		log:  log,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		prices: map[string]int64{
			"BTCUSDT": 4_200_000, // 42,000.00
			"ETHUSDT": 250_000,   // 2,500.00
			"SOLUSDT": 15_000,    // 150.00
		},
		symbols: symbols,
	}
	for _, sym := range symbols {
		if _, ok := sim.prices[sym]; !ok {
			sim.prices[sym] = 10_000 // 100.00 for unknown symbols
		}
	}

	if err := sim.serveQueries(nc); err != nil {
		log.Fatal().Err(err).Msg("query subscriptions failed")
	}

	if err := sim.pub.Publish(event.InitialPortfolioData{Snapshot: sim.book.Snapshot()}); err != nil {
		log.Warn().Err(err).Msg("initial snapshot publish failed")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	log.Info().Str("url", url).Strs("symbols", symbols).Dur("tick", tick).Msg("papersim running")
	for {
		select {
		case <-sigChan:
			log.Info().Msg("papersim stopped")
			return
		case <-ticker.C:
			sim.step()
		}
	}
}

type simulator struct {
	book    *state.Store
	pub     *ingestion.Publisher
	log     zerolog.Logger
	rng     *rand.Rand
	prices  map[string]int64
	symbols []string

	lastTrade *ledger.Trade
	ticks     int
}

// step advances every symbol's random walk one tick and sometimes trades.
func (s *simulator) step() {
	s.ticks++
	now := time.Now()

	for _, sym := range s.symbols {
		s.walk(sym)
		s.book.MarkPrice(sym, s.prices[sym])
		s.publish(event.MarkPriceUpdate{Symbol: sym, Price: s.prices[sym], At: now})
	}

	switch {
	case s.rng.Float64() < 0.30:
		s.trade(now)
	case s.lastTrade != nil && s.rng.Float64() < 0.15:
		// Redeliver the previous execution; consumers must treat it as a no-op.
		s.publish(event.TradeExecuted{Trade: *s.lastTrade})
	case s.rng.Float64() < 0.05:
		if err := s.pub.PublishRaw(ingestion.SubjectFor(event.KindTradeExecuted), []byte(`{"trade_id": garbage`)); err != nil {
			s.log.Warn().Err(err).Msg("malformed publish failed")
		}
	}

	// Periodic authoritative balance push.
	if s.ticks%10 == 0 {
		snap := s.book.Snapshot()
		s.publish(event.PortfolioUpdate{
			Balances:  fullBalances(snap.Portfolio),
			Positions: snap.Positions,
			At:        now,
		})
	}
}

// walk moves a price by up to ±0.5% per tick, floored at one cent.
func (s *simulator) walk(sym string) {
	price := s.prices[sym]
	drift := int64(float64(price) * (s.rng.Float64() - 0.5) * 0.01)
	price += drift
	if price < 1 {
		price = 1
	}
	s.prices[sym] = price
}

func (s *simulator) trade(now time.Time) {
	sym := s.symbols[s.rng.Intn(len(s.symbols))]

	side := ledger.SideBuy
	if s.rng.Float64() < 0.5 {
		side = ledger.SideSell
	}

	qty := int64(s.rng.Intn(490_000) + 10_000) // 0.01 .. 0.50
	price := s.prices[sym]
	notional := fpmath.ComputeNotional(qty, price)

	t := ledger.Trade{
		ID:         uuid.New(),
		Symbol:     sym,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Fee:        notional / 1000, // 10 bps taker fee
		ExecutedAt: now,
	}
	if err := s.book.RecordTrade(t); err != nil {
		s.log.Warn().Err(err).Msg("book rejected generated trade")
		return
	}
	s.lastTrade = &t
	s.publish(event.TradeExecuted{Trade: t})
}

func (s *simulator) publish(msg event.Message) {
	if err := s.pub.Publish(msg); err != nil {
		s.log.Warn().Err(err).Str("kind", msg.Kind().String()).Msg("publish failed")
	}
}

// serveQueries answers the request/reply subjects from the simulator's book.
func (s *simulator) serveQueries(nc *nats.Conn) error {
	respond := func(m *nats.Msg, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			data, _ = json.Marshal(map[string]string{"error": err.Error()})
		}
		if err := m.Respond(data); err != nil {
			s.log.Warn().Err(err).Str("subject", m.Subject).Msg("respond failed")
		}
	}

	handlers := map[string]nats.MsgHandler{
		query.SubjectSnapshot: func(m *nats.Msg) {
			respond(m, query.NewSnapshotResponse(s.book.Snapshot()))
		},
		query.SubjectPortfolio: func(m *nats.Msg) {
			respond(m, query.NewPortfolioResponse(s.book.Snapshot().Portfolio))
		},
		query.SubjectPositions: func(m *nats.Msg) {
			respond(m, query.NewPositionResponses(s.book.Snapshot().Positions))
		},
		query.SubjectHistory: func(m *nats.Msg) {
			respond(m, query.NewTradeResponses(s.book.Snapshot().Trades))
		},
		query.SubjectPerformance: func(m *nats.Msg) {
			respond(m, query.NewPerformanceResponse(s.book.Snapshot().Performance))
		},
	}
	for subject, handler := range handlers {
		if _, err := nc.Subscribe(subject, handler); err != nil {
			return err
		}
	}
	return nil
}

func fullBalances(p state.Portfolio) state.BalanceDelta {
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

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
