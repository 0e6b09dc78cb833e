package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"PaperFolio/internal/event"
	"PaperFolio/internal/ledger"
	fpmath "PaperFolio/internal/math"
	"PaperFolio/internal/state"
)

// Publisher writes stream messages to their NATS subjects. Used by the
// development simulator and integration tests; the service itself only
// consumes.
type Publisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

func NewPublisher(nc *nats.Conn, log zerolog.Logger) *Publisher {
	return &Publisher{nc: nc, log: log}
}

// Publish marshals msg to its wire form and sends it on the subject for its
// kind.
func (p *Publisher) Publish(msg event.Message) error {
	data, err := MarshalMessage(msg)
	if err != nil {
		return err
	}
	subject := SubjectFor(msg.Kind())
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// PublishRaw sends arbitrary bytes on a subject, bypassing marshalling.
func (p *Publisher) PublishRaw(subject string, data []byte) error {
	return p.nc.Publish(subject, data)
}

// MarshalMessage renders a typed stream message into its wire payload, the
// inverse of ParseMessage.
func MarshalMessage(msg event.Message) ([]byte, error) {
	var payload any

	switch m := msg.(type) {
	case event.InitialPortfolioData:
		payload = encodeSnapshot(m.Snapshot)
	case event.PortfolioUpdate:
		j := portfolioUpdateJSON{
			Balances:    encodeBalances(m.Balances),
			TimestampMs: m.At.UnixMilli(),
		}
		if m.Positions != nil {
			j.Positions = encodePositions(m.Positions)
		}
		payload = j
	case event.PositionsUpdate:
		payload = positionsUpdateJSON{
			Positions:   encodePositions(m.Positions),
			TimestampMs: m.At.UnixMilli(),
		}
	case event.TradeExecuted:
		payload = encodeTrade(m.Trade)
	case event.BalanceUpdate:
		payload = struct {
			Balances    balancesJSON `json:"balances"`
			TimestampMs int64        `json:"timestamp_ms"`
		}{encodeBalances(m.Balances), m.At.UnixMilli()}
	case event.PositionUpdate:
		payload = positionUpdateJSON{
			Position:    encodePosition(m.Position),
			TimestampMs: m.At.UnixMilli(),
		}
	case event.MarkPriceUpdate:
		payload = markPriceJSON{
			Symbol:      m.Symbol,
			Price:       fpmath.FormatPrice(m.Price),
			TimestampMs: m.At.UnixMilli(),
		}
	default:
		return nil, fmt.Errorf("marshal: unhandled message type %T", msg)
	}

	return json.Marshal(payload)
}

func encodeTrade(t ledger.Trade) tradeJSON {
	j := tradeJSON{
		TradeID:      t.ID.String(),
		Symbol:       t.Symbol,
		Side:         t.Side.String(),
		Quantity:     fpmath.FormatQuantity(t.Quantity),
		Price:        fpmath.FormatPrice(t.Price),
		ExecutedAtMs: t.ExecutedAt.UnixMilli(),
	}
	if t.Fee != 0 {
		j.Fee = fpmath.FormatQuote(t.Fee)
	}
	if t.Slippage != 0 {
		j.Slippage = fpmath.FormatQuote(t.Slippage)
	}
	if t.OrderID != nil {
		j.OrderID = t.OrderID.String()
	}
	if t.SignalID != nil {
		j.SignalID = *t.SignalID
	}
	return j
}

func encodePosition(p ledger.Position) positionJSON {
	j := positionJSON{
		Symbol:        p.Symbol,
		Side:          p.Side.String(),
		Size:          fpmath.FormatQuantity(p.Size),
		EntryPrice:    fpmath.FormatPrice(p.EntryPrice),
		CurrentPrice:  fpmath.FormatPrice(p.CurrentPrice),
		UnrealizedPnL: fpmath.FormatQuote(p.UnrealizedPnL),
	}
	if p.StopLoss != nil {
		sl := fpmath.FormatPrice(*p.StopLoss)
		j.StopLoss = &sl
	}
	for _, tp := range p.TakeProfits {
		j.TakeProfits = append(j.TakeProfits, fpmath.FormatPrice(tp))
	}
	return j
}

func encodePositions(ps []ledger.Position) []positionJSON {
	out := make([]positionJSON, 0, len(ps))
	for _, p := range ps {
		out = append(out, encodePosition(p))
	}
	return out
}

func encodeBalances(d state.BalanceDelta) balancesJSON {
	var j balancesJSON
	if d.TotalBalance != nil {
		s := fpmath.FormatQuote(*d.TotalBalance)
		j.TotalBalance = &s
	}
	if d.AvailableBalance != nil {
		s := fpmath.FormatQuote(*d.AvailableBalance)
		j.AvailableBalance = &s
	}
	if d.LockedBalance != nil {
		s := fpmath.FormatQuote(*d.LockedBalance)
		j.LockedBalance = &s
	}
	if d.TotalUnrealizedPnL != nil {
		s := fpmath.FormatQuote(*d.TotalUnrealizedPnL)
		j.TotalUnrealizedPnL = &s
	}
	if d.TotalRealizedPnL != nil {
		s := fpmath.FormatQuote(*d.TotalRealizedPnL)
		j.TotalRealizedPnL = &s
	}
	return j
}

func encodePortfolio(p state.Portfolio) balancesJSON {
	total := fpmath.FormatQuote(p.TotalBalance)
	available := fpmath.FormatQuote(p.AvailableBalance)
	locked := fpmath.FormatQuote(p.LockedBalance)
	unrealized := fpmath.FormatQuote(p.TotalUnrealizedPnL)
	realized := fpmath.FormatQuote(p.TotalRealizedPnL)
	return balancesJSON{
		TotalBalance:       &total,
		AvailableBalance:   &available,
		LockedBalance:      &locked,
		TotalUnrealizedPnL: &unrealized,
		TotalRealizedPnL:   &realized,
	}
}

func encodePerformance(p ledger.Performance) performanceJSON {
	return performanceJSON{
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

func encodeSnapshot(snap state.Snapshot) snapshotJSON {
	j := snapshotJSON{
		Portfolio:   encodePortfolio(snap.Portfolio),
		Positions:   encodePositions(snap.Positions),
		TimestampMs: snap.AsOf.UnixMilli(),
	}
	for _, t := range snap.Trades {
		j.Trades = append(j.Trades, encodeTrade(t))
	}
	perf := encodePerformance(snap.Performance)
	j.Performance = &perf
	return j
}
