// Package query is the pull side of synchronization: request/reply reads of
// the authoritative session state over NATS. It runs on its own
// auto-reconnecting connection so fallback polling keeps working while the
// push stream is down.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"PaperFolio/internal/ledger"
	"PaperFolio/internal/observability"
	"PaperFolio/internal/state"
)

// Query subjects answered by the session (or the development simulator).
const (
	SubjectSnapshot    = "paper.query.snapshot"
	SubjectPortfolio   = "paper.query.portfolio"
	SubjectPositions   = "paper.query.positions"
	SubjectHistory     = "paper.query.history"
	SubjectPerformance = "paper.query.performance"
)

// ConnectNATS establishes the query connection. Unlike the stream connection
// this one reconnects forever on its own; a query issued during an outage
// simply fails and the caller retries on the next cycle.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("paperfolio-query"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("query connection lost")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("query connection restored")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("query connect %s: %w", url, err)
	}
	return nc, nil
}

// Client implements the synchronizer Queries interface over NATS
// request/reply.
type Client struct {
	nc      *nats.Conn
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewClient(nc *nats.Conn, log zerolog.Logger, metrics *observability.Metrics) *Client {
	return &Client{nc: nc, log: log, metrics: metrics}
}

// errEnvelope lets responders signal a structured failure instead of a DTO.
type errEnvelope struct {
	Error string `json:"error,omitempty"`
}

func (c *Client) request(ctx context.Context, subject string, out any) error {
	start := time.Now()
	if c.metrics != nil {
		c.metrics.QueryRequests.WithLabelValues(subject).Inc()
	}

	msg, err := c.nc.RequestWithContext(ctx, subject, nil)
	if err != nil {
		if c.metrics != nil {
			c.metrics.QueryErrors.WithLabelValues(subject).Inc()
		}
		return fmt.Errorf("query %s: %w", subject, err)
	}

	var env errEnvelope
	if json.Unmarshal(msg.Data, &env) == nil && env.Error != "" {
		if c.metrics != nil {
			c.metrics.QueryErrors.WithLabelValues(subject).Inc()
		}
		return fmt.Errorf("query %s: %s", subject, env.Error)
	}

	if err := json.Unmarshal(msg.Data, out); err != nil {
		if c.metrics != nil {
			c.metrics.QueryErrors.WithLabelValues(subject).Inc()
		}
		return fmt.Errorf("query %s: decode reply: %w", subject, err)
	}

	if c.metrics != nil {
		c.metrics.QueryDuration.WithLabelValues(subject).Observe(time.Since(start).Seconds())
	}
	return nil
}

// Snapshot fetches the full authoritative session state.
func (c *Client) Snapshot(ctx context.Context) (state.Snapshot, error) {
	var r SnapshotResponse
	if err := c.request(ctx, SubjectSnapshot, &r); err != nil {
		return state.Snapshot{}, err
	}
	return r.ToSnapshot()
}

// Portfolio fetches the authoritative balances.
func (c *Client) Portfolio(ctx context.Context) (state.Portfolio, error) {
	var r PortfolioResponse
	if err := c.request(ctx, SubjectPortfolio, &r); err != nil {
		return state.Portfolio{}, err
	}
	return r.ToPortfolio()
}

// Positions fetches the authoritative open-position list.
func (c *Client) Positions(ctx context.Context) ([]ledger.Position, error) {
	var rs []PositionResponse
	if err := c.request(ctx, SubjectPositions, &rs); err != nil {
		return nil, err
	}
	positions := make([]ledger.Position, 0, len(rs))
	for i, r := range rs {
		p, err := r.ToPosition()
		if err != nil {
			return nil, fmt.Errorf("positions[%d]: %w", i, err)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// History fetches the authoritative trade history, oldest first.
func (c *Client) History(ctx context.Context) ([]ledger.Trade, error) {
	var rs []TradeResponse
	if err := c.request(ctx, SubjectHistory, &rs); err != nil {
		return nil, err
	}
	trades := make([]ledger.Trade, 0, len(rs))
	for i, r := range rs {
		t, err := r.ToTrade()
		if err != nil {
			return nil, fmt.Errorf("history[%d]: %w", i, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Performance fetches the authoritative derived metrics.
func (c *Client) Performance(ctx context.Context) (ledger.Performance, error) {
	var r PerformanceResponse
	if err := c.request(ctx, SubjectPerformance, &r); err != nil {
		return ledger.Performance{}, err
	}
	return r.ToPerformance()
}
