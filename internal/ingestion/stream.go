// Package ingestion is the NATS edge of the synchronizer: it turns raw
// subject payloads into typed stream messages and publishes them for
// development collaborators. The connection deliberately does not reconnect
// on its own; the synchronizer owns that policy.
package ingestion

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"PaperFolio/internal/event"
	"PaperFolio/internal/observability"
	psync "PaperFolio/internal/sync"
)

// StreamConfig holds stream transport parameters.
type StreamConfig struct {
	URL      string
	Name     string // Connection name shown in NATS monitoring
	Buffer   int    // Per-session message buffer, default 256
	Subjects []SubjectConfig
}

// NATSStream opens one NATS connection per session attempt. Implements the
// synchronizer Stream interface.
type NATSStream struct {
	cfg     StreamConfig
	log     zerolog.Logger
	metrics *observability.Metrics
}

// NewNATSStream builds a stream transport. Nil subjects means DefaultSubjects.
func NewNATSStream(cfg StreamConfig, log zerolog.Logger, metrics *observability.Metrics) *NATSStream {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Name == "" {
		cfg.Name = "paperfolio-stream"
	}
	if cfg.Subjects == nil {
		cfg.Subjects = DefaultSubjects()
	}
	return &NATSStream{cfg: cfg, log: log, metrics: metrics}
}

// Connect dials NATS and subscribes the full subject table. The returned
// session delivers decoded messages until the connection dies; a malformed
// payload drops that one message and keeps the subscription.
func (s *NATSStream) Connect(ctx context.Context) (psync.Session, error) {
	sess := &natsSession{
		msgs:   make(chan event.Message, s.cfg.Buffer),
		closed: make(chan error, 1),
	}

	nc, err := nats.Connect(s.cfg.URL,
		nats.Name(s.cfg.Name),
		nats.NoReconnect(),
		nats.ClosedHandler(func(c *nats.Conn) {
			sess.deliverClosed(c.LastError())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			s.log.Warn().Err(err).Msg("stream async error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("stream connect %s: %w", s.cfg.URL, err)
	}
	sess.nc = nc

	for _, sc := range s.cfg.Subjects {
		kind := sc.Kind
		sub, err := nc.Subscribe(sc.Subject, func(m *nats.Msg) {
			msg, perr := ParseMessage(kind, m.Data)
			if perr != nil {
				s.log.Warn().Err(perr).Str("subject", m.Subject).Msg("malformed payload dropped")
				if s.metrics != nil {
					s.metrics.SyncMessagesDropped.WithLabelValues("malformed").Inc()
				}
				return
			}
			select {
			case sess.msgs <- msg:
			default:
				s.log.Warn().Str("subject", m.Subject).Msg("stream buffer full, message dropped")
				if s.metrics != nil {
					s.metrics.SyncMessagesDropped.WithLabelValues("overflow").Inc()
				}
			}
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("subscribe %s: %w", sc.Subject, err)
		}
		sess.subs = append(sess.subs, sub)
	}

	s.log.Info().Str("url", s.cfg.URL).Int("subjects", len(s.cfg.Subjects)).Msg("stream subscribed")
	return sess, nil
}

type natsSession struct {
	nc     *nats.Conn
	subs   []*nats.Subscription
	msgs   chan event.Message
	closed chan error
	once   stdsync.Once
}

func (s *natsSession) Messages() <-chan event.Message { return s.msgs }
func (s *natsSession) Closed() <-chan error           { return s.closed }

func (s *natsSession) Close() error {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.nc.Close()
	return nil
}

func (s *natsSession) deliverClosed(err error) {
	s.once.Do(func() {
		if err == nil {
			err = nats.ErrConnectionClosed
		}
		s.closed <- err
	})
}
