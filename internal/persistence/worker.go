package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"PaperFolio/internal/observability"
	"PaperFolio/internal/state"
)

// FlushWorker periodically saves the current store snapshot. It runs on its
// own goroutine and only reads the store, so it never stalls synchronization.
type FlushWorker struct {
	store    *state.Store
	sessions *SessionStore
	interval time.Duration
	log      zerolog.Logger
	metrics  *observability.Metrics

	lastAsOf time.Time
}

func NewFlushWorker(store *state.Store, sessions *SessionStore, interval time.Duration, log zerolog.Logger, metrics *observability.Metrics) *FlushWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &FlushWorker{
		store:    store,
		sessions: sessions,
		interval: interval,
		log:      log,
		metrics:  metrics,
	}
}

// Run flushes on a ticker until ctx is cancelled, then writes one final
// snapshot so shutdown never loses the last state.
func (w *FlushWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flush(final, true)
			cancel()
			return ctx.Err()

		case <-ticker.C:
			w.flush(ctx, false)
		}
	}
}

func (w *FlushWorker) flush(ctx context.Context, force bool) {
	snap := w.store.Snapshot()
	if !force && snap.AsOf.Equal(w.lastAsOf) {
		return
	}

	start := time.Now()
	if err := w.sessions.Save(ctx, snap); err != nil {
		w.log.Warn().Err(err).Msg("session flush failed")
		if w.metrics != nil {
			w.metrics.SessionFlushErrors.Inc()
		}
		return
	}
	w.lastAsOf = snap.AsOf

	if w.metrics != nil {
		w.metrics.SessionFlushes.Inc()
		w.metrics.SessionFlushDur.Observe(time.Since(start).Seconds())
	}
}
