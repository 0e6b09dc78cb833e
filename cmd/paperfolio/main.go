package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"PaperFolio/internal/ingestion"
	fpmath "PaperFolio/internal/math"
	"PaperFolio/internal/observability"
	"PaperFolio/internal/persistence"
	"PaperFolio/internal/query"
	"PaperFolio/internal/server"
	"PaperFolio/internal/state"
	psync "PaperFolio/internal/sync"
)

// Config holds all service configuration, loaded from PAPER_* environment
// variables.
type Config struct {
	NATSURL     string
	PostgresDSN string // Empty disables session persistence

	HTTPAddr       string
	MetricsAddr    string
	AllowedOrigins []string

	InitialBalance string // Decimal quote units, e.g. "10000"
	HistoryCap     int

	ReconnectDelay time.Duration
	PollInterval   time.Duration
	RefreshDelay   time.Duration
	QueryTimeout   time.Duration
	FlushInterval  time.Duration

	MigrationsDir string
}

func DefaultConfig() Config {
	return Config{
		NATSURL:        envOrDefault("PAPER_NATS_URL", "nats://localhost:4222"),
		PostgresDSN:    os.Getenv("PAPER_POSTGRES_DSN"),
		HTTPAddr:       envOrDefault("PAPER_HTTP_ADDR", ":8080"),
		MetricsAddr:    envOrDefault("PAPER_METRICS_ADDR", ":9091"),
		AllowedOrigins: splitNonEmpty(os.Getenv("PAPER_ALLOWED_ORIGINS")),
		InitialBalance: envOrDefault("PAPER_INITIAL_BALANCE", "10000"),
		HistoryCap:     envIntOrDefault("PAPER_HISTORY_CAP", state.DefaultHistoryCap),
		ReconnectDelay: envDurationOrDefault("PAPER_RECONNECT_DELAY", 3*time.Second),
		PollInterval:   envDurationOrDefault("PAPER_POLL_INTERVAL", 10*time.Second),
		RefreshDelay:   envDurationOrDefault("PAPER_REFRESH_DELAY", 500*time.Millisecond),
		QueryTimeout:   envDurationOrDefault("PAPER_QUERY_TIMEOUT", 5*time.Second),
		FlushInterval:  envDurationOrDefault("PAPER_FLUSH_INTERVAL", 30*time.Second),
		MigrationsDir:  envOrDefault("PAPER_MIGRATIONS_DIR", "migrations"),
	}
}

func main() {
	log := observability.NewLogger("paperfolio")
	cfg := DefaultConfig()

	initialBalance, err := fpmath.ParseQuote(cfg.InitialBalance)
	if err != nil {
		log.Fatal().Err(err).Str("value", cfg.InitialBalance).Msg("invalid PAPER_INITIAL_BALANCE")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	store := state.NewStore(state.Config{
		InitialBalance: initialBalance,
		HistoryCap:     cfg.HistoryCap,
	}, log.With().Str("component", "store").Logger(), metrics)

	// --- Optional session persistence ---
	var flushDone chan struct{}
	if cfg.PostgresDSN != "" {
		db, err := persistence.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect failed")
		}
		defer db.Close()

		if err := persistence.NewMigrator(db, cfg.MigrationsDir, log).Up(ctx); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		log.Info().Msg("postgres connected, migrations applied")

		sessions := persistence.NewSessionStore(db)
		if snap, ok, err := sessions.LoadLatest(ctx); err != nil {
			log.Warn().Err(err).Msg("session restore failed, starting cold")
		} else if ok {
			store.ApplyFullSnapshot(snap)
			log.Info().Time("as_of", snap.AsOf).Msg("session restored")
		}

		worker := persistence.NewFlushWorker(store, sessions, cfg.FlushInterval,
			log.With().Str("component", "flush").Logger(), metrics)
		flushDone = make(chan struct{})
		go func() {
			defer close(flushDone)
			worker.Run(ctx)
		}()
	} else {
		log.Info().Msg("PAPER_POSTGRES_DSN empty, session persistence disabled")
	}

	// --- Query connection (auto-reconnecting) ---
	queryConn, err := query.ConnectNATS(cfg.NATSURL, log.With().Str("component", "query").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("query connect failed")
	}
	defer queryConn.Close()
	queries := query.NewClient(queryConn, log, metrics)

	// --- Stream + synchronizer ---
	stream := ingestion.NewNATSStream(ingestion.StreamConfig{URL: cfg.NATSURL},
		log.With().Str("component", "stream").Logger(), metrics)

	syncer := psync.New(psync.Config{
		ReconnectDelay: cfg.ReconnectDelay,
		PollInterval:   cfg.PollInterval,
		RefreshDelay:   cfg.RefreshDelay,
		QueryTimeout:   cfg.QueryTimeout,
	}, stream, queries, store, log.With().Str("component", "sync").Logger(), metrics)
	syncer.Start()

	// --- HTTP API ---
	api := server.New(server.Config{
		Addr:           cfg.HTTPAddr,
		AllowedOrigins: cfg.AllowedOrigins,
	}, store, syncer, health, log.With().Str("component", "http").Logger())
	go func() {
		if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	// --- Metrics endpoint ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	health.SetReady(true)
	log.Info().Str("nats", cfg.NATSURL).Str("http", cfg.HTTPAddr).Msg("paperfolio running")

	<-sigChan
	log.Info().Msg("shutting down")
	health.SetReady(false)

	syncer.Close()
	cancel()
	if flushDone != nil {
		select {
		case <-flushDone:
		case <-time.After(10 * time.Second):
			log.Warn().Msg("flush worker did not stop in time")
		}
	}
	log.Info().Msg("shutdown complete")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
