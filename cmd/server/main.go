package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/flipscout/internal/ai"
	"github.com/pauljones0/flipscout/internal/browser"
	"github.com/pauljones0/flipscout/internal/config"
	"github.com/pauljones0/flipscout/internal/notifier"
	"github.com/pauljones0/flipscout/internal/processor"
	"github.com/pauljones0/flipscout/internal/scraper"
	"github.com/pauljones0/flipscout/internal/storage"
)

type Server struct {
	processor  processor.Processor
	store      storage.Store
	runTimeout time.Duration
	// lifecycle is cancelled on shutdown; every run derives from it.
	lifecycle context.Context

	busy atomic.Bool
	runs sync.WaitGroup
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)
	slog.Info("Starting flipscout...", "engine", cfg.BrowserEngine, "store", cfg.StoreBackend, "evaluator", cfg.Evaluator)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("flipscout stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("flipscout stopped.")
}

func run(ctx context.Context, cfg *config.Config) error {
	searches, err := config.LoadSearches(cfg.SearchesPath)
	if err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing seen-set: %w", err)
	}
	defer store.Close()

	fetcher, err := browser.New(cfg)
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			slog.Warn("Browser shutdown error", "error", err)
		}
	}()

	extractor, err := scraper.New(cfg.MarketplaceURL, cfg.Source, scraper.LoadConfig(cfg.SelectorsPath))
	if err != nil {
		return err
	}
	slog.Info("Listing extractor ready", "strategies", extractor.Strategies())

	evaluator, err := ai.New(ctx, cfg, searches.ReferencePrices)
	if err != nil {
		return fmt.Errorf("initializing evaluator: %w", err)
	}

	n := notifier.New(cfg.DiscordWebhookURL, cfg.NotifyInterval)
	if cfg.DiscordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, alerts will only be logged")
	}
	p := processor.New(store, fetcher, extractor, evaluator, n, cfg)

	srv := &Server{processor: p, store: store, runTimeout: cfg.RunTimeout}

	if cfg.RunOnce {
		runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
		_, err := p.Run(runCtx)
		return err
	}
	return srv.serve(ctx, cfg)
}

func (s *Server) serve(ctx context.Context, cfg *config.Config) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/scan", s.ScanHandler)
	mux.HandleFunc("/health", s.HealthHandler)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	s.lifecycle = gctx
	g.Go(func() error {
		slog.Info("Listening on port", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		s.heartbeat(gctx, cfg.HeartbeatInterval)
		return nil
	})
	if cfg.ScanInterval > 0 {
		g.Go(func() error {
			s.schedule(gctx, cfg.ScanInterval)
			return nil
		})
	}

	err := g.Wait()
	s.runs.Wait()
	return err
}

// startRun launches a background run unless one is already active.
func (s *Server) startRun(ctx context.Context, trigger string) bool {
	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer s.busy.Store(false)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in scan run", "panic", r)
			}
		}()
		runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
		slog.Info("Scan triggered", "trigger", trigger)
		if _, err := s.processor.Run(runCtx); err != nil {
			slog.Error("Scan finished with errors", "trigger", trigger, "error", err)
		}
	}()
	return true
}

// ScanHandler starts a run asynchronously so the HTTP response isn't blocked by
// browsing, evaluation and webhook calls that may take many minutes.
func (s *Server) ScanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Runs outlive the request but not the server.
	if !s.startRun(s.runContext(), "http") {
		http.Error(w, "Scan already in progress.", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "Scan started.")
}

func (s *Server) runContext() context.Context {
	if s.lifecycle == nil {
		return context.Background()
	}
	return s.lifecycle
}

type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Seen   *int64 `json:"seen,omitempty"`
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", State: s.processor.State().String()}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if n, err := s.store.Count(ctx); err == nil {
			resp.Seen = &n
		} else {
			slog.Debug("Seen-set count unavailable", "error", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) heartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Info("Heartbeat", "state", s.processor.State().String(), "running", s.busy.Load())
		}
	}
}

func (s *Server) schedule(ctx context.Context, interval time.Duration) {
	slog.Info("Scheduled scans enabled", "interval", interval)
	s.startRun(ctx, "startup")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.startRun(ctx, "schedule") {
				slog.Warn("Previous scan still running, skipping scheduled scan")
			}
		}
	}
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
