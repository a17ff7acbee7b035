package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/receiptsplit/internal/config"
	"github.com/mmynk/receiptsplit/internal/events"
	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/middleware"
	"github.com/mmynk/receiptsplit/internal/ocr"
	"github.com/mmynk/receiptsplit/internal/service"
	"github.com/mmynk/receiptsplit/internal/storage"
	"github.com/mmynk/receiptsplit/internal/storage/memory"
	"github.com/mmynk/receiptsplit/internal/storage/sqlite"
	"github.com/mmynk/receiptsplit/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, err := openStore(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Session store started", "backend", cfg.SessionStore, "ttl", cfg.SessionTTL, "sweep_interval", cfg.SessionSweepInterval)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		p, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		publisher = p
		logger.Info("Publishing session events", "nats_url", cfg.NATSURL, "subject_prefix", cfg.NATSSubjectPrefix)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close event publisher", "error", err)
		}
	}()

	receiptOpts := []service.ReceiptOption{
		service.WithReceiptMetrics(m),
		service.WithMaxUploadBytes(cfg.MaxUploadBytes),
		service.WithReceiptLogger(logger),
	}
	if cfg.OpenAIAPIKey != "" {
		receiptOpts = append(receiptOpts, service.WithRecognizer(ocr.NewOpenAIRecognizer(cfg.OpenAIAPIKey, cfg.OpenAIModel)))
		logger.Info("Receipt scanning enabled", "model", cfg.OpenAIModel)
	} else {
		logger.Info("Receipt scanning disabled, OPENAI_API_KEY not set")
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(m))
	r.Use(middleware.CORS(cfg.AllowedOrigin))

	service.NewSessionService(store,
		service.WithPublisher(publisher, cfg.NATSSubjectPrefix),
		service.WithShareURLPrefix(cfg.ShareURLPrefix),
		service.WithSessionLogger(logger),
	).RegisterRoutes(r)
	service.NewSplitService(store, logger).RegisterRoutes(r)
	service.NewReceiptService(receiptOpts...).RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h2c.NewHandler(r, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr, "url", fmt.Sprintf("http://localhost%s", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// sweepingStore is a session store with a background expiry sweeper.
type sweepingStore interface {
	storage.SessionStore
	Start(ctx context.Context)
}

// openStore builds the configured session store and starts its sweeper.
func openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (sweepingStore, error) {
	var store sweepingStore
	switch cfg.SessionStore {
	case "sqlite":
		s, err := sqlite.New(ctx,
			sqlite.WithTTL(cfg.SessionTTL),
			sqlite.WithSweepInterval(cfg.SessionSweepInterval),
			sqlite.WithMetrics(m),
			sqlite.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite session store: %w", err)
		}
		store = s
	default:
		store = memory.New(
			memory.WithTTL(cfg.SessionTTL),
			memory.WithSweepInterval(cfg.SessionSweepInterval),
			memory.WithMetrics(m),
			memory.WithLogger(logger),
		)
	}
	store.Start(ctx)
	return store, nil
}
