package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"card-token-bridge/api"
	"card-token-bridge/bridge"
	"card-token-bridge/cache"
	"card-token-bridge/config"
	"card-token-bridge/providers"
)

// newProvider builds the configured tokenization provider, wrapped in a circuit breaker
// unless it is disabled.
func newProvider(cfg *config.Config, logger *slog.Logger) providers.TokenProvider {
	var p providers.TokenProvider
	switch cfg.Stripe.Provider {
	case "sandbox":
		p = providers.NewSandboxProvider(200*time.Millisecond, 800*time.Millisecond)
	default:
		p = providers.NewStripeProvider(
			providers.WithBaseURL(cfg.Stripe.APIURL),
			providers.WithTimeout(cfg.Stripe.RequestTimeout),
		)
	}
	if cfg.Breaker.MaxFailures == 0 {
		return p
	}
	return providers.NewBreaker(p, providers.BreakerSettings{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
	}, logger)
}

func newMailbox(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Mailbox, func(), error) {
	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set, using in-memory token mailbox")
		store := cache.NewMemoryStore()
		return store, store.Close, nil
	}
	store, err := cache.NewRedisStoreFromURL(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

func run(logger *slog.Logger, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mailbox, closeMailbox, err := newMailbox(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeMailbox()

	provider := newProvider(cfg, logger)
	b, err := bridge.New(bridge.Config{PublishableKey: cfg.Stripe.PublishableKey}, provider, mailbox, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewAPI(b, mailbox, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("port", cfg.Server.Port), slog.String("provider", provider.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("err", err))
	}
	if err := b.WaitContext(shutdownCtx); err != nil {
		logger.Error("in-flight tokenizations abandoned", slog.Any("err", err))
	}
	logger.Info("server exited properly")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration", slog.Any("err", err))
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", slog.Any("err", err))
		os.Exit(1)
	}
}
