// Storefront checkout service: cart, shipping quotes, order submission and
// payment webhook reconciliation over WooCommerce, Razorpay and Shiprocket.
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

	"github.com/redis/go-redis/v9"

	"storefront-checkout/internal/cart"
	"storefront-checkout/internal/checkout"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/fulfillment"
	"storefront-checkout/internal/handler"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/middleware"
	"storefront-checkout/internal/razorpay"
	"storefront-checkout/internal/shipping"
	"storefront-checkout/internal/shiprocket"
	"storefront-checkout/internal/woocommerce"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("store_url", cfg.Store.StoreURL),
		slog.String("currency", cfg.Store.Currency),
		slog.Bool("shared_locks", cfg.RedisAddr != ""),
		slog.Bool("customer_auth", cfg.Store.JWTSecret != ""),
	)

	commerce, err := woocommerce.New(woocommerce.Config{
		StoreURL:       cfg.Store.StoreURL,
		ConsumerKey:    cfg.Store.ConsumerKey,
		ConsumerSecret: cfg.Store.ConsumerSecret,
		Timeout:        cfg.UpstreamTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating woocommerce client: %w", err)
	}
	gateway, err := razorpay.New(razorpay.Config{
		KeyID:     cfg.Store.RazorpayKeyID,
		KeySecret: cfg.Store.RazorpayKeySecret,
		Timeout:   cfg.UpstreamTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating razorpay client: %w", err)
	}
	logistics, err := shiprocket.New(shiprocket.Config{
		Email:    cfg.Store.ShiprocketEmail,
		Password: cfg.Store.ShiprocketPassword,
		Timeout:  cfg.UpstreamTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating shiprocket client: %w", err)
	}

	guard, closeGuard, err := createGuard(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeGuard()

	codec, err := cart.NewCookieCodec([]byte(cfg.Store.CartHashKey), []byte(cfg.Store.CartBlockKey))
	if err != nil {
		return fmt.Errorf("creating cart codec: %w", err)
	}
	notifier := cart.NewNotifier(logger)
	unsubscribe := notifier.Subscribe(func(ev cart.Event) {
		metrics.RecordCartMutation(string(ev.Op))
	})
	defer unsubscribe()

	h := handler.New(handler.Deps{
		Commerce: commerce,
		Resolver: shipping.NewResolver(logistics, shipping.Config{
			PickupPostcode: cfg.Store.PickupPostcode,
			Timeout:        cfg.UpstreamTimeout,
		}, logger),
		Coordinator: checkout.NewCoordinator(commerce, gateway, checkout.Config{
			Currency:  cfg.Store.Currency,
			KeyID:     gateway.KeyID(),
			KeySecret: cfg.Store.RazorpayKeySecret,
			SiteURL:   cfg.SiteURL,
		}, logger),
		Reconciler: fulfillment.NewReconciler(commerce, logistics, guard, fulfillment.Config{
			WebhookSecret:  cfg.Store.RazorpayWebhookSecret,
			PickupLocation: cfg.Store.PickupName,
			ChannelID:      cfg.Store.ChannelID,
			Timeout:        2 * cfg.UpstreamTimeout,
		}, logger),
		CartCodec:       codec,
		CartNotifier:    notifier,
		SecureCookies:   cfg.Production(),
		RequireCustomer: middleware.RequireCustomer([]byte(cfg.Store.JWTSecret), logger),
		MCPAuth:         middleware.RequireMCPCustomer([]byte(cfg.Store.JWTSecret)),
		Currency:        cfg.Store.Currency,
	}, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → logging → metrics → handler
	// Recovery must be outermost to catch panics from logging middleware.
	// Metrics sits directly on the mux so it sees the matched route pattern.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Metrics,
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// createGuard returns the shipment lock store. With REDIS_ADDR set the locks
// are shared across instances; otherwise they are per process.
func createGuard(ctx context.Context, cfg *config.Config, logger *slog.Logger) (fulfillment.Guard, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, shipment locks are per instance")
		return fulfillment.NewMemoryGuard(fulfillment.DefaultLockTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}

	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing redis client", slog.String("error", err.Error()))
		}
	}
	return fulfillment.NewRedisGuard(client, fulfillment.DefaultLockTTL), closeFn, nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
