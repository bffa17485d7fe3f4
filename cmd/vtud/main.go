package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vtuplatform"
	"vtuplatform/internal/common/database"
	"vtuplatform/internal/common/middleware"
	"vtuplatform/internal/common/nats"
	"vtuplatform/internal/funding"
	"vtuplatform/internal/provider"
	provapi "vtuplatform/internal/provider/api"
	"vtuplatform/internal/provider/payrant"
	"vtuplatform/internal/provider/smeplug"
	"vtuplatform/internal/provider/topupmate"
	"vtuplatform/internal/provider/vtpass"
	"vtuplatform/internal/provider/vtpay"
	"vtuplatform/internal/purchase"
	purchapi "vtuplatform/internal/purchase/api"
	"vtuplatform/internal/transaction"
	"vtuplatform/internal/wallet"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"VTU_PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	NATSEnabled bool   `envconfig:"NATS_ENABLED" default:"false"`

	Database database.Config
	NATS     nats.Config
	Auth     middleware.AuthConfig
	Sweeper  purchase.SweeperConfig

	Smeplug   smeplug.Config
	Topupmate topupmate.Config
	VTpass    vtpass.Config
	Payrant   payrant.Config
	VTpay     vtpay.Config
}

func main() {
	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Run migrations, then connect
	if err := database.Migrate(vtuplatform.Migrations, cfg.Database.URL, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Events are optional; the platform runs without a broker.
	var publisher *nats.Publisher
	var natsClient *nats.Client
	if cfg.NATSEnabled {
		natsClient, err = nats.New(ctx, cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		if err := natsClient.EnsureStream(ctx, "EVENTS", []string{"events.>"}); err != nil {
			logger.Error("failed to ensure event stream", "error", err)
			os.Exit(1)
		}
		publisher = nats.NewPublisher(natsClient, logger)
	}

	// Provider credential resolution: DB rows overlay env fallbacks.
	configStore := provider.NewConfigStore(db, 60*time.Second)
	configStore.SetFallback(smeplug.ProviderCode, provider.Credentials{
		BaseURL: cfg.Smeplug.BaseURL, APIKey: cfg.Smeplug.APIKey,
	})
	configStore.SetFallback(topupmate.ProviderCode, provider.Credentials{
		BaseURL: cfg.Topupmate.BaseURL, APIKey: cfg.Topupmate.APIKey,
	})
	configStore.SetFallback(vtpass.ProviderCode, provider.Credentials{
		BaseURL: cfg.VTpass.BaseURL, APIKey: cfg.VTpass.APIKey, SecretKey: cfg.VTpass.SecretKey,
	})
	configStore.SetFallback(payrant.ProviderCode, provider.Credentials{
		BaseURL: cfg.Payrant.BaseURL, APIKey: cfg.Payrant.APIKey, SecretKey: cfg.Payrant.SecretKey,
	})
	configStore.SetFallback(vtpay.ProviderCode, provider.Credentials{
		BaseURL: cfg.VTpay.BaseURL, APIKey: cfg.VTpay.APIKey, SecretKey: cfg.VTpay.SecretKey,
	})

	// Provider clients and the routing registry
	smeplugClient := smeplug.NewClient(cfg.Smeplug, configStore, logger)
	topupmateClient := topupmate.NewClient(cfg.Topupmate, configStore, logger)
	vtpassClient := vtpass.NewClient(cfg.VTpass, configStore, logger)
	payrantClient := payrant.NewClient(cfg.Payrant, configStore, logger)
	vtpayClient := vtpay.NewClient(cfg.VTpay, configStore, logger)

	registry := provider.NewRegistry(configStore, logger)
	for _, client := range []provider.Client{
		smeplugClient, topupmateClient, vtpassClient, payrantClient, vtpayClient,
	} {
		if err := registry.Register(client); err != nil {
			logger.Error("failed to register provider", "provider", client.Code(), "error", err)
			os.Exit(1)
		}
	}

	// Domain services
	walletStore := wallet.NewStore(db)
	walletService := wallet.NewService(walletStore, publisherOrNil(publisher), logger)
	transactionStore := transaction.NewStore(db)

	purchaseService := purchase.NewService(
		walletService, transactionStore, registry, publisherOrNil(publisher), logger)
	sweeper := purchase.NewSweeper(purchaseService, cfg.Sweeper, logger)
	go sweeper.Run(ctx)

	accountStore := funding.NewStore(db)
	fundingService := funding.NewService(
		db, walletStore, transactionStore, accountStore,
		payrantClient, vtpayClient, publisherOrNil(publisher), logger)
	fundingService.RegisterWebhookSource(payrant.ProviderCode, payrantClient)
	fundingService.RegisterWebhookSource(vtpay.ProviderCode, vtpayClient)

	// Handlers
	purchaseHandler := purchapi.NewHandler(purchaseService, logger)
	fundingHandler := funding.NewHandler(fundingService, walletService, logger)
	providerHandler := provapi.NewHandler(configStore, logger)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Webhooks carry their own signature auth
	fundingHandler.WebhookRoutes(r)

	// Authenticated API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth))

		purchaseHandler.Routes(r)
		fundingHandler.Routes(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			providerHandler.Routes(r)
		})
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting vtu service",
			"port", cfg.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// publisherOrNil keeps a typed-nil *nats.Publisher from masquerading as
// a non-nil interface value in the services' nil checks.
func publisherOrNil(p *nats.Publisher) wallet.Publisher {
	if p == nil {
		return nil
	}
	return p
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
