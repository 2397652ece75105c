// Package main is the entry point for the calbook server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dtorcivia/calbook/internal/accounts"
	"github.com/dtorcivia/calbook/internal/availability"
	"github.com/dtorcivia/calbook/internal/booking"
	"github.com/dtorcivia/calbook/internal/calendar"
	"github.com/dtorcivia/calbook/internal/config"
	"github.com/dtorcivia/calbook/internal/crypto"
	"github.com/dtorcivia/calbook/internal/database"
	"github.com/dtorcivia/calbook/internal/google"
	"github.com/dtorcivia/calbook/internal/kvstore"
	"github.com/dtorcivia/calbook/internal/metrics"
	"github.com/dtorcivia/calbook/internal/oauth"
	"github.com/dtorcivia/calbook/internal/outlook"
	"github.com/dtorcivia/calbook/internal/server"
	"github.com/dtorcivia/calbook/internal/server/middleware"
	"github.com/dtorcivia/calbook/internal/util"
	"github.com/dtorcivia/calbook/internal/workers"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefaultLogger(logger)

	logger.Info("Starting calbook",
		"version", version,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	logger.Info("Database initialized", "path", cfg.Database.Path)

	encryptor, err := crypto.NewEncryptor(cfg.Auth.EncryptionKey)
	if err != nil {
		return err
	}

	clock := util.SystemClock{}
	accountStore := accounts.NewStore(db, encryptor, clock)

	kv, closeKV, err := openKeyedStore(ctx, cfg, db, clock)
	if err != nil {
		return err
	}
	defer closeKV()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	vendors := oauth.NewRegistry(oauth.NewGoogleConfig(cfg.Google), oauth.NewOutlookConfig(cfg.Outlook))
	if len(vendors) == 0 {
		logger.Warn("No calendar vendor is configured; connections will be rejected")
	}

	tokens := oauth.NewManager(oauth.ManagerConfig{
		Store:       accountStore,
		Vendors:     vendors,
		Clock:       clock,
		RefreshSkew: cfg.OAuth.RefreshSkew,
		HTTPClient:  httpClient,
		Metrics:     m,
		Logger:      logger,
	})
	reauth := &calendar.Reauth{Tokens: tokens, MaxRetries: cfg.OAuth.MaxReauthRetries, Observer: m}

	googleClient := google.New(google.Config{
		Reauth:            reauth,
		Timeout:           cfg.HTTP.Timeout,
		DefaultCalendarID: cfg.Google.CalendarID,
		Metrics:           m,
	})
	outlookClient := outlook.New(outlook.Config{
		Reauth:  reauth,
		Timeout: cfg.HTTP.Timeout,
		BaseURL: cfg.Outlook.GraphBaseURL,
		Metrics: m,
	})
	router := calendar.NewRouter(googleClient, outlookClient)

	flow := oauth.NewFlow(vendors, oauth.NewStateStore(kv, cfg.OAuth.StateTTL, clock), httpClient)
	connector := oauth.NewConnector(oauth.ConnectorConfig{
		Flow:     flow,
		Accounts: accountStore,
		Profiles: map[calendar.Vendor]calendar.ProfileFetcher{
			calendar.VendorGoogle:  googleClient,
			calendar.VendorOutlook: outlookClient,
		},
		DefaultTimezone: cfg.Availability.DefaultTimezone,
		CalendarIDs:     map[calendar.Vendor]string{calendar.VendorGoogle: cfg.Google.CalendarID},
		Metrics:         m,
		Logger:          logger,
	})

	policy, err := availability.ParsePolicy(cfg.Availability.BusyFailurePolicy)
	if err != nil {
		return err
	}
	engine := availability.NewEngine(availability.EngineConfig{
		Clients:         router,
		DefaultTimezone: cfg.Availability.DefaultTimezone,
		Policy:          policy,
		Metrics:         m,
		Logger:          logger,
	})
	bookings := booking.NewService(booking.Config{
		Accounts: accountStore,
		Engine:   engine,
		Clients:  router,
		Clock:    clock,
		Metrics:  m,
		Logger:   logger,
	})

	srv := server.New(server.Deps{
		DB:           db,
		Connector:    connector,
		Accounts:     accountStore,
		Availability: availability.NewConfigSource(accountStore),
		Bookings:     bookings,
		Sessions:     booking.NewSessions(kv, cfg.Availability.SessionTTL, clock),
		Gatherer:     reg,
		APIToken:     cfg.Auth.APIToken,
		RateLimiter:  middleware.NewRateLimiter(cfg.RateLimit),
		Logger:       logger,
	})
	if cfg.Auth.APIToken == "" {
		logger.Warn("CALBOOK_API_TOKEN is empty; /api routes are unauthenticated")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			"addr", httpServer.Addr,
			"base_url", cfg.Server.BaseURL,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	go workers.NewCleanupWorker(kv, m, cfg.Store.CleanupInterval).Start(ctx)
	srv.StartBackgroundWorkers(ctx)
	logger.Info("Background workers started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
	return nil
}

// openKeyedStore opens the configured backend for authorization state and
// scheduling sessions. The returned func releases it.
func openKeyedStore(ctx context.Context, cfg *config.Config, db *database.DB, clock util.Clock) (kvstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case "redis":
		r, err := kvstore.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		util.Info("Keyed store initialized", "backend", "redis", "addr", cfg.Redis.Addr)
		return r, func() { r.Close() }, nil
	case "memory":
		util.Info("Keyed store initialized", "backend", "memory")
		return kvstore.NewMemory(clock), func() {}, nil
	default:
		util.Info("Keyed store initialized", "backend", "sqlite")
		return kvstore.NewSQLite(db, clock), func() {}, nil
	}
}
