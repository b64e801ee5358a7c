package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	"github.com/udhaari/khata/internal/config"
	"github.com/udhaari/khata/internal/database"
	"github.com/udhaari/khata/internal/handlers"
	"github.com/udhaari/khata/internal/logger"
	"github.com/udhaari/khata/internal/metrics"
	mW "github.com/udhaari/khata/internal/middleware"
	"github.com/udhaari/khata/internal/repository"
	"github.com/udhaari/khata/internal/services"
)

func main() {
	// Initialize config
	cfgErr := config.Init()
	log := logger.New(logger.FromViper())
	if cfgErr != nil {
		log.Info().Err(cfgErr).Msg("Config file not found, using defaults and environment")
	}

	ledgerCfg := config.LoadLedgerConfig(log)
	serverCfg := config.LoadServerConfig()

	// Storage: Postgres when reachable, in-memory otherwise
	var repo repository.Repository
	db, err := database.Open(database.GetConfig(), log)
	if err != nil {
		log.Warn().Err(err).Msg("Postgres unavailable, using in-memory repository")
		repo = repository.NewMemoryRepository()
	} else {
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		repo = repository.NewPostgresRepository(db)
	}

	// Change notifications fan out through Redis so every instance sees them
	redisClient := database.InitRedis(log)
	var notifier services.Notifier
	if redisClient != nil {
		defer redisClient.Close()
		notifier = services.NewRedisNotifier(redisClient)
	} else {
		notifier = services.NewLocalNotifier()
	}

	m := metrics.New()

	// Initialize services
	reconciler := services.NewReconciler(repo, notifier, log, m)
	ledger := services.NewLedgerService(repo, reconciler, notifier, log, m)
	sessions := services.NewSessionRegistry(ledger, ledgerCfg.UndoWindow)
	customers := services.NewCustomerService(repo, notifier, sessions, *ledgerCfg, log, m)
	reports := services.NewReportService(repo, *ledgerCfg)
	watcher := services.NewWatcher(repo, notifier, sessions, log, m)
	qrService := services.NewQRService(redisClient, ledgerCfg.Currency, log)

	api := handlers.Routes(handlers.Handlers{
		Customers:    handlers.NewCustomerHandler(customers, reports, *ledgerCfg, log),
		Transactions: handlers.NewTransactionHandler(ledger, sessions, reconciler, ledgerCfg.TZ(), log),
		Reports:      handlers.NewReportHandler(reports),
		QR:           handlers.NewQRHandler(qrService),
		Watch:        handlers.NewWatchHandler(watcher, log),
	}, mW.Auth([]byte(viper.GetString("jwt.secret_key"))), serverCfg.WriteTimeout)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.SecurityHeaders)
	r.Use(mW.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   serverCfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", m.Handler())
	r.Mount("/api/v1", api)

	// No server WriteTimeout: websocket watchers hold the connection open.
	// REST routes are bounded by serverCfg.WriteTimeout in the router.
	server := &http.Server{
		Addr:        ":" + serverCfg.Port,
		Handler:     r,
		ReadTimeout: serverCfg.ReadTimeout,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server stopped")
}
