package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lotflow/internal/config"
	"lotflow/internal/document"
	"lotflow/internal/events"
	"lotflow/internal/handler"
	"lotflow/internal/infra"
	"lotflow/internal/repository"
	"lotflow/internal/repository/sqlitestore"
	"lotflow/internal/router"
	"lotflow/internal/service"
	"lotflow/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Env == "production" {
		log = zerolog.New(os.Stderr)
	} else {
		// dev: pretty console output
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return log.Level(level).With().Timestamp().Logger()
}

// openStores connects the configured backend and returns its repositories,
// a pinger for /health and a closer.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (router.Stores, handler.Pinger, func(), error) {
	switch cfg.StoreBackend {
	case "sqlite":
		db, err := infra.NewSQLite(ctx, cfg.SQLitePath, log)
		if err != nil {
			return router.Stores{}, nil, nil, err
		}
		stores := router.Stores{Lots: sqlitestore.NewLotStore(db), Catalog: sqlitestore.NewCatalogStore(db)}
		return stores, db, func() { db.Close() }, nil
	case "postgres", "":
		db, err := infra.NewDatabase(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return router.Stores{}, nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return router.Stores{}, nil, nil, err
		}
		stores := router.Stores{Lots: repository.NewLotRepository(db), Catalog: repository.NewReferenceDataRepository(db)}
		return stores, sqlDB, func() { sqlDB.Close() }, nil
	default:
		return router.Stores{}, nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	log := newLogger(cfg)
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, pinger, closeDB, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open store")
	}
	defer closeDB()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infra.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
	}

	operators, err := service.LoadOperators(cfg.OperatorsFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.OperatorsFile).Msg("failed to load operators")
	}
	if len(operators) == 0 {
		log.Warn().Str("file", cfg.OperatorsFile).Msg("no operators configured, writes will be refused")
	}

	// Composition root: services and workers share the dispatcher.
	hub := events.NewHub(log.With().Str("component", "ws").Logger())
	renderer := document.NewRenderer(cfg.PDFTemplatePath,
		infra.NewChromePrinter(cfg.ChromePath, cfg.RenderTimeout),
		log.With().Str("component", "renderer").Logger())
	dispatcher := worker.NewDispatcher(rdb, log.With().Str("component", "worker").Logger())
	svc := router.Wire(cfg, stores, renderer, dispatcher, hub, operators, log)

	mailer := infra.NewMailer(cfg)
	if !mailer.Configured() {
		log.Warn().Msg("SMTP_HOST not set, email jobs will fail")
	}
	dispatcher.Handle(worker.JobPDF, worker.NewPDFWorker(svc.Docs, log).Process)
	dispatcher.Handle(worker.JobEmail, worker.NewEmailWorker(mailer, log).Process)
	dispatcher.Start(ctx, cfg.WorkerPoolSize)

	worker.StartRetryCron(ctx, worker.RetryCronConfig{
		Lots:       stores.Lots,
		Dispatcher: dispatcher,
		Log:        log.With().Str("component", "retry_cron").Logger(),
	})

	if cfg.CatalogSeedFile != "" {
		if err := svc.Catalog.Seed(ctx, cfg.CatalogSeedFile); err != nil {
			log.Error().Err(err).Str("file", cfg.CatalogSeedFile).Msg("catalog seed failed")
		}
	}

	r := router.New(ctx, cfg, svc, router.Infra{DB: pinger, Redis: rdb, Hub: hub, Log: log})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RenderTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Str("backend", cfg.StoreBackend).Msgf("lotflow API listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	cancel()
	dispatcher.Wait()
	log.Info().Msg("server exited")
}
