// station is the workshop terminal: it assembles lots from barcode scans,
// records diagnoses and files the report of every finished lot.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lotflow/internal/archive"
	"lotflow/internal/client"
	"lotflow/internal/config"
	"lotflow/internal/document"
	"lotflow/internal/infra"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.LoadStation()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.APIURL, cfg.RequestTimeout, log)
	if api.Health(ctx) == client.StatusOffline {
		log.Warn().Str("url", cfg.APIURL).Msg("API hors ligne, nouvelle tentative à chaque commande")
	}
	if cfg.Username != "" {
		if err := api.Login(ctx, cfg.Username, cfg.Password); err != nil {
			log.Error().Err(err).Msg("connexion refusée")
		}
	}
	if cfg.ArchiveRoot == "" {
		log.Warn().Msg("LOTFLOW_ARCHIVE_ROOT non défini, archivage local désactivé")
	}

	renderer := document.NewRenderer(cfg.PDFTemplatePath,
		infra.NewChromePrinter(cfg.ChromePath, cfg.PipelineTimeout), log)
	pipeline := archive.NewPipeline(cfg.ArchiveRoot, renderer, api, log)

	st := &station{
		api:      api,
		workflow: client.NewWorkflow(api, pipeline, cfg.PipelineTimeout, log),
		cfg:      cfg,
		out:      os.Stdout,
		log:      log,
	}
	if err := st.run(ctx, bufio.NewScanner(os.Stdin)); err != nil {
		log.Error().Err(err).Msg("station stopped")
		os.Exit(1)
	}
}
