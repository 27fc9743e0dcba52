package router

import (
	"time"

	"lotflow/internal/archive"
	"lotflow/internal/config"
	"lotflow/internal/events"
	"lotflow/internal/repository"
	"lotflow/internal/service"

	"github.com/rs/zerolog"
)

// Services is the application layer handed to the HTTP surface and workers.
type Services struct {
	Lots    service.LotService
	Docs    service.DocumentService
	Catalog service.CatalogService
	Auth    service.AuthService
}

// Stores are the repositories of the selected backend.
type Stores struct {
	Lots    repository.LotRepository
	Catalog repository.ReferenceDataRepository
}

// Wire builds the services over the stores.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func Wire(
	cfg *config.Config,
	stores Stores,
	renderer archive.Renderer,
	jobs service.JobQueue,
	pub events.Publisher,
	operators []service.Operator,
	log zerolog.Logger,
) *Services {
	return &Services{
		Lots:    service.NewLotService(stores.Lots, stores.Catalog, pub, jobs, log.With().Str("component", "lots").Logger()),
		Docs:    service.NewDocumentService(stores.Lots, renderer, jobs, pub, cfg.PDFStoragePath, log.With().Str("component", "documents").Logger()),
		Catalog: service.NewCatalogService(stores.Catalog, log.With().Str("component", "catalog").Logger()),
		Auth:    service.NewAuthService(operators, cfg.JWTSecret, time.Duration(cfg.JWTExpirationHours)*time.Hour),
	}
}
