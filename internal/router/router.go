package router

import (
	"context"
	"time"

	"lotflow/internal/config"
	"lotflow/internal/events"
	"lotflow/internal/handler"
	"lotflow/internal/middleware"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Infra groups what the router needs beyond the services.
type Infra struct {
	DB    handler.Pinger
	Redis *redis.Client // nil when jobs run inline
	Hub   *events.Hub
	Log   zerolog.Logger
}

// New returns a configured Gin engine. Background goroutines owned by the
// router (rate limiter purge) stop with ctx.
func New(ctx context.Context, cfg *config.Config, svc *Services, in Infra) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	general := middleware.NewRateLimiter(1000, time.Minute, "Trop de requêtes. Réessayez plus tard.")
	login := middleware.LoginRateLimiter()
	general.StartPurge(ctx, 5*time.Minute, in.Log)
	login.StartPurge(ctx, 5*time.Minute, in.Log)

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(in.Log))
	r.Use(middleware.Recovery(in.Log))
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler(in.Log))
	r.Use(general.Middleware())

	authH := handler.NewAuthHandler(svc.Auth)
	lotsH := handler.NewLotsHandler(svc.Lots, svc.Docs)
	marquesH := handler.NewMarquesHandler(svc.Catalog)

	// Public
	r.GET("/health", handler.Health(in.DB, in.Redis))

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/login", login.Middleware(), authH.Login)

		v1.GET("/lots", lotsH.List)
		v1.GET("/lots/:id", lotsH.Get)
		v1.GET("/lots/:id/pdf", lotsH.DownloadPDF)
		v1.GET("/lots/:id/export.xlsx", lotsH.ExportXLSX)

		v1.GET("/marques", marquesH.List)
		v1.GET("/marques/all", marquesH.ListAll)
		v1.GET("/marques/:id/modeles", marquesH.ListModeles)

		if in.Hub != nil {
			v1.GET("/ws", gin.WrapH(in.Hub))
		}
	}

	// Writes require an operator token
	protected := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		protected.POST("/lots", lotsH.Create)
		protected.PUT("/lots/:id", lotsH.Update)
		protected.PUT("/lots/items/:id", lotsH.UpdateItem)
		protected.PATCH("/lots/items/:id", lotsH.UpdateItem)
		protected.POST("/lots/:id/pdf", lotsH.UploadPDF)
		protected.POST("/lots/:id/email", lotsH.Email)

		protected.POST("/marques", marquesH.Create)
		protected.POST("/marques/:id/modeles", marquesH.CreateModele)
	}

	// Swagger UI only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
