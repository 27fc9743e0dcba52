//go:build integration

package router

// End-to-end run against real Postgres and Redis via testcontainers.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"context"
	"net/http"
	"testing"
	"time"

	"lotflow/internal/config"
	"lotflow/internal/document"
	"lotflow/internal/dto"
	"lotflow/internal/events"
	"lotflow/internal/infra"
	"lotflow/internal/model"
	"lotflow/internal/repository"
	"lotflow/internal/service"
	"lotflow/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupContainers(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zerolog.Nop()

	pgC, err := tcPostgres.Run(ctx, "postgres:16-alpine",
		tcPostgres.WithDatabase("lotflow_test"),
		tcPostgres.WithUsername("lotflow"),
		tcPostgres.WithPassword("lotflow"),
		testcontainers.WithWaitStrategy(tcPostgres.BasicWaitStrategies()...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })
	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(context.Background()) })
	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Env:                "test",
		JWTSecret:          testSecret,
		JWTExpirationHours: 1,
		DatabaseURL:        pgURL,
		RedisURL:           rdURL,
		WorkerPoolSize:     1,
		PDFStoragePath:     t.TempDir(),
	}

	db, err := infra.NewDatabase(ctx, cfg.DatabaseURL, log)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	rdb, err := infra.NewRedis(ctx, cfg.RedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	ops, err := service.UpsertOperator(nil, "atelier", "motdepasse")
	require.NoError(t, err)

	dispatcher := worker.NewDispatcher(rdb, log)
	svc := Wire(cfg,
		Stores{Lots: repository.NewLotRepository(db), Catalog: repository.NewReferenceDataRepository(db)},
		document.NewRenderer("", nil, log), dispatcher, events.Nop{}, ops, log)
	dispatcher.Handle(worker.JobPDF, worker.NewPDFWorker(svc.Docs, log).Process)
	dispatcher.Start(ctx, cfg.WorkerPoolSize)

	ts := &testServer{
		engine:     New(ctx, cfg, svc, Infra{DB: sqlDB, Redis: rdb, Log: log}),
		dispatcher: dispatcher,
	}
	w := ts.do(t, http.MethodPost, "/v1/auth/login", dto.LoginRequest{Username: "atelier", Password: "motdepasse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login dto.LoginResponse
	decode(t, w, &login)
	ts.token = login.AccessToken
	return ts
}

func TestPostgresRedisLifecycle(t *testing.T) {
	ts := setupContainers(t)

	w := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"db":"connected","redis":"connected"}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/v1/marques", dto.CreateMarqueRequest{Name: "Lenovo"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var marque dto.MarqueResponse
	decode(t, w, &marque)

	req := dto.CreateLotRequest{LotName: strPtr("Collecte PG"), Items: []dto.LotItemInput{
		{SerialNumber: "PG-1", Type: model.TypePortable, MarqueID: &marque.ID},
		{SerialNumber: "PG-2", Type: model.TypeEcran},
		{SerialNumber: "PG-3", Type: model.TypeFixe},
	}}
	w = ts.do(t, http.MethodPost, "/v1/lots", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created dto.CreateLotResponse
	decode(t, w, &created)

	// Scenario 1
	assert.Contains(t, ts.listIDs(t, "active"), created.ID)
	lot := ts.getLot(t, created.ID)
	assert.Equal(t, 3, lot.Pending)
	assert.Equal(t, "Lenovo", lot.Items[0].MarqueName)

	// Scenarios 2 and 3
	states := []string{model.StateReconditionne, model.StatePourPieces, model.StateHS}
	for i, it := range lot.Items {
		w := ts.do(t, http.MethodPut, "/v1/lots/items/"+it.ID.String(), dto.UpdateItemRequest{
			State: strPtr(states[i]), Technician: strPtr("Alice"),
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		if i == 0 {
			assert.Equal(t, 2, ts.getLot(t, created.ID).Pending)
		}
	}
	assert.Contains(t, ts.listIDs(t, "finished"), created.ID)
	assert.NotContains(t, ts.listIDs(t, "active"), created.ID)

	// The redis worker renders the report
	require.Eventually(t, func() bool {
		return ts.getLot(t, created.ID).PDFPath != nil
	}, 20*time.Second, 200*time.Millisecond)

	// Scenario 4
	w = ts.do(t, http.MethodPut, "/v1/lots/"+created.ID.String(), dto.UpdateLotRequest{Status: strPtr("recovered")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := ts.getLot(t, created.ID).RecoveredAt
	require.NotNil(t, first)
	w = ts.do(t, http.MethodPut, "/v1/lots/"+created.ID.String(), dto.UpdateLotRequest{Status: strPtr("recovered")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, first.Equal(*ts.getLot(t, created.ID).RecoveredAt))
}
