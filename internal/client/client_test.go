package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"lotflow/internal/apierror"
	"lotflow/internal/archive"
	"lotflow/internal/config"
	"lotflow/internal/document"
	"lotflow/internal/dto"
	"lotflow/internal/events"
	"lotflow/internal/infra"
	"lotflow/internal/model"
	"lotflow/internal/repository/sqlitestore"
	"lotflow/internal/router"
	"lotflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Harness ───────────────────────────────────────────────────────────────────

type nopQueue struct{}

func (nopQueue) EnqueuePDF(context.Context, uuid.UUID) error { return nil }
func (nopQueue) EnqueueEmail(context.Context, uuid.UUID, string, string) error {
	return nil
}

// newAPI starts the real HTTP API over an in-memory store and returns a
// logged-in client.
func newAPI(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zerolog.Nop()

	db, err := infra.NewSQLite(ctx, ":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ops, err := service.UpsertOperator(nil, "atelier", "motdepasse")
	require.NoError(t, err)
	cfg := &config.Config{Env: "test", JWTSecret: "client_test_secret", JWTExpirationHours: 1, PDFStoragePath: t.TempDir()}
	svc := router.Wire(cfg,
		router.Stores{Lots: sqlitestore.NewLotStore(db), Catalog: sqlitestore.NewCatalogStore(db)},
		document.NewRenderer("", nil, log), nopQueue{}, events.Nop{}, ops, log)

	srv := httptest.NewServer(router.New(ctx, cfg, svc, router.Infra{DB: db, Log: log}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, 5*time.Second, log)
	c.backoff = time.Millisecond
	require.NoError(t, c.Login(ctx, "atelier", "motdepasse"))
	return c
}

func createLot(t *testing.T, c *Client, serials ...string) uuid.UUID {
	t.Helper()
	req := dto.CreateLotRequest{}
	for _, s := range serials {
		req.Items = append(req.Items, dto.LotItemInput{SerialNumber: s, Type: model.TypeFixe, EntryType: model.EntryScan})
	}
	resp, err := c.CreateLot(context.Background(), req)
	require.NoError(t, err)
	return resp.ID
}

func strPtr(s string) *string { return &s }

// ── Tests: client ─────────────────────────────────────────────────────────────

func TestHealthOnline(t *testing.T) {
	c := newAPI(t)
	assert.Equal(t, StatusOnline, c.Health(context.Background()))
}

func TestHealthOfflineAfterBoundedRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	c.backoff = time.Millisecond
	assert.Equal(t, StatusOffline, c.Health(context.Background()))
	assert.Equal(t, int32(maxAttempts), hits.Load())
}

func TestHealthOfflineWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, time.Second, zerolog.Nop())
	c.backoff = time.Millisecond
	assert.Equal(t, StatusOffline, c.Health(context.Background()))
}

func TestStatusErrorsUnwrapToSentinels(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()

	_, _, err := c.GetLot(ctx, uuid.New())
	assert.True(t, errors.Is(err, apierror.ErrNotFound), err)

	_, err = c.CreateLot(ctx, dto.CreateLotRequest{Items: []dto.LotItemInput{
		{SerialNumber: "D1", Type: model.TypeFixe}, {SerialNumber: "D1", Type: model.TypeFixe},
	}})
	assert.True(t, errors.Is(err, apierror.ErrConflict), err)

	id := createLot(t, c, "P1")
	_, err = c.FinishLot(ctx, id)
	assert.True(t, errors.Is(err, apierror.ErrConflict), "pending lot cannot be finished")

	c.SetToken("")
	_, err = c.RenameLot(ctx, id, "x")
	assert.True(t, errors.Is(err, apierror.ErrUnauthorized), err)
}

func TestGetLotNormalisesCounters(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()
	id := createLot(t, c, "N1", "N2")

	summary, items, err := c.GetLot(ctx, id)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Pending)

	renamed, err := c.RenameLot(ctx, id, "Don entreprise")
	require.NoError(t, err)
	require.NotNil(t, renamed.LotName)
	assert.Equal(t, "Don entreprise", *renamed.LotName)

	active, err := c.ListLots(ctx, model.LotStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].Pending)
}

func TestUploadPDFRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pdf_path":"/srv/lot.pdf"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	c.backoff = time.Millisecond
	path, err := c.UploadPDF(context.Background(), uuid.New(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "/srv/lot.pdf", path)
	assert.Equal(t, int32(3), hits.Load())
}

func TestValidationErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"le document transmis n'est pas un PDF"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	_, err := c.UploadPDF(context.Background(), uuid.New(), []byte("nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierror.ErrValidation))
	assert.Contains(t, err.Error(), "PDF")
	assert.Equal(t, int32(1), hits.Load())
}

// ── Tests: workflow ───────────────────────────────────────────────────────────

func TestWorkflowFinishesAndArchivesOnLastEdit(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()
	root := t.TempDir()
	pipeline := archive.NewPipeline(root, document.NewRenderer("", nil, zerolog.Nop()), c, zerolog.Nop())
	wf := NewWorkflow(c, pipeline, time.Minute, zerolog.Nop())

	id := createLot(t, c, "W1", "W2")
	_, items, err := c.GetLot(ctx, id)
	require.NoError(t, err)

	res, err := wf.EditItem(ctx, items[0].ID, dto.UpdateItemRequest{State: strPtr(model.StateHS), Technician: strPtr("Awa")})
	require.NoError(t, err)
	assert.False(t, res.Finished)
	assert.Equal(t, 1, res.Result.Pending)
	assert.Nil(t, res.Archive)

	res, err = wf.EditItem(ctx, items[1].ID, dto.UpdateItemRequest{State: strPtr(model.StatePourPieces), Technician: strPtr("Yann")})
	require.NoError(t, err)
	require.True(t, res.Finished)
	require.NoError(t, res.ArchiveErr)
	require.NotNil(t, res.Archive)
	assert.NotEmpty(t, res.Archive.PDFPath)

	first, err := os.ReadFile(res.Archive.LocalPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(first, []byte("%PDF-")))

	summary, _, err := c.GetLot(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, summary.FinishedAt)
	require.NotNil(t, summary.PDFPath)

	// Regenerating converges on the same file and content
	again, err := wf.Regenerate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, res.Archive.LocalPath, again.LocalPath)
	second, err := os.ReadFile(again.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Finishing again is idempotent
	_, err = c.FinishLot(ctx, id)
	assert.NoError(t, err)
}

func TestWorkflowWithoutArchiveRootStillUploads(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()
	pipeline := archive.NewPipeline("", document.NewRenderer("", nil, zerolog.Nop()), c, zerolog.Nop())
	wf := NewWorkflow(c, pipeline, time.Minute, zerolog.Nop())

	id := createLot(t, c, "R1")
	_, items, err := c.GetLot(ctx, id)
	require.NoError(t, err)

	res, err := wf.EditItem(ctx, items[0].ID, dto.UpdateItemRequest{State: strPtr(model.StateReconditionne), Technician: strPtr("Awa")})
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.ErrorIs(t, res.ArchiveErr, archive.ErrArchiveUnavailable)
	require.NotNil(t, res.Archive)
	assert.Empty(t, res.Archive.LocalPath)
	assert.NotEmpty(t, res.Archive.PDFPath)
}

type countingRenderer struct {
	archive.Renderer
	renders atomic.Int32
}

func (r *countingRenderer) Render(ctx context.Context, doc *document.Document) (*document.Result, error) {
	r.renders.Add(1)
	return r.Renderer.Render(ctx, doc)
}

type flakyUploader struct {
	archive.Uploader
	failing atomic.Bool
}

func (u *flakyUploader) UploadPDF(ctx context.Context, lotID uuid.UUID, pdf []byte) (string, error) {
	if u.failing.Load() {
		return "", errors.New("passerelle indisponible")
	}
	return u.Uploader.UploadPDF(ctx, lotID, pdf)
}

func TestRetryUploadSendsArchivedFileWithoutRendering(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()
	renderer := &countingRenderer{Renderer: document.NewRenderer("", nil, zerolog.Nop())}
	uploader := &flakyUploader{Uploader: c}
	uploader.failing.Store(true)
	pipeline := archive.NewPipeline(t.TempDir(), renderer, uploader, zerolog.Nop())
	wf := NewWorkflow(c, pipeline, time.Minute, zerolog.Nop())

	id := createLot(t, c, "U1")
	_, items, err := c.GetLot(ctx, id)
	require.NoError(t, err)

	res, err := wf.EditItem(ctx, items[0].ID, dto.UpdateItemRequest{State: strPtr(model.StateHS), Technician: strPtr("Awa")})
	require.NoError(t, err)
	require.True(t, res.Finished)
	var uploadErr *archive.UploadError
	require.ErrorAs(t, res.ArchiveErr, &uploadErr)
	require.FileExists(t, uploadErr.Path)

	pending, ok := wf.PendingUpload(id)
	require.True(t, ok)
	assert.Equal(t, uploadErr.Path, pending)
	summary, _, err := c.GetLot(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, summary.PDFPath)
	require.Equal(t, int32(1), renderer.renders.Load())

	uploader.failing.Store(false)
	pdfPath, err := wf.RetryUpload(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, pdfPath)
	assert.Equal(t, int32(1), renderer.renders.Load(), "retry must not render again")

	summary, _, err = c.GetLot(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, summary.PDFPath)
	assert.Equal(t, pdfPath, *summary.PDFPath)

	_, ok = wf.PendingUpload(id)
	assert.False(t, ok)
	_, err = wf.RetryUpload(ctx, id)
	assert.ErrorIs(t, err, ErrNoPendingUpload)
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}

func TestRetryUploadWithMissingFile(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()
	uploader := &flakyUploader{Uploader: c}
	uploader.failing.Store(true)
	pipeline := archive.NewPipeline(t.TempDir(), document.NewRenderer("", nil, zerolog.Nop()), uploader, zerolog.Nop())
	wf := NewWorkflow(c, pipeline, time.Minute, zerolog.Nop())

	id := createLot(t, c, "U2")
	_, items, err := c.GetLot(ctx, id)
	require.NoError(t, err)
	res, err := wf.EditItem(ctx, items[0].ID, dto.UpdateItemRequest{State: strPtr(model.StateHS), Technician: strPtr("Awa")})
	require.NoError(t, err)
	require.NotNil(t, res.Archive)
	require.NoError(t, os.Remove(res.Archive.LocalPath))

	uploader.failing.Store(false)
	_, err = wf.RetryUpload(ctx, id)
	var local *archive.LocalError
	assert.ErrorAs(t, err, &local)
	_, ok := wf.PendingUpload(id)
	assert.False(t, ok, "a missing file needs a full regeneration")
}
