package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"lotflow/internal/apierror"
	"lotflow/internal/document"
	"lotflow/internal/dto"
	"lotflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newDocumentService(t *testing.T, f *fixture) (DocumentService, string) {
	t.Helper()
	dir := t.TempDir()
	renderer := document.NewRenderer("", nil, zerolog.Nop())
	return NewDocumentService(f.lots, renderer, f.queue, f.pub, dir, zerolog.Nop()), dir
}

func TestStoreUploadedPDF(t *testing.T) {
	f := newFixture(t)
	docs, dir := newDocumentService(t, f)
	ctx := context.Background()
	lot := threeItemLot(t, f)

	pdf := []byte("%PDF-1.4 station render")
	resp, err := docs.Store(ctx, lot.ID, dto.UploadPDFRequest{PDFBase64: base64.StdEncoding.EncodeToString(pdf)})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lot_"+lot.ID.String()+".pdf"), resp.PDFPath)

	stored, err := os.ReadFile(resp.PDFPath)
	require.NoError(t, err)
	assert.Equal(t, pdf, stored)

	got, err := f.lotSvc.Get(ctx, lot.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PDFPath)
	assert.Equal(t, resp.PDFPath, *got.PDFPath)

	open, err := docs.Open(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lot_Mairie_"+got.CreatedAt.Local().Format("2006-01-02")+".pdf", open.FileName)
}

func TestStoreRejectsBadUploadAndKeepsPointer(t *testing.T) {
	f := newFixture(t)
	docs, _ := newDocumentService(t, f)
	ctx := context.Background()
	lot := threeItemLot(t, f)

	first, err := docs.Store(ctx, lot.ID, dto.UploadPDFRequest{Regenerate: true})
	require.NoError(t, err)

	_, err = docs.Store(ctx, lot.ID, dto.UploadPDFRequest{PDFBase64: "!!not base64!!"})
	assert.ErrorIs(t, err, apierror.ErrValidation)
	_, err = docs.Store(ctx, lot.ID, dto.UploadPDFRequest{PDFBase64: base64.StdEncoding.EncodeToString([]byte("hello"))})
	assert.ErrorIs(t, err, apierror.ErrValidation)

	got, err := f.lotSvc.Get(ctx, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, first.PDFPath, *got.PDFPath)

	_, err = docs.Store(ctx, uuid.New(), dto.UploadPDFRequest{PDFBase64: base64.StdEncoding.EncodeToString([]byte("%PDF-"))})
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}

// Without a template the fallback renderer draws one row per item.
func TestRegenerateWithoutTemplate(t *testing.T) {
	f := newFixture(t)
	docs, _ := newDocumentService(t, f)
	ctx := context.Background()
	lot := threeItemLot(t, f)

	resp, err := docs.Regenerate(ctx, lot.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(resp.PDFPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	again, err := docs.Regenerate(ctx, lot.ID)
	require.NoError(t, err)
	data2, err := os.ReadFile(again.PDFPath)
	require.NoError(t, err)
	assert.Equal(t, data, data2, "unchanged lot renders identically")
}

func TestOpenWithoutPDF(t *testing.T) {
	f := newFixture(t)
	docs, _ := newDocumentService(t, f)
	lot := threeItemLot(t, f)

	_, err := docs.Open(context.Background(), lot.ID)
	assert.ErrorIs(t, err, apierror.ErrNotFound)
}

func TestEmailRendersMissingPDF(t *testing.T) {
	f := newFixture(t)
	docs, _ := newDocumentService(t, f)
	lot := threeItemLot(t, f)

	require.NoError(t, docs.Email(context.Background(), lot.ID, "atelier@example.org"))

	require.Len(t, f.queue.emails, 1)
	assert.Contains(t, f.queue.emails[0], "atelier@example.org")
	assert.Contains(t, f.queue.emails[0], "lot_"+lot.ID.String()+".pdf")
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(t)
	docs, _ := newDocumentService(t, f)
	ctx := context.Background()
	lot := threeItemLot(t, f)
	complete(t, f, lot.Items[0].ID, model.StatePourPieces, "Alice")

	var buf bytes.Buffer
	name, err := docs.ExportXLSX(ctx, lot.ID, &buf)
	require.NoError(t, err)
	assert.Contains(t, name, ".xlsx")

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Lot")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "N° de série", rows[0][1])
	assert.Equal(t, "SN-001", rows[1][1])
	assert.Equal(t, "Pour pièces", rows[1][6])
	assert.Equal(t, "Non défini", rows[2][6])

	summary, err := wb.GetRows("Résumé")
	require.NoError(t, err)
	assert.Equal(t, []string{"Total", "3"}, summary[4])
}
