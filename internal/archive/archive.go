// Package archive files a lot's rendered report on the local archive share and
// hands the same bytes to the lot service, so both copies converge.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"

	"lotflow/internal/document"
	"lotflow/internal/infra"
	"lotflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrArchiveUnavailable means no archive root is configured. The report was
// still rendered and uploaded.
var ErrArchiveUnavailable = errors.New("archive: local archive not available")

// LocalError is a failure to create or write the archive file. Nothing was
// uploaded and the server pointer is untouched.
type LocalError struct {
	Path string
	Err  error
}

func (e *LocalError) Error() string { return fmt.Sprintf("archive: write %s: %v", e.Path, e.Err) }
func (e *LocalError) Unwrap() error { return e.Err }

// UploadError is a failure to send the report to the server. The local file,
// if any, is kept; retry with Pipeline.Upload.
type UploadError struct {
	LotID uuid.UUID
	Path  string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("archive: upload lot %s: %v", e.LotID, e.Err)
}
func (e *UploadError) Unwrap() error { return e.Err }

// Renderer renders a report document.
type Renderer interface {
	Render(ctx context.Context, doc *document.Document) (*document.Result, error)
}

// Uploader stores a rendered report on the server and returns its pdf_path.
type Uploader interface {
	UploadPDF(ctx context.Context, lotID uuid.UUID, pdf []byte) (string, error)
}

// Outcome describes a completed archive run.
type Outcome struct {
	LocalPath string // empty when the archive root is not configured
	PDFPath   string // server pointer
	Engine    document.Engine
}

type Pipeline struct {
	root     string
	renderer Renderer
	uploader Uploader
	log      zerolog.Logger
}

// NewPipeline builds a pipeline filing under root. An empty root disables the
// local copy.
func NewPipeline(root string, renderer Renderer, uploader Uploader, log zerolog.Logger) *Pipeline {
	return &Pipeline{root: root, renderer: renderer, uploader: uploader, log: log}
}

// Archive renders the lot, writes it under the archive root and uploads it.
// Running it again for an unchanged lot overwrites the same file with the same
// bytes and re-points the server at the same content.
//
// Errors: *LocalError (nothing uploaded), *UploadError (local file kept), or
// ErrArchiveUnavailable together with a non-nil Outcome when only the upload
// could be done.
func (p *Pipeline) Archive(ctx context.Context, lot model.Lot, items []model.LotItem) (*Outcome, error) {
	doc := document.Build(lot, items, document.ReportDate(lot))
	res, err := p.renderer.Render(ctx, doc)
	if err != nil {
		return nil, &LocalError{Path: p.root, Err: err}
	}

	out := &Outcome{Engine: res.Engine}
	if p.root != "" {
		path := Path(p.root, lot)
		if err := infra.WriteFileAtomic(path, res.PDF); err != nil {
			return nil, &LocalError{Path: path, Err: err}
		}
		out.LocalPath = path
		p.log.Info().Str("lot_id", lot.ID.String()).Str("path", path).
			Str("engine", string(res.Engine)).Msg("archive: report written")

		// the upload sends what is on disk
		data, err := os.ReadFile(path)
		if err != nil {
			return out, &UploadError{LotID: lot.ID, Path: path, Err: err}
		}
		res.PDF = data
	}

	pdfPath, err := p.uploader.UploadPDF(ctx, lot.ID, res.PDF)
	if err != nil {
		p.log.Warn().Err(err).Str("lot_id", lot.ID.String()).Msg("archive: upload failed")
		return out, &UploadError{LotID: lot.ID, Path: out.LocalPath, Err: err}
	}
	out.PDFPath = pdfPath

	if p.root == "" {
		return out, ErrArchiveUnavailable
	}
	return out, nil
}

// Upload retries the upload step alone from an existing archive file.
func (p *Pipeline) Upload(ctx context.Context, lotID uuid.UUID, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &LocalError{Path: path, Err: err}
	}
	pdfPath, err := p.uploader.UploadPDF(ctx, lotID, data)
	if err != nil {
		return "", &UploadError{LotID: lotID, Path: path, Err: err}
	}
	return pdfPath, nil
}
