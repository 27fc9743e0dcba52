package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lotflow/internal/apierror"
	"lotflow/internal/archive"
	"lotflow/internal/completion"
	"lotflow/internal/dto"
	"lotflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Archiver files a finished lot. *archive.Pipeline implements it.
type Archiver interface {
	Archive(ctx context.Context, lot model.Lot, items []model.LotItem) (*archive.Outcome, error)
	Upload(ctx context.Context, lotID uuid.UUID, path string) (string, error)
}

// ErrNoPendingUpload means the lot has no archived report waiting for upload.
var ErrNoPendingUpload = fmt.Errorf("aucun envoi en attente pour ce lot: %w", apierror.ErrNotFound)

// EditResult is what the station learns after an item edit.
type EditResult struct {
	Item     dto.LotItemResponse
	Result   completion.Result
	Finished bool
	Archive  *archive.Outcome
	// ArchiveErr is the archival failure, if any. The edit itself succeeded.
	ArchiveErr error
}

// Workflow drives the station side of the lot lifecycle: after every edit it
// re-reads the lot, evaluates it and, once complete, finishes and archives it.
type Workflow struct {
	api      *Client
	archiver Archiver
	timeout  time.Duration
	log      zerolog.Logger

	mu sync.Mutex
	// archive files written but not yet uploaded, by lot
	pending map[uuid.UUID]string
}

// NewWorkflow builds a workflow. timeout bounds each finish+archive run.
func NewWorkflow(api *Client, archiver Archiver, timeout time.Duration, log zerolog.Logger) *Workflow {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Workflow{api: api, archiver: archiver, timeout: timeout, log: log, pending: map[uuid.UUID]string{}}
}

// EditItem applies an edit then checks completion on a fresh read of the lot.
// The server's lotFinished hint is only logged when it disagrees.
func (w *Workflow) EditItem(ctx context.Context, itemID uuid.UUID, req dto.UpdateItemRequest) (*EditResult, error) {
	resp, err := w.api.UpdateItem(ctx, itemID, req)
	if err != nil {
		return nil, err
	}
	res, err := w.Finalize(ctx, resp.Item.LotID)
	if err != nil {
		return nil, err
	}
	if res.Result.Complete != resp.LotFinished {
		w.log.Warn().Str("lot_id", resp.Item.LotID.String()).
			Bool("server_hint", resp.LotFinished).Bool("station", res.Result.Complete).
			Msg("station: completion hint disagrees with fresh evaluation")
	}
	res.Item = resp.Item
	return res, nil
}

// Finalize re-fetches the lot and, when complete, finishes and archives it.
// Archival errors are reported in the result, not as the call's error.
func (w *Workflow) Finalize(ctx context.Context, lotID uuid.UUID) (*EditResult, error) {
	summary, items, err := w.api.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	res := &EditResult{Result: completion.Evaluate(items)}
	if !res.Result.Complete {
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	finished, err := w.api.FinishLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	res.Finished = true
	lot := finished.Lot
	if lot.FinishedAt == nil {
		lot = summary.Lot
	}
	res.Archive, res.ArchiveErr = w.archiver.Archive(ctx, lot, items)
	w.track(lotID, res.ArchiveErr)
	if res.ArchiveErr != nil && !errors.Is(res.ArchiveErr, archive.ErrArchiveUnavailable) {
		w.log.Warn().Err(res.ArchiveErr).Str("lot_id", lotID.String()).Msg("station: archival incomplete")
	}
	return res, nil
}

// Regenerate re-runs the archival pipeline for a finished lot.
func (w *Workflow) Regenerate(ctx context.Context, lotID uuid.UUID) (*archive.Outcome, error) {
	summary, items, err := w.api.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	out, err := w.archiver.Archive(ctx, summary.Lot, items)
	w.track(lotID, err)
	return out, err
}

// PendingUpload returns the archive file still waiting for upload, if any.
func (w *Workflow) PendingUpload(lotID uuid.UUID) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	path, ok := w.pending[lotID]
	return path, ok
}

// RetryUpload sends the already archived report again without rendering it.
func (w *Workflow) RetryUpload(ctx context.Context, lotID uuid.UUID) (string, error) {
	path, ok := w.PendingUpload(lotID)
	if !ok {
		return "", ErrNoPendingUpload
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	pdfPath, err := w.archiver.Upload(ctx, lotID, path)
	if err != nil {
		var local *archive.LocalError
		if errors.As(err, &local) {
			// the file is gone, only a full regeneration can help
			w.forget(lotID)
		}
		return "", err
	}
	w.forget(lotID)
	w.log.Info().Str("lot_id", lotID.String()).Str("path", path).Msg("station: pending upload sent")
	return pdfPath, nil
}

// track remembers the local file of an archive run whose upload failed.
// Any other outcome clears it.
func (w *Workflow) track(lotID uuid.UUID, err error) {
	var uploadErr *archive.UploadError
	if errors.As(err, &uploadErr) && uploadErr.Path != "" {
		w.mu.Lock()
		w.pending[lotID] = uploadErr.Path
		w.mu.Unlock()
		return
	}
	if err == nil || errors.Is(err, archive.ErrArchiveUnavailable) {
		w.forget(lotID)
	}
}

func (w *Workflow) forget(lotID uuid.UUID) {
	w.mu.Lock()
	delete(w.pending, lotID)
	w.mu.Unlock()
}
