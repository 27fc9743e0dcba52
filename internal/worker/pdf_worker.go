package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"lotflow/internal/dto"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Regenerator renders and stores a lot's report.
type Regenerator interface {
	Regenerate(ctx context.Context, lotID uuid.UUID) (*dto.PDFResponse, error)
}

// PDFWorker renders reports server-side, so a finished lot gets a pdf_path
// even when no station archived it.
type PDFWorker struct {
	docs Regenerator
	log  zerolog.Logger
}

func NewPDFWorker(docs Regenerator, log zerolog.Logger) *PDFWorker {
	return &PDFWorker{docs: docs, log: log}
}

func (w *PDFWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload PDFJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("pdf_worker: invalid payload: %w", err)
	}
	resp, err := w.docs.Regenerate(ctx, payload.LotID)
	if err != nil {
		return fmt.Errorf("pdf_worker: lot %s: %w", payload.LotID, err)
	}
	w.log.Info().Str("lot_id", payload.LotID.String()).Str("pdf_path", resp.PDFPath).Msg("pdf_worker: report stored")
	return nil
}
