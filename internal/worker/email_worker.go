package worker

// email_worker.go
// Processes email jobs from QueueEmail: sends the lot report as an attachment.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Sender delivers a message with an attached file.
type Sender interface {
	SendLotReport(to, subject, body, pdfPath string) error
}

// EmailWorker processes email jobs from QueueEmail.
type EmailWorker struct {
	mailer Sender
	log    zerolog.Logger
}

func NewEmailWorker(mailer Sender, log zerolog.Logger) *EmailWorker {
	return &EmailWorker{mailer: mailer, log: log}
}

// Process sends the report. An empty recipient is dropped without retry.
func (w *EmailWorker) Process(_ context.Context, raw json.RawMessage) error {
	var payload EmailJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("email_worker: invalid payload: %w", err)
	}
	if payload.ToEmail == "" {
		w.log.Warn().Msg("email_worker: empty to_email, skipping")
		return nil
	}

	subject := "Rapport du lot " + payload.LotID.String()
	body := "Bonjour,\n\nVous trouverez ci-joint le rapport du lot " + payload.LotID.String() + ".\n"
	if err := w.mailer.SendLotReport(payload.ToEmail, subject, body, payload.PDFPath); err != nil {
		return fmt.Errorf("email_worker: send to %s: %w", payload.ToEmail, err)
	}
	w.log.Info().Str("to", payload.ToEmail).Str("lot_id", payload.LotID.String()).Msg("email_worker: report sent")
	return nil
}
