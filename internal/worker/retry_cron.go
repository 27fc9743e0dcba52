package worker

// retry_cron.go
// Background goroutine that periodically re-enqueues PDF jobs for finished
// lots that still have no stored report (enqueue failed, job dead-lettered,
// or the server restarted mid-job).

import (
	"context"
	"time"

	"lotflow/internal/repository"

	"github.com/rs/zerolog"
)

const (
	defaultRetryInterval = time.Minute
	retryBatchSize       = 10
)

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	Lots       repository.LotRepository
	Dispatcher *Dispatcher
	Interval   time.Duration
	Log        zerolog.Logger
}

// StartRetryCron ticks every Interval until ctx is cancelled.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRetryInterval
	}
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		cfg.Log.Info().Dur("interval", cfg.Interval).Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				cfg.Log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRetries(ctx, cfg)
			}
		}
	}()
}

// processRetries returns the number of jobs enqueued.
func processRetries(ctx context.Context, cfg RetryCronConfig) int {
	lots, err := cfg.Lots.ListFinishedWithoutPDF(ctx, retryBatchSize)
	if err != nil {
		cfg.Log.Error().Err(err).Msg("retry_cron: failed to query lots without pdf")
		return 0
	}
	if len(lots) == 0 {
		return 0
	}

	cfg.Log.Info().Int("count", len(lots)).Msg("retry_cron: re-enqueueing pdf jobs")
	enqueued := 0
	for _, lot := range lots {
		if err := cfg.Dispatcher.EnqueuePDF(ctx, lot.ID); err != nil {
			cfg.Log.Warn().Err(err).Str("lot_id", lot.ID.String()).Msg("retry_cron: enqueue failed")
			continue
		}
		enqueued++
		// the fresh job supersedes any dead-lettered one for this lot
		if n, err := cfg.Dispatcher.dropDeadLetters(ctx, QueuePDF, lot.ID); err != nil {
			cfg.Log.Warn().Err(err).Str("lot_id", lot.ID.String()).Msg("retry_cron: dlq cleanup failed")
		} else if n > 0 {
			cfg.Log.Info().Int("dropped", n).Str("lot_id", lot.ID.String()).Msg("retry_cron: dead letters superseded")
		}
	}
	return enqueued
}
