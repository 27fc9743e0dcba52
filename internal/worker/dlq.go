package worker

// dlq.go: dead letters
// A lot job that runs out of attempts is parked on dlq:{queue} with the lot it
// was about. PDF dead letters are dropped again once the retry cron has
// re-enqueued a fresh job for the same lot; email dead letters stay until an
// operator looks at them.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DLQPrefix = "dlq:"

// DeadLetter is a lot job that exhausted its attempts.
type DeadLetter struct {
	Queue    string          `json:"queue"`
	JobType  string          `json:"job_type"`
	LotID    uuid.UUID       `json:"lot_id"` // uuid.Nil when the payload was unreadable
	Payload  json.RawMessage `json:"payload"`
	Reason   string          `json:"reason"`
	FailedAt time.Time       `json:"failed_at"`
	Attempts int             `json:"attempts"`
}

// lotOf extracts the lot id that every job payload carries.
func lotOf(payload json.RawMessage) uuid.UUID {
	var p struct {
		LotID uuid.UUID `json:"lot_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return uuid.Nil
	}
	return p.LotID
}

// deadLetter parks a job. Without Redis there is nowhere to park it, so the
// lot is only logged; the retry cron picks up its missing report.
func (d *Dispatcher) deadLetter(ctx context.Context, queue string, job Job, reason string) {
	entry := DeadLetter{
		Queue:    queue,
		JobType:  job.Type,
		LotID:    lotOf(job.Payload),
		Payload:  job.Payload,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
		Attempts: job.Attempts,
	}
	log := d.log.With().
		Str("queue", queue).
		Str("job_type", job.Type).
		Str("lot_id", entry.LotID.String()).
		Int("attempts", job.Attempts).
		Str("reason", reason).
		Logger()

	if d.rdb == nil {
		log.Error().Msg("dlq: lot job abandoned")
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Msg("dlq: failed to marshal entry")
		return
	}
	if err := d.rdb.LPush(ctx, DLQPrefix+queue, data).Err(); err != nil {
		log.Error().Err(err).Msg("dlq: failed to push")
		return
	}
	log.Warn().Msg("dlq: lot job dead-lettered")
}

// DeadLetters returns the parked jobs of a queue, newest first.
func (d *Dispatcher) DeadLetters(ctx context.Context, queue string) ([]DeadLetter, error) {
	if d.rdb == nil {
		return nil, nil
	}
	raws, err := d.rdb.LRange(ctx, DLQPrefix+queue, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var e DeadLetter
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// dropDeadLetters removes the parked jobs of one lot and returns how many went.
func (d *Dispatcher) dropDeadLetters(ctx context.Context, queue string, lotID uuid.UUID) (int, error) {
	if d.rdb == nil {
		return 0, nil
	}
	key := DLQPrefix + queue
	raws, err := d.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return 0, err
	}
	dropped := 0
	for _, raw := range raws {
		var e DeadLetter
		if err := json.Unmarshal([]byte(raw), &e); err != nil || e.LotID != lotID {
			continue
		}
		n, err := d.rdb.LRem(ctx, key, 1, raw).Result()
		if err != nil {
			return dropped, err
		}
		dropped += int(n)
	}
	return dropped, nil
}
