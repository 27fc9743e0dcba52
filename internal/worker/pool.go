package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	QueuePDF   = "jobs:pdf"
	QueueEmail = "jobs:email"

	JobPDF   = "pdf"
	JobEmail = "email"

	// MaxAttempts is how many times a job runs before it goes to the DLQ.
	MaxAttempts = 3
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Handler processes one job payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

// PDFJobPayload asks for a lot's report to be rendered and stored.
type PDFJobPayload struct {
	LotID uuid.UUID `json:"lot_id"`
}

// EmailJobPayload asks for a lot's report to be mailed.
type EmailJobPayload struct {
	LotID   uuid.UUID `json:"lot_id"`
	ToEmail string    `json:"to_email"`
	PDFPath string    `json:"pdf_path"`
}

// Dispatcher enqueues jobs into Redis lists consumed by the worker pool via
// BRPOP. Without Redis it runs each job in its own goroutine.
type Dispatcher struct {
	rdb      *redis.Client
	log      zerolog.Logger
	handlers map[string]Handler
	queues   map[string]string
	inline   sync.WaitGroup
}

// NewDispatcher builds a dispatcher. rdb may be nil.
func NewDispatcher(rdb *redis.Client, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		rdb:      rdb,
		log:      log,
		handlers: make(map[string]Handler),
		queues:   map[string]string{JobPDF: QueuePDF, JobEmail: QueueEmail},
	}
}

// Handle registers the handler of a job type. Call before Start.
func (d *Dispatcher) Handle(jobType string, h Handler) {
	d.handlers[jobType] = h
}

// EnqueuePDF schedules a report render for a lot.
func (d *Dispatcher) EnqueuePDF(ctx context.Context, lotID uuid.UUID) error {
	return d.enqueue(ctx, JobPDF, PDFJobPayload{LotID: lotID})
}

// EnqueueEmail schedules the report of a lot to be mailed to `to`.
func (d *Dispatcher) EnqueueEmail(ctx context.Context, lotID uuid.UUID, to, pdfPath string) error {
	return d.enqueue(ctx, JobEmail, EmailJobPayload{LotID: lotID, ToEmail: to, PDFPath: pdfPath})
}

func (d *Dispatcher) enqueue(ctx context.Context, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Payload: data}

	if d.rdb == nil {
		d.runInline(job)
		return nil
	}
	return d.push(ctx, d.queues[jobType], job)
}

func (d *Dispatcher) push(ctx context.Context, queue string, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// runInline retries in-process with the same attempt budget as the pool.
func (d *Dispatcher) runInline(job Job) {
	d.inline.Add(1)
	go func() {
		defer d.inline.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		var err error
		for job.Attempts < MaxAttempts {
			job.Attempts++
			if err = d.run(ctx, job); err == nil {
				return
			}
			d.log.Warn().Err(err).Str("type", job.Type).Int("attempt", job.Attempts).Msg("inline job failed")
		}
		d.deadLetter(ctx, d.queues[job.Type], job, err.Error())
	}()
}

// Wait blocks until inline jobs have finished.
func (d *Dispatcher) Wait() { d.inline.Wait() }

func (d *Dispatcher) run(ctx context.Context, job Job) error {
	h, ok := d.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler for job type %q", job.Type)
	}
	return h(ctx, job.Payload)
}

// Start launches numWorkers goroutines consuming both queues. It returns
// immediately; workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context, numWorkers int) {
	if d.rdb == nil {
		d.log.Info().Msg("worker pool disabled, jobs run inline")
		return
	}
	for i := 0; i < numWorkers; i++ {
		go d.runWorker(ctx, i)
	}
	d.log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int) {
	queues := []string{QueuePDF, QueueEmail}
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop: waits up to 5s then loops to check ctx
			result, err := d.rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			d.processJob(ctx, result[0], result[1])
		}
	}
}

func (d *Dispatcher) processJob(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		d.log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		d.deadLetter(ctx, queue, Job{Type: "unknown", Payload: json.RawMessage(`null`)}, "unreadable job: "+err.Error())
		return
	}
	job.Attempts++
	d.log.Debug().Str("type", job.Type).Str("queue", queue).Int("attempt", job.Attempts).Msg("processing job")

	err := d.run(ctx, job)
	if err == nil {
		return
	}
	if job.Attempts >= MaxAttempts {
		d.deadLetter(ctx, queue, job, err.Error())
		return
	}
	d.log.Warn().Err(err).Str("type", job.Type).Int("attempt", job.Attempts).Msg("job failed, requeued")
	if pushErr := d.push(ctx, queue, job); pushErr != nil {
		d.log.Error().Err(pushErr).Str("queue", queue).Msg("failed to requeue job")
	}
}
