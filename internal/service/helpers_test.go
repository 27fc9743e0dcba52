package service

import (
	"context"
	"sync"
	"testing"

	"lotflow/internal/events"
	"lotflow/internal/infra"
	"lotflow/internal/repository/sqlitestore"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────

type recordingQueue struct {
	mu     sync.Mutex
	pdfs   []uuid.UUID
	emails []string
	err    error
}

func (q *recordingQueue) EnqueuePDF(_ context.Context, lotID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.pdfs = append(q.pdfs, lotID)
	return nil
}

func (q *recordingQueue) EnqueueEmail(_ context.Context, lotID uuid.UUID, to, pdfPath string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.emails = append(q.emails, to+" "+pdfPath)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// ── Fixture ───────────────────────────────────────────────────────────────────

type fixture struct {
	lots    *sqlitestore.LotStore
	catalog *sqlitestore.CatalogStore
	queue   *recordingQueue
	pub     *recordingPublisher
	lotSvc  LotService
	catSvc  CatalogService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := infra.NewSQLite(context.Background(), ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		lots:    sqlitestore.NewLotStore(db),
		catalog: sqlitestore.NewCatalogStore(db),
		queue:   &recordingQueue{},
		pub:     &recordingPublisher{},
	}
	f.lotSvc = NewLotService(f.lots, f.catalog, f.pub, f.queue, zerolog.Nop())
	f.catSvc = NewCatalogService(f.catalog, zerolog.Nop())
	return f
}

func strPtr(s string) *string { return &s }
