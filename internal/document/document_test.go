package document

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lotflow/internal/completion"
	"lotflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generated = time.Date(2026, 5, 4, 16, 30, 0, 0, time.UTC)

func fixtureLot(n int) (model.Lot, []model.LotItem) {
	name := "Lot Mairie"
	finished := time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)
	lot := model.Lot{
		ID:         uuid.MustParse("7f1b6a0e-1111-4a2b-9c3d-000000000001"),
		LotName:    &name,
		CreatedAt:  time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC),
		FinishedAt: &finished,
	}
	states := []string{model.StateReconditionne, model.StatePourPieces, model.StateHS, ""}
	items := make([]model.LotItem, n)
	for i := range items {
		items[i] = model.LotItem{
			ID:           uuid.New(),
			LotID:        lot.ID,
			Position:     i + 1,
			SerialNumber: "SN-" + strings.Repeat("0", 3) + string(rune('A'+i%26)),
			Type:         model.TypePortable,
			EntryType:    model.EntryScan,
			Date:         "2026-05-02",
			Time:         "09:00:00",
			State:        states[i%len(states)],
			Technician:   "Alice",
			MarqueName:   "Dell",
			ModeleName:   "Latitude 5490",
		}
	}
	return lot, items
}

func TestBuildSummaryOrderAndShares(t *testing.T) {
	lot, items := fixtureLot(4)

	doc := Build(lot, items, generated)

	assert.Equal(t, 4, doc.Summary.Total)
	assert.Equal(t, 1, doc.Summary.Pending)
	require.Len(t, doc.Summary.Cards, 4)
	labels := []string{}
	for _, c := range doc.Summary.Cards {
		labels = append(labels, c.Label)
		assert.Equal(t, 1, c.Count)
		assert.Equal(t, "25.0 %", c.Share)
	}
	assert.Equal(t, []string{"Reconditionné(s)", "Pour pièces", "HS", "Non défini"}, labels)
	assert.Equal(t, "Lot Mairie", doc.Header.LotName)
	assert.Equal(t, "04/05/2026 15:00", doc.Header.FinishedAt)
	assert.Empty(t, doc.Header.RecoveredAt)
}

func TestBuildRowsFollowItemOrder(t *testing.T) {
	lot, items := fixtureLot(3)

	doc := Build(lot, items, generated)

	require.Len(t, doc.Rows, 3)
	for i, r := range doc.Rows {
		assert.Equal(t, i+1, r.Number)
		assert.Equal(t, items[i].SerialNumber, r.Serial)
		assert.Equal(t, "Portable", r.Type)
		assert.Equal(t, "Dell", r.Brand)
		assert.Equal(t, "Latitude 5490", r.Model)
	}
	assert.Equal(t, "Reconditionné(s)", doc.Rows[0].State)
}

func TestBuildEmptyLotShares(t *testing.T) {
	lot, _ := fixtureLot(0)

	doc := Build(lot, nil, generated)

	assert.Equal(t, 0, doc.Summary.Total)
	for _, c := range doc.Summary.Cards {
		assert.Equal(t, "0.0 %", c.Share)
	}
	assert.Empty(t, doc.Rows)
}

func TestDeriveCountsMatchesEvaluator(t *testing.T) {
	lot, items := fixtureLot(3)
	items[2].State = "obsolete"

	doc := Build(lot, items, generated)

	assert.Equal(t, completion.Counts(items), DeriveCounts(doc))
}

func TestRenderWithoutTemplateUsesFPDF(t *testing.T) {
	lot, items := fixtureLot(5)
	r := NewRenderer(filepath.Join(t.TempDir(), "missing.html"), &fakePrinter{}, zerolog.Nop())

	res, err := r.Render(context.Background(), Build(lot, items, generated))
	require.NoError(t, err)

	assert.Equal(t, EngineFPDF, res.Engine)
	assert.Equal(t, len(items), res.Rows)
	assert.True(t, bytes.HasPrefix(res.PDF, []byte("%PDF-")))
}

func TestRenderFPDFIsDeterministic(t *testing.T) {
	lot, items := fixtureLot(80) // spans several pages
	r := NewRenderer("", nil, zerolog.Nop())

	first, err := r.Render(context.Background(), Build(lot, items, generated))
	require.NoError(t, err)
	second, err := r.Render(context.Background(), Build(lot, items, generated))
	require.NoError(t, err)

	assert.Equal(t, first.PDF, second.PDF)
	assert.Equal(t, 80, first.Rows)
}

func TestRenderUsesPrinterWithTemplate(t *testing.T) {
	lot, items := fixtureLot(2)
	tpl := writeTemplate(t, `<h1>{{.Header.LotName}}</h1>{{range .Rows}}<p>{{.Serial}} {{.State}}</p>{{end}}`)
	p := &fakePrinter{out: []byte("%PDF-1.7 chrome")}
	r := NewRenderer(tpl, p, zerolog.Nop())

	res, err := r.Render(context.Background(), Build(lot, items, generated))
	require.NoError(t, err)

	assert.Equal(t, EngineChrome, res.Engine)
	assert.Equal(t, []byte("%PDF-1.7 chrome"), res.PDF)
	assert.Contains(t, string(p.lastHTML), "Lot Mairie")
	assert.Contains(t, string(p.lastHTML), items[1].SerialNumber)
	assert.Contains(t, string(p.lastHTML), "Pour pièces")
}

func TestRenderFallsBackWhenBrowserFails(t *testing.T) {
	lot, items := fixtureLot(2)
	tpl := writeTemplate(t, `<p>{{.Header.LotID}}</p>`)
	p := &fakePrinter{err: errors.New("chrome not found")}
	r := NewRenderer(tpl, p, zerolog.Nop())

	for i := 0; i < 5; i++ {
		res, err := r.Render(context.Background(), Build(lot, items, generated))
		require.NoError(t, err)
		assert.Equal(t, EngineFPDF, res.Engine)
	}
	// breaker opened after three failures
	assert.Equal(t, 3, p.calls)
}

func TestShippedTemplateRenders(t *testing.T) {
	lot, items := fixtureLot(3)
	p := &fakePrinter{out: []byte("%PDF-")}
	r := NewRenderer(filepath.Join("..", "..", "templates", "lot.html"), p, zerolog.Nop())

	res, err := r.Render(context.Background(), Build(lot, items, generated))
	require.NoError(t, err)

	assert.Equal(t, EngineChrome, res.Engine)
	assert.Equal(t, 3, strings.Count(string(p.lastHTML), "<tr><td>"))
}

type fakePrinter struct {
	out      []byte
	err      error
	calls    int
	lastHTML []byte
}

func (f *fakePrinter) PrintPDF(_ context.Context, html []byte) ([]byte, error) {
	f.calls++
	f.lastHTML = html
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func writeTemplate(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lot.html")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
