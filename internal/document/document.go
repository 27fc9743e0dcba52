// Package document turns a lot and its items into the printable audit record.
// Build produces the logical content once; both rendering engines draw from it
// so they cannot disagree on fields or ordering.
package document

import (
	"time"

	"lotflow/internal/completion"
	"lotflow/internal/model"

	"github.com/shopspring/decimal"
)

const dateTimeLayout = "02/01/2006 15:04"

type Header struct {
	LotID       string
	LotName     string
	CreatedAt   string
	FinishedAt  string
	RecoveredAt string
	GeneratedAt string
}

// Card is one state bucket of the summary.
type Card struct {
	Key   completion.StateKey
	Label string
	Count int
	Share string // percentage of the lot, one decimal
}

type Summary struct {
	Total   int
	Pending int
	Cards   []Card
}

type Row struct {
	Number     int
	Serial     string
	Type       string
	Brand      string
	Model      string
	Date       string
	State      string
	Technician string
}

// Document is the logical content of a lot report.
type Document struct {
	Header    Header
	Summary   Summary
	Rows      []Row
	Generated time.Time
}

// Build assembles the report for a lot. Items are drawn in the order given;
// brand and model names come from the joined item columns.
func Build(lot model.Lot, items []model.LotItem, generatedAt time.Time) *Document {
	doc := &Document{
		Header: Header{
			LotID:       lot.ID.String(),
			LotName:     lot.DisplayName(),
			CreatedAt:   formatTime(&lot.CreatedAt),
			FinishedAt:  formatTime(lot.FinishedAt),
			RecoveredAt: formatTime(lot.RecoveredAt),
			GeneratedAt: formatTime(&generatedAt),
		},
		Rows:      make([]Row, 0, len(items)),
		Generated: generatedAt.UTC(),
	}

	result := completion.Evaluate(items)
	counts := completion.Counts(items)
	doc.Summary = Summary{Total: result.Total, Pending: result.Pending}
	for _, key := range completion.StateOrder {
		doc.Summary.Cards = append(doc.Summary.Cards, Card{
			Key:   key,
			Label: completion.Label(string(key)),
			Count: counts[key],
			Share: share(counts[key], result.Total),
		})
	}

	for i := range items {
		it := &items[i]
		doc.Rows = append(doc.Rows, Row{
			Number:     i + 1,
			Serial:     it.SerialNumber,
			Type:       TypeLabel(it.Type),
			Brand:      it.MarqueName,
			Model:      it.ModeleName,
			Date:       it.Date,
			State:      completion.Label(it.State),
			Technician: it.Technician,
		})
	}
	return doc
}

// ReportDate is the date a report is stamped and filed under: the finish date,
// or the creation date for a lot that is not finished yet. It does not move
// between runs, so re-rendering an unchanged lot gives the same bytes.
func ReportDate(lot model.Lot) time.Time {
	if lot.FinishedAt != nil {
		return *lot.FinishedAt
	}
	return lot.CreatedAt
}

// DeriveCounts recomputes per-state counts from the rendered rows.
func DeriveCounts(doc *Document) map[completion.StateKey]int {
	byLabel := make(map[string]completion.StateKey, len(completion.StateOrder))
	counts := make(map[completion.StateKey]int, len(completion.StateOrder))
	for _, k := range completion.StateOrder {
		byLabel[completion.Label(string(k))] = k
		counts[k] = 0
	}
	for _, r := range doc.Rows {
		key, ok := byLabel[r.State]
		if !ok {
			key = completion.KeyNonDefini
		}
		counts[key]++
	}
	return counts
}

// TypeLabel is the display label of an equipment type.
func TypeLabel(t string) string {
	switch t {
	case model.TypePortable:
		return "Portable"
	case model.TypeFixe:
		return "Fixe"
	case model.TypeEcran:
		return "Écran"
	case model.TypeAutres:
		return "Autres"
	default:
		return t
	}
}

func share(count, total int) string {
	if total == 0 {
		return "0.0 %"
	}
	pct := decimal.NewFromInt(int64(count)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total)))
	return pct.StringFixed(1) + " %"
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateTimeLayout)
}
