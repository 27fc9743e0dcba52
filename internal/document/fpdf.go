package document

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// A4 portrait layout, millimetres.
const (
	pageHeight   = 297.0
	marginLeft   = 10.0
	marginTop    = 12.0
	marginBottom = 15.0
	contentWidth = 190.0
	rowHeight    = 6.0
)

type column struct {
	title string
	x     float64
	width float64
	value func(Row) string
}

var columns = []column{
	{"N°", 10, 10, func(r Row) string { return fmt.Sprintf("%d", r.Number) }},
	{"N° de série", 20, 38, func(r Row) string { return r.Serial }},
	{"Type", 58, 18, func(r Row) string { return r.Type }},
	{"Marque", 76, 24, func(r Row) string { return r.Brand }},
	{"Modèle", 100, 26, func(r Row) string { return r.Model }},
	{"Date", 126, 20, func(r Row) string { return r.Date }},
	{"État", 146, 26, func(r Row) string { return r.State }},
	{"Technicien", 172, 28, func(r Row) string { return r.Technician }},
}

// renderFPDF draws the document with fpdf primitives. Output is byte-stable for
// a given document: document dates are pinned and catalog keys are sorted.
func renderFPDF(doc *Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(doc.Generated)
	pdf.SetModificationDate(doc.Generated)
	pdf.SetCatalogSort(true)
	pdf.SetCompression(true)
	pdf.SetMargins(marginLeft, marginTop, marginLeft)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Lot "+doc.Header.LotID, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()

	// ── Header ───────────────────────────────────────────────────────────────
	title := "Lot " + doc.Header.LotID
	if doc.Header.LotName != "" {
		title = doc.Header.LotName
	}
	pdf.SetFont("Helvetica", "B", 15)
	pdf.CellFormat(contentWidth, 8, tr(title), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	meta := []struct{ label, value string }{
		{"Identifiant", doc.Header.LotID},
		{"Créé le", doc.Header.CreatedAt},
		{"Terminé le", doc.Header.FinishedAt},
		{"Récupéré le", doc.Header.RecoveredAt},
		{"Généré le", doc.Header.GeneratedAt},
	}
	for _, m := range meta {
		if m.value == "" {
			continue
		}
		pdf.CellFormat(contentWidth, 5, tr(m.label+" : "+m.value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	// ── Summary ──────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(contentWidth, 7, fmt.Sprintf("Total : %d", doc.Summary.Total), "", 1, "L", false, 0, "")

	cardW := contentWidth / float64(len(doc.Summary.Cards))
	y := pdf.GetY()
	for i, c := range doc.Summary.Cards {
		x := marginLeft + float64(i)*cardW
		pdf.Rect(x, y, cardW-2, 14, "D")
		pdf.SetXY(x, y+1)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(cardW-2, 5, tr(c.Label), "", 0, "C", false, 0, "")
		pdf.SetXY(x, y+6)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(cardW-2, 6, tr(fmt.Sprintf("%d  (%s)", c.Count, c.Share)), "", 0, "C", false, 0, "")
	}
	pdf.SetXY(marginLeft, y+18)

	// ── Rows ─────────────────────────────────────────────────────────────────
	y = drawTableHeader(pdf, tr, pdf.GetY())
	pdf.SetFont("Helvetica", "", 8)
	for _, r := range doc.Rows {
		if y+rowHeight > pageHeight-marginBottom {
			pdf.AddPage()
			y = drawTableHeader(pdf, tr, marginTop)
			pdf.SetFont("Helvetica", "", 8)
		}
		for _, col := range columns {
			pdf.SetXY(col.x, y)
			pdf.CellFormat(col.width, rowHeight, fit(pdf, tr(col.value(r)), col.width), "", 0, "L", false, 0, "")
		}
		y += rowHeight
		pdf.Line(marginLeft, y, marginLeft+contentWidth, y)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("document: fpdf output: %w", err)
	}
	return buf.Bytes(), nil
}

func drawTableHeader(pdf *fpdf.Fpdf, tr func(string) string, y float64) float64 {
	pdf.SetFont("Helvetica", "B", 8)
	for _, col := range columns {
		pdf.SetXY(col.x, y)
		pdf.CellFormat(col.width, rowHeight, tr(col.title), "B", 0, "L", false, 0, "")
	}
	return y + rowHeight
}

// fit truncates an already translated (single-byte) string to the column width.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	for len(s) > 0 && pdf.GetStringWidth(s) > width-1 {
		s = s[:len(s)-1]
	}
	return s
}
