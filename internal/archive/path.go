package archive

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"lotflow/internal/document"
	"lotflow/internal/model"
)

var monthNames = [...]string{
	"Janvier", "Février", "Mars", "Avril", "Mai", "Juin",
	"Juillet", "Août", "Septembre", "Octobre", "Novembre", "Décembre",
}

// MonthName returns the French name of m.
func MonthName(m time.Month) string { return monthNames[m-1] }

// Path is <root>/<YYYY>/<MonthName>/<name>_<YYYY-MM-DD>.pdf, where name is the
// sanitized lot name or Lot_<id>.
func Path(root string, lot model.Lot) string {
	date := document.ReportDate(lot).Local()
	name := Sanitize(lot.DisplayName())
	if name == "" {
		name = "Lot_" + lot.ID.String()
	}
	file := fmt.Sprintf("%s_%s.pdf", name, date.Format("2006-01-02"))
	return filepath.Join(root, date.Format("2006"), MonthName(date.Month()), file)
}

// Sanitize makes a lot name safe as a file name: path-unsafe and control
// characters are dropped, whitespace runs become one underscore.
func Sanitize(name string) string {
	var b strings.Builder
	pendingSpace := false
	for _, r := range name {
		switch {
		case strings.ContainsRune(`\/:*?"<>|`, r), unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r':
			continue
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_.")
}
