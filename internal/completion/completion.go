// Package completion decides whether a lot is complete. It is the only place
// that counts pending items; the server service and the station client both
// call it so their answers cannot drift apart.
package completion

import (
	"lotflow/internal/model"

	"github.com/rs/zerolog"
)

// Result is the evaluation of a lot's item set.
type Result struct {
	Total    int
	Pending  int
	Complete bool
}

// Evaluate counts pending items: those without a known state or with a blank
// technician. A lot with no items is never complete.
func Evaluate(items []model.LotItem) Result {
	r := Result{Total: len(items)}
	for i := range items {
		if !items[i].IsComplete() {
			r.Pending++
		}
	}
	r.Complete = r.Total > 0 && r.Pending == 0
	return r
}

// StateKey identifies a summary bucket.
type StateKey string

const (
	KeyReconditionne StateKey = model.StateReconditionne
	KeyPourPieces    StateKey = model.StatePourPieces
	KeyHS            StateKey = model.StateHS
	KeyNonDefini     StateKey = ""
)

// StateOrder is the fixed order of summary buckets.
var StateOrder = []StateKey{KeyReconditionne, KeyPourPieces, KeyHS, KeyNonDefini}

// Bucket maps an item state onto its summary bucket.
func Bucket(state string) StateKey {
	if model.ValidState(state) {
		return StateKey(state)
	}
	return KeyNonDefini
}

// Label is the display label of a state.
func Label(state string) string {
	switch Bucket(state) {
	case KeyReconditionne:
		return "Reconditionné(s)"
	case KeyPourPieces:
		return "Pour pièces"
	case KeyHS:
		return "HS"
	default:
		return "Non défini"
	}
}

// Counts returns per-bucket item counts.
func Counts(items []model.LotItem) map[StateKey]int {
	counts := make(map[StateKey]int, len(StateOrder))
	for _, k := range StateOrder {
		counts[k] = 0
	}
	for i := range items {
		counts[Bucket(items[i].State)]++
	}
	return counts
}

// Summarize fills the counters of a listing row from the lot's items.
func Summarize(lot model.Lot, items []model.LotItem) model.LotSummary {
	r := Evaluate(items)
	c := Counts(items)
	return model.LotSummary{
		Lot:     lot,
		Total:   r.Total,
		Pending: r.Pending,
		Recond:  c[KeyReconditionne],
		Pieces:  c[KeyPourPieces],
		HS:      c[KeyHS],
	}
}

// Reconcile recomputes a summary's counters from items and returns the corrected
// copy. Stale denormalised counters are logged and overwritten.
func Reconcile(log zerolog.Logger, s model.LotSummary, items []model.LotItem) model.LotSummary {
	fresh := Summarize(s.Lot, items)
	if fresh.Total != s.Total || fresh.Pending != s.Pending || fresh.Recond != s.Recond ||
		fresh.Pieces != s.Pieces || fresh.HS != s.HS {
		log.Warn().
			Str("lot_id", s.ID.String()).
			Int("pending_received", s.Pending).
			Int("pending_recomputed", fresh.Pending).
			Int("total_received", s.Total).
			Int("total_recomputed", fresh.Total).
			Msg("completion: stale lot counters replaced")
	}
	return fresh
}

// Matches reports whether a summary belongs to a listing bucket.
func Matches(s model.LotSummary, status model.LotStatus) bool {
	switch status {
	case model.LotStatusActive:
		return s.Pending > 0
	case model.LotStatusFinished:
		return s.Total > 0 && s.Pending == 0
	default:
		return true
	}
}
