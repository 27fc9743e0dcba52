package intake

import (
	"errors"
	"fmt"
	"strings"

	"lotflow/internal/apierror"
	"lotflow/internal/dto"
	"lotflow/internal/model"

	"github.com/google/uuid"
)

var (
	ErrDuplicateSerial = fmt.Errorf("numéro de série déjà saisi dans ce lot: %w", apierror.ErrConflict)
	ErrEmptySerial     = fmt.Errorf("numéro de série vide: %w", apierror.ErrValidation)
	ErrUnknownRow      = fmt.Errorf("ligne inconnue: %w", apierror.ErrNotFound)
	ErrUnknownMarque   = fmt.Errorf("marque inconnue: %w", apierror.ErrNotFound)
	ErrModeleMismatch  = fmt.Errorf("ce modèle n'appartient pas à la marque choisie: %w", apierror.ErrValidation)
	ErrNothingToCreate = fmt.Errorf("le lot ne contient aucun équipement: %w", apierror.ErrValidation)
)

// Row is one in-progress equipment line.
type Row struct {
	ID       int
	Serial   string
	Type     string
	MarqueID *uuid.UUID
	ModeleID *uuid.UUID
	Entry    string
	Selected bool
}

func (r Row) empty() bool { return strings.TrimSpace(r.Serial) == "" }

// BulkValues are applied to every selected row; zero fields are left alone.
type BulkValues struct {
	Type     string
	MarqueID *uuid.UUID
	ModeleID *uuid.UUID
}

// Editor holds the rows of a lot being assembled at the station. There is
// always one empty scan row at the end, ready for the next scan.
type Editor struct {
	rows        []Row
	nextID      int
	focus       int
	defaultType string
	marques     map[uuid.UUID]model.Marque
	modeles     map[uuid.UUID]model.Modele
}

// NewEditor starts an empty lot. catalog provides the brand and model choices;
// defaultType (may be empty) is given to new rows.
func NewEditor(catalog []model.Marque, defaultType string) *Editor {
	e := &Editor{
		defaultType: defaultType,
		marques:     make(map[uuid.UUID]model.Marque, len(catalog)),
		modeles:     make(map[uuid.UUID]model.Modele),
	}
	for _, m := range catalog {
		e.marques[m.ID] = m
		for _, md := range m.Modeles {
			e.modeles[md.ID] = md
		}
	}
	e.appendScanRow()
	return e
}

func (e *Editor) newRow(entry string) Row {
	e.nextID++
	return Row{ID: e.nextID, Type: e.defaultType, Entry: entry}
}

func (e *Editor) appendScanRow() {
	row := e.newRow(model.EntryScan)
	e.rows = append(e.rows, row)
	e.focus = row.ID
}

func (e *Editor) index(id int) (int, error) {
	for i := range e.rows {
		if e.rows[i].ID == id {
			return i, nil
		}
	}
	return -1, ErrUnknownRow
}

func (e *Editor) hasSerial(serial string, except int) bool {
	for _, r := range e.rows {
		if r.ID != except && model.SameSerial(r.Serial, serial) {
			return true
		}
	}
	return false
}

// Scan records a scanned serial in the standing scan row, then appends a
// fresh scan row and focuses it. A serial already in the lot is rejected and
// no row is added.
func (e *Editor) Scan(serial string) (Row, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return Row{}, ErrEmptySerial
	}
	if e.hasSerial(serial, 0) {
		return Row{}, fmt.Errorf("%q: %w", serial, ErrDuplicateSerial)
	}

	last := len(e.rows) - 1
	if last < 0 || e.rows[last].Entry != model.EntryScan || !e.rows[last].empty() {
		e.rows = append(e.rows, e.newRow(model.EntryScan))
		last = len(e.rows) - 1
	}
	e.rows[last].Serial = serial
	filled := e.rows[last]
	e.appendScanRow()
	return filled, nil
}

// AddManual inserts an empty manual row before the standing scan row and
// focuses it.
func (e *Editor) AddManual() Row {
	row := e.newRow(model.EntryManual)
	at := len(e.rows)
	if at > 0 && e.rows[at-1].Entry == model.EntryScan && e.rows[at-1].empty() {
		at--
	}
	e.rows = append(e.rows, Row{})
	copy(e.rows[at+1:], e.rows[at:])
	e.rows[at] = row
	e.focus = row.ID
	return row
}

// SetSerial types a serial into a row, with the same duplicate check as Scan.
func (e *Editor) SetSerial(id int, serial string) error {
	i, err := e.index(id)
	if err != nil {
		return err
	}
	serial = strings.TrimSpace(serial)
	if serial != "" && e.hasSerial(serial, id) {
		return fmt.Errorf("%q: %w", serial, ErrDuplicateSerial)
	}
	e.rows[i].Serial = serial
	return nil
}

func (e *Editor) SetType(id int, t string) error {
	i, err := e.index(id)
	if err != nil {
		return err
	}
	if t != "" && !model.ValidType(t) {
		return fmt.Errorf("type %q inconnu: %w", t, apierror.ErrValidation)
	}
	e.rows[i].Type = t
	return nil
}

// SetBrand selects a brand. Clearing or changing it clears the model.
func (e *Editor) SetBrand(id int, marqueID *uuid.UUID) error {
	i, err := e.index(id)
	if err != nil {
		return err
	}
	if marqueID != nil {
		if _, ok := e.marques[*marqueID]; !ok {
			return ErrUnknownMarque
		}
	}
	row := &e.rows[i]
	if !sameID(row.MarqueID, marqueID) {
		row.ModeleID = nil
	}
	row.MarqueID = copyID(marqueID)
	return nil
}

// SetModel selects a model of the row's brand, or clears it with nil.
func (e *Editor) SetModel(id int, modeleID *uuid.UUID) error {
	i, err := e.index(id)
	if err != nil {
		return err
	}
	row := &e.rows[i]
	if modeleID == nil {
		row.ModeleID = nil
		return nil
	}
	if !e.belongs(*modeleID, row.MarqueID) {
		return ErrModeleMismatch
	}
	row.ModeleID = copyID(modeleID)
	return nil
}

func (e *Editor) belongs(modeleID uuid.UUID, marqueID *uuid.UUID) bool {
	md, ok := e.modeles[modeleID]
	return ok && marqueID != nil && md.MarqueID == *marqueID
}

// ModelOptions lists the models offered for a row: those of its brand only.
func (e *Editor) ModelOptions(id int) ([]model.Modele, error) {
	i, err := e.index(id)
	if err != nil {
		return nil, err
	}
	if e.rows[i].MarqueID == nil {
		return nil, nil
	}
	return e.marques[*e.rows[i].MarqueID].Modeles, nil
}

// Toggle flips the selection of a row.
func (e *Editor) Toggle(id int) error {
	i, err := e.index(id)
	if err != nil {
		return err
	}
	e.rows[i].Selected = !e.rows[i].Selected
	return nil
}

// SelectAll selects or clears every filled row.
func (e *Editor) SelectAll(on bool) {
	for i := range e.rows {
		e.rows[i].Selected = on && !e.rows[i].empty()
	}
}

// BulkApply writes the non-empty values to every selected row and returns how
// many rows changed. A model is only applied where it matches the row's brand.
func (e *Editor) BulkApply(v BulkValues) (int, error) {
	if v.Type != "" && !model.ValidType(v.Type) {
		return 0, fmt.Errorf("type %q inconnu: %w", v.Type, apierror.ErrValidation)
	}
	if v.MarqueID != nil {
		if _, ok := e.marques[*v.MarqueID]; !ok {
			return 0, ErrUnknownMarque
		}
	}
	if v.MarqueID != nil && v.ModeleID != nil && !e.belongs(*v.ModeleID, v.MarqueID) {
		return 0, ErrModeleMismatch
	}

	changed := 0
	for i := range e.rows {
		row := &e.rows[i]
		if !row.Selected {
			continue
		}
		touched := false
		if v.Type != "" {
			row.Type = v.Type
			touched = true
		}
		if v.MarqueID != nil {
			if !sameID(row.MarqueID, v.MarqueID) {
				row.ModeleID = nil
			}
			row.MarqueID = copyID(v.MarqueID)
			touched = true
		}
		if v.ModeleID != nil && e.belongs(*v.ModeleID, row.MarqueID) {
			row.ModeleID = copyID(v.ModeleID)
			touched = true
		}
		if touched {
			changed++
		}
	}
	return changed, nil
}

// Remove drops a row. The standing scan row is recreated if needed.
func (e *Editor) Remove(id int) error {
	i, err := e.index(id)
	if err != nil {
		return err
	}
	e.rows = append(e.rows[:i], e.rows[i+1:]...)
	if n := len(e.rows); n == 0 || e.rows[n-1].Entry != model.EntryScan || !e.rows[n-1].empty() {
		e.appendScanRow()
	} else if e.focus == id {
		e.focus = e.rows[n-1].ID
	}
	return nil
}

// Rows returns a copy of the current rows, in display order.
func (e *Editor) Rows() []Row {
	out := make([]Row, len(e.rows))
	copy(out, e.rows)
	return out
}

// Focus is the id of the row that receives input.
func (e *Editor) Focus() int { return e.focus }

// Validate checks the rows are ready to be sent: at least one serial and a
// type on every filled row.
func (e *Editor) Validate() error {
	var errs []error
	n := 0
	for pos, r := range e.rows {
		if r.empty() {
			continue
		}
		n++
		if r.Type == "" {
			errs = append(errs, fmt.Errorf("ligne %d (%s): type requis: %w", pos+1, r.Serial, apierror.ErrValidation))
		}
		if r.ModeleID != nil && !e.belongs(*r.ModeleID, r.MarqueID) {
			errs = append(errs, fmt.Errorf("ligne %d (%s): %w", pos+1, r.Serial, ErrModeleMismatch))
		}
	}
	if n == 0 {
		return ErrNothingToCreate
	}
	return errors.Join(errs...)
}

// Items converts the filled rows into create-lot inputs. Empty rows, including
// the standing scan row, are skipped.
func (e *Editor) Items() []dto.LotItemInput {
	items := make([]dto.LotItemInput, 0, len(e.rows))
	for _, r := range e.rows {
		if r.empty() {
			continue
		}
		items = append(items, dto.LotItemInput{
			SerialNumber: strings.TrimSpace(r.Serial),
			Type:         r.Type,
			MarqueID:     copyID(r.MarqueID),
			ModeleID:     copyID(r.ModeleID),
			EntryType:    r.Entry,
		})
	}
	return items
}

// Request builds the create-lot request after validation.
func (e *Editor) Request(lotName string) (dto.CreateLotRequest, error) {
	if err := e.Validate(); err != nil {
		return dto.CreateLotRequest{}, err
	}
	req := dto.CreateLotRequest{Items: e.Items()}
	if name := strings.TrimSpace(lotName); name != "" {
		req.LotName = &name
	}
	return req, nil
}

// Reset clears every row and starts over with one empty scan row.
func (e *Editor) Reset() {
	e.rows = nil
	e.appendScanRow()
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
