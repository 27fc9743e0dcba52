package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Item classification states. An empty State means "not yet classified".
const (
	StateReconditionne = "Reconditionnés"
	StatePourPieces    = "Pour pièces"
	StateHS            = "HS"
)

// Equipment types.
const (
	TypePortable = "portable"
	TypeFixe     = "fixe"
	TypeEcran    = "ecran"
	TypeAutres   = "autres"
)

// Provenance of an item row.
const (
	EntryScan   = "scan"
	EntryManual = "manual"
)

// LotItem is one physical unit belonging to a lot.
// EntryType, Date and Time are fixed at creation.
type LotItem struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" db:"id"`
	LotID          uuid.UUID  `gorm:"type:uuid;not null;index" db:"lot_id"`
	Position       int        `gorm:"not null" db:"position"`
	SerialNumber   string     `gorm:"column:serial_number;not null" db:"serial_number"`
	Type           string     `gorm:"not null" db:"type"`
	MarqueID       *uuid.UUID `gorm:"type:uuid;column:marque_id" db:"marque_id"`
	ModeleID       *uuid.UUID `gorm:"type:uuid;column:modele_id" db:"modele_id"`
	EntryType      string     `gorm:"column:entry_type;not null" db:"entry_type"`
	Date           string     `gorm:"column:date;not null" db:"date"` // YYYY-MM-DD
	Time           string     `gorm:"column:time;not null" db:"time"` // HH:MM:SS
	State          string     `gorm:"not null;default:''" db:"state"`
	Technician     string     `gorm:"not null;default:''" db:"technician"`
	StateChangedAt *time.Time `gorm:"column:state_changed_at" db:"state_changed_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`

	// Read-only join columns filled by item queries.
	MarqueName string `gorm:"->;-:migration;column:marque_name" db:"marque_name"`
	ModeleName string `gorm:"->;-:migration;column:modele_name" db:"modele_name"`
}

func (LotItem) TableName() string { return "lot_items" }

// ValidState reports whether s is one of the three classification states.
func ValidState(s string) bool {
	switch s {
	case StateReconditionne, StatePourPieces, StateHS:
		return true
	}
	return false
}

// ValidType reports whether t is a known equipment type.
func ValidType(t string) bool {
	switch t {
	case TypePortable, TypeFixe, TypeEcran, TypeAutres:
		return true
	}
	return false
}

// ValidEntryType reports whether e is scan or manual.
func ValidEntryType(e string) bool {
	return e == EntryScan || e == EntryManual
}

// IsComplete reports whether the item has a known state and a non-blank technician.
func (i *LotItem) IsComplete() bool {
	return ValidState(i.State) && strings.TrimSpace(i.Technician) != ""
}

// SameSerial reports whether two serial numbers name the same device.
// Scanners and operators disagree on case, so the comparison ignores it.
func SameSerial(a, b string) bool {
	return SerialKey(a) == SerialKey(b)
}

// SerialKey normalises a serial for duplicate lookups.
func SerialKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ItemPatch is a partial item update; nil fields are left unchanged.
type ItemPatch struct {
	State      *string
	Technician *string
}
