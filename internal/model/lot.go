package model

import (
	"time"

	"github.com/google/uuid"
)

// Lot is a batch of equipment processed together through intake and reconditioning.
// FinishedAt is set once every item has a state and a technician; RecoveredAt can
// only follow FinishedAt.
type Lot struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" db:"id"`
	LotName     *string    `gorm:"column:lot_name" db:"lot_name"`
	FinishedAt  *time.Time `gorm:"column:finished_at" db:"finished_at"`
	RecoveredAt *time.Time `gorm:"column:recovered_at" db:"recovered_at"`
	// PDFPath points at the server-servable copy of the archived record.
	PDFPath   *string   `gorm:"column:pdf_path" db:"pdf_path"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Items []LotItem `gorm:"foreignKey:LotID;constraint:OnDelete:CASCADE" db:"-"`
}

func (Lot) TableName() string { return "lots" }

// IsFinished reports whether the lot has been confirmed complete.
func (l *Lot) IsFinished() bool { return l.FinishedAt != nil }

// IsRecovered reports whether the physical batch has been collected.
func (l *Lot) IsRecovered() bool { return l.RecoveredAt != nil }

// DisplayName returns the lot name, or an empty string when none was given.
func (l *Lot) DisplayName() string {
	if l.LotName == nil {
		return ""
	}
	return *l.LotName
}

// LotSummary is a listing row: the lot header plus counters recomputed from its items.
type LotSummary struct {
	Lot
	Total   int
	Pending int
	Recond  int
	Pieces  int
	HS      int
}

// LotStatus filters lot listings.
type LotStatus string

const (
	LotStatusActive   LotStatus = "active"
	LotStatusFinished LotStatus = "finished"
	LotStatusAll      LotStatus = "all"
)

// ParseLotStatus maps a query value onto a LotStatus; empty means active.
func ParseLotStatus(s string) (LotStatus, bool) {
	switch LotStatus(s) {
	case "":
		return LotStatusActive, true
	case LotStatusActive, LotStatusFinished, LotStatusAll:
		return LotStatus(s), true
	default:
		return "", false
	}
}
