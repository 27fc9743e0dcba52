package repository

import (
	"context"
	"time"

	"lotflow/internal/model"

	"github.com/google/uuid"
)

// LotRepository owns lot headers and their items. It is a passive ledger:
// completion is decided by the caller through the completion package.
// Both the GORM/postgres and the sqlx/sqlite backends satisfy it.
type LotRepository interface {
	// CreateLot inserts the header and every item in one transaction.
	CreateLot(ctx context.Context, lot *model.Lot, items []model.LotItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Lot, error)
	// GetWithItems returns the lot with Items always non-nil.
	GetWithItems(ctx context.Context, id uuid.UUID) (*model.Lot, error)
	List(ctx context.Context, status model.LotStatus) ([]model.LotSummary, error)
	ListItems(ctx context.Context, lotID uuid.UUID) ([]model.LotItem, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*model.LotItem, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, patch model.ItemPatch, now time.Time) (*model.LotItem, error)
	// MarkFinished sets finished_at only when unset; later calls are no-ops.
	MarkFinished(ctx context.Context, id uuid.UUID, at time.Time) (*model.Lot, error)
	// MarkRecovered requires finished_at; later calls are no-ops.
	MarkRecovered(ctx context.Context, id uuid.UUID, at time.Time) (*model.Lot, error)
	Rename(ctx context.Context, id uuid.UUID, name *string) (*model.Lot, error)
	SetPDFPath(ctx context.Context, id uuid.UUID, path string) (*model.Lot, error)
	ListFinishedWithoutPDF(ctx context.Context, limit int) ([]model.Lot, error)
}

// ReferenceDataRepository is the append-only brand/model catalog.
type ReferenceDataRepository interface {
	CreateMarque(ctx context.Context, m *model.Marque) error
	FindMarque(ctx context.Context, id uuid.UUID) (*model.Marque, error)
	FindMarqueByName(ctx context.Context, name string) (*model.Marque, error)
	ListMarques(ctx context.Context) ([]model.Marque, error)
	ListMarquesWithModeles(ctx context.Context) ([]model.Marque, error)
	CreateModele(ctx context.Context, m *model.Modele) error
	FindModele(ctx context.Context, id uuid.UUID) (*model.Modele, error)
	ListModeles(ctx context.Context, marqueID uuid.UUID) ([]model.Modele, error)
}

// ItemUpdates computes the column changes for a patch. state_changed_at is
// stamped whenever the state moves to a different non-empty value.
func ItemUpdates(current *model.LotItem, patch model.ItemPatch, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{"updated_at": now}
	if patch.State != nil {
		updates["state"] = *patch.State
		if *patch.State != current.State && *patch.State != "" {
			updates["state_changed_at"] = now
		}
	}
	if patch.Technician != nil {
		updates["technician"] = *patch.Technician
	}
	return updates
}
