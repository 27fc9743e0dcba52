package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lotflow/internal/apierror"
	"lotflow/internal/completion"
	"lotflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type lotRepo struct{ db *gorm.DB }

// NewLotRepository returns the GORM-backed LotRepository.
func NewLotRepository(db *gorm.DB) LotRepository { return &lotRepo{db: db} }

func (r *lotRepo) CreateLot(ctx context.Context, lot *model.Lot, items []model.LotItem) error {
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Create(lot).Error; err != nil {
			return fmt.Errorf("create lot: %w", translate(err))
		}
		for i := range items {
			if items[i].ID == uuid.Nil {
				items[i].ID = uuid.New()
			}
			items[i].LotID = lot.ID
			items[i].Position = i + 1
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return fmt.Errorf("create lot items: %w", translate(err))
			}
		}
		return nil
	})
}

func (r *lotRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Lot, error) {
	var l model.Lot
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("lot %s: %w", id, translate(err))
	}
	return &l, nil
}

func (r *lotRepo) GetWithItems(ctx context.Context, id uuid.UUID) (*model.Lot, error) {
	l, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := r.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	l.Items = items
	return l, nil
}

// itemQuery selects items joined with brand and model names.
func (r *lotRepo) itemQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.LotItem{}).
		Select("lot_items.*, COALESCE(marques.name, '') AS marque_name, COALESCE(modeles.name, '') AS modele_name").
		Joins("LEFT JOIN marques ON marques.id = lot_items.marque_id").
		Joins("LEFT JOIN modeles ON modeles.id = lot_items.modele_id")
}

func (r *lotRepo) ListItems(ctx context.Context, lotID uuid.UUID) ([]model.LotItem, error) {
	items := []model.LotItem{}
	err := r.itemQuery(ctx).
		Where("lot_items.lot_id = ?", lotID).
		Order("lot_items.position ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list items of lot %s: %w", lotID, err)
	}
	return items, nil
}

func (r *lotRepo) List(ctx context.Context, status model.LotStatus) ([]model.LotSummary, error) {
	var lots []model.Lot
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&lots).Error; err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	if len(lots) == 0 {
		return []model.LotSummary{}, nil
	}

	ids := make([]uuid.UUID, len(lots))
	for i := range lots {
		ids[i] = lots[i].ID
	}
	var items []model.LotItem
	err := r.itemQuery(ctx).
		Where("lot_items.lot_id IN ?", ids).
		Order("lot_items.position ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list lot items: %w", err)
	}
	byLot := make(map[uuid.UUID][]model.LotItem, len(lots))
	for _, it := range items {
		byLot[it.LotID] = append(byLot[it.LotID], it)
	}

	out := make([]model.LotSummary, 0, len(lots))
	for _, l := range lots {
		s := completion.Summarize(l, byLot[l.ID])
		if completion.Matches(s, status) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *lotRepo) FindItem(ctx context.Context, itemID uuid.UUID) (*model.LotItem, error) {
	var it model.LotItem
	if err := r.itemQuery(ctx).Where("lot_items.id = ?", itemID).Take(&it).Error; err != nil {
		return nil, fmt.Errorf("item %s: %w", itemID, translate(err))
	}
	return &it, nil
}

func (r *lotRepo) UpdateItem(ctx context.Context, itemID uuid.UUID, patch model.ItemPatch, now time.Time) (*model.LotItem, error) {
	current, err := r.FindItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	updates := ItemUpdates(current, patch, now)
	if err := r.db.WithContext(ctx).Model(&model.LotItem{}).Where("id = ?", itemID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update item %s: %w", itemID, translate(err))
	}
	return r.FindItem(ctx, itemID)
}

func (r *lotRepo) MarkFinished(ctx context.Context, id uuid.UUID, at time.Time) (*model.Lot, error) {
	err := r.db.WithContext(ctx).Model(&model.Lot{}).
		Where("id = ? AND finished_at IS NULL", id).
		Updates(map[string]interface{}{"finished_at": at, "updated_at": at}).Error
	if err != nil {
		return nil, fmt.Errorf("finish lot %s: %w", id, err)
	}
	return r.FindByID(ctx, id)
}

func (r *lotRepo) MarkRecovered(ctx context.Context, id uuid.UUID, at time.Time) (*model.Lot, error) {
	res := r.db.WithContext(ctx).Model(&model.Lot{}).
		Where("id = ? AND finished_at IS NOT NULL AND recovered_at IS NULL", id).
		Updates(map[string]interface{}{"recovered_at": at, "updated_at": at})
	if res.Error != nil {
		return nil, fmt.Errorf("recover lot %s: %w", id, res.Error)
	}
	l, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.IsFinished() {
		return nil, fmt.Errorf("lot %s non terminé: %w", id, apierror.ErrConflict)
	}
	return l, nil
}

func (r *lotRepo) Rename(ctx context.Context, id uuid.UUID, name *string) (*model.Lot, error) {
	return r.setColumn(ctx, id, "lot_name", name)
}

func (r *lotRepo) SetPDFPath(ctx context.Context, id uuid.UUID, path string) (*model.Lot, error) {
	return r.setColumn(ctx, id, "pdf_path", path)
}

func (r *lotRepo) setColumn(ctx context.Context, id uuid.UUID, column string, value interface{}) (*model.Lot, error) {
	res := r.db.WithContext(ctx).Model(&model.Lot{}).Where("id = ?", id).
		Updates(map[string]interface{}{column: value, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, fmt.Errorf("update lot %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("lot %s: %w", id, apierror.ErrNotFound)
	}
	return r.FindByID(ctx, id)
}

func (r *lotRepo) ListFinishedWithoutPDF(ctx context.Context, limit int) ([]model.Lot, error) {
	var lots []model.Lot
	err := r.db.WithContext(ctx).
		Where("finished_at IS NOT NULL AND pdf_path IS NULL").
		Order("finished_at ASC").
		Limit(limit).
		Find(&lots).Error
	return lots, err
}

// translate maps GORM errors onto apierror sentinels.
func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apierror.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apierror.ErrConflict
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apierror.ErrValidation
	default:
		return err
	}
}
