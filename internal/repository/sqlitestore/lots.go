package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"lotflow/internal/apierror"
	"lotflow/internal/completion"
	"lotflow/internal/model"
	"lotflow/internal/repository"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const lotColumns = `id, lot_name, finished_at, recovered_at, pdf_path, created_at, updated_at`

const itemSelect = `
	SELECT i.id, i.lot_id, i.position, i.serial_number, i.type, i.marque_id, i.modele_id,
	       i.entry_type, i.date, i.time, i.state, i.technician, i.state_changed_at,
	       i.created_at, i.updated_at,
	       COALESCE(m.name, '') AS marque_name, COALESCE(mo.name, '') AS modele_name
	FROM lot_items i
	LEFT JOIN marques m ON m.id = i.marque_id
	LEFT JOIN modeles mo ON mo.id = i.modele_id`

// LotStore is the sqlx LotRepository.
type LotStore struct {
	db *sqlx.DB
}

var _ repository.LotRepository = (*LotStore)(nil)

func NewLotStore(db *sqlx.DB) *LotStore {
	return &LotStore{db: db}
}

func (s *LotStore) CreateLot(ctx context.Context, lot *model.Lot, items []model.LotItem) error {
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	now := time.Now().UTC()
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = now
	}
	lot.UpdatedAt = lot.CreatedAt

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create lot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO lots (`+lotColumns+`)
		VALUES (:id, :lot_name, :finished_at, :recovered_at, :pdf_path, :created_at, :updated_at)`, lot); err != nil {
		return fmt.Errorf("create lot: %w", translate(err))
	}

	for i := range items {
		it := &items[i]
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.LotID = lot.ID
		it.Position = i + 1
		if it.CreatedAt.IsZero() {
			it.CreatedAt = lot.CreatedAt
		}
		it.UpdatedAt = it.CreatedAt
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO lot_items (id, lot_id, position, serial_number, type, marque_id, modele_id,
			                       entry_type, date, time, state, technician, state_changed_at,
			                       created_at, updated_at)
			VALUES (:id, :lot_id, :position, :serial_number, :type, :marque_id, :modele_id,
			        :entry_type, :date, :time, :state, :technician, :state_changed_at,
			        :created_at, :updated_at)`, it); err != nil {
			return fmt.Errorf("create lot item %d: %w", i+1, translate(err))
		}
	}
	return tx.Commit()
}

func (s *LotStore) FindByID(ctx context.Context, id uuid.UUID) (*model.Lot, error) {
	var l model.Lot
	if err := s.db.GetContext(ctx, &l, `SELECT `+lotColumns+` FROM lots WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("lot %s: %w", id, translate(err))
	}
	return &l, nil
}

func (s *LotStore) GetWithItems(ctx context.Context, id uuid.UUID) (*model.Lot, error) {
	l, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Items, err = s.ListItems(ctx, id); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *LotStore) ListItems(ctx context.Context, lotID uuid.UUID) ([]model.LotItem, error) {
	items := []model.LotItem{}
	if err := s.db.SelectContext(ctx, &items, itemSelect+` WHERE i.lot_id = ? ORDER BY i.position ASC`, lotID); err != nil {
		return nil, fmt.Errorf("list items of lot %s: %w", lotID, err)
	}
	return items, nil
}

func (s *LotStore) List(ctx context.Context, status model.LotStatus) ([]model.LotSummary, error) {
	var lots []model.Lot
	if err := s.db.SelectContext(ctx, &lots, `SELECT `+lotColumns+` FROM lots ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	if len(lots) == 0 {
		return []model.LotSummary{}, nil
	}

	ids := make([]uuid.UUID, len(lots))
	for i := range lots {
		ids[i] = lots[i].ID
	}
	query, args, err := sqlx.In(itemSelect+` WHERE i.lot_id IN (?) ORDER BY i.position ASC`, ids)
	if err != nil {
		return nil, err
	}
	var items []model.LotItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list lot items: %w", err)
	}
	byLot := make(map[uuid.UUID][]model.LotItem, len(lots))
	for _, it := range items {
		byLot[it.LotID] = append(byLot[it.LotID], it)
	}

	out := make([]model.LotSummary, 0, len(lots))
	for _, l := range lots {
		sum := completion.Summarize(l, byLot[l.ID])
		if completion.Matches(sum, status) {
			out = append(out, sum)
		}
	}
	return out, nil
}

func (s *LotStore) FindItem(ctx context.Context, itemID uuid.UUID) (*model.LotItem, error) {
	var it model.LotItem
	if err := s.db.GetContext(ctx, &it, itemSelect+` WHERE i.id = ?`, itemID); err != nil {
		return nil, fmt.Errorf("item %s: %w", itemID, translate(err))
	}
	return &it, nil
}

func (s *LotStore) UpdateItem(ctx context.Context, itemID uuid.UUID, patch model.ItemPatch, now time.Time) (*model.LotItem, error) {
	current, err := s.FindItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	updates := repository.ItemUpdates(current, patch, now)

	// Columns come from ItemUpdates, never from input.
	query := `UPDATE lot_items SET `
	args := make([]interface{}, 0, len(updates)+1)
	first := true
	for _, col := range []string{"state", "technician", "state_changed_at", "updated_at"} {
		v, ok := updates[col]
		if !ok {
			continue
		}
		if !first {
			query += ", "
		}
		query += col + " = ?"
		args = append(args, v)
		first = false
	}
	query += ` WHERE id = ?`
	args = append(args, itemID)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update item %s: %w", itemID, translate(err))
	}
	return s.FindItem(ctx, itemID)
}

func (s *LotStore) MarkFinished(ctx context.Context, id uuid.UUID, at time.Time) (*model.Lot, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE lots SET finished_at = ?, updated_at = ? WHERE id = ? AND finished_at IS NULL`,
		at, at, id); err != nil {
		return nil, fmt.Errorf("finish lot %s: %w", id, err)
	}
	return s.FindByID(ctx, id)
}

func (s *LotStore) MarkRecovered(ctx context.Context, id uuid.UUID, at time.Time) (*model.Lot, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE lots SET recovered_at = ?, updated_at = ?
		 WHERE id = ? AND finished_at IS NOT NULL AND recovered_at IS NULL`,
		at, at, id); err != nil {
		return nil, fmt.Errorf("recover lot %s: %w", id, err)
	}
	l, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.IsFinished() {
		return nil, fmt.Errorf("lot %s non terminé: %w", id, apierror.ErrConflict)
	}
	return l, nil
}

func (s *LotStore) Rename(ctx context.Context, id uuid.UUID, name *string) (*model.Lot, error) {
	return s.setColumn(ctx, id, `UPDATE lots SET lot_name = ?, updated_at = ? WHERE id = ?`, name)
}

func (s *LotStore) SetPDFPath(ctx context.Context, id uuid.UUID, path string) (*model.Lot, error) {
	return s.setColumn(ctx, id, `UPDATE lots SET pdf_path = ?, updated_at = ? WHERE id = ?`, path)
}

func (s *LotStore) setColumn(ctx context.Context, id uuid.UUID, query string, value interface{}) (*model.Lot, error) {
	res, err := s.db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update lot %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("lot %s: %w", id, apierror.ErrNotFound)
	}
	return s.FindByID(ctx, id)
}

func (s *LotStore) ListFinishedWithoutPDF(ctx context.Context, limit int) ([]model.Lot, error) {
	lots := []model.Lot{}
	err := s.db.SelectContext(ctx, &lots, `
		SELECT `+lotColumns+` FROM lots
		WHERE finished_at IS NOT NULL AND pdf_path IS NULL
		ORDER BY finished_at ASC LIMIT ?`, limit)
	return lots, err
}
