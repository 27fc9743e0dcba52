package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"lotflow/internal/model"
	"lotflow/internal/repository"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CatalogStore is the sqlx ReferenceDataRepository.
type CatalogStore struct {
	db *sqlx.DB
}

var _ repository.ReferenceDataRepository = (*CatalogStore)(nil)

func NewCatalogStore(db *sqlx.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) CreateMarque(ctx context.Context, m *model.Marque) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NamedExecContext(ctx,
		`INSERT INTO marques (id, name, created_at) VALUES (:id, :name, :created_at)`, m); err != nil {
		return fmt.Errorf("marque %q: %w", m.Name, translate(err))
	}
	return nil
}

func (s *CatalogStore) FindMarque(ctx context.Context, id uuid.UUID) (*model.Marque, error) {
	var m model.Marque
	if err := s.db.GetContext(ctx, &m, `SELECT id, name, created_at FROM marques WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("marque %s: %w", id, translate(err))
	}
	return &m, nil
}

func (s *CatalogStore) FindMarqueByName(ctx context.Context, name string) (*model.Marque, error) {
	var m model.Marque
	if err := s.db.GetContext(ctx, &m,
		`SELECT id, name, created_at FROM marques WHERE name = ? COLLATE NOCASE`, name); err != nil {
		return nil, fmt.Errorf("marque %q: %w", name, translate(err))
	}
	return &m, nil
}

func (s *CatalogStore) ListMarques(ctx context.Context) ([]model.Marque, error) {
	list := []model.Marque{}
	err := s.db.SelectContext(ctx, &list, `SELECT id, name, created_at FROM marques ORDER BY name ASC`)
	return list, err
}

func (s *CatalogStore) ListMarquesWithModeles(ctx context.Context) ([]model.Marque, error) {
	marques, err := s.ListMarques(ctx)
	if err != nil {
		return nil, err
	}
	var modeles []model.Modele
	if err := s.db.SelectContext(ctx, &modeles,
		`SELECT id, marque_id, name, created_at FROM modeles ORDER BY name ASC`); err != nil {
		return nil, err
	}
	byMarque := make(map[uuid.UUID][]model.Modele)
	for _, m := range modeles {
		byMarque[m.MarqueID] = append(byMarque[m.MarqueID], m)
	}
	for i := range marques {
		marques[i].Modeles = byMarque[marques[i].ID]
		if marques[i].Modeles == nil {
			marques[i].Modeles = []model.Modele{}
		}
	}
	return marques, nil
}

func (s *CatalogStore) CreateModele(ctx context.Context, m *model.Modele) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NamedExecContext(ctx,
		`INSERT INTO modeles (id, marque_id, name, created_at) VALUES (:id, :marque_id, :name, :created_at)`, m); err != nil {
		return fmt.Errorf("modèle %q: %w", m.Name, translate(err))
	}
	return nil
}

func (s *CatalogStore) FindModele(ctx context.Context, id uuid.UUID) (*model.Modele, error) {
	var m model.Modele
	if err := s.db.GetContext(ctx, &m,
		`SELECT id, marque_id, name, created_at FROM modeles WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("modèle %s: %w", id, translate(err))
	}
	return &m, nil
}

func (s *CatalogStore) ListModeles(ctx context.Context, marqueID uuid.UUID) ([]model.Modele, error) {
	list := []model.Modele{}
	err := s.db.SelectContext(ctx, &list,
		`SELECT id, marque_id, name, created_at FROM modeles WHERE marque_id = ? ORDER BY name ASC`, marqueID)
	return list, err
}
