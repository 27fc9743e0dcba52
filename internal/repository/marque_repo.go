package repository

import (
	"context"
	"fmt"

	"lotflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type marqueRepo struct{ db *gorm.DB }

// NewReferenceDataRepository returns the GORM-backed brand/model catalog.
func NewReferenceDataRepository(db *gorm.DB) ReferenceDataRepository {
	return &marqueRepo{db: db}
}

func (r *marqueRepo) CreateMarque(ctx context.Context, m *model.Marque) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Omit("Modeles").Create(m).Error; err != nil {
		return fmt.Errorf("marque %q: %w", m.Name, translate(err))
	}
	return nil
}

func (r *marqueRepo) FindMarque(ctx context.Context, id uuid.UUID) (*model.Marque, error) {
	var m model.Marque
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("marque %s: %w", id, translate(err))
	}
	return &m, nil
}

func (r *marqueRepo) FindMarqueByName(ctx context.Context, name string) (*model.Marque, error) {
	var m model.Marque
	if err := r.db.WithContext(ctx).Where("lower(name) = lower(?)", name).First(&m).Error; err != nil {
		return nil, fmt.Errorf("marque %q: %w", name, translate(err))
	}
	return &m, nil
}

func (r *marqueRepo) ListMarques(ctx context.Context) ([]model.Marque, error) {
	list := []model.Marque{}
	err := r.db.WithContext(ctx).Order("name asc").Find(&list).Error
	return list, err
}

func (r *marqueRepo) ListMarquesWithModeles(ctx context.Context) ([]model.Marque, error) {
	list := []model.Marque{}
	err := r.db.WithContext(ctx).
		Preload("Modeles", func(db *gorm.DB) *gorm.DB { return db.Order("name asc") }).
		Order("name asc").
		Find(&list).Error
	for i := range list {
		if list[i].Modeles == nil {
			list[i].Modeles = []model.Modele{}
		}
	}
	return list, err
}

func (r *marqueRepo) CreateModele(ctx context.Context, m *model.Modele) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("modèle %q: %w", m.Name, translate(err))
	}
	return nil
}

func (r *marqueRepo) FindModele(ctx context.Context, id uuid.UUID) (*model.Modele, error) {
	var m model.Modele
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("modèle %s: %w", id, translate(err))
	}
	return &m, nil
}

func (r *marqueRepo) ListModeles(ctx context.Context, marqueID uuid.UUID) ([]model.Modele, error) {
	list := []model.Modele{}
	err := r.db.WithContext(ctx).Where("marque_id = ?", marqueID).Order("name asc").Find(&list).Error
	return list, err
}
