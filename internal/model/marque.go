package model

import (
	"time"

	"github.com/google/uuid"
)

// Marque is an equipment brand. Names are unique.
type Marque struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" db:"id"`
	Name      string    `gorm:"uniqueIndex;not null" db:"name"`
	CreatedAt time.Time `db:"created_at"`

	Modeles []Modele `gorm:"foreignKey:MarqueID" db:"-"`
}

func (Marque) TableName() string { return "marques" }

// Modele is a model of a brand; names are unique within their brand.
type Modele struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" db:"id"`
	MarqueID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_modele_marque_name" db:"marque_id"`
	Name      string    `gorm:"not null;uniqueIndex:idx_modele_marque_name" db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (Modele) TableName() string { return "modeles" }
