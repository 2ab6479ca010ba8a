package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, artifact *Artifact) error
	// Update applies the row only when its stored updated_at equals prevUpdatedAt.
	Update(ctx context.Context, db *gorm.DB, artifact *Artifact, prevUpdatedAt time.Time) *gorm.DB
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Artifact, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Artifact, error)
	Delete(ctx context.Context, db *gorm.DB, id uuid.UUID) error
}

type ListFilter struct {
	ProjectID uuid.UUID
	Type      string
	Status    string
	Cursor    *ListCursor
	Limit     int
}
