package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, agent *Agent) error
	// Update applies the row only when its stored updated_at equals prevUpdatedAt.
	Update(ctx context.Context, db *gorm.DB, agent *Agent, prevUpdatedAt time.Time) *gorm.DB
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Agent, error)
	List(ctx context.Context, db *gorm.DB, projectID uuid.UUID, cursor *ListCursor, limit int) ([]*Agent, error)
	Delete(ctx context.Context, db *gorm.DB, id uuid.UUID) error
}
