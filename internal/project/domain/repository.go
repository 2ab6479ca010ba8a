package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, project *Project) error
	// Update applies the row only when its stored updated_at equals prevUpdatedAt.
	Update(ctx context.Context, db *gorm.DB, project *Project, prevUpdatedAt time.Time) *gorm.DB
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Project, error)
	List(ctx context.Context, db *gorm.DB, orgID uuid.UUID, cursor *ListCursor, limit int) ([]*Project, error)
	// Delete removes the project and every child row it owns.
	Delete(ctx context.Context, db *gorm.DB, id uuid.UUID) error
	// DeleteByOrganization removes every project of orgID with their children.
	DeleteByOrganization(ctx context.Context, db *gorm.DB, orgID uuid.UUID) error
}
