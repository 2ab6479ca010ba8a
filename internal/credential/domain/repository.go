package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, cred *Credential) error
	Find(ctx context.Context, db *gorm.DB, dataSourceID uuid.UUID) (*Credential, error)
	Delete(ctx context.Context, db *gorm.DB, dataSourceID uuid.UUID) error
}
