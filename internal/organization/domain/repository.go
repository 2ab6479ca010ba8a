package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	FindOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)
	DeleteOrganization(ctx context.Context, id uuid.UUID) error
	CreateProfile(ctx context.Context, profile Profile) error
	FindProfile(ctx context.Context, principalID string) (*Profile, error)
	ListProfiles(ctx context.Context, orgID uuid.UUID) ([]Profile, error)
	UpdateProfile(ctx context.Context, profile Profile, prevUpdatedAt time.Time) *gorm.DB
	DeleteProfiles(ctx context.Context, orgID uuid.UUID) error
}
