package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, created_at)
		 VALUES (?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.CreatedAt,
	).Error
}

func (r *repository) FindOrganization(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, slug, created_at FROM organizations WHERE id = ?`,
		id,
	).Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == uuid.Nil {
		return nil, nil
	}
	return &org, nil
}

func (r *repository) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`DELETE FROM organizations WHERE id = ?`, id).Error
}

func (r *repository) CreateProfile(ctx context.Context, profile domain.Profile) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO profiles (principal_id, organization_id, email, display_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		profile.PrincipalID,
		profile.OrganizationID,
		profile.Email,
		profile.DisplayName,
		profile.CreatedAt,
		profile.UpdatedAt,
	).Error
}

func (r *repository) FindProfile(ctx context.Context, principalID string) (*domain.Profile, error) {
	var profile domain.Profile
	err := r.db.WithContext(ctx).Raw(
		`SELECT principal_id, organization_id, email, display_name, created_at, updated_at
		 FROM profiles WHERE principal_id = ?`,
		principalID,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.PrincipalID == "" {
		return nil, nil
	}
	return &profile, nil
}

func (r *repository) ListProfiles(ctx context.Context, orgID uuid.UUID) ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := r.db.WithContext(ctx).Raw(
		`SELECT principal_id, organization_id, email, display_name, created_at, updated_at
		 FROM profiles WHERE organization_id = ?
		 ORDER BY created_at ASC, principal_id ASC`,
		orgID,
	).Scan(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

// UpdateProfile writes profile only if its stored updated_at still equals prevUpdatedAt.
func (r *repository) UpdateProfile(ctx context.Context, profile domain.Profile, prevUpdatedAt time.Time) *gorm.DB {
	return r.db.WithContext(ctx).Exec(
		`UPDATE profiles SET email = ?, display_name = ?, updated_at = ?
		 WHERE principal_id = ? AND updated_at = ?`,
		profile.Email,
		profile.DisplayName,
		profile.UpdatedAt,
		profile.PrincipalID,
		prevUpdatedAt,
	)
}

func (r *repository) DeleteProfiles(ctx context.Context, orgID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`DELETE FROM profiles WHERE organization_id = ?`, orgID).Error
}
