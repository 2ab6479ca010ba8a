// Package domain contains persistence models for the tenant directory.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a tenant.
type Organization struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Slug      string    `gorm:"type:text;not null" json:"slug"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Profile maps an authenticated principal to exactly one organization.
type Profile struct {
	PrincipalID    string    `gorm:"type:text;primaryKey" json:"principal_id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Email          *string   `gorm:"type:text" json:"email,omitempty"`
	DisplayName    *string   `gorm:"type:text" json:"display_name,omitempty"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Profile) TableName() string { return "profiles" }
