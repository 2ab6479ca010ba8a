package domain

import (
	"time"

	"github.com/google/uuid"
)

// Project groups the data sources, semantic models, agents and artifacts of
// one analytics workspace inside an organization.
type Project struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index"`
	Name           string    `json:"name" gorm:"type:text;not null"`
	Description    *string   `json:"description,omitempty" gorm:"type:text"`
	CreatedBy      *string   `json:"created_by,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }

type ListCursor struct {
	ID        uuid.UUID
	CreatedAt time.Time
}
