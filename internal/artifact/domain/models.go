package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TypeReport    = "report"
	TypeSlide     = "slide"
	TypeDashboard = "dashboard"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Artifact is a generated report, slide deck or dashboard. Content follows the
// renderer contract of its type; the store only requires an object.
type Artifact struct {
	ID          uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID   uuid.UUID         `json:"project_id" gorm:"type:uuid;not null;index"`
	Type        string            `json:"type" gorm:"type:text;not null"`
	Name        string            `json:"name" gorm:"type:text;not null"`
	Description *string           `json:"description,omitempty" gorm:"type:text"`
	Content     datatypes.JSONMap `json:"content" gorm:"type:jsonb;not null"`
	Status      string            `json:"status" gorm:"type:text;not null"`
	CreatedBy   string            `json:"created_by" gorm:"type:text;not null"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Artifact) TableName() string { return "artifacts" }

type ListCursor struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

func IsValidType(value string) bool {
	switch value {
	case TypeReport, TypeSlide, TypeDashboard:
		return true
	default:
		return false
	}
}

func IsValidStatus(value string) bool {
	return value == StatusDraft || value == StatusPublished
}
