package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TypeBigQuery  = "bigquery"
	TypePostgres  = "postgres"
	TypeRedshift  = "redshift"
	TypeSnowflake = "snowflake"
)

const (
	StatusPending   = "pending"
	StatusConnected = "connected"
	StatusError     = "error"
)

// DataSource describes how to reach a warehouse. Credential material is kept
// by the credential store, never in Config.
type DataSource struct {
	ID           uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID    uuid.UUID         `json:"project_id" gorm:"type:uuid;not null;index"`
	Type         string            `json:"type" gorm:"type:text;not null"`
	Name         string            `json:"name" gorm:"type:text;not null"`
	Config       datatypes.JSONMap `json:"config" gorm:"type:jsonb;not null"`
	Status       string            `json:"status" gorm:"type:text;not null"`
	LastError    *string           `json:"last_error,omitempty" gorm:"type:text"`
	LastProbedAt *time.Time        `json:"last_probed_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time         `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (DataSource) TableName() string { return "data_sources" }

type ListCursor struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// IsValidType reports whether value is a supported warehouse type.
func IsValidType(value string) bool {
	switch value {
	case TypeBigQuery, TypePostgres, TypeRedshift, TypeSnowflake:
		return true
	default:
		return false
	}
}
