package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SemanticModel maps warehouse tables, columns and relationships onto business
// terms. TableCount always equals the length of Model["tables"].
type SemanticModel struct {
	ID           uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID    uuid.UUID         `json:"project_id" gorm:"type:uuid;not null;index"`
	DataSourceID *uuid.UUID        `json:"data_source_id,omitempty" gorm:"type:uuid"`
	Name         string            `json:"name" gorm:"type:text;not null"`
	Description  *string           `json:"description,omitempty" gorm:"type:text"`
	Model        datatypes.JSONMap `json:"model" gorm:"type:jsonb;not null"`
	SourceType   string            `json:"source_type" gorm:"type:text;not null"`
	TableCount   int               `json:"table_count" gorm:"not null"`
	CreatedAt    time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time         `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (SemanticModel) TableName() string { return "semantic_models" }

type ListCursor struct {
	ID        uuid.UUID
	CreatedAt time.Time
}
