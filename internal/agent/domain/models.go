package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ConfigSemanticModelID is the config key holding the soft reference to the
// semantic model an agent answers questions against.
const ConfigSemanticModelID = "semantic_model_id"

// Agent is a configured natural-language assistant. Config is an open
// document; keys the platform does not know are stored untouched.
type Agent struct {
	ID           uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID    uuid.UUID         `json:"project_id" gorm:"type:uuid;not null;index"`
	Name         string            `json:"name" gorm:"type:text;not null"`
	Description  *string           `json:"description,omitempty" gorm:"type:text"`
	Instructions *string           `json:"instructions,omitempty" gorm:"type:text"`
	Config       datatypes.JSONMap `json:"config" gorm:"type:jsonb;not null"`
	CreatedAt    time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time         `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Agent) TableName() string { return "agents" }

type ListCursor struct {
	ID        uuid.UUID
	CreatedAt time.Time
}
