package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypePrincipal ActorType = "principal"
	ActorTypeSystem    ActorType = "system"
)

// AuditLog records a mutation performed against a tenant's resources.
type AuditLog struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrganizationID *uuid.UUID        `gorm:"type:uuid" json:"organization_id,omitempty"`
	ActorType      string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID        *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action         string            `gorm:"type:text;not null" json:"action"`
	TargetType     string            `gorm:"type:text;not null" json:"target_type"`
	TargetID       *string           `gorm:"type:text" json:"target_id,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrganizationID uuid.UUID
	Action         string
	TargetType     string
	TargetID       string
	ActorType      string
	StartAt        *time.Time
	EndAt          *time.Time
	Cursor         *AuditCursor
	Limit          int
}
