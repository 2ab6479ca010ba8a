package domain

import (
	"time"

	"github.com/google/uuid"
)

// Credential is the sealed secret document of one data source.
type Credential struct {
	DataSourceID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sealed       string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (Credential) TableName() string { return "data_source_credentials" }
