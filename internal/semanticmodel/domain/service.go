package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/pkg/db/pagination"
)

type Service interface {
	// Generate scans the data source and stores the resulting model. With ID
	// set the existing model is replaced in place, keeping its id and
	// created_at.
	Generate(ctx context.Context, req GenerateRequest) (*Response, error)
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
}

type GenerateRequest struct {
	ProjectID    string   `json:"project_id"`
	DataSourceID string   `json:"data_source_id"`
	Name         string   `json:"name"`
	Description  *string  `json:"description,omitempty"`
	ID           *string  `json:"id,omitempty"`
	Tables       []string `json:"tables,omitempty"`
}

// CreateRequest stores a hand-written model. SourceType is required unless
// DataSourceID is set, in which case it must match the data source type.
type CreateRequest struct {
	ProjectID    string         `json:"project_id"`
	DataSourceID *string        `json:"data_source_id,omitempty"`
	SourceType   string         `json:"source_type,omitempty"`
	Name         string         `json:"name"`
	Description  *string        `json:"description,omitempty"`
	Model        map[string]any `json:"model"`
}

// UpdateRequest patches a model. A nil Model leaves the document untouched.
type UpdateRequest struct {
	ID          string         `json:"id"`
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Model       map[string]any `json:"model,omitempty"`
}

type ListRequest struct {
	ProjectID string `json:"project_id"`
	pagination.Pagination
}

type Response struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"`
	DataSourceID *string        `json:"data_source_id,omitempty"`
	Name         string         `json:"name"`
	Description  *string        `json:"description,omitempty"`
	Model        map[string]any `json:"model"`
	SourceType   string         `json:"source_type"`
	TableCount   int            `json:"table_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type ListResponse struct {
	pagination.PageInfo
	SemanticModels []Response `json:"semantic_models"`
}

var (
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidProject    = errors.New("invalid_project_id")
	ErrInvalidDataSource = errors.New("invalid_data_source_id")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidModel      = errors.New("invalid_model")
	ErrInvalidSourceType = errors.New("invalid_source_type")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrNotFound          = errors.New("not_found")
	// ErrInconsistent reports a stored table_count that disagrees with the
	// stored document.
	ErrInconsistent = errors.New("semantic_model_inconsistent")
)

func ParseID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
