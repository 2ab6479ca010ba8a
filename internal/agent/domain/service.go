package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	smdomain "github.com/smallbiznis/lunara/internal/semanticmodel/domain"
	"github.com/smallbiznis/lunara/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	// ResolveSemanticModel follows config.semantic_model_id. Missing, deleted
	// or foreign models yield ErrUnresolvedReference.
	ResolveSemanticModel(ctx context.Context, id string) (*smdomain.Response, error)
}

type CreateRequest struct {
	ProjectID    string         `json:"project_id"`
	Name         string         `json:"name"`
	Description  *string        `json:"description,omitempty"`
	Instructions *string        `json:"instructions,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

// UpdateRequest patches an agent. A nil Config leaves it untouched; a non-nil
// Config replaces the stored document.
type UpdateRequest struct {
	ID           string         `json:"id"`
	Name         *string        `json:"name,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Instructions *string        `json:"instructions,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

type ListRequest struct {
	ProjectID string `json:"project_id"`
	pagination.Pagination
}

type Response struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"`
	Name         string         `json:"name"`
	Description  *string        `json:"description,omitempty"`
	Instructions *string        `json:"instructions,omitempty"`
	Config       map[string]any `json:"config"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type ListResponse struct {
	pagination.PageInfo
	Agents []Response `json:"agents"`
}

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidProject      = errors.New("invalid_project_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidConfig       = errors.New("invalid_config")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrNotFound            = errors.New("not_found")
	ErrUnresolvedReference = errors.New("unresolved_reference")
)

func ParseID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
