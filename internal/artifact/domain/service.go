package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	// Content returns the typed renderer view of the artifact content.
	Content(ctx context.Context, id string) (*ContentResponse, error)
}

type CreateRequest struct {
	ProjectID   string         `json:"project_id"`
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Content     map[string]any `json:"content"`
	Status      string         `json:"status,omitempty"`
}

// UpdateRequest patches an artifact. Type may be repeated but never changed.
type UpdateRequest struct {
	ID          string         `json:"id"`
	Type        *string        `json:"type,omitempty"`
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Content     map[string]any `json:"content,omitempty"`
	Status      *string        `json:"status,omitempty"`
}

type ListRequest struct {
	ProjectID string `json:"project_id"`
	Type      string `json:"type,omitempty"`
	Status    string `json:"status,omitempty"`
	pagination.Pagination
}

type Response struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id"`
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Content     map[string]any `json:"content"`
	Status      string         `json:"status"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ContentResponse carries one of ReportContent, SlideContent or
// DashboardContent, selected by Type.
type ContentResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Content   any       `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ListResponse struct {
	pagination.PageInfo
	Artifacts []Response `json:"artifacts"`
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidProject   = errors.New("invalid_project_id")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidType      = errors.New("invalid_type")
	ErrTypeImmutable    = errors.New("invalid_type_change")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidContent   = errors.New("invalid_content")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrNotFound         = errors.New("not_found")
	// ErrContentMismatch is returned by the typed content views.
	ErrContentMismatch = errors.New("content_mismatch")
)

func ParseID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
