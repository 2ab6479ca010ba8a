package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/pkg/db/pagination"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Response, error)
	// TestAndActivate probes the warehouse and records the outcome on the
	// data source. A failed probe returns an error wrapping
	// warehouse.ErrCollaborator after the error status is stored. The outcome
	// is discarded with ErrConfigChanged when the config moved mid-probe.
	TestAndActivate(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	SetCredentials(ctx context.Context, id string, secret map[string]any) error
	ClearCredentials(ctx context.Context, id string) error
	// ListTables browses the warehouse behind the data source.
	ListTables(ctx context.Context, id string) (*TablesResponse, error)
}

type RegisterRequest struct {
	ProjectID string         `json:"project_id"`
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config"`
}

// UpdateRequest patches a data source. A nil Config leaves it untouched; a
// non-nil Config replaces the stored document.
type UpdateRequest struct {
	ID     string         `json:"id"`
	Name   *string        `json:"name,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

type ListRequest struct {
	ProjectID string `json:"project_id"`
	pagination.Pagination
}

type Response struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"`
	Type         string         `json:"type"`
	Name         string         `json:"name"`
	Config       map[string]any `json:"config"`
	Status       string         `json:"status"`
	LastError    *string        `json:"last_error,omitempty"`
	LastProbedAt *time.Time     `json:"last_probed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type Table struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

type TablesResponse struct {
	DataSourceID string  `json:"data_source_id"`
	Tables       []Table `json:"tables"`
}

type ListResponse struct {
	pagination.PageInfo
	DataSources []Response `json:"data_sources"`
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidProject     = errors.New("invalid_project_id")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidType        = errors.New("invalid_type")
	ErrInvalidConfig      = errors.New("invalid_config")
	ErrInvalidSecret      = errors.New("invalid_credentials")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrCredentialInConfig = errors.New("invalid_config_credential_key")
	ErrNotFound           = errors.New("not_found")
	// ErrConfigChanged reports a probe whose data source was reconfigured
	// before the outcome could be recorded.
	ErrConfigChanged = errors.New("data_source_config_changed")
)

func ParseID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
