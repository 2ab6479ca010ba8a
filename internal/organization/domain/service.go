package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*OrganizationResponse, error)
	Current(ctx context.Context) (*OrganizationResponse, error)
	GetByID(ctx context.Context, id string) (*OrganizationResponse, error)
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, orgID string, req AddMemberRequest) (*ProfileResponse, error)
	ListMembers(ctx context.Context, orgID string) ([]ProfileResponse, error)
	UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*ProfileResponse, error)
}

// Directory resolves the organization a principal belongs to.
type Directory interface {
	OrganizationOf(ctx context.Context, principalID string) (uuid.UUID, error)
}

type CreateOrganizationRequest struct {
	Name        string
	Email       *string
	DisplayName *string
}

type AddMemberRequest struct {
	PrincipalID string
	Email       *string
	DisplayName *string
}

type UpdateProfileRequest struct {
	Email       *string
	DisplayName *string
}

type OrganizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

type ProfileResponse struct {
	PrincipalID    string    `json:"principal_id"`
	OrganizationID string    `json:"organization_id"`
	Email          *string   `json:"email,omitempty"`
	DisplayName    *string   `json:"display_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidPrincipal    = errors.New("invalid_principal")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrNotFound            = errors.New("not_found")
	ErrNoProfile           = errors.New("no_profile")
	ErrAlreadyMember       = errors.New("already_member")
)

func ParseID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
