// Package access decides whether a principal may perform an operation on a
// resource. Denials surface as ErrNotFound so callers cannot distinguish a
// resource owned by another organization from one that does not exist.
package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type Kind string

const (
	KindProject       Kind = "project"
	KindDataSource    Kind = "data_source"
	KindSemanticModel Kind = "semantic_model"
	KindAgent         Kind = "agent"
	KindArtifact      Kind = "artifact"
)

type Operation string

const (
	OperationRead   Operation = "read"
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

var (
	Kinds      = []Kind{KindProject, KindDataSource, KindSemanticModel, KindAgent, KindArtifact}
	Operations = []Operation{OperationRead, OperationCreate, OperationUpdate, OperationDelete}
)

const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonNoProfile       = "no_profile"
	ReasonNotFound        = "not_found"
	ReasonCrossTenant     = "cross_tenant"
	ReasonPolicy          = "policy"
)

// Request names the resource being acted on. Exactly one of TargetID,
// ProjectID or OrganizationID locates the owner:
// TargetID for an existing resource of Kind, ProjectID when creating or
// listing children of a project, OrganizationID when creating or listing
// projects.
type Request struct {
	PrincipalID    string
	Operation      Operation
	Kind           Kind
	TargetID       uuid.UUID
	ProjectID      uuid.UUID
	OrganizationID uuid.UUID
}

// Decision is the outcome of an evaluation. On allow, the owner fields are
// populated from the live rows.
type Decision struct {
	Allowed              bool
	Reason               string
	PrincipalID          string
	CallerOrganizationID uuid.UUID
	OwnerOrganizationID  uuid.UUID
	ProjectID            uuid.UUID
}

type Evaluator interface {
	// Evaluate returns the decision without converting a deny into an error.
	Evaluate(ctx context.Context, req Request) (Decision, error)
	// Require returns ErrNotFound when the decision is a deny.
	Require(ctx context.Context, req Request) (Decision, error)
	// CallerOrganization resolves the organization of the principal in ctx.
	CallerOrganization(ctx context.Context) (uuid.UUID, error)
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidRequest  = errors.New("invalid_access_request")
)
