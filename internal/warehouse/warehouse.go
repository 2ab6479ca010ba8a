// Package warehouse talks to customer warehouses on behalf of data sources:
// probing connectivity and introspecting schemas into semantic documents.
package warehouse

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

const (
	TypeBigQuery  = "bigquery"
	TypePostgres  = "postgres"
	TypeRedshift  = "redshift"
	TypeSnowflake = "snowflake"
)

var (
	// ErrCollaborator marks failures of the warehouse itself. Callers match
	// it with errors.Is; the wrapped message carries the detail.
	ErrCollaborator = errors.New("collaborator_failure")
	// ErrUnsupportedSource is returned for types without a registered connector.
	ErrUnsupportedSource = errors.New("unsupported_source")
)

// DataSource is the non-secret connection description handed to connectors.
type DataSource struct {
	ID     uuid.UUID
	Type   string
	Config map[string]any
}

// Credentials is the decrypted secret document of a data source.
type Credentials map[string]any

// Table is one browsable table or view of a warehouse.
type Table struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

const (
	TableTypeTable = "table"
	TableTypeView  = "view"
)

type ScanOptions struct {
	// Tables restricts the scan to the named tables ("schema.table" or "table").
	Tables []string
}

//go:generate mockgen -source=warehouse.go -destination=mock/warehouse_mock.go -package=mock

// Prober verifies that a data source is reachable with its credentials.
type Prober interface {
	Probe(ctx context.Context, ds DataSource, creds Credentials) error
}

// Scanner introspects a data source and returns a semantic model document of
// the form {tables: [...], relationships: [...]}.
type Scanner interface {
	Scan(ctx context.Context, ds DataSource, creds Credentials, opts ScanOptions) (map[string]any, error)
}

// Lister enumerates the tables a data source can see, so callers can pick
// ScanOptions.Tables.
type Lister interface {
	ListTables(ctx context.Context, ds DataSource, creds Credentials) ([]Table, error)
}

// Connector serves one or more data source types.
type Connector interface {
	Prober
	Scanner
	Lister
}
