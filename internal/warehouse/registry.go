package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/lunara/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Registry dispatches probe, scan and table listing calls to the connector
// registered for the data source type.
type Registry struct {
	log        *zap.Logger
	metrics    *telemetry.Metrics
	connectors map[string]Connector
}

type RegistryParams struct {
	fx.In

	Log     *zap.Logger
	Metrics *telemetry.Metrics `optional:"true"`
}

func NewRegistry(p RegistryParams) *Registry {
	r := &Registry{
		log:        p.Log.Named("warehouse.registry"),
		metrics:    p.Metrics,
		connectors: map[string]Connector{},
	}
	pg := NewPostgresConnector()
	r.Register(TypePostgres, pg)
	r.Register(TypeRedshift, pg)
	return r
}

func (r *Registry) Register(sourceType string, c Connector) {
	r.connectors[strings.ToLower(strings.TrimSpace(sourceType))] = c
}

func (r *Registry) connector(sourceType string) (Connector, error) {
	c, ok := r.connectors[strings.ToLower(strings.TrimSpace(sourceType))]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrCollaborator, ErrUnsupportedSource, sourceType)
	}
	return c, nil
}

func (r *Registry) Probe(ctx context.Context, ds DataSource, creds Credentials) error {
	start := time.Now()
	c, err := r.connector(ds.Type)
	if err == nil {
		err = asCollaboratorError(c.Probe(ctx, ds, creds))
	}
	r.metrics.ObserveProbe(ds.Type, outcome(err), time.Since(start))
	if err != nil {
		r.log.Info("probe failed",
			zap.String("data_source_id", ds.ID.String()),
			zap.String("type", ds.Type),
			zap.Error(err),
		)
	}
	return err
}

func (r *Registry) Scan(ctx context.Context, ds DataSource, creds Credentials, opts ScanOptions) (map[string]any, error) {
	start := time.Now()
	c, err := r.connector(ds.Type)
	var doc map[string]any
	if err == nil {
		doc, err = c.Scan(ctx, ds, creds, opts)
		err = asCollaboratorError(err)
	}
	r.metrics.ObserveScan(ds.Type, outcome(err), time.Since(start))
	if err != nil {
		r.log.Info("scan failed",
			zap.String("data_source_id", ds.ID.String()),
			zap.String("type", ds.Type),
			zap.Error(err),
		)
		return nil, err
	}
	return doc, nil
}

func (r *Registry) ListTables(ctx context.Context, ds DataSource, creds Credentials) ([]Table, error) {
	c, err := r.connector(ds.Type)
	if err != nil {
		return nil, err
	}
	tables, err := c.ListTables(ctx, ds, creds)
	if err = asCollaboratorError(err); err != nil {
		r.log.Info("list tables failed",
			zap.String("data_source_id", ds.ID.String()),
			zap.String("type", ds.Type),
			zap.Error(err),
		)
		return nil, err
	}
	return tables, nil
}

func asCollaboratorError(err error) error {
	if err == nil || errors.Is(err, ErrCollaborator) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCollaborator, err)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
