package warehouse_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/lunara/internal/warehouse"
	"github.com/smallbiznis/lunara/internal/warehouse/mock"
)

func newRegistry() *warehouse.Registry {
	return warehouse.NewRegistry(warehouse.RegistryParams{Log: zap.NewNop()})
}

func TestRegistryUnsupportedType(t *testing.T) {
	reg := newRegistry()
	ds := warehouse.DataSource{ID: uuid.New(), Type: "oracle"}

	err := reg.Probe(context.Background(), ds, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, warehouse.ErrCollaborator)
	assert.ErrorIs(t, err, warehouse.ErrUnsupportedSource)

	_, err = reg.Scan(context.Background(), ds, nil, warehouse.ScanOptions{})
	assert.ErrorIs(t, err, warehouse.ErrUnsupportedSource)
}

func TestRegistryWrapsConnectorErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock.NewMockConnector(ctrl)

	reg := newRegistry()
	reg.Register(warehouse.TypeBigQuery, conn)

	ds := warehouse.DataSource{ID: uuid.New(), Type: "BigQuery"}
	boom := errors.New("dataset not found")
	conn.EXPECT().Probe(gomock.Any(), ds, gomock.Any()).Return(boom)

	err := reg.Probe(context.Background(), ds, warehouse.Credentials{"private_key": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, warehouse.ErrCollaborator)
	assert.ErrorIs(t, err, boom)
}

func TestRegistryPassesScanResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock.NewMockConnector(ctrl)

	reg := newRegistry()
	reg.Register(warehouse.TypeSnowflake, conn)

	ds := warehouse.DataSource{ID: uuid.New(), Type: warehouse.TypeSnowflake}
	opts := warehouse.ScanOptions{Tables: []string{"sales.orders"}}
	doc := map[string]any{"tables": []any{}, "relationships": []any{}}
	conn.EXPECT().Scan(gomock.Any(), ds, gomock.Any(), opts).Return(doc, nil)

	got, err := reg.Scan(context.Background(), ds, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestRegistryLeavesCancellationUnwrapped(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock.NewMockConnector(ctrl)

	reg := newRegistry()
	reg.Register(warehouse.TypeBigQuery, conn)

	ds := warehouse.DataSource{ID: uuid.New(), Type: warehouse.TypeBigQuery}
	conn.EXPECT().Probe(gomock.Any(), ds, gomock.Any()).Return(context.Canceled)

	err := reg.Probe(context.Background(), ds, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, warehouse.ErrCollaborator))
}

func TestRegistryListTables(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := mock.NewMockConnector(ctrl)

	reg := newRegistry()
	reg.Register(warehouse.TypeSnowflake, conn)

	ds := warehouse.DataSource{ID: uuid.New(), Type: warehouse.TypeSnowflake}
	want := []warehouse.Table{{Schema: "sales", Name: "orders", Type: warehouse.TableTypeTable}}
	conn.EXPECT().ListTables(gomock.Any(), ds, gomock.Any()).Return(want, nil)

	got, err := reg.ListTables(context.Background(), ds, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	conn.EXPECT().ListTables(gomock.Any(), ds, gomock.Any()).Return(nil, errors.New("warehouse asleep"))
	_, err = reg.ListTables(context.Background(), ds, nil)
	assert.ErrorIs(t, err, warehouse.ErrCollaborator)

	_, err = reg.ListTables(context.Background(), warehouse.DataSource{Type: "oracle"}, nil)
	assert.ErrorIs(t, err, warehouse.ErrUnsupportedSource)
}
