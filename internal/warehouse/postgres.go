package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultSchema         = "public"
)

const columnsQuery = `
SELECT c.table_schema, c.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = $1
  AND t.table_type IN ('BASE TABLE', 'VIEW')
ORDER BY c.table_name, c.ordinal_position`

// foreignKeysQuery pairs referencing and referenced columns by position so
// composite keys yield one row per column pair.
const foreignKeysQuery = `
SELECT kcu.table_name, kcu.column_name, ref.table_name, ref.column_name
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_schema = rc.constraint_schema AND kcu.constraint_name = rc.constraint_name
JOIN information_schema.key_column_usage ref
  ON ref.constraint_schema = rc.unique_constraint_schema
 AND ref.constraint_name = rc.unique_constraint_name
 AND ref.ordinal_position = kcu.position_in_unique_constraint
WHERE kcu.table_schema = $1
ORDER BY kcu.table_name, kcu.constraint_name, kcu.ordinal_position`

const tablesQuery = `
SELECT table_schema, table_name, table_type
FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
  AND table_schema NOT LIKE 'pg\_%'
  AND table_type IN ('BASE TABLE', 'VIEW')
  AND ($1 = '' OR table_schema = $1)
ORDER BY table_schema, table_name`

// PostgresConnector serves postgres and redshift data sources over pgx.
type PostgresConnector struct {
	connect func(ctx context.Context, cfg *pgx.ConnConfig) (pgConn, error)
}

type pgConn interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close(ctx context.Context) error
}

func NewPostgresConnector() *PostgresConnector {
	return &PostgresConnector{
		connect: func(ctx context.Context, cfg *pgx.ConnConfig) (pgConn, error) {
			return pgx.ConnectConfig(ctx, cfg)
		},
	}
}

func (p *PostgresConnector) Probe(ctx context.Context, ds DataSource, creds Credentials) error {
	conn, err := p.open(ctx, ds, creds)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}

func (p *PostgresConnector) Scan(ctx context.Context, ds DataSource, creds Credentials, opts ScanOptions) (map[string]any, error) {
	conn, err := p.open(ctx, ds, creds)
	if err != nil {
		return nil, err
	}
	defer conn.Close(context.Background())

	schema := stringOption(ds.Config, "schema", defaultSchema)

	columns, err := queryColumns(ctx, conn, schema)
	if err != nil {
		return nil, err
	}
	foreignKeys, err := queryForeignKeys(ctx, conn, schema)
	if err != nil {
		return nil, err
	}
	return BuildDocument(schema, columns, foreignKeys, opts), nil
}

// ListTables returns the user tables and views, restricted to the configured
// schema when one is set.
func (p *PostgresConnector) ListTables(ctx context.Context, ds DataSource, creds Credentials) ([]Table, error) {
	conn, err := p.open(ctx, ds, creds)
	if err != nil {
		return nil, err
	}
	defer conn.Close(context.Background())

	rows, err := conn.Query(ctx, tablesQuery, stringOption(ds.Config, "schema", ""))
	if err != nil {
		return nil, fmt.Errorf("fetch tables: %w", err)
	}
	defer rows.Close()

	out := []Table{}
	for rows.Next() {
		var t Table
		var tableType string
		if err := rows.Scan(&t.Schema, &t.Name, &tableType); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		t.Type = TableTypeTable
		if tableType == "VIEW" {
			t.Type = TableTypeView
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresConnector) open(ctx context.Context, ds DataSource, creds Credentials) (pgConn, error) {
	cfg, err := connConfig(ds, creds)
	if err != nil {
		return nil, err
	}
	return p.connect(ctx, cfg)
}

func connConfig(ds DataSource, creds Credentials) (*pgx.ConnConfig, error) {
	host := stringOption(ds.Config, "host", "")
	if host == "" {
		return nil, errors.New("host is required")
	}
	database := stringOption(ds.Config, "database", "")
	if database == "" {
		return nil, errors.New("database is required")
	}

	defaultPort := "5432"
	if ds.Type == TypeRedshift {
		defaultPort = "5439"
	}
	port := stringOption(ds.Config, "port", defaultPort)

	user := stringOption(ds.Config, "user", stringOption(ds.Config, "username", ""))
	if user == "" {
		user = stringOption(map[string]any(creds), "user", stringOption(map[string]any(creds), "username", ""))
	}
	password := stringOption(map[string]any(creds), "password", "")

	u := &url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + database,
		RawQuery: url.Values{"sslmode": []string{stringOption(ds.Config, "sslmode", "prefer")}}.Encode(),
	}
	if user != "" {
		u.User = url.UserPassword(user, password)
	}

	cfg, err := pgx.ParseConfig(u.String())
	if err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return cfg, nil
}

func queryColumns(ctx context.Context, conn pgConn, schema string) ([]ColumnRow, error) {
	rows, err := conn.Query(ctx, columnsQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("fetch columns: %w", err)
	}
	defer rows.Close()

	var out []ColumnRow
	for rows.Next() {
		var row ColumnRow
		var nullable string
		if err := rows.Scan(&row.Schema, &row.Table, &row.Column, &row.DataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		row.Nullable = nullable == "YES"
		out = append(out, row)
	}
	return out, rows.Err()
}

func queryForeignKeys(ctx context.Context, conn pgConn, schema string) ([]ForeignKeyRow, error) {
	rows, err := conn.Query(ctx, foreignKeysQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("fetch foreign keys: %w", err)
	}
	defer rows.Close()

	var out []ForeignKeyRow
	for rows.Next() {
		var row ForeignKeyRow
		if err := rows.Scan(&row.FromTable, &row.FromColumn, &row.ToTable, &row.ToColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func stringOption(doc map[string]any, key, def string) string {
	if doc == nil {
		return def
	}
	switch v := doc[key].(type) {
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case fmt.Stringer:
		return v.String()
	}
	return def
}
