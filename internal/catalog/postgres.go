package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
)

const columnQuery = `
	SELECT column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position
`

// SQLCatalog reads column definitions from information_schema over a
// database/sql connection and renders them back as CREATE TABLE
// statements.
type SQLCatalog struct {
	name          string
	db            *sql.DB
	defaultSchema string
	logger        *slog.Logger
}

// NewSQLCatalog wraps an open connection. A nil logger discards
// output; an empty default schema falls back to "public".
func NewSQLCatalog(name string, db *sql.DB, defaultSchema string, logger *slog.Logger) *SQLCatalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if defaultSchema == "" {
		defaultSchema = "public"
	}
	return &SQLCatalog{name: name, db: db, defaultSchema: defaultSchema, logger: logger}
}

// Name identifies the provider.
func (c *SQLCatalog) Name() string { return c.name }

// Close closes the underlying connection.
func (c *SQLCatalog) Close() error { return c.db.Close() }

// FetchDDL looks up each table's columns and synthesizes a CREATE
// TABLE statement. A table that cannot be read or has no columns gets
// a LookupError; the rest of the batch proceeds.
func (c *SQLCatalog) FetchDDL(ctx context.Context, tables []string) map[string]Result {
	out := make(map[string]Result, len(tables))
	for _, table := range tables {
		ddl, err := c.fetchTable(ctx, table)
		if err != nil {
			c.logger.Warn("catalog lookup failed", "provider", c.name, "table", table, "error", err)
			out[table] = Result{Err: &LookupError{Table: table, Err: err}}
			continue
		}
		out[table] = Result{DDL: ddl}
	}
	return out
}

func (c *SQLCatalog) fetchTable(ctx context.Context, table string) (string, error) {
	schemaName := c.defaultSchema
	tableName := table
	if parts := strings.Split(table, "."); len(parts) == 2 {
		schemaName, tableName = parts[0], parts[1]
	}

	rows, err := c.db.QueryContext(ctx, columnQuery, schemaName, tableName)
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()

	var defs []string
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return "", err
		}
		defs = append(defs, name+" "+dataType)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(defs) == 0 {
		return "", errors.New("table not found")
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", ")), nil
}

func openPostgres(cfg Config) (Catalog, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres catalog: %w", err)
	}
	return NewSQLCatalog("postgres", db, cfg.DefaultSchema, cfg.Logger), nil
}

func init() {
	Register("postgres", openPostgres)
}
