package schema_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sqlglider/sqlglider/internal/schema"
	"github.com/sqlglider/sqlglider/pkg/lintree"
	"github.com/sqlglider/sqlglider/pkg/sqlparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(t *testing.T, opts schema.Options) *schema.Context {
	t.Helper()
	return schema.NewContext(opts)
}

func parseStmt(t *testing.T, sql string) sqlparse.Statement {
	t.Helper()
	d, err := sqlparse.GetDialect("spark")
	require.NoError(t, err)
	stmt, err := sqlparse.Parse(sql, d)
	require.NoError(t, err)
	return stmt
}

func TestLookupByQualifiedAndBareName(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	ctx.AddTable("sales.orders", []string{"id", "amount"}, schema.OriginFile)

	cols, ok := ctx.Lookup("sales.orders")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "amount"}, cols)

	cols, ok = ctx.Lookup("orders")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "amount"}, cols)

	_, ok = ctx.Lookup("customers")
	assert.False(t, ok)
}

func TestLookupNormalizesCase(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	ctx.AddTable("Sales.Orders", []string{"id"}, schema.OriginFile)

	_, ok := ctx.Lookup("SALES.ORDERS")
	assert.True(t, ok)
}

func TestOriginPrecedence(t *testing.T) {
	ctx := newContext(t, schema.Options{})

	ctx.AddTable("orders", []string{"id"}, schema.OriginCatalog)
	ctx.AddTable("orders", []string{"id", "amount"}, schema.OriginFile)
	cols, _ := ctx.Lookup("orders")
	assert.Equal(t, []string{"id", "amount"}, cols)

	// Catalog data never overwrites a file-derived entry.
	ctx.AddTable("orders", []string{"stale"}, schema.OriginCatalog)
	cols, _ = ctx.Lookup("orders")
	assert.Equal(t, []string{"id", "amount"}, cols)

	// A later file-derived entry replaces an earlier one.
	ctx.AddTable("orders", []string{"id", "amount", "region"}, schema.OriginFile)
	cols, _ = ctx.Lookup("orders")
	assert.Equal(t, []string{"id", "amount", "region"}, cols)
}

func TestRecordCreateTableColumnDefs(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	stmt := parseStmt(t, "CREATE TABLE raw.events (id BIGINT, kind STRING, ts TIMESTAMP)")

	require.NoError(t, ctx.Record(stmt, nil))

	cols, ok := ctx.Lookup("raw.events")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "kind", "ts"}, cols)
}

func TestRecordCTAS(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	ctx.AddTable("orders", []string{"id", "amount"}, schema.OriginFile)

	stmt := parseStmt(t, "CREATE TABLE reporting.summary AS SELECT id, amount AS total FROM orders")
	require.NoError(t, ctx.Record(stmt, nil))

	cols, ok := ctx.Lookup("reporting.summary")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "total"}, cols)
}

func TestRecordCTASExpandsStar(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	ctx.AddTable("orders", []string{"id", "amount"}, schema.OriginFile)

	stmt := parseStmt(t, "CREATE TABLE copyof.orders AS SELECT * FROM orders")
	require.NoError(t, ctx.Record(stmt, nil))

	cols, ok := ctx.Lookup("copyof.orders")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "amount"}, cols)
}

func TestRecordUnresolvableStarLeavesTargetUnknown(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	stmt := parseStmt(t, "CREATE TABLE t2 AS SELECT * FROM mystery")

	require.NoError(t, ctx.Record(stmt, nil))

	_, ok := ctx.Lookup("t2")
	assert.False(t, ok)
}

func TestRecordUnresolvableStarStrict(t *testing.T) {
	ctx := newContext(t, schema.Options{StrictStar: true})
	stmt := parseStmt(t, "CREATE TABLE t2 AS SELECT * FROM mystery")

	err := ctx.Record(stmt, nil)
	var starErr *lintree.StarResolutionError
	assert.ErrorAs(t, err, &starErr)
}

func TestRecordInsertUnknownTarget(t *testing.T) {
	ctx := newContext(t, schema.Options{})

	stmt := parseStmt(t, "INSERT INTO audit.log (id, action) SELECT id, kind FROM events")
	require.NoError(t, ctx.Record(stmt, nil))

	cols, ok := ctx.Lookup("audit.log")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "action"}, cols)
}

func TestRecordInsertKnownTargetUnchanged(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	ctx.AddTable("audit.log", []string{"id", "action", "ts"}, schema.OriginFile)

	stmt := parseStmt(t, "INSERT INTO audit.log (id, action) SELECT id, kind FROM events")
	require.NoError(t, ctx.Record(stmt, nil))

	cols, _ := ctx.Lookup("audit.log")
	assert.Equal(t, []string{"id", "action", "ts"}, cols)
}

func TestPrunedKeepsOnlyReferencedTables(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	ctx.AddTable("sales.orders", []string{"id", "amount"}, schema.OriginFile)
	ctx.AddTable("sales.customers", []string{"id", "name"}, schema.OriginFile)

	stmt := parseStmt(t, "SELECT id FROM sales.orders")
	pruned := ctx.Pruned(stmt)

	assert.Contains(t, pruned, "sales.orders")
	assert.Contains(t, pruned, "orders")
	assert.NotContains(t, pruned, "sales.customers")
}

func TestMissingTables(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	ctx.AddTable("orders", []string{"id"}, schema.OriginFile)

	stmts := []sqlparse.Statement{
		parseStmt(t, "SELECT * FROM orders"),
		parseStmt(t, "SELECT * FROM customers JOIN orders ON customers.id = orders.id"),
		parseStmt(t, "SELECT * FROM customers"),
	}
	assert.Equal(t, []string{"customers"}, ctx.MissingTables(stmts))
}

type stubDDLSource map[string]schema.DDLResult

func (s stubDDLSource) FetchDDL(_ context.Context, tables []string) map[string]schema.DDLResult {
	out := make(map[string]schema.DDLResult, len(tables))
	for _, table := range tables {
		if res, ok := s[table]; ok {
			out[table] = res
		}
	}
	return out
}

func TestFillFromCatalog(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	src := stubDDLSource{
		"customers": {DDL: "CREATE TABLE customers (id BIGINT, name STRING)"},
		"broken":    {Err: assert.AnError},
	}

	failed := ctx.FillFromCatalog(context.Background(), src, []string{"customers", "broken"})

	require.Len(t, failed, 1)
	assert.Error(t, failed["broken"])

	cols, ok := ctx.Lookup("customers")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name"}, cols)
}

func TestFillFromCatalogDoesNotOverrideFiles(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	ctx.AddTable("customers", []string{"id", "name", "tier"}, schema.OriginFile)
	src := stubDDLSource{
		"customers": {DDL: "CREATE TABLE customers (id BIGINT)"},
	}

	ctx.FillFromCatalog(context.Background(), src, []string{"customers"})

	cols, _ := ctx.Lookup("customers")
	assert.Equal(t, []string{"id", "name", "tier"}, cols)
}

func TestExtractFromFiles(t *testing.T) {
	dir := t.TempDir()
	ddl := filepath.Join(dir, "01_ddl.sql")
	ctas := filepath.Join(dir, "02_ctas.sql")
	require.NoError(t, os.WriteFile(ddl, []byte(
		"CREATE TABLE raw.orders (id INT, amount DOUBLE);\n"), 0o644))
	require.NoError(t, os.WriteFile(ctas, []byte(
		"CREATE TABLE agg.daily AS SELECT id, SUM(amount) AS total FROM raw.orders GROUP BY id;\n"), 0o644))

	ctx := newContext(t, schema.Options{})
	failed := ctx.ExtractFromFiles([]string{ddl, ctas}, nil)
	assert.Empty(t, failed)

	cols, ok := ctx.Lookup("agg.daily")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "total"}, cols)
}

func TestExtractFromFilesReportsUnreadable(t *testing.T) {
	ctx := newContext(t, schema.Options{})
	failed := ctx.ExtractFromFiles([]string{"/nonexistent/nope.sql"}, nil)

	require.Len(t, failed, 1)
	assert.Error(t, failed["/nonexistent/nope.sql"])
}
