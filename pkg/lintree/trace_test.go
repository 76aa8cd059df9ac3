package lintree_test

import (
	"testing"

	"github.com/sqlglider/sqlglider/pkg/lintree"
	"github.com/sqlglider/sqlglider/pkg/sqlparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sparkDialect(t *testing.T) *sqlparse.Dialect {
	t.Helper()
	d, err := sqlparse.GetDialect("spark")
	require.NoError(t, err)
	return d
}

func parseStmt(t *testing.T, sql string) sqlparse.Statement {
	t.Helper()
	stmt, err := sqlparse.Parse(sql, sparkDialect(t))
	require.NoError(t, err)
	return stmt
}

func traceAll(t *testing.T, sql string, schema sqlparse.Schema) []*lintree.Node {
	t.Helper()
	tracer := lintree.NewTracer(lintree.Options{Schema: schema})
	nodes, err := tracer.TraceAll(parseStmt(t, sql))
	require.NoError(t, err)
	return nodes
}

func leafNames(n *lintree.Node) []string {
	var names []string
	for _, leaf := range n.SourceLeaves() {
		names = append(names, leaf.Name)
	}
	return names
}

func TestTraceDirectColumns(t *testing.T) {
	nodes := traceAll(t, "SELECT a, b AS total FROM orders", nil)
	require.Len(t, nodes, 2)

	assert.Equal(t, "a", nodes[0].Name)
	assert.Equal(t, []string{"orders.a"}, leafNames(nodes[0]))

	assert.Equal(t, "total", nodes[1].Name)
	assert.Equal(t, []string{"orders.b"}, leafNames(nodes[1]))
}

func TestTraceQualifiedAlias(t *testing.T) {
	nodes := traceAll(t, "SELECT o.amount FROM sales.orders o", nil)
	require.Len(t, nodes, 1)

	assert.Equal(t, "amount", nodes[0].Name)
	assert.Equal(t, []string{"sales.orders.amount"}, leafNames(nodes[0]))
}

func TestTraceExpressionSources(t *testing.T) {
	nodes := traceAll(t, "SELECT price * quantity AS total FROM items", nil)
	require.Len(t, nodes, 1)

	assert.Equal(t, []string{"items.price", "items.quantity"}, leafNames(nodes[0]))
}

func TestTraceDedupesRepeatedSources(t *testing.T) {
	nodes := traceAll(t, "SELECT amount + amount AS doubled FROM orders", nil)
	require.Len(t, nodes, 1)

	assert.Equal(t, []string{"orders.amount"}, leafNames(nodes[0]))
}

func TestTraceLiteralOnlyColumn(t *testing.T) {
	nodes := traceAll(t, "SELECT 'active' AS status, amount FROM orders", nil)
	require.Len(t, nodes, 2)

	leaves := nodes[0].SourceLeaves()
	require.Len(t, leaves, 1)
	assert.True(t, leaves[0].Literal)
	assert.Equal(t, "active", leaves[0].Value)

	assert.Equal(t, []string{"orders.amount"}, leafNames(nodes[1]))
}

func TestTraceConstantExpression(t *testing.T) {
	nodes := traceAll(t, "SELECT 1 + 2 AS n FROM t", nil)
	require.Len(t, nodes, 1)

	leaves := nodes[0].SourceLeaves()
	require.Len(t, leaves, 2)
	assert.True(t, leaves[0].Literal)
	assert.Equal(t, "1", leaves[0].Value)
	assert.Equal(t, "2", leaves[1].Value)
}

func TestTraceThroughCTE(t *testing.T) {
	sql := `WITH totals AS (SELECT o.id, o.amount FROM orders o)
		SELECT t.amount FROM totals t`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 1)

	require.Len(t, nodes[0].Children, 1)
	mid := nodes[0].Children[0]
	assert.Equal(t, "totals.amount", mid.Name)
	assert.True(t, mid.Virtual)

	assert.Equal(t, []string{"orders.amount"}, leafNames(nodes[0]))
}

func TestTraceThroughChainedCTEs(t *testing.T) {
	sql := `WITH base AS (SELECT id, amount FROM orders),
		enriched AS (SELECT id, amount * 2 AS doubled FROM base)
		SELECT doubled FROM enriched`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 1)

	assert.Equal(t, "doubled", nodes[0].Name)
	assert.Equal(t, []string{"orders.amount"}, leafNames(nodes[0]))
}

func TestTraceCTEExplicitColumnList(t *testing.T) {
	sql := `WITH c (x, y) AS (SELECT id, amount FROM orders)
		SELECT c.y FROM c`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 1)

	assert.Equal(t, []string{"orders.amount"}, leafNames(nodes[0]))
}

func TestTraceThroughDerivedTable(t *testing.T) {
	sql := `SELECT d.total FROM (SELECT SUM(amount) AS total FROM orders) d`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 1)

	require.Len(t, nodes[0].Children, 1)
	mid := nodes[0].Children[0]
	assert.Equal(t, "d.total", mid.Name)
	assert.True(t, mid.Virtual)

	assert.Equal(t, []string{"orders.amount"}, leafNames(nodes[0]))
}

func TestTraceStarWithSchema(t *testing.T) {
	schema := sqlparse.Schema{"orders": {"id", "amount"}}
	nodes := traceAll(t, "SELECT * FROM orders", schema)
	require.Len(t, nodes, 2)

	assert.Equal(t, "id", nodes[0].Name)
	assert.Equal(t, []string{"orders.id"}, leafNames(nodes[0]))
	assert.Equal(t, "amount", nodes[1].Name)
	assert.Equal(t, []string{"orders.amount"}, leafNames(nodes[1]))
}

func TestTraceStarWithoutSchemaDegrades(t *testing.T) {
	nodes := traceAll(t, "SELECT * FROM orders", nil)
	require.Len(t, nodes, 1)

	assert.Equal(t, "*", nodes[0].Name)
	assert.Equal(t, []string{"orders.*"}, leafNames(nodes[0]))
}

func TestTraceStarStrictMode(t *testing.T) {
	tracer := lintree.NewTracer(lintree.Options{StrictStar: true})
	_, err := tracer.TraceAll(parseStmt(t, "SELECT * FROM orders"))

	var starErr *lintree.StarResolutionError
	require.ErrorAs(t, err, &starErr)
	assert.Empty(t, starErr.Table)
}

func TestTraceTableStar(t *testing.T) {
	schema := sqlparse.Schema{
		"orders":    {"id", "amount"},
		"customers": {"id", "name"},
	}
	sql := `SELECT o.*, c.name FROM orders o JOIN customers c ON o.id = c.id`
	nodes := traceAll(t, sql, schema)
	require.Len(t, nodes, 3)

	assert.Equal(t, "id", nodes[0].Name)
	assert.Equal(t, "amount", nodes[1].Name)
	assert.Equal(t, "name", nodes[2].Name)
	assert.Equal(t, []string{"customers.name"}, leafNames(nodes[2]))
}

func TestTraceStarSkipsSemiJoin(t *testing.T) {
	schema := sqlparse.Schema{
		"orders":    {"id", "amount"},
		"customers": {"id", "name"},
	}
	sql := `SELECT * FROM orders o LEFT SEMI JOIN customers c ON o.id = c.id`
	nodes := traceAll(t, sql, schema)
	require.Len(t, nodes, 2)

	assert.Equal(t, "id", nodes[0].Name)
	assert.Equal(t, "amount", nodes[1].Name)
}

func TestTraceStarThroughCTE(t *testing.T) {
	schema := sqlparse.Schema{"orders": {"id", "amount"}}
	sql := `WITH c AS (SELECT * FROM orders) SELECT c.id FROM c`
	nodes := traceAll(t, sql, schema)
	require.Len(t, nodes, 1)

	assert.Equal(t, []string{"orders.id"}, leafNames(nodes[0]))
}

func TestTraceUnionMergesBranches(t *testing.T) {
	sql := `SELECT a FROM t1 UNION ALL SELECT b FROM t2`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 1)

	assert.Equal(t, "a", nodes[0].Name)
	assert.Equal(t, []string{"t1.a", "t2.b"}, leafNames(nodes[0]))
}

func TestTraceInsertSelect(t *testing.T) {
	sql := `INSERT INTO reporting.daily SELECT id, amount FROM orders`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 2)

	assert.Equal(t, "id", nodes[0].Name)
	assert.Equal(t, []string{"orders.id"}, leafNames(nodes[0]))
}

func TestTraceInsertValues(t *testing.T) {
	sql := `INSERT INTO t (a, b) VALUES (1, 'x')`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 2)

	assert.Equal(t, "a", nodes[0].Name)
	leaves := nodes[0].SourceLeaves()
	require.Len(t, leaves, 1)
	assert.True(t, leaves[0].Literal)
	assert.Equal(t, "1", leaves[0].Value)

	assert.Equal(t, "b", nodes[1].Name)
}

func TestTraceCreateTableAsSelect(t *testing.T) {
	sql := `CREATE TABLE reporting.summary AS
		SELECT region, SUM(amount) AS total FROM orders GROUP BY region`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 2)

	assert.Equal(t, "region", nodes[0].Name)
	assert.Equal(t, "total", nodes[1].Name)
	assert.Equal(t, []string{"orders.amount"}, leafNames(nodes[1]))
}

func TestTraceMergeActions(t *testing.T) {
	sql := `MERGE INTO tgt USING src s ON tgt.id = s.id
		WHEN MATCHED THEN UPDATE SET amount = s.amount
		WHEN NOT MATCHED THEN INSERT (id, amount) VALUES (s.id, s.amount)`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 2)

	assert.Equal(t, "amount", nodes[0].Name)
	assert.Equal(t, []string{"src.amount"}, leafNames(nodes[0]))

	assert.Equal(t, "id", nodes[1].Name)
	assert.Equal(t, []string{"src.id"}, leafNames(nodes[1]))
}

func TestTraceMergeInsertStar(t *testing.T) {
	schema := sqlparse.Schema{"src": {"id", "amount"}}
	sql := `MERGE INTO tgt USING src s ON tgt.id = s.id
		WHEN NOT MATCHED THEN INSERT *`
	nodes := traceAll(t, sql, schema)
	require.Len(t, nodes, 2)

	assert.Equal(t, "id", nodes[0].Name)
	assert.Equal(t, []string{"src.id"}, leafNames(nodes[0]))
	assert.Equal(t, "amount", nodes[1].Name)
}

func TestTraceUpdateFrom(t *testing.T) {
	sql := `UPDATE t SET a = s.b FROM src s WHERE t.id = s.id`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 1)

	assert.Equal(t, "a", nodes[0].Name)
	assert.Equal(t, []string{"src.b"}, leafNames(nodes[0]))
}

func TestTraceAdminStatementHasNoColumns(t *testing.T) {
	nodes := traceAll(t, "DROP TABLE old_stuff", nil)
	assert.Empty(t, nodes)
}

func TestTraceSingleColumn(t *testing.T) {
	stmt := parseStmt(t, "SELECT id, amount AS total FROM orders")

	node, err := lintree.Trace("total", stmt, sparkDialect(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "total", node.Name)
	assert.Equal(t, []string{"orders.amount"}, leafNames(node))
}

func TestTraceSingleColumnCaseInsensitive(t *testing.T) {
	stmt := parseStmt(t, "SELECT amount AS Total FROM orders")

	node, err := lintree.Trace("TOTAL", stmt, sparkDialect(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "Total", node.Name)
}

func TestTraceMissingColumn(t *testing.T) {
	stmt := parseStmt(t, "SELECT id FROM orders")

	_, err := lintree.Trace("missing", stmt, sparkDialect(t), nil)
	var traceErr *lintree.TraceError
	require.ErrorAs(t, err, &traceErr)
	assert.Equal(t, "missing", traceErr.Column)
}

func TestTraceWindowFunctionSources(t *testing.T) {
	sql := `SELECT RANK() OVER (PARTITION BY region ORDER BY amount) AS rnk FROM orders`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 1)

	assert.Equal(t, []string{"orders.region", "orders.amount"}, leafNames(nodes[0]))
}

func TestTraceCaseExpressionSources(t *testing.T) {
	sql := `SELECT CASE WHEN status = 'new' THEN amount ELSE 0 END AS v FROM orders`
	nodes := traceAll(t, sql, nil)
	require.Len(t, nodes, 1)

	assert.Equal(t, []string{"orders.status", "orders.amount"}, leafNames(nodes[0]))
}

func TestNodeLeavesSingleNode(t *testing.T) {
	n := &lintree.Node{Name: "orders.id"}
	assert.True(t, n.IsLeaf())
	assert.Equal(t, []*lintree.Node{n}, n.Leaves())
	assert.Empty(t, n.SourceLeaves())
}
