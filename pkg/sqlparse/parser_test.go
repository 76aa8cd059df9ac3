package sqlparse_test

import (
	"testing"

	"github.com/sqlglider/sqlglider/pkg/sqlparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDialect(t *testing.T, name string) *sqlparse.Dialect {
	t.Helper()
	d, err := sqlparse.GetDialect(name)
	require.NoError(t, err)
	return d
}

func parseSelect(t *testing.T, sql string) *sqlparse.SelectStmt {
	t.Helper()
	stmt, err := sqlparse.Parse(sql, mustDialect(t, "spark"))
	require.NoError(t, err)
	sel, ok := stmt.(*sqlparse.SelectStmt)
	require.True(t, ok, "expected SelectStmt, got %T", stmt)
	return sel
}

func TestParseSimpleSelect(t *testing.T) {
	sel := parseSelect(t, "SELECT a, b AS total FROM orders o WHERE a > 1")

	core := sel.Body.Left
	require.Len(t, core.Columns, 2)

	first, ok := core.Columns[0].Expr.(*sqlparse.ColumnRef)
	require.True(t, ok)
	assert.Equal(t, "a", first.Column)

	assert.Equal(t, "total", core.Columns[1].Alias)

	tn, ok := core.From.Source.(*sqlparse.TableName)
	require.True(t, ok)
	assert.Equal(t, "orders", tn.Name)
	assert.Equal(t, "o", tn.Alias)

	assert.NotNil(t, core.Where)
}

func TestParseQualifiedNames(t *testing.T) {
	sel := parseSelect(t, "SELECT t.x FROM prod.sales.orders t")

	tn := sel.Body.Left.From.Source.(*sqlparse.TableName)
	assert.Equal(t, "prod", tn.Catalog)
	assert.Equal(t, "sales", tn.Schema)
	assert.Equal(t, "orders", tn.Name)
	assert.Equal(t, "prod.sales.orders", tn.Qualified())

	ref := sel.Body.Left.Columns[0].Expr.(*sqlparse.ColumnRef)
	assert.Equal(t, "t", ref.Table)
	assert.Equal(t, "x", ref.Column)
}

func TestParseStarItems(t *testing.T) {
	sel := parseSelect(t, "SELECT *, t.*, a FROM t")

	cols := sel.Body.Left.Columns
	require.Len(t, cols, 3)
	assert.True(t, cols[0].Star)
	assert.Equal(t, "t", cols[1].TableStar)
	assert.False(t, cols[2].Star)
}

func TestParseCTEs(t *testing.T) {
	sel := parseSelect(t, `
		WITH base AS (SELECT id FROM users),
		     named (a, b) AS (SELECT id, name FROM users)
		SELECT * FROM base`)

	require.NotNil(t, sel.With)
	require.Len(t, sel.With.CTEs, 2)
	assert.Equal(t, "base", sel.With.CTEs[0].Name)
	assert.Equal(t, []string{"a", "b"}, sel.With.CTEs[1].Columns)
}

func TestParseSetOperations(t *testing.T) {
	sel := parseSelect(t, "SELECT a FROM t1 UNION ALL SELECT b FROM t2 UNION SELECT c FROM t3")

	body := sel.Body
	assert.Equal(t, sqlparse.SetOpUnionAll, body.Op)
	require.NotNil(t, body.Right)
	assert.Equal(t, sqlparse.SetOpUnion, body.Right.Op)

	cores := body.Cores()
	require.Len(t, cores, 3)
	assert.Same(t, body.Left, body.First())
}

func TestParseJoins(t *testing.T) {
	tests := []struct {
		name        string
		sql         string
		wantType    sqlparse.JoinType
		contributes bool
	}{
		{name: "inner", sql: "SELECT * FROM a JOIN b ON a.id = b.id", wantType: sqlparse.JoinInner, contributes: true},
		{name: "left outer", sql: "SELECT * FROM a LEFT OUTER JOIN b ON a.id = b.id", wantType: sqlparse.JoinLeft, contributes: true},
		{name: "full", sql: "SELECT * FROM a FULL JOIN b ON a.id = b.id", wantType: sqlparse.JoinFull, contributes: true},
		{name: "cross", sql: "SELECT * FROM a CROSS JOIN b", wantType: sqlparse.JoinCross, contributes: true},
		{name: "left semi", sql: "SELECT * FROM a LEFT SEMI JOIN b ON a.id = b.id", wantType: sqlparse.JoinSemi, contributes: false},
		{name: "anti", sql: "SELECT * FROM a ANTI JOIN b ON a.id = b.id", wantType: sqlparse.JoinAnti, contributes: false},
		{name: "comma", sql: "SELECT * FROM a, b", wantType: sqlparse.JoinComma, contributes: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := parseSelect(t, tt.sql)
			require.Len(t, sel.Body.Left.From.Joins, 1)
			join := sel.Body.Left.From.Joins[0]
			assert.Equal(t, tt.wantType, join.Type)
			assert.Equal(t, tt.contributes, join.ContributesColumns())
		})
	}
}

func TestParseJoinUsing(t *testing.T) {
	sel := parseSelect(t, "SELECT * FROM a JOIN b USING (id, region)")
	join := sel.Body.Left.From.Joins[0]
	assert.Equal(t, []string{"id", "region"}, join.Using)
}

func TestParseDerivedAndLateral(t *testing.T) {
	sel := parseSelect(t, "SELECT d.x FROM (SELECT a AS x FROM t) d JOIN LATERAL (SELECT 1 AS one) l ON true")

	derived, ok := sel.Body.Left.From.Source.(*sqlparse.DerivedTable)
	require.True(t, ok)
	assert.Equal(t, "d", derived.Alias)

	lateral, ok := sel.Body.Left.From.Joins[0].Right.(*sqlparse.LateralTable)
	require.True(t, ok)
	assert.Equal(t, "l", lateral.Alias)
}

func TestParseWindowFunction(t *testing.T) {
	sel := parseSelect(t, "SELECT row_number() OVER (PARTITION BY a ORDER BY b DESC) AS rn FROM t")

	fn, ok := sel.Body.Left.Columns[0].Expr.(*sqlparse.FuncCall)
	require.True(t, ok)
	assert.Equal(t, "ROW_NUMBER", fn.Name)
	require.NotNil(t, fn.Window)
	assert.Len(t, fn.Window.PartitionBy, 1)
	require.Len(t, fn.Window.OrderBy, 1)
	assert.True(t, fn.Window.OrderBy[0].Desc)
}

func TestParseCaseAndCast(t *testing.T) {
	sel := parseSelect(t, "SELECT CASE WHEN a > 1 THEN 'hi' ELSE 'lo' END, CAST(b AS DECIMAL(10, 2)) FROM t")

	_, ok := sel.Body.Left.Columns[0].Expr.(*sqlparse.CaseExpr)
	assert.True(t, ok)

	cast, ok := sel.Body.Left.Columns[1].Expr.(*sqlparse.CastExpr)
	require.True(t, ok)
	assert.Equal(t, "DECIMAL(10, 2)", cast.TypeName)
}

func TestParseDoubleColonCast(t *testing.T) {
	stmt, err := sqlparse.Parse("SELECT a::int FROM t", mustDialect(t, "duckdb"))
	require.NoError(t, err)

	sel := stmt.(*sqlparse.SelectStmt)
	cast, ok := sel.Body.Left.Columns[0].Expr.(*sqlparse.CastExpr)
	require.True(t, ok)
	assert.Equal(t, "int", cast.TypeName)
}

func TestQualifyDialectGating(t *testing.T) {
	sql := "SELECT a FROM t QUALIFY row_number() OVER (ORDER BY a) = 1"

	_, err := sqlparse.Parse(sql, mustDialect(t, "spark"))
	assert.NoError(t, err)

	_, err = sqlparse.Parse(sql, mustDialect(t, "ansi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUALIFY is not supported")
}

func TestParseInsert(t *testing.T) {
	stmt, err := sqlparse.Parse("INSERT INTO tgt (a, b) SELECT x, y FROM src", mustDialect(t, "spark"))
	require.NoError(t, err)

	ins, ok := stmt.(*sqlparse.InsertStmt)
	require.True(t, ok)
	assert.Equal(t, "tgt", ins.Target.Name)
	assert.Equal(t, []string{"a", "b"}, ins.Columns)
	require.NotNil(t, ins.Select)
	assert.False(t, ins.Overwrite)
}

func TestParseInsertOverwrite(t *testing.T) {
	stmt, err := sqlparse.Parse("INSERT OVERWRITE TABLE analytics.daily SELECT * FROM staging", mustDialect(t, "spark"))
	require.NoError(t, err)

	ins := stmt.(*sqlparse.InsertStmt)
	assert.True(t, ins.Overwrite)
	assert.Equal(t, "analytics.daily", ins.Target.Qualified())
}

func TestParseInsertValues(t *testing.T) {
	stmt, err := sqlparse.Parse("INSERT INTO t VALUES (1, 'a'), (2, 'b')", mustDialect(t, "spark"))
	require.NoError(t, err)

	ins := stmt.(*sqlparse.InsertStmt)
	assert.Nil(t, ins.Select)
	require.Len(t, ins.Values, 2)
	assert.Len(t, ins.Values[0], 2)
}

func TestParseCreateTableAsSelect(t *testing.T) {
	stmt, err := sqlparse.Parse("CREATE OR REPLACE TABLE mart.summary AS SELECT a, b FROM base", mustDialect(t, "spark"))
	require.NoError(t, err)

	create, ok := stmt.(*sqlparse.CreateStmt)
	require.True(t, ok)
	assert.Equal(t, sqlparse.CreateTable, create.Create)
	assert.True(t, create.OrReplace)
	assert.Equal(t, "mart.summary", create.Target.Qualified())
	require.NotNil(t, create.Select)
}

func TestParseCreateTableColumnDefs(t *testing.T) {
	stmt, err := sqlparse.Parse("CREATE TABLE IF NOT EXISTS t (id INT NOT NULL, amount DECIMAL(10, 2), name STRING)", mustDialect(t, "spark"))
	require.NoError(t, err)

	create := stmt.(*sqlparse.CreateStmt)
	assert.True(t, create.IfNotExists)
	require.Len(t, create.ColumnDefs, 3)
	assert.Equal(t, "id", create.ColumnDefs[0].Name)
	assert.Equal(t, "amount", create.ColumnDefs[1].Name)
	assert.Equal(t, "name", create.ColumnDefs[2].Name)
	assert.Nil(t, create.Select)
}

func TestParseCreateView(t *testing.T) {
	stmt, err := sqlparse.Parse("CREATE VIEW v AS SELECT a FROM t", mustDialect(t, "spark"))
	require.NoError(t, err)

	create := stmt.(*sqlparse.CreateStmt)
	assert.Equal(t, sqlparse.CreateView, create.Create)
	assert.Equal(t, "CREATE VIEW", create.Kind())
}

func TestParseCreateTableWithOptionsBeforeAs(t *testing.T) {
	stmt, err := sqlparse.Parse("CREATE TABLE t USING parquet AS SELECT a FROM src", mustDialect(t, "spark"))
	require.NoError(t, err)

	create := stmt.(*sqlparse.CreateStmt)
	require.NotNil(t, create.Select)
}

func TestParseCacheTable(t *testing.T) {
	stmt, err := sqlparse.Parse("CACHE TABLE hot AS SELECT a FROM t", mustDialect(t, "spark"))
	require.NoError(t, err)

	create, ok := stmt.(*sqlparse.CreateStmt)
	require.True(t, ok)
	assert.True(t, create.Temporary)
	assert.Equal(t, "hot", create.Target.Name)
	require.NotNil(t, create.Select)
}

func TestParseMerge(t *testing.T) {
	sql := `MERGE INTO tgt t USING (SELECT id, amount FROM src) s ON t.id = s.id
		WHEN MATCHED THEN UPDATE SET amount = s.amount
		WHEN NOT MATCHED THEN INSERT (id, amount) VALUES (s.id, s.amount)`

	stmt, err := sqlparse.Parse(sql, mustDialect(t, "spark"))
	require.NoError(t, err)

	merge, ok := stmt.(*sqlparse.MergeStmt)
	require.True(t, ok)
	assert.Equal(t, "tgt", merge.Target.Name)

	src, ok := merge.Source.(*sqlparse.DerivedTable)
	require.True(t, ok)
	assert.Equal(t, "s", src.Alias)

	require.Len(t, merge.Actions, 2)
	assert.True(t, merge.Actions[0].Matched)
	require.Len(t, merge.Actions[0].Update, 1)
	assert.False(t, merge.Actions[1].Matched)
	assert.Equal(t, []string{"id", "amount"}, merge.Actions[1].InsertCols)
}

func TestParseUpdate(t *testing.T) {
	stmt, err := sqlparse.Parse("UPDATE t SET a = b + 1, c = 2 WHERE id = 5", mustDialect(t, "spark"))
	require.NoError(t, err)

	upd := stmt.(*sqlparse.UpdateStmt)
	assert.Equal(t, "t", upd.Target.Name)
	require.Len(t, upd.Set, 2)
	assert.Equal(t, "a", upd.Set[0].Column)
	assert.NotNil(t, upd.Where)
}

func TestParseDelete(t *testing.T) {
	stmt, err := sqlparse.Parse("DELETE FROM t WHERE id = 5", mustDialect(t, "spark"))
	require.NoError(t, err)

	del := stmt.(*sqlparse.DeleteStmt)
	assert.Equal(t, "t", del.Target.Name)
	assert.NotNil(t, del.Where)
}

func TestParseAdminStatements(t *testing.T) {
	tests := []struct {
		sql  string
		kind string
	}{
		{sql: "DROP TABLE t", kind: "DROP"},
		{sql: "TRUNCATE TABLE t", kind: "TRUNCATE"},
		{sql: "GRANT ALL ON t TO analyst", kind: "GRANT"},
	}

	for _, tt := range tests {
		stmt, err := sqlparse.Parse(tt.sql, mustDialect(t, "spark"))
		require.NoError(t, err, tt.sql)
		admin, ok := stmt.(*sqlparse.AdminStmt)
		require.True(t, ok, tt.sql)
		assert.Equal(t, tt.kind, admin.Kind())
	}
}

func TestParseErrors(t *testing.T) {
	_, err := sqlparse.Parse("SELECT FROM WHERE", mustDialect(t, "spark"))
	require.Error(t, err)

	var parseErr *sqlparse.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Greater(t, parseErr.Pos.Line, 0)
}

func TestSplitScript(t *testing.T) {
	sql := `CREATE TABLE a AS SELECT 1;
	-- a comment with a ; in it
	INSERT INTO b SELECT ';' AS c FROM a;

	SELECT * FROM b`

	parts := sqlparse.SplitScript(sql)
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0], "CREATE TABLE a")
	assert.Contains(t, parts[1], "';'")
	assert.Contains(t, parts[2], "SELECT * FROM b")
}

func TestParseScriptContinuesPastErrors(t *testing.T) {
	sql := "SELECT a FROM t; SELECT FROM ; SELECT b FROM u"
	results := sqlparse.ParseScript(sql, mustDialect(t, "spark"))

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 2, results[2].Index)
}

func TestSelectBodyOfAndTargetOf(t *testing.T) {
	d := mustDialect(t, "spark")

	ins, err := sqlparse.Parse("INSERT INTO t SELECT a FROM src", d)
	require.NoError(t, err)
	assert.NotNil(t, sqlparse.SelectBodyOf(ins))
	assert.Equal(t, "t", sqlparse.TargetOf(ins).Name)

	admin, err := sqlparse.Parse("DROP TABLE t", d)
	require.NoError(t, err)
	assert.Nil(t, sqlparse.SelectBodyOf(admin))
	assert.Nil(t, sqlparse.TargetOf(admin))
}
