package graph_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlglider/sqlglider/internal/analyzer"
	"github.com/sqlglider/sqlglider/internal/graph"
	"github.com/sqlglider/sqlglider/internal/schema"
	"github.com/sqlglider/sqlglider/internal/testutil"
)

func writeSQL(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func edgePairs(g *graph.LineageGraph) [][2]string {
	var pairs [][2]string
	for _, e := range g.Edges() {
		pairs = append(pairs, [2]string{e.Source, e.Target})
	}
	return pairs
}

func TestBuildChainAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	f1 := writeSQL(t, dir, "01_stg.sql", `
CREATE TABLE raw_orders (id INT, amount INT);
CREATE TABLE stg_orders AS SELECT id, amount FROM raw_orders;
`)
	f2 := writeSQL(t, dir, "02_mart.sql", `
INSERT INTO mart_rev SELECT id, amount FROM stg_orders;
`)

	b := graph.NewBuilder(graph.BuildOptions{Logger: testutil.NewTestLogger(t)})
	b.AddFiles(f1, f2)
	res, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 3, res.Statements)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "CREATE TABLE", res.Skipped[0].Kind)

	assert.Equal(t, 6, res.Graph.NodeCount())
	assert.Equal(t, [][2]string{
		{"raw_orders.amount", "stg_orders.amount"},
		{"raw_orders.id", "stg_orders.id"},
		{"stg_orders.amount", "mart_rev.amount"},
		{"stg_orders.id", "mart_rev.id"},
	}, edgePairs(res.Graph))
	assert.Equal(t, []string{f1, f2}, res.Graph.Metadata.SourceFiles)
}

func TestBuildResolvesStarRegardlessOfFileOrder(t *testing.T) {
	dir := t.TempDir()
	view := writeSQL(t, dir, "view.sql", `CREATE TABLE v AS SELECT * FROM users;`)
	ddl := writeSQL(t, dir, "ddl.sql", `CREATE TABLE users (id INT, name INT);`)

	// The DDL file is queued after the file that needs it.
	b := graph.NewBuilder(graph.BuildOptions{})
	b.AddFiles(view, ddl)
	res, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][2]string{
		{"users.id", "v.id"},
		{"users.name", "v.name"},
	}, edgePairs(res.Graph))
}

func TestBuildThenMergeMatchesCombinedBuild(t *testing.T) {
	dir := t.TempDir()
	f1 := writeSQL(t, dir, "a.sql", `CREATE TABLE a2 AS SELECT x, y FROM src_a;`)
	f2 := writeSQL(t, dir, "b.sql", `CREATE TABLE b2 AS SELECT x FROM src_b;`)

	combined := graph.NewBuilder(graph.BuildOptions{})
	combined.AddFiles(f1, f2)
	both, err := combined.Build(context.Background())
	require.NoError(t, err)

	b1 := graph.NewBuilder(graph.BuildOptions{})
	b1.AddFile(f1)
	r1, err := b1.Build(context.Background())
	require.NoError(t, err)
	b2 := graph.NewBuilder(graph.BuildOptions{})
	b2.AddFile(f2)
	r2, err := b2.Build(context.Background())
	require.NoError(t, err)

	merged := graph.Merge(r1.Graph, r2.Graph)
	assert.Equal(t, both.Graph.ListColumns(), merged.ListColumns())
	assert.Equal(t, edgePairs(both.Graph), edgePairs(merged))
	assert.Equal(t, both.Graph.Metadata.SourceFiles, merged.Metadata.SourceFiles)
}

func TestBuildContinuesPastUnparsableStatement(t *testing.T) {
	dir := t.TempDir()
	f := writeSQL(t, dir, "mixed.sql", `
SELECT * FROM;
CREATE TABLE out AS SELECT id FROM src;
`)

	b := graph.NewBuilder(graph.BuildOptions{})
	b.AddFile(f)
	res, err := b.Build(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 0, res.Failures[0].Index)
	assert.Equal(t, [][2]string{{"src.id", "out.id"}}, edgePairs(res.Graph))
}

func TestBuildUnreadableFileIsSoft(t *testing.T) {
	dir := t.TempDir()
	f := writeSQL(t, dir, "ok.sql", `CREATE TABLE out AS SELECT id FROM src;`)

	b := graph.NewBuilder(graph.BuildOptions{})
	b.AddFiles(filepath.Join(dir, "absent.sql"), f)
	res, err := b.Build(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, -1, res.Failures[0].Index)
	assert.Equal(t, 1, res.Graph.EdgeCount())
}

func TestBuildStrictStarIsHard(t *testing.T) {
	dir := t.TempDir()
	f := writeSQL(t, dir, "star.sql", `CREATE TABLE v AS SELECT * FROM unknown_table;`)

	b := graph.NewBuilder(graph.BuildOptions{StrictStar: true})
	b.AddFile(f)
	_, err := b.Build(context.Background())

	var starErr *analyzer.StarResolutionError
	require.ErrorAs(t, err, &starErr)
}

func TestAddDirectoryPicksUpSQLFiles(t *testing.T) {
	dir := t.TempDir()
	writeSQL(t, dir, "b.sql", `CREATE TABLE t2 AS SELECT x FROM t1;`)
	writeSQL(t, dir, "a.sql", `CREATE TABLE t1 AS SELECT x FROM t0;`)
	writeSQL(t, dir, "notes.txt", `not sql`)

	b := graph.NewBuilder(graph.BuildOptions{})
	require.NoError(t, b.AddDirectory(dir))
	res, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 2, res.Graph.EdgeCount())
}

func TestAddManifest(t *testing.T) {
	dir := t.TempDir()
	writeSQL(t, dir, "one.sql", `CREATE TABLE t1 AS SELECT x FROM s1;`)
	writeSQL(t, dir, "two.sql", `CREATE TABLE t2 AS SELECT y FROM s2;`)
	manifest := filepath.Join(dir, "files.csv")
	require.NoError(t, os.WriteFile(manifest, []byte(
		"file_path,dialect\none.sql,spark\ntwo.sql,duckdb\n"), 0o644))

	b := graph.NewBuilder(graph.BuildOptions{})
	require.NoError(t, b.AddManifest(manifest))
	res, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Files)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 2, res.Graph.EdgeCount())
}

type stubCatalog struct {
	ddl  map[string]string
	errs map[string]error
}

func (s *stubCatalog) FetchDDL(_ context.Context, tables []string) map[string]schema.DDLResult {
	out := make(map[string]schema.DDLResult, len(tables))
	for _, table := range tables {
		if err, ok := s.errs[table]; ok {
			out[table] = schema.DDLResult{Err: err}
			continue
		}
		if ddl, ok := s.ddl[table]; ok {
			out[table] = schema.DDLResult{DDL: ddl}
		}
	}
	return out
}

func TestBuildFillsSchemaFromCatalog(t *testing.T) {
	dir := t.TempDir()
	f := writeSQL(t, dir, "view.sql", `
CREATE TABLE v AS SELECT * FROM ext_src;
CREATE TABLE w AS SELECT x FROM broken_tbl;
`)

	cat := &stubCatalog{
		ddl:  map[string]string{"ext_src": "CREATE TABLE ext_src (a INT, b INT)"},
		errs: map[string]error{"broken_tbl": errors.New("permission denied")},
	}
	b := graph.NewBuilder(graph.BuildOptions{Catalog: cat, Logger: testutil.NewTestLogger(t)})
	b.AddFile(f)
	res, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][2]string{
		{"broken_tbl.x", "w.x"},
		{"ext_src.a", "v.a"},
		{"ext_src.b", "v.b"},
	}, edgePairs(res.Graph))
	require.Contains(t, res.CatalogErrors, "broken_tbl")
	assert.Contains(t, res.CatalogErrors["broken_tbl"], "permission denied")
}

func TestBuildParallelMatchesSequential(t *testing.T) {
	dir := t.TempDir()
	f1 := writeSQL(t, dir, "a.sql", `
CREATE TABLE src_a (x INT, y INT);
CREATE TABLE out_a AS SELECT * FROM src_a;
`)
	f2 := writeSQL(t, dir, "b.sql", `
CREATE TABLE src_b (z INT);
CREATE TABLE out_b AS SELECT * FROM src_b;
`)
	files := []graph.FileSpec{{Path: f1}, {Path: f2}}

	seq, err := graph.BuildParallel(context.Background(), files, graph.BuildOptions{}, 1)
	require.NoError(t, err)
	par, err := graph.BuildParallel(context.Background(), files, graph.BuildOptions{}, 2)
	require.NoError(t, err)

	assert.Equal(t, seq.Graph.ListColumns(), par.Graph.ListColumns())
	assert.Equal(t, edgePairs(seq.Graph), edgePairs(par.Graph))
	assert.Equal(t, seq.Statements, par.Statements)
}
