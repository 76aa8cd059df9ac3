package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlglider/sqlglider/internal/graph"
)

func TestMergeUnionsDisjointEdges(t *testing.T) {
	g1 := graph.NewGraph("spark", "")
	g1.AddEdge("a", "b", "one.sql", 0)
	g1.AddSourceFile("one.sql")

	g2 := graph.NewGraph("spark", "")
	g2.AddEdge("b", "c", "two.sql", 0)
	g2.AddSourceFile("two.sql")

	merged := graph.Merge(g1, g2)
	assert.Equal(t, []string{"a", "b", "c"}, merged.ListColumns())

	edges := merged.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, "a", edges[0].Source)
	assert.Equal(t, "b", edges[0].Target)
	assert.Equal(t, "b", edges[1].Source)
	assert.Equal(t, "c", edges[1].Target)
}

func TestMergeSharedEdgeCount(t *testing.T) {
	g1 := graph.NewGraph("spark", "")
	g1.AddEdge("a", "b", "one.sql", 0)
	g1.AddEdge("a", "c", "one.sql", 1)

	g2 := graph.NewGraph("spark", "")
	g2.AddEdge("a", "b", "two.sql", 0)
	g2.AddEdge("b", "d", "two.sql", 1)

	merged := graph.Merge(g1, g2)
	// |E1| + |E2| - shared = 2 + 2 - 1
	assert.Equal(t, 3, merged.EdgeCount())

	// First occurrence keeps its provenance.
	edges := merged.Edges()
	assert.Equal(t, "one.sql", edges[0].File)
}

func TestMergeSourceFilesDedupedSorted(t *testing.T) {
	g1 := graph.NewGraph("spark", "")
	g1.AddSourceFile("z.sql")
	g1.AddSourceFile("a.sql")

	g2 := graph.NewGraph("spark", "")
	g2.AddSourceFile("a.sql")
	g2.AddSourceFile("m.sql")

	merged := graph.Merge(g1, g2)
	assert.Equal(t, []string{"a.sql", "m.sql", "z.sql"}, merged.Metadata.SourceFiles)
}

func TestMergeKeepsFirstGraphMetadata(t *testing.T) {
	g1 := graph.NewGraph("postgres", graph.NodeFormatParts)
	g2 := graph.NewGraph("spark", "")

	merged := graph.Merge(g1, g2)
	assert.Equal(t, "postgres", merged.Metadata.Dialect)
	assert.Equal(t, graph.NodeFormatParts, merged.Metadata.NodeFormat)
}

func TestMergeEmpty(t *testing.T) {
	merged := graph.Merge()
	assert.Equal(t, 0, merged.NodeCount())
	assert.Equal(t, 0, merged.EdgeCount())
}
