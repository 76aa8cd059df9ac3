package graph

// Merge unions graphs into a new one using the builder's dedup rules:
// first occurrence wins for node metadata, duplicate (source, target)
// edges collapse, and source-file lists are deduplicated and sorted.
// Dialect and node format are taken from the first graph.
func Merge(graphs ...*LineageGraph) *LineageGraph {
	var dialect, format string
	if len(graphs) > 0 {
		dialect = graphs[0].Metadata.Dialect
		format = graphs[0].Metadata.NodeFormat
	}
	merged := NewGraph(dialect, format)
	for _, g := range graphs {
		for _, n := range g.nodesInOrder() {
			merged.AddNode(n.ID, n.File, n.Statement)
		}
		for _, e := range g.edgesInOrder() {
			merged.AddEdge(e.Source, e.Target, e.File, e.Statement)
		}
		for _, f := range g.Metadata.SourceFiles {
			merged.AddSourceFile(f)
		}
	}
	return merged
}
