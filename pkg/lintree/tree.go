// Package lintree builds per-column dependency trees for parsed SQL
// statements.
//
// Given a statement and optional schema information, a Tracer produces
// one tree per output column. The root is the output column, internal
// nodes are columns of CTEs and derived tables the value passes
// through, and leaves are physical table columns or literal values.
package lintree

// Node is one column in a dependency tree.
type Node struct {
	Name     string // qualified identifier, e.g. "orders.amount"
	Table    string // owning table, CTE, or derived-table name
	Column   string
	Literal  bool   // leaf holding a literal value
	Value    string // literal text when Literal is set
	Virtual  bool   // column of a CTE or derived table
	Children []*Node
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Leaves returns the leaf nodes of the tree in depth-first order. A node
// with no children is its own leaf.
func (n *Node) Leaves() []*Node {
	if n.IsLeaf() {
		return []*Node{n}
	}
	var leaves []*Node
	for _, c := range n.Children {
		leaves = append(leaves, c.Leaves()...)
	}
	return leaves
}

// SourceLeaves returns the leaves reachable through the node's children.
// Unlike Leaves, a node with no children has no sources.
func (n *Node) SourceLeaves() []*Node {
	var leaves []*Node
	for _, c := range n.Children {
		leaves = append(leaves, c.Leaves()...)
	}
	return leaves
}

// TraceError reports that a requested column could not be traced.
type TraceError struct {
	Column  string
	Message string
}

func (e *TraceError) Error() string {
	return "cannot trace column " + e.Column + ": " + e.Message
}

// StarResolutionError reports a wildcard that could not be expanded while
// strict wildcard checking is enabled.
type StarResolutionError struct {
	Table string // qualifier for t.*, empty for a bare *
}

func (e *StarResolutionError) Error() string {
	if e.Table != "" {
		return "cannot resolve wildcard " + e.Table + ".*"
	}
	return "cannot resolve wildcard *"
}
