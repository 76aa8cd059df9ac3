// Package graph builds, merges, queries, and serializes cross-file
// column lineage graphs. Nodes are column identifiers, edges point from
// a source column to the column derived from it.
package graph

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sqlglider/sqlglider/internal/analyzer"
)

// Node identifier formats carried in graph metadata. Flat graphs
// serialize identifiers as single strings; parts graphs also carry the
// parsed schema/table/column fields.
const (
	NodeFormatFlat  = "flat"
	NodeFormatParts = "parts"
)

// Node is one column in the graph. File and Statement record where the
// identifier was first seen; later occurrences never overwrite them.
type Node struct {
	ID        string `json:"id"`
	Schema    string `json:"schema,omitempty"`
	Table     string `json:"table,omitempty"`
	Column    string `json:"column,omitempty"`
	File      string `json:"file,omitempty"`
	Statement int    `json:"statement"`
}

// Edge is a directed dependency: Target is derived from Source.
type Edge struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	File      string `json:"file,omitempty"`
	Statement int    `json:"statement"`
}

// Metadata describes a graph as a whole.
type Metadata struct {
	CreatedAt   string   `json:"created_at"`
	Dialect     string   `json:"dialect"`
	NodeFormat  string   `json:"node_format"`
	SourceFiles []string `json:"source_files"`
	NodeCount   int      `json:"node_count"`
	EdgeCount   int      `json:"edge_count"`
}

// LineageGraph holds deduplicated nodes and edges. Node identity is
// case-insensitive; the first-seen spelling of an identifier is the one
// that is displayed and serialized.
type LineageGraph struct {
	Metadata Metadata

	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
	out       map[string][]string
	in        map[string][]string
}

// NewGraph creates an empty graph stamped with the default dialect and
// node identifier format.
func NewGraph(dialect, nodeFormat string) *LineageGraph {
	if nodeFormat == "" {
		nodeFormat = NodeFormatFlat
	}
	return &LineageGraph{
		Metadata: Metadata{
			CreatedAt:  time.Now().UTC().Format(time.RFC3339),
			Dialect:    dialect,
			NodeFormat: nodeFormat,
		},
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
		out:   make(map[string][]string),
		in:    make(map[string][]string),
	}
}

func nodeKey(id string) string {
	return strings.ToLower(id)
}

func edgeKey(source, target string) string {
	return nodeKey(source) + "\x00" + nodeKey(target)
}

// splitIdentifier parses a dotted identifier into schema, table, and
// column parts. Literal markers have no parts.
func splitIdentifier(id string) (schema, table, column string) {
	if analyzer.IsLiteralMarker(id) {
		return "", "", ""
	}
	parts := strings.Split(id, ".")
	switch len(parts) {
	case 1:
		return "", "", parts[0]
	case 2:
		return "", parts[0], parts[1]
	default:
		return strings.Join(parts[:len(parts)-2], "."), parts[len(parts)-2], parts[len(parts)-1]
	}
}

// AddNode records a column identifier. The first occurrence wins for
// the display spelling and the file/statement provenance.
func (g *LineageGraph) AddNode(id, file string, statement int) *Node {
	key := nodeKey(id)
	if n, ok := g.nodes[key]; ok {
		return n
	}
	sch, tbl, col := splitIdentifier(id)
	n := &Node{ID: id, Schema: sch, Table: tbl, Column: col, File: file, Statement: statement}
	g.nodes[key] = n
	g.nodeOrder = append(g.nodeOrder, key)
	g.Metadata.NodeCount = len(g.nodes)
	return n
}

// AddEdge records a source -> target dependency, creating the endpoint
// nodes as needed. Duplicate (source, target) pairs are no-ops.
func (g *LineageGraph) AddEdge(source, target, file string, statement int) {
	g.AddNode(source, file, statement)
	g.AddNode(target, file, statement)

	key := edgeKey(source, target)
	if _, ok := g.edges[key]; ok {
		return
	}
	g.edges[key] = &Edge{Source: source, Target: target, File: file, Statement: statement}
	g.edgeOrder = append(g.edgeOrder, key)

	sk, tk := nodeKey(source), nodeKey(target)
	g.out[sk] = append(g.out[sk], tk)
	g.in[tk] = append(g.in[tk], sk)
	g.Metadata.EdgeCount = len(g.edges)
}

// AddSourceFile records a contributing file in the metadata, keeping
// the list deduplicated and sorted.
func (g *LineageGraph) AddSourceFile(path string) {
	for _, f := range g.Metadata.SourceFiles {
		if f == path {
			return
		}
	}
	g.Metadata.SourceFiles = append(g.Metadata.SourceFiles, path)
	sort.Strings(g.Metadata.SourceFiles)
}

// Lookup finds a node by identifier, case-insensitively.
func (g *LineageGraph) Lookup(id string) (*Node, bool) {
	n, ok := g.nodes[nodeKey(id)]
	return n, ok
}

// NodeCount returns the number of nodes.
func (g *LineageGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *LineageGraph) EdgeCount() int { return len(g.edges) }

// Nodes returns all nodes ordered case-insensitively by identifier.
func (g *LineageGraph) Nodes() []*Node {
	keys := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	nodes := make([]*Node, 0, len(keys))
	for _, k := range keys {
		nodes = append(nodes, g.nodes[k])
	}
	return nodes
}

// Edges returns all edges ordered by (source, target),
// case-insensitively.
func (g *LineageGraph) Edges() []*Edge {
	keys := make([]string, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	edges := make([]*Edge, 0, len(keys))
	for _, k := range keys {
		edges = append(edges, g.edges[k])
	}
	return edges
}

// ListColumns returns every node identifier ordered case-insensitively.
func (g *LineageGraph) ListColumns() []string {
	ids := make([]string, 0, len(g.nodes))
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	return ids
}

// Tables returns the distinct table identifiers present in the graph,
// ordered case-insensitively. Literal-marker nodes have no table and
// are omitted.
func (g *LineageGraph) Tables() []string {
	seen := make(map[string]string)
	for _, n := range g.nodes {
		name := n.TableName()
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; !ok {
			seen[key] = name
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tables := make([]string, 0, len(keys))
	for _, k := range keys {
		tables = append(tables, seen[k])
	}
	return tables
}

// TableName returns the node's qualified table identifier, or "" for
// nodes with no table part.
func (n *Node) TableName() string {
	if n.Table == "" {
		return ""
	}
	if n.Schema != "" {
		return n.Schema + "." + n.Table
	}
	return n.Table
}

// nodesInOrder iterates nodes in first-seen order, for merging.
func (g *LineageGraph) nodesInOrder() []*Node {
	nodes := make([]*Node, 0, len(g.nodeOrder))
	for _, k := range g.nodeOrder {
		nodes = append(nodes, g.nodes[k])
	}
	return nodes
}

func (g *LineageGraph) edgesInOrder() []*Edge {
	edges := make([]*Edge, 0, len(g.edgeOrder))
	for _, k := range g.edgeOrder {
		edges = append(edges, g.edges[k])
	}
	return edges
}

type graphFile struct {
	Metadata Metadata `json:"metadata"`
	Nodes    []*Node  `json:"nodes"`
	Edges    []*Edge  `json:"edges"`
}

// Encode writes the graph as indented JSON. Output is deterministic
// for a given graph: nodes and edges are emitted in sorted order.
func (g *LineageGraph) Encode(w io.Writer) error {
	out := graphFile{Metadata: g.Metadata, Nodes: g.Nodes(), Edges: g.Edges()}
	if g.Metadata.NodeFormat == NodeFormatFlat {
		flat := make([]*Node, len(out.Nodes))
		for i, n := range out.Nodes {
			flat[i] = &Node{ID: n.ID, File: n.File, Statement: n.Statement}
		}
		out.Nodes = flat
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Decode reads a graph previously written by Encode. Identifier parts
// absent from the file are re-derived from the identifiers.
func Decode(r io.Reader) (*LineageGraph, error) {
	var in graphFile
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, err
	}
	g := NewGraph(in.Metadata.Dialect, in.Metadata.NodeFormat)
	g.Metadata = in.Metadata
	for _, n := range in.Nodes {
		added := g.AddNode(n.ID, n.File, n.Statement)
		if n.Column != "" {
			added.Schema, added.Table, added.Column = n.Schema, n.Table, n.Column
		}
	}
	for _, e := range in.Edges {
		g.AddEdge(e.Source, e.Target, e.File, e.Statement)
	}
	g.Metadata.NodeCount = len(g.nodes)
	g.Metadata.EdgeCount = len(g.edges)
	return g, nil
}

// Save writes the graph to a file.
func (g *LineageGraph) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := g.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a graph from a file written by Save.
func Load(path string) (*LineageGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
