package graph

import (
	"sort"
	"strings"
)

// Direction of a lineage query.
type Direction string

// Query directions.
const (
	DirectionUpstream   Direction = "upstream"
	DirectionDownstream Direction = "downstream"
)

// NotFoundError reports an identifier absent from the graph, with the
// identifiers that do exist.
type NotFoundError struct {
	Identifier string
	Candidates []string
}

func (e *NotFoundError) Error() string {
	msg := "not found in graph: " + e.Identifier
	if len(e.Candidates) > 0 {
		msg += " (known: " + strings.Join(e.Candidates, ", ") + ")"
	}
	return msg
}

// Path is an ordered identifier sequence from a related column to the
// queried column, both inclusive.
type Path []string

// Hops returns the number of edges the path traverses.
func (p Path) Hops() int { return len(p) - 1 }

// RelatedNode is one column reachable from the queried column. Hops is
// the shortest distance; IsRoot and IsLeaf are global graph properties
// independent of query direction.
type RelatedNode struct {
	ID     string `json:"id"`
	Hops   int    `json:"hops"`
	IsRoot bool   `json:"is_root"`
	IsLeaf bool   `json:"is_leaf"`
	Paths  []Path `json:"paths"`
}

// QueryResult is the outcome of an upstream or downstream column query.
type QueryResult struct {
	Column    string        `json:"column"`
	Direction Direction     `json:"direction"`
	Related   []RelatedNode `json:"related"`
}

// RelatedTable aggregates a table's columns reached by a table-level
// query: minimum hop distance and the union of all column paths.
type RelatedTable struct {
	Name  string `json:"name"`
	Hops  int    `json:"hops"`
	Paths []Path `json:"paths"`
}

// TableQueryResult is the outcome of a table-level query.
type TableQueryResult struct {
	Table     string         `json:"table"`
	Direction Direction      `json:"direction"`
	Related   []RelatedTable `json:"related"`
}

// Querier answers upstream and downstream questions about one graph.
// Neighbor lists are pre-sorted so traversal order, and with it every
// returned listing, is deterministic.
type Querier struct {
	g   *LineageGraph
	out map[string][]string
	in  map[string][]string
}

// NewQuerier prepares a querier for the given graph.
func NewQuerier(g *LineageGraph) *Querier {
	q := &Querier{
		g:   g,
		out: make(map[string][]string, len(g.out)),
		in:  make(map[string][]string, len(g.in)),
	}
	for k, neighbors := range g.out {
		q.out[k] = sortedCopy(neighbors)
	}
	for k, neighbors := range g.in {
		q.in[k] = sortedCopy(neighbors)
	}
	return q
}

func sortedCopy(keys []string) []string {
	c := make([]string, len(keys))
	copy(c, keys)
	sort.Strings(c)
	return c
}

// Upstream returns every column the given column depends on,
// transitively, with hop distances and all simple paths from each
// dependency to the queried column.
func (q *Querier) Upstream(column string) (*QueryResult, error) {
	return q.query(column, DirectionUpstream)
}

// Downstream returns every column derived from the given column,
// transitively. Paths run from the dependent column back to the
// queried one.
func (q *Querier) Downstream(column string) (*QueryResult, error) {
	return q.query(column, DirectionDownstream)
}

func (q *Querier) query(column string, dir Direction) (*QueryResult, error) {
	node, ok := q.g.Lookup(column)
	if !ok {
		return nil, &NotFoundError{Identifier: column, Candidates: q.g.ListColumns()}
	}
	start := nodeKey(node.ID)
	adjacency := q.in
	if dir == DirectionDownstream {
		adjacency = q.out
	}

	hops := q.distances(start, adjacency)
	paths := q.allPaths(start, adjacency)

	keys := make([]string, 0, len(hops))
	for k := range hops {
		if k != start {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	related := make([]RelatedNode, 0, len(keys))
	for _, k := range keys {
		related = append(related, RelatedNode{
			ID:     q.g.nodes[k].ID,
			Hops:   hops[k],
			IsRoot: len(q.in[k]) == 0,
			IsLeaf: len(q.out[k]) == 0,
			Paths:  paths[k],
		})
	}
	return &QueryResult{Column: node.ID, Direction: dir, Related: related}, nil
}

// distances runs a breadth-first search and returns shortest hop
// counts from start, start included at zero.
func (q *Querier) distances(start string, adjacency map[string][]string) map[string]int {
	hops := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[current] {
			if _, seen := hops[next]; !seen {
				hops[next] = hops[current] + 1
				queue = append(queue, next)
			}
		}
	}
	return hops
}

// allPaths enumerates every simple path from each reachable node back
// to start. The walk runs outward from start, so each recorded trail
// reversed is a path ending at the queried column.
func (q *Querier) allPaths(start string, adjacency map[string][]string) map[string][]Path {
	paths := make(map[string][]Path)
	onTrail := map[string]bool{start: true}
	trail := []string{q.g.nodes[start].ID}

	var walk func(current string)
	walk = func(current string) {
		for _, next := range adjacency[current] {
			if onTrail[next] {
				continue
			}
			onTrail[next] = true
			trail = append(trail, q.g.nodes[next].ID)

			p := make(Path, len(trail))
			for i, id := range trail {
				p[len(trail)-1-i] = id
			}
			paths[next] = append(paths[next], p)

			walk(next)
			trail = trail[:len(trail)-1]
			onTrail[next] = false
		}
	}
	walk(start)

	for _, ps := range paths {
		sortPaths(ps)
	}
	return paths
}

func sortPaths(ps []Path) {
	sort.Slice(ps, func(i, j int) bool {
		if len(ps[i]) != len(ps[j]) {
			return len(ps[i]) < len(ps[j])
		}
		return strings.ToLower(strings.Join(ps[i], " ")) < strings.ToLower(strings.Join(ps[j], " "))
	})
}

// UpstreamTable aggregates upstream results for every column of the
// given table.
func (q *Querier) UpstreamTable(table string) (*TableQueryResult, error) {
	return q.tableQuery(table, DirectionUpstream)
}

// DownstreamTable aggregates downstream results for every column of
// the given table.
func (q *Querier) DownstreamTable(table string) (*TableQueryResult, error) {
	return q.tableQuery(table, DirectionDownstream)
}

// tableQuery runs a column query per column of the table and groups
// the related columns by their table: minimum hops, union of paths.
// Related columns belonging to the queried table itself are skipped.
func (q *Querier) tableQuery(table string, dir Direction) (*TableQueryResult, error) {
	want := strings.ToLower(table)
	var columns []string
	for key, n := range q.g.nodes {
		if tableMatches(n, want) {
			columns = append(columns, key)
		}
	}
	if len(columns) == 0 {
		return nil, &NotFoundError{Identifier: table, Candidates: q.g.Tables()}
	}
	sort.Strings(columns)
	display := q.g.nodes[columns[0]].TableName()

	related := make(map[string]*RelatedTable)
	for _, key := range columns {
		res, err := q.query(q.g.nodes[key].ID, dir)
		if err != nil {
			return nil, err
		}
		for _, rn := range res.Related {
			node, _ := q.g.Lookup(rn.ID)
			name := node.TableName()
			if name == "" || tableMatches(node, want) {
				continue
			}
			nameKey := strings.ToLower(name)
			agg, ok := related[nameKey]
			if !ok {
				agg = &RelatedTable{Name: name, Hops: rn.Hops}
				related[nameKey] = agg
			}
			if rn.Hops < agg.Hops {
				agg.Hops = rn.Hops
			}
			agg.Paths = mergePaths(agg.Paths, rn.Paths)
		}
	}

	nameKeys := make([]string, 0, len(related))
	for k := range related {
		nameKeys = append(nameKeys, k)
	}
	sort.Strings(nameKeys)

	out := &TableQueryResult{Table: display, Direction: dir}
	for _, k := range nameKeys {
		sortPaths(related[k].Paths)
		out.Related = append(out.Related, *related[k])
	}
	return out, nil
}

func tableMatches(n *Node, want string) bool {
	if n.Table == "" {
		return false
	}
	return strings.ToLower(n.TableName()) == want || strings.ToLower(n.Table) == want
}

// mergePaths appends paths not already present, comparing by rendered
// identifier sequence.
func mergePaths(existing []Path, add []Path) []Path {
	seen := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		seen[strings.ToLower(strings.Join(p, " "))] = struct{}{}
	}
	for _, p := range add {
		k := strings.ToLower(strings.Join(p, " "))
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		existing = append(existing, p)
	}
	return existing
}
