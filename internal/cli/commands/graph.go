package commands

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sqlglider/sqlglider/internal/catalog"
	"github.com/sqlglider/sqlglider/internal/graph"
	"github.com/sqlglider/sqlglider/internal/state"
)

// DefaultGraphFile is where graph build writes unless --out is given.
const DefaultGraphFile = "lineage_graph.json"

// NewGraphCommand creates the graph command group.
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build, merge, and query cross-file lineage graphs",
	}
	cmd.AddCommand(newGraphBuildCommand())
	cmd.AddCommand(newGraphQueryCommand())
	cmd.AddCommand(newGraphMergeCommand())
	cmd.AddCommand(newGraphColumnsCommand())
	cmd.AddCommand(newGraphHistoryCommand())
	return cmd
}

// GraphBuildOptions holds flags for graph build.
type GraphBuildOptions struct {
	Manifest  string
	Out       string
	CSV       string
	DOT       string
	Parallel  int
	NoHistory bool
}

func newGraphBuildCommand() *cobra.Command {
	opts := &GraphBuildOptions{}

	cmd := &cobra.Command{
		Use:   "build [PATHS...]",
		Short: "Build a lineage graph from SQL files and directories",
		Long: `Build a cross-file lineage graph. Each path is a SQL file or a
directory walked for .sql files; --manifest adds files from a CSV
manifest with optional per-file dialects. Schemas are gathered from
every file before analysis, so file order never matters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphBuild(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "CSV manifest of SQL files (file_path[,dialect])")
	cmd.Flags().StringVar(&opts.Out, "out", DefaultGraphFile, "Output path for the graph JSON")
	cmd.Flags().StringVar(&opts.CSV, "csv", "", "Also write edges as CSV to this path")
	cmd.Flags().StringVar(&opts.DOT, "dot", "", "Also write the graph as DOT to this path")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "Number of build workers")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Skip recording this build in the history database")

	return cmd
}

func runGraphBuild(cmd *cobra.Command, args []string, opts *GraphBuildOptions) error {
	cfg, err := getConfig(cmd)
	if err != nil {
		return err
	}
	logger := getLogger(cmd)

	if len(args) == 0 && opts.Manifest == "" {
		return fmt.Errorf("no SQL files given (pass files, directories, or --manifest)")
	}

	buildOpts := graph.BuildOptions{
		Dialect:      cfg.Dialect,
		NodeFormat:   cfg.NodeFormat,
		StrictStar:   cfg.StrictStar,
		StrictSchema: cfg.StrictSchema,
		Logger:       logger,
	}

	if cfg.Catalog != nil && cfg.Catalog.Provider != "" {
		cat, err := catalog.Open(cfg.Catalog.Provider, catalog.Config{
			DSN:           cfg.Catalog.DSN,
			DefaultSchema: cfg.Catalog.Schema,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		defer cat.Close()
		buildOpts.Catalog = cat
	}

	b := graph.NewBuilder(buildOpts)
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := b.AddDirectory(arg); err != nil {
				return err
			}
		} else {
			b.AddFile(arg)
		}
	}
	if opts.Manifest != "" {
		if err := b.AddManifest(opts.Manifest); err != nil {
			return err
		}
	}
	if len(b.Files()) == 0 {
		return fmt.Errorf("no SQL files found")
	}

	started := time.Now().UTC()
	var result *graph.BuildResult
	if opts.Parallel > 1 {
		result, err = graph.BuildParallel(cmd.Context(), b.Files(), buildOpts, opts.Parallel)
	} else {
		result, err = b.Build(cmd.Context())
	}
	if err != nil {
		return err
	}
	finished := time.Now().UTC()

	if err := result.Graph.Save(opts.Out); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	if opts.CSV != "" {
		if err := writeEdgeCSV(opts.CSV, result.Graph); err != nil {
			return err
		}
	}
	if opts.DOT != "" {
		if err := writeDOT(opts.DOT, result.Graph); err != nil {
			return err
		}
	}

	if !opts.NoHistory {
		recordBuildHistory(cfg.StateDBPath(), logger, started, finished, cfg.Dialect, result, opts.Out)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s: %d nodes, %d edges from %d files (%d statements)\n",
		opts.Out, result.Graph.NodeCount(), result.Graph.EdgeCount(), result.Files, result.Statements)
	for _, s := range result.Skipped {
		logger.Debug("statement skipped", "file", s.File, "index", s.Index, "kind", s.Kind)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s statement %d: %s\n", f.File, f.Index, f.Message)
	}
	for tbl, msg := range result.CatalogErrors {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: catalog lookup for %s: %s\n", tbl, msg)
	}
	return nil
}

// recordBuildHistory stores a build summary. History is best effort; a
// failure is logged and never fails the build.
func recordBuildHistory(path string, logger *slog.Logger, started, finished time.Time, dialect string, result *graph.BuildResult, graphPath string) {
	store := state.NewStore(logger)
	if err := store.Open(path); err != nil {
		logger.Warn("failed to open history database", "path", path, "error", err)
		return
	}
	defer store.Close()

	rec := &state.BuildRecord{
		StartedAt:  started,
		FinishedAt: finished,
		Dialect:    dialect,
		Files:      result.Files,
		Statements: result.Statements,
		Nodes:      result.Graph.NodeCount(),
		Edges:      result.Graph.EdgeCount(),
		Skipped:    len(result.Skipped),
		Failures:   len(result.Failures),
		GraphPath:  graphPath,
	}
	if _, err := store.RecordBuild(rec); err != nil {
		logger.Warn("failed to record build history", "error", err)
	}
}

func writeEdgeCSV(path string, g *graph.LineageGraph) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"source", "target", "file", "statement"}); err != nil {
		return err
	}
	for _, e := range g.Edges() {
		if err := w.Write([]string{e.Source, e.Target, e.File, strconv.Itoa(e.Statement)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeDOT(path string, g *graph.LineageGraph) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var sb strings.Builder
	sb.WriteString("digraph lineage {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box];\n")
	for _, n := range g.Nodes() {
		fmt.Fprintf(&sb, "  %q;\n", n.ID)
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(&sb, "  %q -> %q;\n", e.Source, e.Target)
	}
	sb.WriteString("}\n")

	_, err = f.WriteString(sb.String())
	return err
}

// GraphQueryOptions holds flags for graph query.
type GraphQueryOptions struct {
	Graph      string
	Direction  string
	TableLevel bool
}

func newGraphQueryCommand() *cobra.Command {
	opts := &GraphQueryOptions{}

	cmd := &cobra.Command{
		Use:   "query IDENTIFIER",
		Short: "Query a lineage graph for upstream or downstream dependencies",
		Long: `Query a built lineage graph. The identifier is a column by default,
or a table with --table. Every related node is reported with its hop
distance, whether it is a graph root or leaf, and the paths connecting
it to the queried identifier.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphQuery(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Graph, "graph", "g", DefaultGraphFile, "Path to the graph JSON")
	cmd.Flags().StringVarP(&opts.Direction, "direction", "d", "upstream", "Traversal direction (upstream|downstream)")
	cmd.Flags().BoolVar(&opts.TableLevel, "table", false, "Query a table instead of a column")

	return cmd
}

func runGraphQuery(cmd *cobra.Command, identifier string, opts *GraphQueryOptions) error {
	cfg, err := getConfig(cmd)
	if err != nil {
		return err
	}

	var dir graph.Direction
	switch opts.Direction {
	case "upstream":
		dir = graph.DirectionUpstream
	case "downstream":
		dir = graph.DirectionDownstream
	default:
		return fmt.Errorf("unknown direction %q (want upstream or downstream)", opts.Direction)
	}

	g, err := graph.Load(opts.Graph)
	if err != nil {
		return fmt.Errorf("failed to load graph %s: %w", opts.Graph, err)
	}
	q := graph.NewQuerier(g)

	if opts.TableLevel {
		var result *graph.TableQueryResult
		if dir == graph.DirectionUpstream {
			result, err = q.UpstreamTable(identifier)
		} else {
			result, err = q.DownstreamTable(identifier)
		}
		if err != nil {
			return err
		}
		if cfg.Output == outputJSON {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		renderTableQuery(cmd, result)
		return nil
	}

	var result *graph.QueryResult
	if dir == graph.DirectionUpstream {
		result, err = q.Upstream(identifier)
	} else {
		result, err = q.Downstream(identifier)
	}
	if err != nil {
		return err
	}
	if cfg.Output == outputJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	renderColumnQuery(cmd, result)
	return nil
}

func renderColumnQuery(cmd *cobra.Command, result *graph.QueryResult) {
	out := cmd.OutOrStdout()
	if len(result.Related) == 0 {
		fmt.Fprintf(out, "No %s dependencies for %s.\n", result.Direction, result.Column)
		return
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Column", "Hops", "Root", "Leaf", "Paths"})
	for _, rel := range result.Related {
		t.AppendRow(table.Row{
			rel.ID, rel.Hops, yesNo(rel.IsRoot), yesNo(rel.IsLeaf), formatPaths(rel.Paths),
		})
	}
	t.Render()
}

func renderTableQuery(cmd *cobra.Command, result *graph.TableQueryResult) {
	out := cmd.OutOrStdout()
	if len(result.Related) == 0 {
		fmt.Fprintf(out, "No %s dependencies for %s.\n", result.Direction, result.Table)
		return
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Table", "Hops", "Paths"})
	for _, rel := range result.Related {
		t.AppendRow(table.Row{rel.Name, rel.Hops, formatPaths(rel.Paths)})
	}
	t.Render()
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func formatPaths(paths []graph.Path) string {
	lines := make([]string, 0, len(paths))
	for _, p := range paths {
		lines = append(lines, strings.Join(p, " -> "))
	}
	return strings.Join(lines, "\n")
}

func newGraphMergeCommand() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "merge GRAPHS...",
		Short: "Merge lineage graphs into one",
		Long: `Merge two or more graph files. Nodes and edges are unioned; a node
or edge appearing in several graphs keeps the provenance of its first
occurrence.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			graphs := make([]*graph.LineageGraph, 0, len(args))
			for _, path := range args {
				g, err := graph.Load(path)
				if err != nil {
					return fmt.Errorf("failed to load graph %s: %w", path, err)
				}
				graphs = append(graphs, g)
			}

			merged := graph.Merge(graphs...)
			if err := merged.Save(out); err != nil {
				return fmt.Errorf("failed to write graph: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d nodes, %d edges from %d graphs\n",
				out, merged.NodeCount(), merged.EdgeCount(), len(args))
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", DefaultGraphFile, "Output path for the merged graph")
	return cmd
}

func newGraphColumnsCommand() *cobra.Command {
	var graphPath string

	cmd := &cobra.Command{
		Use:   "columns",
		Short: "List every column in a lineage graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}

			g, err := graph.Load(graphPath)
			if err != nil {
				return fmt.Errorf("failed to load graph %s: %w", graphPath, err)
			}

			columns := g.ListColumns()
			if cfg.Output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), columns)
			}
			for _, c := range columns {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&graphPath, "graph", "g", DefaultGraphFile, "Path to the graph JSON")
	return cmd
}

func newGraphHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent graph builds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			logger := getLogger(cmd)

			store := state.NewStore(logger)
			if err := store.Open(cfg.StateDBPath()); err != nil {
				return fmt.Errorf("failed to open history database: %w", err)
			}
			defer store.Close()

			builds, err := store.RecentBuilds(limit)
			if err != nil {
				return err
			}

			if cfg.Output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), builds)
			}

			out := cmd.OutOrStdout()
			if len(builds) == 0 {
				fmt.Fprintln(out, "No builds recorded.")
				return nil
			}

			t := newTable(out)
			t.AppendHeader(table.Row{"ID", "Started", "Duration", "Dialect", "Files", "Statements", "Nodes", "Edges", "Failures", "Graph"})
			for _, b := range builds {
				t.AppendRow(table.Row{
					b.ID,
					b.StartedAt.Format(time.RFC3339),
					b.FinishedAt.Sub(b.StartedAt).Round(time.Millisecond).String(),
					b.Dialect,
					b.Files, b.Statements, b.Nodes, b.Edges, b.Failures,
					b.GraphPath,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of builds to show (0 for all)")
	return cmd
}
