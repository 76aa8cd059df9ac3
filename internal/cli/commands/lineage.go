package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sqlglider/sqlglider/internal/analyzer"
	"github.com/sqlglider/sqlglider/internal/schema"
	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// LineageOptions holds flags for the lineage command.
type LineageOptions struct {
	Column       string
	SourceColumn string
	Level        string
	Table        string
	SchemaFiles  []string
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand() *cobra.Command {
	opts := &LineageOptions{}

	cmd := &cobra.Command{
		Use:   "lineage FILE",
		Short: "Extract column lineage from a SQL file",
		Long: `Extract lineage from every statement in a SQL file. By default each
output column is reported with the source columns it depends on. Use
--column to trace one output, --source-column to find everything a
source feeds, or --level table for table-level lineage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineage(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Column, "column", "c", "", "Trace a single output column")
	cmd.Flags().StringVar(&opts.SourceColumn, "source-column", "", "Find outputs fed by this source column")
	cmd.Flags().StringVar(&opts.Level, "level", "column", "Lineage granularity (column|table)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "Only report statements referencing this table")
	cmd.Flags().StringSliceVar(&opts.SchemaFiles, "schema-file", nil, "SQL files whose DDL seeds the schema context")
	cmd.MarkFlagsMutuallyExclusive("column", "source-column")

	return cmd
}

func runLineage(cmd *cobra.Command, path string, opts *LineageOptions) error {
	cfg, err := getConfig(cmd)
	if err != nil {
		return err
	}
	logger := getLogger(cmd)

	var granularity analyzer.Granularity
	switch opts.Level {
	case "column":
		granularity = analyzer.GranularityColumn
	case "table":
		granularity = analyzer.GranularityTable
	default:
		return fmt.Errorf("unknown level %q (want column or table)", opts.Level)
	}

	dialect, err := sqlparse.GetDialect(cfg.Dialect)
	if err != nil {
		return err
	}

	sctx := schema.NewContext(schema.Options{
		Dialect:      dialect,
		StrictStar:   cfg.StrictStar,
		StrictSchema: cfg.StrictSchema,
	})
	if len(opts.SchemaFiles) > 0 {
		for file, ferr := range sctx.ExtractFromFiles(opts.SchemaFiles, dialect) {
			logger.Warn("schema file failed", "file", file, "error", ferr)
		}
	}

	a := analyzer.NewScriptAnalyzer(analyzer.ScriptOptions{
		Dialect:    dialect,
		Schema:     sctx,
		StrictStar: cfg.StrictStar,
		Logger:     logger,
	})

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	sql := string(data)

	var result *analyzer.ScriptResult
	switch {
	case opts.SourceColumn != "":
		result, err = a.ReverseScript(opts.SourceColumn, sql)
	case opts.Column != "":
		result, err = a.SingleColumnScript(opts.Column, sql)
	default:
		result, err = a.AnalyzeScript(sql, granularity)
	}
	if err != nil {
		return err
	}

	if opts.Table != "" {
		filterResultByTable(result, sql, dialect, a.Extractor(), opts.Table)
	}

	if cfg.Output == outputJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	renderScriptResult(cmd, result, granularity)
	return nil
}

// filterResultByTable drops results for statements that do not
// reference the given table. Analysis still ran over the whole script
// so schema resolution is unaffected.
func filterResultByTable(result *analyzer.ScriptResult, sql string, dialect *sqlparse.Dialect, ex *analyzer.Extractor, tbl string) {
	keep := make(map[int]bool)
	for _, res := range sqlparse.ParseScript(sql, dialect) {
		if res.Err == nil && ex.ReferencesTable(res.Stmt, tbl) {
			keep[res.Index] = true
		}
	}

	kept := result.Results[:0]
	for _, r := range result.Results {
		if keep[r.Index] {
			kept = append(kept, r)
		}
	}
	result.Results = kept
}

func renderScriptResult(cmd *cobra.Command, result *analyzer.ScriptResult, granularity analyzer.Granularity) {
	out := cmd.OutOrStdout()

	if len(result.Results) > 0 {
		t := newTable(out)
		if granularity == analyzer.GranularityTable {
			t.AppendHeader(table.Row{"#", "Target", "Source"})
		} else {
			t.AppendHeader(table.Row{"#", "Output", "Source"})
		}
		for _, res := range result.Results {
			for _, item := range res.Items {
				t.AppendRow(table.Row{res.Index, item.Output, item.Source})
			}
		}
		t.Render()
	} else {
		fmt.Fprintln(out, "No lineage found.")
	}

	for _, s := range result.Skipped {
		fmt.Fprintf(out, "Skipped statement %d (%s): %s\n", s.Index, s.Kind, s.Reason)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "Statement %d failed: %s\n", f.Index, f.Message)
	}
}
