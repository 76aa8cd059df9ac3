package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sqlglider/sqlglider/internal/schema"
	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schema information gathered from SQL files",
	}
	cmd.AddCommand(newSchemaExtractCommand())
	return cmd
}

func newSchemaExtractCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extract FILES...",
		Short: "Extract table schemas from DDL statements",
		Long: `Parse the given SQL files and report every table whose column list
could be determined from CREATE TABLE and CREATE VIEW statements.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaExtract(cmd, args)
		},
	}
}

func runSchemaExtract(cmd *cobra.Command, files []string) error {
	cfg, err := getConfig(cmd)
	if err != nil {
		return err
	}
	logger := getLogger(cmd)

	dialect, err := sqlparse.GetDialect(cfg.Dialect)
	if err != nil {
		return err
	}

	sctx := schema.NewContext(schema.Options{
		Dialect:      dialect,
		StrictStar:   cfg.StrictStar,
		StrictSchema: cfg.StrictSchema,
	})
	for file, ferr := range sctx.ExtractFromFiles(files, dialect) {
		logger.Warn("schema extraction failed", "file", file, "error", ferr)
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s: %v\n", file, ferr)
	}

	if cfg.Output == outputJSON {
		tables := make(map[string][]string)
		for _, name := range sctx.Tables() {
			cols, _ := sctx.Lookup(name)
			tables[name] = cols
		}
		return writeJSON(cmd.OutOrStdout(), tables)
	}

	out := cmd.OutOrStdout()
	names := sctx.Tables()
	if len(names) == 0 {
		fmt.Fprintln(out, "No table schemas found.")
		return nil
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Table", "Columns"})
	for _, name := range names {
		cols, _ := sctx.Lookup(name)
		t.AppendRow(table.Row{name, strings.Join(cols, ", ")})
	}
	t.Render()
	return nil
}
