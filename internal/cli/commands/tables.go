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

// statementTables is one statement's table usage report.
type statementTables struct {
	Index  int                  `json:"index"`
	Kind   string               `json:"kind"`
	Tables []analyzer.TableInfo `json:"tables"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables FILE",
		Short: "List the tables each statement reads and writes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(cmd, args[0])
		},
	}
	return cmd
}

func runTables(cmd *cobra.Command, path string) error {
	cfg, err := getConfig(cmd)
	if err != nil {
		return err
	}
	logger := getLogger(cmd)

	dialect, err := sqlparse.GetDialect(cfg.Dialect)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ex := analyzer.NewExtractor(analyzer.Options{
		Dialect: dialect,
		Schema: schema.NewContext(schema.Options{
			Dialect:      dialect,
			StrictSchema: cfg.StrictSchema,
		}),
	})

	var reports []statementTables
	for _, res := range sqlparse.ParseScript(string(data), dialect) {
		if res.Err != nil {
			logger.Warn("statement failed to parse", "index", res.Index, "error", res.Err)
			fmt.Fprintf(cmd.ErrOrStderr(), "Statement %d failed: %v\n", res.Index, res.Err)
			continue
		}
		reports = append(reports, statementTables{
			Index:  res.Index,
			Kind:   res.Stmt.Kind(),
			Tables: ex.AnalyzeTables(res.Stmt),
		})
	}

	if cfg.Output == outputJSON {
		return writeJSON(cmd.OutOrStdout(), reports)
	}

	out := cmd.OutOrStdout()
	if len(reports) == 0 {
		fmt.Fprintln(out, "No statements found.")
		return nil
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"#", "Statement", "Table", "Usage", "Type"})
	for _, rep := range reports {
		for _, info := range rep.Tables {
			t.AppendRow(table.Row{rep.Index, rep.Kind, info.Name, info.Usage, info.Type})
		}
	}
	t.Render()
	return nil
}
