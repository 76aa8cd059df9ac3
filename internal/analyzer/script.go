package analyzer

import (
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/sqlglider/sqlglider/internal/schema"
	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// ScriptOptions configures a ScriptAnalyzer.
type ScriptOptions struct {
	Dialect *sqlparse.Dialect
	// Schema is the context statements resolve against and record into.
	// When nil, a fresh script-scoped context is created.
	Schema     *schema.Context
	StrictStar bool
	Logger     *slog.Logger
}

// ScriptAnalyzer runs lineage extraction across multi-statement SQL
// scripts. Statements are analyzed in order; each statement's write
// target is recorded into the schema context only after the statement
// itself has been analyzed, so a statement never resolves against its
// own output.
type ScriptAnalyzer struct {
	extractor *Extractor
	dialect   *sqlparse.Dialect
	logger    *slog.Logger
}

// StatementFailure records a statement that could not be analyzed.
type StatementFailure struct {
	Index   int    `json:"index"`
	Preview string `json:"preview"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

// ScriptResult aggregates per-statement outcomes for one script.
type ScriptResult struct {
	Results  []QueryLineageResult `json:"results"`
	Skipped  []SkippedQuery       `json:"skipped,omitempty"`
	Failures []StatementFailure   `json:"failures,omitempty"`
}

// NewScriptAnalyzer creates a script analyzer.
func NewScriptAnalyzer(opts ScriptOptions) *ScriptAnalyzer {
	d := opts.Dialect
	if d == nil {
		d, _ = sqlparse.GetDialect(sqlparse.DefaultDialect)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ScriptAnalyzer{
		extractor: NewExtractor(Options{
			Dialect:    d,
			Schema:     opts.Schema,
			StrictStar: opts.StrictStar,
		}),
		dialect: d,
		logger:  logger,
	}
}

// Extractor returns the underlying single-statement extractor.
func (a *ScriptAnalyzer) Extractor() *Extractor {
	return a.extractor
}

// AnalyzeScript extracts lineage from every statement of a script. A
// parse failure or per-statement analysis failure is recorded and the
// remaining statements continue; a strict wildcard failure aborts the
// whole script.
func (a *ScriptAnalyzer) AnalyzeScript(sql string, granularity Granularity) (*ScriptResult, error) {
	out := &ScriptResult{}

	for _, res := range sqlparse.ParseScript(sql, a.dialect) {
		if res.Err != nil {
			a.logger.Warn("statement failed to parse", "index", res.Index, "error", res.Err)
			out.Failures = append(out.Failures, StatementFailure{
				Index:   res.Index,
				Preview: Preview(res.Raw),
				Err:     res.Err,
				Message: res.Err.Error(),
			})
			continue
		}

		if err := a.analyzeStatement(out, res, granularity); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *ScriptAnalyzer) analyzeStatement(out *ScriptResult, res sqlparse.StatementResult, granularity Granularity) error {
	stmt := res.Stmt

	switch granularity {
	case GranularityTable:
		items := a.extractor.ForwardTable(stmt)
		out.Results = append(out.Results, QueryLineageResult{
			Index:       res.Index,
			Preview:     Preview(res.Raw),
			Granularity: GranularityTable,
			Items:       items,
		})

	default:
		if !HasLineage(stmt) {
			a.logger.Debug("statement skipped", "index", res.Index, "kind", stmt.Kind())
			out.Skipped = append(out.Skipped, SkippedQuery{
				Index:  res.Index,
				Kind:   stmt.Kind(),
				Reason: "statement kind has no lineage-relevant body",
			})
			break
		}

		items, err := a.extractor.ForwardColumn(stmt)
		if err != nil {
			var starErr *StarResolutionError
			if errors.As(err, &starErr) {
				return err
			}
			a.logger.Warn("statement analysis failed", "index", res.Index, "error", err)
			out.Failures = append(out.Failures, StatementFailure{
				Index:   res.Index,
				Preview: Preview(res.Raw),
				Err:     err,
				Message: err.Error(),
			})
			break
		}
		a.logger.Debug("statement analyzed", "index", res.Index, "items", len(items))
		out.Results = append(out.Results, QueryLineageResult{
			Index:       res.Index,
			Preview:     Preview(res.Raw),
			Granularity: GranularityColumn,
			Items:       items,
		})
	}

	// Record the statement's target only after analysis so the schema
	// seen above predates this statement.
	if err := a.extractor.Schema().Record(stmt, a.dialect); err != nil {
		return err
	}
	return nil
}

// ReverseScript finds every statement output affected by the given
// source column. Absence in individual statements is fine; absence in
// all of them is a NotFoundError listing the sources that were seen.
func (a *ScriptAnalyzer) ReverseScript(source, sql string) (*ScriptResult, error) {
	return a.filteredScript(sql, source, func(items []LineageItem, requested string) []LineageItem {
		var kept []LineageItem
		for _, item := range items {
			if a.extractor.matches(item.Source, requested) {
				kept = append(kept, item)
			}
		}
		return kept
	}, func(items []LineageItem) []string {
		var names []string
		for _, item := range items {
			if !IsLiteralMarker(item.Source) {
				names = append(names, item.Source)
			}
		}
		return names
	})
}

// SingleColumnScript finds the lineage of one output column across a
// script. Absence everywhere is a NotFoundError listing the outputs
// that were seen.
func (a *ScriptAnalyzer) SingleColumnScript(output, sql string) (*ScriptResult, error) {
	return a.filteredScript(sql, output, func(items []LineageItem, requested string) []LineageItem {
		var kept []LineageItem
		for _, item := range items {
			if a.extractor.matches(item.Output, requested) {
				kept = append(kept, item)
			}
		}
		return kept
	}, func(items []LineageItem) []string {
		names := make([]string, 0, len(items))
		for _, item := range items {
			names = append(names, item.Output)
		}
		return names
	})
}

func (a *ScriptAnalyzer) filteredScript(
	sql, requested string,
	filter func([]LineageItem, string) []LineageItem,
	candidatesOf func([]LineageItem) []string,
) (*ScriptResult, error) {
	full, err := a.AnalyzeScript(sql, GranularityColumn)
	if err != nil {
		return nil, err
	}

	out := &ScriptResult{Skipped: full.Skipped, Failures: full.Failures}
	found := false
	candidates := make(map[string]string) // normalized -> display

	for _, res := range full.Results {
		for _, name := range candidatesOf(res.Items) {
			candidates[a.dialect.NormalizeName(name)] = name
		}
		kept := filter(res.Items, requested)
		if len(kept) == 0 {
			continue
		}
		found = true
		res.Items = kept
		out.Results = append(out.Results, res)
	}

	if !found {
		names := make([]string, 0, len(candidates))
		for _, name := range candidates {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return strings.ToLower(names[i]) < strings.ToLower(names[j])
		})
		return nil, &NotFoundError{Identifier: requested, Candidates: names}
	}
	return out, nil
}
