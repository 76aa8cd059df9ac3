package graph

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sqlglider/sqlglider/internal/analyzer"
	"github.com/sqlglider/sqlglider/internal/schema"
	"github.com/sqlglider/sqlglider/pkg/sqlparse"
)

// FileSpec names one SQL file to build from, with an optional dialect
// override for that file.
type FileSpec struct {
	Path    string
	Dialect string
}

// BuildOptions configures a Builder.
type BuildOptions struct {
	// Dialect is the default dialect name for files without an
	// override. Empty means the parser default.
	Dialect    string
	NodeFormat string
	StrictStar bool
	// StrictSchema makes ambiguous unqualified column inference a
	// hard error during the schema pass.
	StrictSchema bool
	// Catalog, when set, supplies DDL for tables still unknown after
	// the schema pass.
	Catalog schema.DDLSource
	Logger  *slog.Logger
}

// SkippedStatement records a statement with no lineage-relevant body.
type SkippedStatement struct {
	File   string `json:"file"`
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// FileFailure records a statement or file that could not be processed.
// A whole-file failure (unreadable, for instance) has Index -1.
type FileFailure struct {
	File    string `json:"file"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// BuildResult is a finished build: the graph plus everything that was
// skipped or failed along the way.
type BuildResult struct {
	Graph         *LineageGraph
	Files         int
	Statements    int
	Skipped       []SkippedStatement
	Failures      []FileFailure
	CatalogErrors map[string]string
}

// Builder assembles a lineage graph from SQL files in two passes:
// pass 1 collects schema from every CREATE-bearing statement so later
// files can resolve wildcards against earlier ones regardless of file
// order, pass 2 extracts lineage per statement against the resolved
// schema. Failures local to one statement or file never abort the
// build; strict wildcard failures do.
type Builder struct {
	opts   BuildOptions
	logger *slog.Logger
	files  []FileSpec
}

// NewBuilder creates a builder. A nil logger discards output.
func NewBuilder(opts BuildOptions) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{opts: opts, logger: logger}
}

// AddFile queues one SQL file using the default dialect.
func (b *Builder) AddFile(path string) {
	b.files = append(b.files, FileSpec{Path: path})
}

// AddFiles queues several SQL files using the default dialect.
func (b *Builder) AddFiles(paths ...string) {
	for _, p := range paths {
		b.AddFile(p)
	}
}

// AddSpec queues one file with an explicit dialect.
func (b *Builder) AddSpec(spec FileSpec) {
	b.files = append(b.files, spec)
}

// Files returns the queued file specs in queue order.
func (b *Builder) Files() []FileSpec {
	out := make([]FileSpec, len(b.files))
	copy(out, b.files)
	return out
}

// AddDirectory queues every .sql file under dir, in sorted path order.
func (b *Builder) AddDirectory(dir string) error {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".sql") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(paths)
	b.AddFiles(paths...)
	return nil
}

// AddManifest queues files from a CSV manifest with file_path and
// dialect columns. A header row is recognized and skipped. Relative
// paths resolve against the manifest's directory.
func (b *Builder) AddManifest(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i, rec := range records {
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "file_path") {
			continue
		}
		spec := FileSpec{Path: strings.TrimSpace(rec[0])}
		if len(rec) > 1 {
			spec.Dialect = strings.TrimSpace(rec[1])
		}
		if !filepath.IsAbs(spec.Path) {
			spec.Path = filepath.Join(base, spec.Path)
		}
		b.AddSpec(spec)
	}
	return nil
}

// parsedFile is one queued file after reading and statement splitting.
type parsedFile struct {
	spec    FileSpec
	dialect *sqlparse.Dialect
	results []sqlparse.StatementResult
}

// Build runs both passes and returns the graph with a report of
// skipped and failed statements.
func (b *Builder) Build(ctx context.Context) (*BuildResult, error) {
	defaultName := b.opts.Dialect
	if defaultName == "" {
		defaultName = sqlparse.DefaultDialect
	}
	defaultDialect, err := sqlparse.GetDialect(defaultName)
	if err != nil {
		return nil, err
	}

	res := &BuildResult{
		Graph: NewGraph(defaultName, b.opts.NodeFormat),
		Files: len(b.files),
	}

	sctx := schema.NewContext(schema.Options{
		Dialect:      defaultDialect,
		StrictStar:   b.opts.StrictStar,
		StrictSchema: b.opts.StrictSchema,
	})

	parsed := make([]*parsedFile, 0, len(b.files))
	for _, spec := range b.files {
		pf, err := b.parseFile(spec, defaultDialect, res)
		if err != nil {
			return nil, err
		}
		if pf != nil {
			parsed = append(parsed, pf)
		}
	}

	// Pass 1: gather schema from every statement before analyzing any,
	// so resolution is independent of file order.
	for _, pf := range parsed {
		for _, sr := range pf.results {
			if sr.Err != nil {
				continue
			}
			if err := sctx.Record(sr.Stmt, pf.dialect); err != nil {
				var starErr *analyzer.StarResolutionError
				if errors.As(err, &starErr) {
					return nil, fmt.Errorf("%s statement %d: %w", pf.spec.Path, sr.Index, err)
				}
				b.logger.Warn("schema pass failed", "file", pf.spec.Path, "index", sr.Index, "error", err)
				res.Failures = append(res.Failures, FileFailure{
					File: pf.spec.Path, Index: sr.Index, Message: err.Error(),
				})
			}
		}
	}

	if b.opts.Catalog != nil {
		b.fillFromCatalog(ctx, sctx, parsed, res)
	}

	// Pass 2: extract lineage per statement against the resolved schema.
	for _, pf := range parsed {
		res.Graph.AddSourceFile(pf.spec.Path)
		extractor := analyzer.NewExtractor(analyzer.Options{
			Dialect:    pf.dialect,
			Schema:     sctx,
			StrictStar: b.opts.StrictStar,
		})
		for _, sr := range pf.results {
			if sr.Err != nil {
				continue
			}
			res.Statements++
			if err := b.analyzeStatement(extractor, pf, sr, res); err != nil {
				return nil, err
			}
		}
	}

	b.logger.Info("graph built",
		"files", res.Files,
		"nodes", res.Graph.NodeCount(),
		"edges", res.Graph.EdgeCount(),
		"skipped", len(res.Skipped),
		"failures", len(res.Failures))
	return res, nil
}

func (b *Builder) parseFile(spec FileSpec, defaultDialect *sqlparse.Dialect, res *BuildResult) (*parsedFile, error) {
	d := defaultDialect
	if spec.Dialect != "" {
		var err error
		if d, err = sqlparse.GetDialect(spec.Dialect); err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Path, err)
		}
	}

	content, err := os.ReadFile(spec.Path)
	if err != nil {
		b.logger.Warn("file unreadable", "file", spec.Path, "error", err)
		res.Failures = append(res.Failures, FileFailure{File: spec.Path, Index: -1, Message: err.Error()})
		return nil, nil
	}

	results := sqlparse.ParseScript(string(content), d)
	for _, sr := range results {
		if sr.Err != nil {
			b.logger.Warn("statement unparsable", "file", spec.Path, "index", sr.Index, "error", sr.Err)
			res.Failures = append(res.Failures, FileFailure{
				File: spec.Path, Index: sr.Index, Message: sr.Err.Error(),
			})
		}
	}
	return &parsedFile{spec: spec, dialect: d, results: results}, nil
}

func (b *Builder) fillFromCatalog(ctx context.Context, sctx *schema.Context, parsed []*parsedFile, res *BuildResult) {
	var stmts []sqlparse.Statement
	for _, pf := range parsed {
		for _, sr := range pf.results {
			if sr.Err == nil {
				stmts = append(stmts, sr.Stmt)
			}
		}
	}
	missing := sctx.MissingTables(stmts)
	if len(missing) == 0 {
		return
	}
	b.logger.Debug("catalog fill", "tables", len(missing))
	errs := sctx.FillFromCatalog(ctx, b.opts.Catalog, missing)
	if len(errs) == 0 {
		return
	}
	res.CatalogErrors = make(map[string]string, len(errs))
	for table, err := range errs {
		b.logger.Warn("catalog lookup failed", "table", table, "error", err)
		res.CatalogErrors[table] = err.Error()
	}
}

func (b *Builder) analyzeStatement(extractor *analyzer.Extractor, pf *parsedFile, sr sqlparse.StatementResult, res *BuildResult) error {
	if !analyzer.HasLineage(sr.Stmt) {
		res.Skipped = append(res.Skipped, SkippedStatement{
			File:   pf.spec.Path,
			Index:  sr.Index,
			Kind:   sr.Stmt.Kind(),
			Reason: "statement kind has no lineage-relevant body",
		})
		return nil
	}

	items, err := extractor.ForwardColumn(sr.Stmt)
	if err != nil {
		var starErr *analyzer.StarResolutionError
		if errors.As(err, &starErr) {
			return fmt.Errorf("%s statement %d: %w", pf.spec.Path, sr.Index, err)
		}
		b.logger.Warn("statement analysis failed", "file", pf.spec.Path, "index", sr.Index, "error", err)
		res.Failures = append(res.Failures, FileFailure{
			File: pf.spec.Path, Index: sr.Index, Message: err.Error(),
		})
		return nil
	}

	for _, item := range items {
		if item.Source == "" || item.Output == "" {
			continue
		}
		res.Graph.AddEdge(item.Source, item.Output, pf.spec.Path, sr.Index)
	}

	// Re-record after analysis: a target the schema pass could not
	// resolve may resolve now that the full schema is in place.
	if err := extractor.Schema().Record(sr.Stmt, pf.dialect); err != nil {
		b.logger.Debug("schema re-record failed", "file", pf.spec.Path, "index", sr.Index, "error", err)
	}
	return nil
}
