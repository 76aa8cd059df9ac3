package sqlparse

import "strings"

// Statement represents a SQL statement.
type Statement interface {
	stmtNode()
	Kind() string
}

// Expr represents an expression in SQL.
type Expr interface {
	exprNode()
}

// TableRef represents a table reference in a FROM clause.
type TableRef interface {
	tableRefNode()
}

// ---------- Statement Types ----------

// SelectStmt represents a complete SELECT statement with optional WITH clause.
type SelectStmt struct {
	With *WithClause
	Body *SelectBody
}

func (*SelectStmt) stmtNode() {}

// Kind returns the statement kind name.
func (*SelectStmt) Kind() string { return "SELECT" }

// WithClause represents a WITH clause with CTEs.
type WithClause struct {
	Recursive bool
	CTEs      []*CTE
}

// CTE represents a Common Table Expression.
type CTE struct {
	Name    string
	Columns []string // optional explicit column list: WITH c (a, b) AS ...
	Select  *SelectStmt
}

// SelectBody represents the body of a SELECT with possible set operations.
type SelectBody struct {
	Left  *SelectCore
	Op    SetOpType   // UNION, INTERSECT, EXCEPT, or empty
	All   bool        // UNION ALL
	Right *SelectBody // For chained set operations
}

// First returns the leftmost SelectCore of the body.
func (b *SelectBody) First() *SelectCore {
	return b.Left
}

// Cores returns all SelectCores in the body in source order.
func (b *SelectBody) Cores() []*SelectCore {
	cores := []*SelectCore{b.Left}
	for r := b.Right; r != nil; r = r.Right {
		cores = append(cores, r.Left)
	}
	return cores
}

// SetOpType represents the type of set operation.
type SetOpType string

// SetOpType constants for set operations in queries.
const (
	SetOpNone      SetOpType = ""
	SetOpUnion     SetOpType = "UNION"
	SetOpUnionAll  SetOpType = "UNION ALL"
	SetOpIntersect SetOpType = "INTERSECT"
	SetOpExcept    SetOpType = "EXCEPT"
)

// SelectCore represents the core SELECT clause.
type SelectCore struct {
	Distinct bool
	Columns  []SelectItem
	From     *FromClause
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	Windows  []WindowDef
	Qualify  Expr
	OrderBy  []OrderByItem
	Limit    Expr
	Offset   Expr
}

// WindowDef represents a named window definition in the WINDOW clause.
type WindowDef struct {
	Name string
	Spec *WindowSpec
}

// SelectItem represents an item in the SELECT list.
type SelectItem struct {
	Star      bool   // SELECT *
	TableStar string // SELECT t.*
	Expr      Expr   // Expression
	Alias     string // AS alias
}

// FromClause represents the FROM clause.
type FromClause struct {
	Source TableRef
	Joins  []*Join
}

// Sources returns the base source plus all join right sides in order.
func (f *FromClause) Sources() []TableRef {
	refs := []TableRef{f.Source}
	for _, j := range f.Joins {
		refs = append(refs, j.Right)
	}
	return refs
}

// Join represents a JOIN clause.
type Join struct {
	Type      JoinType
	Natural   bool
	Right     TableRef
	Condition Expr     // ON clause (mutually exclusive with Using)
	Using     []string // USING (col1, col2) columns
}

// JoinType represents the type of join.
type JoinType string

// JoinType constants. SEMI and ANTI joins filter the left side without
// contributing columns to the output.
const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
	JoinCross JoinType = "CROSS"
	JoinSemi  JoinType = "SEMI"
	JoinAnti  JoinType = "ANTI"
	JoinComma JoinType = ","
)

// ContributesColumns reports whether the join's right side adds columns
// to the select output. SEMI and ANTI joins only filter rows.
func (j *Join) ContributesColumns() bool {
	return j.Type != JoinSemi && j.Type != JoinAnti
}

// OrderByItem represents an item in an ORDER BY clause.
type OrderByItem struct {
	Expr       Expr
	Desc       bool
	NullsFirst *bool // nil means default
}

// InsertStmt represents INSERT INTO / INSERT OVERWRITE with a SELECT body
// or a VALUES list.
type InsertStmt struct {
	Target    *TableName
	Overwrite bool
	Columns   []string // optional explicit column list
	Select    *SelectStmt
	Values    [][]Expr
}

func (*InsertStmt) stmtNode() {}

// Kind returns the statement kind name.
func (*InsertStmt) Kind() string { return "INSERT" }

// CreateKind distinguishes CREATE TABLE from CREATE VIEW.
type CreateKind string

// CreateKind constants.
const (
	CreateTable CreateKind = "TABLE"
	CreateView  CreateKind = "VIEW"
)

// CreateStmt represents CREATE [OR REPLACE] [TEMPORARY] TABLE|VIEW,
// either with an AS SELECT body or a column definition list.
type CreateStmt struct {
	Create      CreateKind
	OrReplace   bool
	Temporary   bool
	IfNotExists bool
	Target      *TableName
	ColumnDefs  []ColumnDef // CREATE TABLE t (a INT, b TEXT)
	Select      *SelectStmt // CREATE TABLE t AS SELECT ...
}

func (*CreateStmt) stmtNode() {}

// Kind returns the statement kind name.
func (c *CreateStmt) Kind() string { return "CREATE " + string(c.Create) }

// ColumnDef represents a column definition in CREATE TABLE.
type ColumnDef struct {
	Name string
	Type string
}

// MergeStmt represents MERGE INTO target USING source ON condition.
type MergeStmt struct {
	Target  *TableName
	Source  TableRef
	On      Expr
	Actions []MergeAction
}

func (*MergeStmt) stmtNode() {}

// Kind returns the statement kind name.
func (*MergeStmt) Kind() string { return "MERGE" }

// MergeAction represents a WHEN [NOT] MATCHED THEN clause.
type MergeAction struct {
	Matched      bool
	Condition    Expr // optional AND condition
	Update       []SetItem
	Delete       bool
	InsertCols   []string
	InsertValues []Expr
}

// SetItem represents column = expr in UPDATE SET or MERGE UPDATE SET.
type SetItem struct {
	Column string
	Value  Expr
}

// UpdateStmt represents UPDATE target SET ... [FROM ...] [WHERE ...].
type UpdateStmt struct {
	Target *TableName
	Set    []SetItem
	From   *FromClause
	Where  Expr
}

func (*UpdateStmt) stmtNode() {}

// Kind returns the statement kind name.
func (*UpdateStmt) Kind() string { return "UPDATE" }

// DeleteStmt represents DELETE FROM target [WHERE ...].
type DeleteStmt struct {
	Target *TableName
	Where  Expr
}

func (*DeleteStmt) stmtNode() {}

// Kind returns the statement kind name.
func (*DeleteStmt) Kind() string { return "DELETE" }

// AdminStmt represents a statement with no lineage-bearing body
// (DROP, TRUNCATE, SET, GRANT, etc.). The raw text is preserved.
type AdminStmt struct {
	Keyword string // first keyword, uppercased
	Raw     string
}

func (*AdminStmt) stmtNode() {}

// Kind returns the statement kind name.
func (a *AdminStmt) Kind() string { return a.Keyword }

// ---------- Table Reference Types ----------

// TableName represents a table name reference.
type TableName struct {
	Catalog string
	Schema  string
	Name    string
	Alias   string
}

func (*TableName) tableRefNode() {}

// Qualified returns the dot-joined qualified name (without alias).
func (t *TableName) Qualified() string {
	var parts []string
	if t.Catalog != "" {
		parts = append(parts, t.Catalog)
	}
	if t.Schema != "" {
		parts = append(parts, t.Schema)
	}
	parts = append(parts, t.Name)
	return strings.Join(parts, ".")
}

// DerivedTable represents a subquery in a FROM clause.
type DerivedTable struct {
	Select *SelectStmt
	Alias  string
}

func (*DerivedTable) tableRefNode() {}

// LateralTable represents a LATERAL subquery.
type LateralTable struct {
	Select *SelectStmt
	Alias  string
}

func (*LateralTable) tableRefNode() {}

// ---------- Expression Types ----------

// ColumnRef represents a column reference (possibly qualified).
type ColumnRef struct {
	Table  string // optional table/alias qualifier
	Column string
}

func (*ColumnRef) exprNode() {}

// Literal represents a literal value.
type Literal struct {
	Type  LiteralType
	Value string
}

func (*Literal) exprNode() {}

// LiteralType represents the type of a literal.
type LiteralType int

// LiteralType constants for SQL literal value types.
const (
	LiteralNumber LiteralType = iota
	LiteralString
	LiteralBool
	LiteralNull
)

// BinaryExpr represents a binary expression.
type BinaryExpr struct {
	Left  Expr
	Op    TokenType
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// UnaryExpr represents a unary expression.
type UnaryExpr struct {
	Op   TokenType
	Expr Expr
}

func (*UnaryExpr) exprNode() {}

// FuncCall represents a function call.
type FuncCall struct {
	Name     string
	Distinct bool
	Args     []Expr
	Star     bool        // COUNT(*)
	Window   *WindowSpec // OVER clause
	Filter   Expr        // FILTER (WHERE ...) clause
}

func (*FuncCall) exprNode() {}

// WindowSpec represents a window specification (OVER clause).
type WindowSpec struct {
	Name        string // named window reference
	PartitionBy []Expr
	OrderBy     []OrderByItem
	Frame       *FrameSpec
}

// FrameSpec represents a window frame specification.
type FrameSpec struct {
	Type  FrameType
	Start *FrameBound
	End   *FrameBound
}

// FrameType represents the type of window frame.
type FrameType string

// FrameType constants for window frame specification types.
const (
	FrameRows   FrameType = "ROWS"
	FrameRange  FrameType = "RANGE"
	FrameGroups FrameType = "GROUPS"
)

// FrameBound represents a window frame bound.
type FrameBound struct {
	Type   FrameBoundType
	Offset Expr // for N PRECEDING/FOLLOWING
}

// FrameBoundType represents the type of frame bound.
type FrameBoundType string

// FrameBoundType constants for window frame bound types.
const (
	FrameUnboundedPreceding FrameBoundType = "UNBOUNDED PRECEDING"
	FrameUnboundedFollowing FrameBoundType = "UNBOUNDED FOLLOWING"
	FrameCurrentRow         FrameBoundType = "CURRENT ROW"
	FrameExprPreceding      FrameBoundType = "EXPR PRECEDING"
	FrameExprFollowing      FrameBoundType = "EXPR FOLLOWING"
)

// CaseExpr represents a CASE expression.
type CaseExpr struct {
	Operand Expr
	Whens   []WhenClause
	Else    Expr
}

func (*CaseExpr) exprNode() {}

// WhenClause represents a WHEN clause in a CASE expression.
type WhenClause struct {
	Condition Expr
	Result    Expr
}

// CastExpr represents CAST(expr AS type) or expr::type.
type CastExpr struct {
	Expr     Expr
	TypeName string
}

func (*CastExpr) exprNode() {}

// InExpr represents an IN expression.
type InExpr struct {
	Expr   Expr
	Not    bool
	Values []Expr      // IN (1, 2, 3)
	Query  *SelectStmt // IN (SELECT ...)
}

func (*InExpr) exprNode() {}

// BetweenExpr represents a BETWEEN expression.
type BetweenExpr struct {
	Expr Expr
	Not  bool
	Low  Expr
	High Expr
}

func (*BetweenExpr) exprNode() {}

// IsNullExpr represents an IS [NOT] NULL expression.
type IsNullExpr struct {
	Expr Expr
	Not  bool
}

func (*IsNullExpr) exprNode() {}

// IsBoolExpr represents an IS [NOT] TRUE/FALSE expression.
type IsBoolExpr struct {
	Expr  Expr
	Not   bool
	Value bool
}

func (*IsBoolExpr) exprNode() {}

// LikeExpr represents a LIKE/ILIKE expression.
type LikeExpr struct {
	Expr    Expr
	Not     bool
	Pattern Expr
	Op      TokenType // TOKEN_LIKE or TOKEN_ILIKE
}

func (*LikeExpr) exprNode() {}

// ParenExpr represents a parenthesized expression.
type ParenExpr struct {
	Expr Expr
}

func (*ParenExpr) exprNode() {}

// StarExpr represents a * expression inside an expression context.
type StarExpr struct {
	Table string // optional table qualifier for t.*
}

func (*StarExpr) exprNode() {}

// SubqueryExpr represents a subquery used as an expression.
type SubqueryExpr struct {
	Select *SelectStmt
}

func (*SubqueryExpr) exprNode() {}

// ExistsExpr represents an EXISTS expression.
type ExistsExpr struct {
	Not    bool
	Select *SelectStmt
}

func (*ExistsExpr) exprNode() {}

// SelectBodyOf extracts the SELECT body carried by a statement, if any.
// INSERT ... VALUES and column-def CREATE TABLE have none.
func SelectBodyOf(stmt Statement) *SelectStmt {
	switch s := stmt.(type) {
	case *SelectStmt:
		return s
	case *InsertStmt:
		return s.Select
	case *CreateStmt:
		return s.Select
	case *MergeStmt:
		if d, ok := s.Source.(*DerivedTable); ok {
			return d.Select
		}
		return nil
	default:
		return nil
	}
}

// TargetOf returns the write target of a statement, or nil for reads.
func TargetOf(stmt Statement) *TableName {
	switch s := stmt.(type) {
	case *InsertStmt:
		return s.Target
	case *CreateStmt:
		return s.Target
	case *MergeStmt:
		return s.Target
	case *UpdateStmt:
		return s.Target
	case *DeleteStmt:
		return s.Target
	default:
		return nil
	}
}
