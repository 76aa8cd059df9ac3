// SQL parsing entry points and token plumbing.
//
// # Usage
//
//	d, err := sqlparse.GetDialect("spark")
//	stmt, err := sqlparse.Parse("SELECT a, b FROM t", d)
//
// Multi-statement scripts are split on top-level semicolons and parsed
// statement by statement; a parse failure in one statement does not stop
// the others:
//
//	results := sqlparse.ParseScript(sql, d)
//
// # Grammar Overview
//
//	statement     → select_stmt | insert_stmt | create_stmt | merge_stmt
//	              | update_stmt | delete_stmt | admin_stmt
//	select_stmt   → [WITH cte_list] select_body
//	select_body   → select_core [(UNION|INTERSECT|EXCEPT) [ALL] select_body]
//	select_core   → SELECT [DISTINCT] select_list [FROM from_clause]
//	                [WHERE expr] [GROUP BY expr_list] [HAVING expr]
//	                [QUALIFY expr] [ORDER BY order_list] [LIMIT expr]
//
// See each file for detailed grammar rules for that section.
package sqlparse

import (
	"fmt"
	"strings"
)

// Parser parses SQL into an AST.
type Parser struct {
	lexer   *Lexer
	token   Token // current token
	peek    Token // lookahead token
	peek2   Token // second lookahead token
	errors  []error
	dialect *Dialect
}

// NewParser creates a new parser for the given SQL input.
// A nil dialect falls back to the default dialect.
func NewParser(sql string, d *Dialect) *Parser {
	if d == nil {
		d, _ = GetDialect(DefaultDialect)
	}
	p := &Parser{
		lexer:   NewLexer(sql),
		dialect: d,
	}
	// Read three tokens to initialize current, peek, and peek2
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a single SQL statement and returns the AST.
func Parse(sql string, d *Dialect) (Statement, error) {
	p := NewParser(sql, d)
	stmt := p.parseStatement(sql)
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	return stmt, nil
}

// StatementResult holds the outcome of parsing one statement of a script.
type StatementResult struct {
	Index int
	Raw   string
	Stmt  Statement
	Err   error
}

// ParseScript splits a script on top-level semicolons and parses each
// statement independently. Empty fragments are dropped.
func ParseScript(sql string, d *Dialect) []StatementResult {
	parts := SplitScript(sql)
	results := make([]StatementResult, 0, len(parts))
	for i, part := range parts {
		stmt, err := Parse(part, d)
		results = append(results, StatementResult{Index: i, Raw: part, Stmt: stmt, Err: err})
	}
	return results
}

// SplitScript splits SQL on semicolons, ignoring semicolons inside
// strings, quoted identifiers, and comments. The delimiter is not
// included in the fragments; blank fragments are dropped.
func SplitScript(sql string) []string {
	var parts []string
	l := NewLexer(sql)
	start := 0
	for {
		tok := l.NextToken()
		if tok.Type == TOKEN_SEMICOLON || tok.Type == TOKEN_EOF {
			frag := strings.TrimSpace(sql[start:tok.Pos.Offset])
			if frag != "" {
				parts = append(parts, frag)
			}
			if tok.Type == TOKEN_EOF {
				break
			}
			start = tok.Pos.Offset + 1
		}
	}
	return parts
}

// Dialect returns the parser's dialect.
func (p *Parser) Dialect() *Dialect {
	return p.dialect
}

// ---------- Token Helpers ----------

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

// checkPeek returns true if the peek token is of the given type.
func (p *Parser) checkPeek(t TokenType) bool {
	return p.peek.Type == t
}

// checkPeek2 returns true if the peek2 token is of the given type.
func (p *Parser) checkPeek2(t TokenType) bool {
	return p.peek2.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf(ErrUnexpectedToken, p.token.Type, t))
	return false
}

// addError adds a parse error.
func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, &ParseError{
		Pos:     p.token.Pos,
		Message: msg,
	})
}

// isIdentLike returns true if the token can serve as an identifier.
// Some keywords double as column or alias names in the wild.
func (p *Parser) isIdentLike(tok Token) bool {
	if tok.Type == TOKEN_IDENT {
		return true
	}
	switch tok.Type {
	case TOKEN_VALUES, TOKEN_MATCHED, TOKEN_FIRST, TOKEN_LAST, TOKEN_ROW,
		TOKEN_ROWS, TOKEN_CURRENT, TOKEN_IF, TOKEN_REPLACE, TOKEN_SET,
		TOKEN_TABLE, TOKEN_VIEW:
		return true
	}
	return false
}

// isJoinKeyword returns true if token is a JOIN-related keyword.
func (p *Parser) isJoinKeyword(tok Token) bool {
	switch tok.Type {
	case TOKEN_JOIN, TOKEN_LEFT, TOKEN_RIGHT, TOKEN_INNER, TOKEN_OUTER,
		TOKEN_FULL, TOKEN_CROSS, TOKEN_SEMI, TOKEN_ANTI, TOKEN_NATURAL,
		TOKEN_ON, TOKEN_USING, TOKEN_LATERAL:
		return true
	}
	return false
}

// isClauseKeyword returns true if token starts a new clause.
func (p *Parser) isClauseKeyword(tok Token) bool {
	switch tok.Type {
	case TOKEN_WHERE, TOKEN_GROUP, TOKEN_HAVING, TOKEN_QUALIFY,
		TOKEN_WINDOW, TOKEN_ORDER, TOKEN_LIMIT, TOKEN_OFFSET,
		TOKEN_UNION, TOKEN_INTERSECT, TOKEN_EXCEPT:
		return true
	}
	return false
}
