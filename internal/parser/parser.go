// Package parser turns a token stream into a statement tree. Every syntax
// error is an INVALID_QUERY error.
package parser

import (
	"strconv"
	"strings"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/parser/ast"
	"github.com/leengari/cardinaldb/internal/parser/lexer"
)

type Parser struct {
	tokens  []lexer.Token
	curPos  int
	curTok  lexer.Token
	peekTok lexer.Token
}

func New(tokens []lexer.Token) *Parser {
	p := &Parser{tokens: tokens, curPos: 0}
	// Read two tokens to set curTok and peekTok
	p.nextToken()
	p.nextToken()
	return p
}

// ParseSQL tokenizes and parses a single statement
func ParseSQL(sql string) (ast.Statement, error) {
	tokens, err := lexer.Tokenize(sql)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.InvalidQuery, err, "lexer error")
	}
	return New(tokens).Parse()
}

func (p *Parser) nextToken() {
	p.curTok = p.peekTok
	if p.curPos < len(p.tokens) {
		p.peekTok = p.tokens[p.curPos]
		p.curPos++
	} else {
		p.peekTok = lexer.Token{Type: lexer.EOF}
	}
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return dberrors.New(dberrors.InvalidQuery, format, args...)
}

// unexpected reports the current token as not matching what
func (p *Parser) unexpected(what string) error {
	if p.curTok.Type == lexer.EOF {
		return p.errorf("expected %s, got end of input", what)
	}
	return p.errorf("expected %s, got %q at line %d, col %d", what, p.curTok.Literal, p.curTok.Line, p.curTok.Column)
}

func (p *Parser) expect(t lexer.TokenType) error {
	if p.curTok.Type != t {
		return p.unexpected(t.String())
	}
	p.nextToken()
	return nil
}

// accept consumes the current token when it is of type t
func (p *Parser) accept(t lexer.TokenType) bool {
	if p.curTok.Type == t {
		p.nextToken()
		return true
	}
	return false
}

func (p *Parser) identifier(what string) (string, error) {
	if p.curTok.Type != lexer.IDENTIFIER {
		return "", p.unexpected(what)
	}
	name := p.curTok.Literal
	p.nextToken()
	return name, nil
}

func (p *Parser) Parse() (ast.Statement, error) {
	var (
		stmt ast.Statement
		err  error
	)
	switch p.curTok.Type {
	case lexer.SELECT:
		stmt, err = p.parseSelect()
	case lexer.INSERT:
		stmt, err = p.parseInsert()
	case lexer.UPDATE:
		stmt, err = p.parseUpdate()
	case lexer.DELETE:
		stmt, err = p.parseDelete()
	case lexer.CREATE:
		stmt, err = p.parseCreate()
	case lexer.ALTER:
		stmt, err = p.parseAlter()
	case lexer.DROP:
		stmt, err = p.parseDrop()
	case lexer.USE:
		stmt, err = p.parseUse()
	default:
		return nil, p.unexpected("SELECT, INSERT, UPDATE, DELETE, CREATE, ALTER, DROP or USE")
	}
	if err != nil {
		return nil, err
	}

	// Semicolon (Optional)
	p.accept(lexer.SEMICOLON)
	if p.curTok.Type != lexer.EOF {
		return nil, p.unexpected("end of statement")
	}
	return stmt, nil
}

func (p *Parser) parseSelect() (*ast.SelectStatement, error) {
	stmt := &ast.SelectStatement{}

	// SELECT [DISTINCT]
	p.nextToken()
	stmt.Distinct = p.accept(lexer.DISTINCT)

	fields, err := p.parseSelectFields()
	if err != nil {
		return nil, err
	}
	stmt.Fields = fields

	if err := p.expect(lexer.FROM); err != nil {
		return nil, err
	}
	for {
		name, err := p.identifier("table name")
		if err != nil {
			return nil, err
		}
		stmt.Tables = append(stmt.Tables, &ast.Identifier{Value: name})
		if !p.accept(lexer.COMMA) {
			break
		}
	}

	if p.accept(lexer.WHERE) {
		if stmt.Where, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}

	if p.accept(lexer.GROUP) {
		if err := p.expect(lexer.BY); err != nil {
			return nil, err
		}
		for {
			col, err := p.parseColumn()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, col)
			if !p.accept(lexer.COMMA) {
				break
			}
		}
	}

	if p.accept(lexer.HAVING) {
		if stmt.Having, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}

	if p.accept(lexer.ORDER) {
		if err := p.expect(lexer.BY); err != nil {
			return nil, err
		}
		for {
			expr, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			item := ast.OrderItem{Expr: expr}
			if p.accept(lexer.DESC) {
				item.Desc = true
			} else {
				p.accept(lexer.ASC)
			}
			stmt.OrderBy = append(stmt.OrderBy, item)
			if !p.accept(lexer.COMMA) {
				break
			}
		}
	}

	if p.accept(lexer.LIMIT) {
		if stmt.Limit, err = p.parseCount("LIMIT"); err != nil {
			return nil, err
		}
	}
	if p.accept(lexer.OFFSET) {
		if stmt.Offset, err = p.parseCount("OFFSET"); err != nil {
			return nil, err
		}
	}

	return stmt, nil
}

func (p *Parser) parseSelectFields() ([]ast.Expression, error) {
	var fields []ast.Expression
	for {
		if p.accept(lexer.ASTERISK) {
			fields = append(fields, &ast.Identifier{Value: "*"})
		} else {
			expr, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			switch expr.(type) {
			case *ast.Identifier, *ast.FunctionCall:
			default:
				return nil, p.errorf("select field must be a column or an aggregate, got %s", expr.String())
			}
			fields = append(fields, expr)
		}
		if !p.accept(lexer.COMMA) {
			return fields, nil
		}
	}
}

// parseCount reads the non-negative integer of LIMIT or OFFSET
func (p *Parser) parseCount(clause string) (*int64, error) {
	if p.curTok.Type != lexer.NUMBER {
		return nil, p.unexpected("a number after " + clause)
	}
	n, err := strconv.ParseInt(p.curTok.Literal, 10, 64)
	if err != nil || n < 0 {
		return nil, p.errorf("invalid %s %q", clause, p.curTok.Literal)
	}
	p.nextToken()
	return &n, nil
}

func (p *Parser) parseInsert() (*ast.InsertStatement, error) {
	stmt := &ast.InsertStatement{}

	// INSERT INTO
	p.nextToken()
	if err := p.expect(lexer.INTO); err != nil {
		return nil, err
	}

	name, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt.TableName = &ast.Identifier{Value: name}

	if err := p.expect(lexer.PAREN_OPEN); err != nil {
		return nil, err
	}
	for {
		col, err := p.identifier("column name")
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, &ast.Identifier{Value: col})
		if !p.accept(lexer.COMMA) {
			break
		}
	}
	if err := p.expect(lexer.PAREN_CLOSE); err != nil {
		return nil, err
	}

	if err := p.expect(lexer.VALUES); err != nil {
		return nil, err
	}
	for {
		row, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		if len(row) != len(stmt.Columns) {
			return nil, p.errorf("INSERT has %d columns but %d values", len(stmt.Columns), len(row))
		}
		stmt.Rows = append(stmt.Rows, row)
		if !p.accept(lexer.COMMA) {
			break
		}
	}
	return stmt, nil
}

// parseValueList reads (v1, v2, ...) of literals
func (p *Parser) parseValueList() ([]ast.Expression, error) {
	if err := p.expect(lexer.PAREN_OPEN); err != nil {
		return nil, err
	}
	var list []ast.Expression
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		list = append(list, lit)
		if !p.accept(lexer.COMMA) {
			break
		}
	}
	if err := p.expect(lexer.PAREN_CLOSE); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Parser) parseUpdate() (*ast.UpdateStatement, error) {
	stmt := &ast.UpdateStatement{}

	// UPDATE
	p.nextToken()
	name, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt.TableName = &ast.Identifier{Value: name}

	if err := p.expect(lexer.SET); err != nil {
		return nil, err
	}
	for {
		col, err := p.parseColumn()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.EQUALS); err != nil {
			return nil, err
		}
		value, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, ast.Assignment{Column: col, Value: value})
		if !p.accept(lexer.COMMA) {
			break
		}
	}

	if p.accept(lexer.WHERE) {
		if stmt.Where, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (*ast.DeleteStatement, error) {
	stmt := &ast.DeleteStatement{}

	// DELETE FROM
	p.nextToken()
	if err := p.expect(lexer.FROM); err != nil {
		return nil, err
	}
	name, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt.TableName = &ast.Identifier{Value: name}

	if p.accept(lexer.WHERE) {
		if stmt.Where, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseUse() (*ast.UseDatabaseStatement, error) {
	p.nextToken()
	name, err := p.identifier("database name")
	if err != nil {
		return nil, err
	}
	return &ast.UseDatabaseStatement{Name: name}, nil
}

// parseColumnRefs reads (c1, c2, ...)
func (p *Parser) parseColumnRefs() ([]string, error) {
	if err := p.expect(lexer.PAREN_OPEN); err != nil {
		return nil, err
	}
	var cols []string
	for {
		col, err := p.identifier("column name")
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if !p.accept(lexer.COMMA) {
			break
		}
	}
	if err := p.expect(lexer.PAREN_CLOSE); err != nil {
		return nil, err
	}
	return cols, nil
}

// parseColumn reads a column reference, optionally qualified by its table
func (p *Parser) parseColumn() (*ast.Identifier, error) {
	name, err := p.identifier("column name")
	if err != nil {
		return nil, err
	}
	if !p.accept(lexer.DOT) {
		return &ast.Identifier{Value: name}, nil
	}
	col, err := p.identifier("column name")
	if err != nil {
		return nil, err
	}
	return &ast.Identifier{Table: name, Value: col}, nil
}

// parseLiteral parses a constant. A double-quoted name stands for a string
// wherever only a value can appear.
func (p *Parser) parseLiteral() (*ast.Literal, error) {
	if p.curTok.Type == lexer.IDENTIFIER && p.curTok.Quote == '"' {
		val := p.curTok.Literal
		p.nextToken()
		return &ast.Literal{TokenLiteralValue: val, Value: val, Kind: ast.LiteralString}, nil
	}
	switch p.curTok.Type {
	case lexer.STRING:
		val := p.curTok.Literal
		p.nextToken()
		return &ast.Literal{TokenLiteralValue: val, Value: val, Kind: ast.LiteralString}, nil
	case lexer.NUMBER:
		return p.parseNumber(false)
	case lexer.MINUS:
		p.nextToken()
		if p.curTok.Type != lexer.NUMBER {
			return nil, p.unexpected("a number after -")
		}
		return p.parseNumber(true)
	case lexer.TRUE:
		p.nextToken()
		return &ast.Literal{TokenLiteralValue: "TRUE", Value: true, Kind: ast.LiteralBool}, nil
	case lexer.FALSE:
		p.nextToken()
		return &ast.Literal{TokenLiteralValue: "FALSE", Value: false, Kind: ast.LiteralBool}, nil
	case lexer.NULL:
		p.nextToken()
		return &ast.Literal{TokenLiteralValue: "NULL", Kind: ast.LiteralNull}, nil
	default:
		return nil, p.unexpected("a value")
	}
}

func (p *Parser) parseNumber(negative bool) (*ast.Literal, error) {
	valStr := p.curTok.Literal
	if negative {
		valStr = "-" + valStr
	}
	p.nextToken()
	if !strings.ContainsAny(valStr, ".eE") {
		if i, err := strconv.ParseInt(valStr, 10, 64); err == nil {
			return &ast.Literal{TokenLiteralValue: valStr, Value: i, Kind: ast.LiteralInt}, nil
		}
	}
	f, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return nil, p.errorf("invalid number: %s", valStr)
	}
	return &ast.Literal{TokenLiteralValue: valStr, Value: f, Kind: ast.LiteralFloat}, nil
}
