package parser

import (
	"strings"

	"github.com/leengari/cardinaldb/internal/parser/ast"
	"github.com/leengari/cardinaldb/internal/parser/lexer"
)

func (p *Parser) parseCreate() (ast.Statement, error) {
	// CREATE
	p.nextToken()

	switch p.curTok.Type {
	case lexer.TABLE:
		p.nextToken()
		return p.parseCreateTable()
	case lexer.UNIQUE:
		p.nextToken()
		if p.curTok.Type != lexer.INDEX {
			return nil, p.unexpected("INDEX after CREATE UNIQUE")
		}
		p.nextToken()
		stmt, err := p.parseCreateIndex()
		if err != nil {
			return nil, err
		}
		stmt.Unique = true
		return stmt, nil
	case lexer.INDEX:
		p.nextToken()
		return p.parseCreateIndex()
	case lexer.DATABASE:
		p.nextToken()
		name, err := p.identifier("database name")
		if err != nil {
			return nil, err
		}
		return &ast.CreateDatabaseStatement{Name: name}, nil
	default:
		return nil, p.unexpected("TABLE, INDEX or DATABASE after CREATE")
	}
}

func (p *Parser) parseCreateTable() (*ast.CreateTableStatement, error) {
	name, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt := &ast.CreateTableStatement{TableName: &ast.Identifier{Value: name}}

	if err := p.expect(lexer.PAREN_OPEN); err != nil {
		return nil, err
	}
	for {
		switch p.curTok.Type {
		case lexer.PRIMARY:
			p.nextToken()
			if err := p.expect(lexer.KEY); err != nil {
				return nil, err
			}
			cols, err := p.parseColumnRefs()
			if err != nil {
				return nil, err
			}
			stmt.PrimaryKey = append(stmt.PrimaryKey, cols...)
		case lexer.UNIQUE:
			p.nextToken()
			cols, err := p.parseColumnRefs()
			if err != nil {
				return nil, err
			}
			stmt.Unique = append(stmt.Unique, cols)
		default:
			def, err := p.parseColumnDefinition()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, *def)
		}
		if !p.accept(lexer.COMMA) {
			break
		}
	}
	if err := p.expect(lexer.PAREN_CLOSE); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseColumnDefinition reads: name TYPE[(n[, m])] [PRIMARY KEY] [UNIQUE] [NOT NULL]
func (p *Parser) parseColumnDefinition() (*ast.ColumnDefinition, error) {
	name, err := p.identifier("column name")
	if err != nil {
		return nil, err
	}
	if !isTypeName(p.curTok.Type) {
		return nil, p.unexpected("a type for column " + name)
	}
	def := &ast.ColumnDefinition{Name: name, Type: strings.ToUpper(p.curTok.Literal)}
	p.nextToken()

	// size arguments are accepted and ignored: VARCHAR(255), DECIMAL(10, 2)
	if p.accept(lexer.PAREN_OPEN) {
		for p.curTok.Type == lexer.NUMBER || p.curTok.Type == lexer.COMMA {
			p.nextToken()
		}
		if err := p.expect(lexer.PAREN_CLOSE); err != nil {
			return nil, err
		}
	}

	for {
		switch p.curTok.Type {
		case lexer.PRIMARY:
			p.nextToken()
			if err := p.expect(lexer.KEY); err != nil {
				return nil, err
			}
			def.PrimaryKey = true
		case lexer.UNIQUE:
			p.nextToken()
			def.Unique = true
		case lexer.NOT:
			p.nextToken()
			if err := p.expect(lexer.NULL); err != nil {
				return nil, err
			}
		default:
			return def, nil
		}
	}
}

func (p *Parser) parseCreateIndex() (*ast.CreateIndexStatement, error) {
	stmt := &ast.CreateIndexStatement{}
	if p.curTok.Type == lexer.IDENTIFIER {
		stmt.Name = p.curTok.Literal
		p.nextToken()
	}
	if err := p.expect(lexer.ON); err != nil {
		return nil, err
	}
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt.TableName = &ast.Identifier{Value: table}

	if stmt.Columns, err = p.parseColumnRefs(); err != nil {
		return nil, err
	}

	if p.accept(lexer.USING) {
		switch p.curTok.Type {
		case lexer.IDENTIFIER, lexer.UNIQUE:
			stmt.Using = strings.ToUpper(p.curTok.Literal)
			p.nextToken()
		default:
			return nil, p.unexpected("an index type after USING")
		}
	}
	return stmt, nil
}

func (p *Parser) parseAlter() (*ast.AlterTableStatement, error) {
	// ALTER TABLE
	p.nextToken()
	if err := p.expect(lexer.TABLE); err != nil {
		return nil, err
	}
	name, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt := &ast.AlterTableStatement{TableName: &ast.Identifier{Value: name}}

	switch p.curTok.Type {
	case lexer.ADD:
		p.nextToken()
		switch p.curTok.Type {
		case lexer.UNIQUE:
			p.nextToken()
			stmt.Action = ast.AlterAddUnique
			stmt.Columns, err = p.parseColumnRefs()
		case lexer.PRIMARY:
			p.nextToken()
			if err := p.expect(lexer.KEY); err != nil {
				return nil, err
			}
			stmt.Action = ast.AlterAddPrimaryKey
			stmt.Columns, err = p.parseColumnRefs()
		default:
			p.accept(lexer.COLUMN)
			stmt.Action = ast.AlterAddColumn
			stmt.Column, err = p.parseColumnDefinition()
		}
	case lexer.DROP:
		p.nextToken()
		p.accept(lexer.COLUMN)
		stmt.Action = ast.AlterDropColumn
		var col string
		col, err = p.identifier("column name")
		stmt.Columns = []string{col}
	default:
		return nil, p.unexpected("ADD or DROP after ALTER TABLE")
	}
	if err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseDrop() (ast.Statement, error) {
	// DROP
	p.nextToken()

	switch p.curTok.Type {
	case lexer.TABLE:
		p.nextToken()
		name, err := p.identifier("table name")
		if err != nil {
			return nil, err
		}
		return &ast.DropTableStatement{TableName: &ast.Identifier{Value: name}}, nil
	case lexer.INDEX:
		p.nextToken()
		col, err := p.identifier("column name")
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.ON); err != nil {
			return nil, err
		}
		table, err := p.identifier("table name")
		if err != nil {
			return nil, err
		}
		return &ast.DropIndexStatement{Column: col, TableName: &ast.Identifier{Value: table}}, nil
	case lexer.DATABASE:
		p.nextToken()
		name, err := p.identifier("database name")
		if err != nil {
			return nil, err
		}
		return &ast.DropDatabaseStatement{Name: name}, nil
	default:
		return nil, p.unexpected("TABLE, INDEX or DATABASE after DROP")
	}
}
