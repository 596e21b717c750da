package parser

import (
	"strings"

	"github.com/leengari/cardinaldb/internal/parser/ast"
	"github.com/leengari/cardinaldb/internal/parser/lexer"
)

var aggregates = map[string]bool{
	"COUNT": true,
	"SUM":   true,
	"MIN":   true,
	"MAX":   true,
	"AVG":   true,
}

// parseExpression parses a boolean condition. OR binds looser than AND.
func (p *Parser) parseExpression() (ast.Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.curTok.Type == lexer.OR {
		p.nextToken()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.LogicalExpression{Left: left, Operator: "OR", Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expression, error) {
	left, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	for p.curTok.Type == lexer.AND {
		p.nextToken()
		right, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		left = &ast.LogicalExpression{Left: left, Operator: "AND", Right: right}
	}
	return left, nil
}

// parsePredicate parses a parenthesized condition or a single comparison,
// IN, LIKE or BETWEEN test
func (p *Parser) parsePredicate() (ast.Expression, error) {
	if p.accept(lexer.PAREN_OPEN) {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.PAREN_CLOSE); err != nil {
			return nil, err
		}
		return expr, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	switch {
	case isComparisonOperator(p.curTok.Type):
		op := p.curTok.Literal
		p.nextToken()
		right, err := p.parseValueOperand(left)
		if err != nil {
			return nil, err
		}
		return &ast.BinaryExpression{Left: left, Operator: op, Right: right}, nil

	case p.curTok.Type == lexer.NOT:
		p.nextToken()
		if p.curTok.Type != lexer.IN {
			return nil, p.unexpected("IN after NOT")
		}
		return p.parseIn(left, true)

	case p.curTok.Type == lexer.IN:
		return p.parseIn(left, false)

	case p.curTok.Type == lexer.LIKE:
		p.nextToken()
		pattern, err := p.parseValueOperand(left)
		if err != nil {
			return nil, err
		}
		return &ast.LikeExpression{Left: left, Pattern: pattern}, nil

	case p.curTok.Type == lexer.BETWEEN:
		p.nextToken()
		low, err := p.parseValueOperand(left)
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.AND); err != nil {
			return nil, err
		}
		high, err := p.parseValueOperand(left)
		if err != nil {
			return nil, err
		}
		return &ast.BetweenExpression{Left: left, Low: low, High: high}, nil

	case p.curTok.Type == lexer.IS:
		return nil, p.errorf("IS [NOT] NULL is not supported")
	}

	return nil, p.unexpected("a comparison operator")
}

func (p *Parser) parseIn(left ast.Expression, not bool) (ast.Expression, error) {
	// IN
	p.nextToken()
	values, err := p.parseValueList()
	if err != nil {
		return nil, err
	}
	return &ast.InExpression{Left: left, Values: values, Not: not}, nil
}

// parseOperand parses a column, an aggregate call or a literal
func (p *Parser) parseOperand() (ast.Expression, error) {
	if p.curTok.Type != lexer.IDENTIFIER {
		return p.parseLiteral()
	}
	if p.peekTok.Type == lexer.PAREN_OPEN {
		return p.parseFunctionCall()
	}
	return p.parseColumn()
}

// parseValueOperand parses the operand compared against left. Columns are
// only compared with constants, so after a column "text" is a string.
func (p *Parser) parseValueOperand(left ast.Expression) (ast.Expression, error) {
	if _, isCol := left.(*ast.Identifier); isCol && p.curTok.Type == lexer.IDENTIFIER && p.curTok.Quote == '"' {
		return p.parseLiteral()
	}
	return p.parseOperand()
}

func (p *Parser) parseFunctionCall() (*ast.FunctionCall, error) {
	name := strings.ToUpper(p.curTok.Literal)
	if !aggregates[name] {
		return nil, p.errorf("unsupported function %s", p.curTok.Literal)
	}
	p.nextToken()
	p.nextToken() // (

	call := &ast.FunctionCall{Name: name}
	if p.accept(lexer.ASTERISK) {
		if name != "COUNT" {
			return nil, p.errorf("%s(*) is not supported", name)
		}
		call.Argument = &ast.Identifier{Value: "*"}
	} else {
		col, err := p.parseColumn()
		if err != nil {
			return nil, err
		}
		call.Argument = col
	}
	if err := p.expect(lexer.PAREN_CLOSE); err != nil {
		return nil, err
	}
	return call, nil
}
