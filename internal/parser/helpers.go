package parser

import (
	"github.com/leengari/cardinaldb/internal/parser/lexer"
)

// isComparisonOperator checks if a token type is a comparison operator
func isComparisonOperator(t lexer.TokenType) bool {
	return t == lexer.EQUALS ||
		t == lexer.LESS_THAN ||
		t == lexer.GREATER_THAN ||
		t == lexer.LESS_EQUAL ||
		t == lexer.GREATER_EQUAL ||
		t == lexer.NOT_EQUAL
}

// isTypeName checks if a token can name a column type. Type names are plain
// identifiers (INT, VARCHAR, ...), never keywords.
func isTypeName(t lexer.TokenType) bool {
	return t == lexer.IDENTIFIER
}
