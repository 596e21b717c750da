package operator

import (
	"fmt"
	"strings"
)

// Operator is a comparison used to select keys from an index
type Operator int

const (
	EQ Operator = iota
	NEQ
	LT
	LTEQ
	GT
	GTEQ
	IN
	NOT_IN
	LIKE
	BETWEEN
)

var names = map[Operator]string{
	EQ:      "EQ",
	NEQ:     "NEQ",
	LT:      "LT",
	LTEQ:    "LTEQ",
	GT:      "GT",
	GTEQ:    "GTEQ",
	IN:      "IN",
	NOT_IN:  "NOT_IN",
	LIKE:    "LIKE",
	BETWEEN: "BETWEEN",
}

func (o Operator) String() string {
	if n, ok := names[o]; ok {
		return n
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// IsComparison reports operators that order values (everything but set and pattern matching)
func (o Operator) IsComparison() bool {
	switch o {
	case EQ, NEQ, LT, LTEQ, GT, GTEQ:
		return true
	}
	return false
}

// Mirror returns the operator to use when operands are swapped (5 < col  ->  col > 5)
func (o Operator) Mirror() Operator {
	switch o {
	case LT:
		return GT
	case LTEQ:
		return GTEQ
	case GT:
		return LT
	case GTEQ:
		return LTEQ
	}
	return o
}

// Map converts a SQL operator token to an Operator
func Map(sqlOp string) (Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(sqlOp)) {
	case "=", "==":
		return EQ, nil
	case "!=", "<>":
		return NEQ, nil
	case "<":
		return LT, nil
	case "<=":
		return LTEQ, nil
	case ">":
		return GT, nil
	case ">=":
		return GTEQ, nil
	case "IN":
		return IN, nil
	case "NOT IN", "NOT_IN":
		return NOT_IN, nil
	case "LIKE":
		return LIKE, nil
	case "BETWEEN":
		return BETWEEN, nil
	}
	return 0, fmt.Errorf("unsupported operator %q", sqlOp)
}
