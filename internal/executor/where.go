package executor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/parser/ast"
	"github.com/leengari/cardinaldb/internal/query/operator"
)

// where resolves the keys of table matching expr
func (e *Executor) where(ctx context.Context, ds, table string, expr ast.Expression) (index.KeySet, error) {
	ctx, span := e.tracer.Start(ctx, "executor.where")
	defer span.End()

	keys, err := e.evaluate(ctx, ds, table, expr)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("cardinaldb.keys", len(keys)))
	return keys, nil
}

// evaluate walks the condition tree. AND intersects and OR unites the key
// sets of its operands.
func (e *Executor) evaluate(ctx context.Context, ds, table string, expr ast.Expression) (index.KeySet, error) {
	switch ex := expr.(type) {
	case *ast.LogicalExpression:
		left, err := e.evaluate(ctx, ds, table, ex.Left)
		if err != nil {
			return nil, err
		}
		if ex.Operator == "AND" && len(left) == 0 {
			return left, nil
		}
		right, err := e.evaluate(ctx, ds, table, ex.Right)
		if err != nil {
			return nil, err
		}
		if ex.Operator == "AND" {
			return left.Intersect(right), nil
		}
		return left.Union(right), nil

	case *ast.BinaryExpression:
		col, op, value, err := comparison(table, ex)
		if err != nil {
			return nil, err
		}
		return e.keys(ctx, ds, table, col, op, value)

	case *ast.InExpression:
		col, values, err := operands(table, ex.Left, ex.Values...)
		if err != nil {
			return nil, err
		}
		if ex.Not {
			return e.keys(ctx, ds, table, col, operator.NOT_IN, values...)
		}
		keys := index.NewKeySet()
		for _, v := range values {
			matched, err := e.keys(ctx, ds, table, col, operator.EQ, v)
			if err != nil {
				e.logger.Warn("skipping IN value", "table", table, "column", col, "value", v, "error", err)
				continue
			}
			keys = keys.Union(matched)
		}
		return keys, nil

	case *ast.LikeExpression:
		col, values, err := operands(table, ex.Left, ex.Pattern)
		if err != nil {
			return nil, err
		}
		if _, ok := values[0].(string); !ok {
			return nil, dberrors.New(dberrors.InvalidOperatorUsage, "LIKE needs a string pattern")
		}
		return e.keys(ctx, ds, table, col, operator.LIKE, values...)

	case *ast.BetweenExpression:
		col, values, err := operands(table, ex.Left, ex.Low, ex.High)
		if err != nil {
			return nil, err
		}
		return e.keys(ctx, ds, table, col, operator.BETWEEN, values...)
	}
	return nil, dberrors.New(dberrors.OperationNotSupported, "unsupported condition %s", expr.String())
}

func (e *Executor) keys(ctx context.Context, ds, table, col string, op operator.Operator, values ...interface{}) (index.KeySet, error) {
	it, err := e.data.SelectKeysWithPattern(ctx, ds, table, col, op, values...)
	if err != nil {
		return nil, err
	}
	return index.DrainSet(it)
}

// comparison extracts "column op constant" from a binary expression,
// mirroring the operator when the column is on the right
func comparison(table string, ex *ast.BinaryExpression) (string, operator.Operator, interface{}, error) {
	op, err := operator.Map(ex.Operator)
	if err != nil {
		return "", 0, nil, dberrors.Wrap(dberrors.OperationNotSupported, err, "unsupported operator")
	}

	left, leftIsCol := ex.Left.(*ast.Identifier)
	right, rightIsCol := ex.Right.(*ast.Identifier)
	switch {
	case leftIsCol && !rightIsCol:
		col, values, err := operands(table, left, ex.Right)
		if err != nil {
			return "", 0, nil, err
		}
		return col, op, values[0], nil
	case rightIsCol && !leftIsCol:
		col, values, err := operands(table, right, ex.Left)
		if err != nil {
			return "", 0, nil, err
		}
		return col, op.Mirror(), values[0], nil
	}
	return "", 0, nil, dberrors.New(dberrors.OperationNotSupported, "comparison %s needs a column on one side and a constant on the other", ex.String())
}

// operands checks that subject is a column of table and every value a constant
func operands(table string, subject ast.Expression, exprs ...ast.Expression) (string, []interface{}, error) {
	id, ok := subject.(*ast.Identifier)
	if !ok {
		return "", nil, dberrors.New(dberrors.OperationNotSupported, "expected a column, got %s", subject.String())
	}
	col, err := column(table, id)
	if err != nil {
		return "", nil, err
	}
	values := make([]interface{}, len(exprs))
	for i, expr := range exprs {
		if values[i], err = literal(expr); err != nil {
			return "", nil, err
		}
	}
	return col, values, nil
}
