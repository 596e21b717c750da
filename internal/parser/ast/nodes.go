package ast

import (
	"bytes"
	"fmt"
	"strings"
)

// Node is the base interface for all AST nodes
type Node interface {
	TokenLiteral() string
	String() string
}

// Statement represents a standalone SQL statement (SELECT, INSERT, etc.)
type Statement interface {
	Node
	statementNode()
}

// Expression represents a value or operation
type Expression interface {
	Node
	expressionNode()
}

// Identifier represents a column or table name, optionally qualified (users.name)
type Identifier struct {
	Table string
	Value string
}

func (i *Identifier) expressionNode()      {}
func (i *Identifier) TokenLiteral() string { return i.Value }
func (i *Identifier) String() string {
	if i.Table != "" {
		return i.Table + "." + i.Value
	}
	return i.Value
}

// IsStar reports the * field
func (i *Identifier) IsStar() bool { return i.Value == "*" }

type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralInt
	LiteralFloat
	LiteralBool
	LiteralNull
)

// Literal represents a fixed value. Value is a string, int64, float64, bool or nil.
type Literal struct {
	TokenLiteralValue string
	Value             interface{}
	Kind              LiteralKind
}

func (l *Literal) expressionNode()      {}
func (l *Literal) TokenLiteral() string { return l.TokenLiteralValue }
func (l *Literal) String() string {
	if l.Kind == LiteralString {
		return "'" + strings.ReplaceAll(l.TokenLiteralValue, "'", "''") + "'"
	}
	return l.TokenLiteralValue
}

// FunctionCall is an aggregate such as COUNT(*) or SUM(price)
type FunctionCall struct {
	Name     string // upper case
	Argument *Identifier
}

func (f *FunctionCall) expressionNode()      {}
func (f *FunctionCall) TokenLiteral() string { return f.Name }
func (f *FunctionCall) String() string {
	return fmt.Sprintf("%s(%s)", f.Name, f.Argument.String())
}

// BinaryExpression: Left Operator Right (e.g. id = 1)
type BinaryExpression struct {
	Left     Expression
	Operator string
	Right    Expression
}

func (e *BinaryExpression) expressionNode()      {}
func (e *BinaryExpression) TokenLiteral() string { return e.Operator }
func (e *BinaryExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left.String(), e.Operator, e.Right.String())
}

// LogicalExpression: Left AND|OR Right
type LogicalExpression struct {
	Left     Expression
	Operator string
	Right    Expression
}

func (e *LogicalExpression) expressionNode()      {}
func (e *LogicalExpression) TokenLiteral() string { return e.Operator }
func (e *LogicalExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left.String(), e.Operator, e.Right.String())
}

// InExpression: Left [NOT] IN (v1, v2, ...)
type InExpression struct {
	Left   Expression
	Values []Expression
	Not    bool
}

func (e *InExpression) expressionNode()      {}
func (e *InExpression) TokenLiteral() string { return "IN" }
func (e *InExpression) String() string {
	op := "IN"
	if e.Not {
		op = "NOT IN"
	}
	return fmt.Sprintf("(%s %s (%s))", e.Left.String(), op, joinExpressions(e.Values))
}

// LikeExpression: Left LIKE 'pattern'
type LikeExpression struct {
	Left    Expression
	Pattern Expression
}

func (e *LikeExpression) expressionNode()      {}
func (e *LikeExpression) TokenLiteral() string { return "LIKE" }
func (e *LikeExpression) String() string {
	return fmt.Sprintf("(%s LIKE %s)", e.Left.String(), e.Pattern.String())
}

// BetweenExpression: Left BETWEEN Low AND High
type BetweenExpression struct {
	Left Expression
	Low  Expression
	High Expression
}

func (e *BetweenExpression) expressionNode()      {}
func (e *BetweenExpression) TokenLiteral() string { return "BETWEEN" }
func (e *BetweenExpression) String() string {
	return fmt.Sprintf("(%s BETWEEN %s AND %s)", e.Left.String(), e.Low.String(), e.High.String())
}

// OrderItem is one ORDER BY term
type OrderItem struct {
	Expr Expression
	Desc bool
}

func (o OrderItem) String() string {
	if o.Desc {
		return o.Expr.String() + " DESC"
	}
	return o.Expr.String() + " ASC"
}

// SelectStatement: SELECT [DISTINCT] fields FROM table [WHERE ...] [GROUP BY ...]
// [HAVING ...] [ORDER BY ...] [LIMIT n [OFFSET m]]
type SelectStatement struct {
	Distinct bool
	Fields   []Expression // *Identifier or *FunctionCall
	Tables   []*Identifier
	Where    Expression
	GroupBy  []*Identifier
	Having   Expression
	OrderBy  []OrderItem
	Limit    *int64
	Offset   *int64
}

func (s *SelectStatement) statementNode()       {}
func (s *SelectStatement) TokenLiteral() string { return "SELECT" }
func (s *SelectStatement) String() string {
	var out bytes.Buffer
	out.WriteString("SELECT ")
	if s.Distinct {
		out.WriteString("DISTINCT ")
	}
	out.WriteString(joinExpressions(s.Fields))
	out.WriteString(" FROM ")
	for i, t := range s.Tables {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(t.String())
	}
	if s.Where != nil {
		out.WriteString(" WHERE ")
		out.WriteString(s.Where.String())
	}
	if len(s.GroupBy) > 0 {
		out.WriteString(" GROUP BY ")
		for i, g := range s.GroupBy {
			if i > 0 {
				out.WriteString(", ")
			}
			out.WriteString(g.String())
		}
	}
	if s.Having != nil {
		out.WriteString(" HAVING ")
		out.WriteString(s.Having.String())
	}
	if len(s.OrderBy) > 0 {
		out.WriteString(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				out.WriteString(", ")
			}
			out.WriteString(o.String())
		}
	}
	if s.Limit != nil {
		fmt.Fprintf(&out, " LIMIT %d", *s.Limit)
	}
	if s.Offset != nil {
		fmt.Fprintf(&out, " OFFSET %d", *s.Offset)
	}
	return out.String()
}

// TableName returns the first FROM table
func (s *SelectStatement) TableName() string {
	if len(s.Tables) == 0 {
		return ""
	}
	return s.Tables[0].Value
}

// InsertStatement: INSERT INTO table (col1, col2) VALUES (val1, val2)[, (...)]
type InsertStatement struct {
	TableName *Identifier
	Columns   []*Identifier
	Rows      [][]Expression
}

func (s *InsertStatement) statementNode()       {}
func (s *InsertStatement) TokenLiteral() string { return "INSERT" }
func (s *InsertStatement) String() string {
	var out bytes.Buffer
	out.WriteString("INSERT INTO ")
	out.WriteString(s.TableName.String())
	out.WriteString(" (")
	for i, c := range s.Columns {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(c.String())
	}
	out.WriteString(") VALUES ")
	for i, row := range s.Rows {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString("(" + joinExpressions(row) + ")")
	}
	return out.String()
}

// Assignment is one SET term of an UPDATE
type Assignment struct {
	Column *Identifier
	Value  Expression
}

// UpdateStatement: UPDATE table SET col = val, ... [WHERE ...]
type UpdateStatement struct {
	TableName   *Identifier
	Assignments []Assignment
	Where       Expression
}

func (s *UpdateStatement) statementNode()       {}
func (s *UpdateStatement) TokenLiteral() string { return "UPDATE" }
func (s *UpdateStatement) String() string {
	var out bytes.Buffer
	out.WriteString("UPDATE ")
	out.WriteString(s.TableName.String())
	out.WriteString(" SET ")
	for i, a := range s.Assignments {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(a.Column.String() + " = " + a.Value.String())
	}
	if s.Where != nil {
		out.WriteString(" WHERE ")
		out.WriteString(s.Where.String())
	}
	return out.String()
}

// DeleteStatement: DELETE FROM table [WHERE ...]
type DeleteStatement struct {
	TableName *Identifier
	Where     Expression
}

func (s *DeleteStatement) statementNode()       {}
func (s *DeleteStatement) TokenLiteral() string { return "DELETE" }
func (s *DeleteStatement) String() string {
	out := "DELETE FROM " + s.TableName.String()
	if s.Where != nil {
		out += " WHERE " + s.Where.String()
	}
	return out
}

// ColumnDefinition is a column of CREATE TABLE or ALTER TABLE ADD
type ColumnDefinition struct {
	Name       string
	Type       string
	PrimaryKey bool
	Unique     bool
}

func (c ColumnDefinition) String() string {
	out := c.Name + " " + c.Type
	if c.PrimaryKey {
		out += " PRIMARY KEY"
	}
	if c.Unique {
		out += " UNIQUE"
	}
	return out
}

// CreateTableStatement: CREATE TABLE t (col TYPE [PRIMARY KEY|UNIQUE], ..., [UNIQUE(col)], [PRIMARY KEY(col)])
type CreateTableStatement struct {
	TableName  *Identifier
	Columns    []ColumnDefinition
	PrimaryKey []string   // table-level PRIMARY KEY (...)
	Unique     [][]string // table-level UNIQUE (...)
}

func (s *CreateTableStatement) statementNode()       {}
func (s *CreateTableStatement) TokenLiteral() string { return "CREATE" }
func (s *CreateTableStatement) String() string {
	parts := make([]string, 0, len(s.Columns)+len(s.Unique)+1)
	for _, c := range s.Columns {
		parts = append(parts, c.String())
	}
	if len(s.PrimaryKey) > 0 {
		parts = append(parts, "PRIMARY KEY ("+strings.Join(s.PrimaryKey, ", ")+")")
	}
	for _, u := range s.Unique {
		parts = append(parts, "UNIQUE ("+strings.Join(u, ", ")+")")
	}
	return "CREATE TABLE " + s.TableName.String() + " (" + strings.Join(parts, ", ") + ")"
}

type AlterAction int

const (
	AlterAddColumn AlterAction = iota
	AlterDropColumn
	AlterAddUnique
	AlterAddPrimaryKey
)

// AlterTableStatement: ALTER TABLE t ADD [COLUMN] c TYPE | DROP COLUMN c |
// ADD UNIQUE (c) | ADD PRIMARY KEY (c)
type AlterTableStatement struct {
	TableName *Identifier
	Action    AlterAction
	Column    *ColumnDefinition // AlterAddColumn
	Columns   []string          // every other action
}

func (s *AlterTableStatement) statementNode()       {}
func (s *AlterTableStatement) TokenLiteral() string { return "ALTER" }
func (s *AlterTableStatement) String() string {
	out := "ALTER TABLE " + s.TableName.String()
	switch s.Action {
	case AlterAddColumn:
		return out + " ADD COLUMN " + s.Column.String()
	case AlterDropColumn:
		return out + " DROP COLUMN " + strings.Join(s.Columns, ", ")
	case AlterAddUnique:
		return out + " ADD UNIQUE (" + strings.Join(s.Columns, ", ") + ")"
	default:
		return out + " ADD PRIMARY KEY (" + strings.Join(s.Columns, ", ") + ")"
	}
}

// DropTableStatement: DROP TABLE t
type DropTableStatement struct {
	TableName *Identifier
}

func (s *DropTableStatement) statementNode()       {}
func (s *DropTableStatement) TokenLiteral() string { return "DROP" }
func (s *DropTableStatement) String() string       { return "DROP TABLE " + s.TableName.String() }

// CreateIndexStatement: CREATE [UNIQUE] INDEX [name] ON t (c) [USING kind]
type CreateIndexStatement struct {
	Name      string
	TableName *Identifier
	Columns   []string
	Using     string
	Unique    bool
}

func (s *CreateIndexStatement) statementNode()       {}
func (s *CreateIndexStatement) TokenLiteral() string { return "CREATE" }
func (s *CreateIndexStatement) String() string {
	out := "CREATE "
	if s.Unique {
		out += "UNIQUE "
	}
	out += "INDEX "
	if s.Name != "" {
		out += s.Name + " "
	}
	out += "ON " + s.TableName.String() + " (" + strings.Join(s.Columns, ", ") + ")"
	if s.Using != "" {
		out += " USING " + s.Using
	}
	return out
}

// DropIndexStatement: DROP INDEX c ON t
type DropIndexStatement struct {
	Column    string
	TableName *Identifier
}

func (s *DropIndexStatement) statementNode()       {}
func (s *DropIndexStatement) TokenLiteral() string { return "DROP" }
func (s *DropIndexStatement) String() string {
	return "DROP INDEX " + s.Column + " ON " + s.TableName.String()
}

// CreateDatabaseStatement: CREATE DATABASE name
type CreateDatabaseStatement struct {
	Name string
}

func (s *CreateDatabaseStatement) statementNode()       {}
func (s *CreateDatabaseStatement) TokenLiteral() string { return "CREATE" }
func (s *CreateDatabaseStatement) String() string       { return "CREATE DATABASE " + s.Name }

// DropDatabaseStatement: DROP DATABASE name
type DropDatabaseStatement struct {
	Name string
}

func (s *DropDatabaseStatement) statementNode()       {}
func (s *DropDatabaseStatement) TokenLiteral() string { return "DROP" }
func (s *DropDatabaseStatement) String() string       { return "DROP DATABASE " + s.Name }

// UseDatabaseStatement: USE name
type UseDatabaseStatement struct {
	Name string
}

func (s *UseDatabaseStatement) statementNode()       {}
func (s *UseDatabaseStatement) TokenLiteral() string { return "USE" }
func (s *UseDatabaseStatement) String() string       { return "USE " + s.Name }

func joinExpressions(list []Expression) string {
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
