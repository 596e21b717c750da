package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Code classifies an OperationError
type Code string

const (
	IndexingError                 Code = "INDEXING_ERROR"
	IndexCountError               Code = "INDEX_COUNT_ERROR"
	OperationNotSupported         Code = "OPERATION_NOT_SUPPORTED"
	SelectError                   Code = "SELECT_ERROR"
	InternalOperationError        Code = "INTERNAL_OPERATION_ERROR"
	InvalidOperatorUsage          Code = "INVALID_OPERATOR_USAGE"
	UnknownColumn                 Code = "UNKNOWN_COLUMN"
	UnknownTable                  Code = "UNKNOWN_TABLE"
	TableExists                   Code = "TABLE_EXISTS"
	AlreadyIndexed                Code = "ALREADY_INDEXED"
	NotIndexed                    Code = "NOT_INDEXED"
	PrimaryKeyIndexDropRestricted Code = "PRIMARY_KEY_INDEX_DROP_RESTRICTED"
	StringLengthExceeded          Code = "STRING_LENGTH_EXCEEDED"
	DatatypeMismatch              Code = "DATATYPE_MISMATCH"
	InvalidQuery                  Code = "INVALID_QUERY"
	InsertError                   Code = "INSERT_ERROR"
	UpdateError                   Code = "UPDATE_ERROR"
	DatastoreInvalid              Code = "DATASTORE_INVALID"
)

// OperationError is the error returned by every index, storage and query operation
type OperationError struct {
	Code    Code
	Message string
	Err     error // underlying cause, may be nil
}

func (e *OperationError) Error() string {
	parts := []string{string(e.Code)}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, " - ")
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// New creates an OperationError without an underlying cause
func New(code Code, format string, args ...interface{}) *OperationError {
	return &OperationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an OperationError around err
func Wrap(code Code, err error, format string, args ...interface{}) *OperationError {
	return &OperationError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of the first OperationError in err's chain, or "" if none
func CodeOf(err error) Code {
	var opErr *OperationError
	if stderrors.As(err, &opErr) {
		return opErr.Code
	}
	return ""
}

// Is reports whether err carries the given code
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// ConstraintError represents a violation of a table constraint (unique, primary key)
type ConstraintError struct {
	Table      string      // table name
	Column     string      // column name
	Value      interface{} // offending value (may be nil)
	Constraint string      // "unique", "primary_key", ...
	Reason     string      // human-readable explanation (optional)
	Owner      string      // primary key already holding the value, if known
}

func (e *ConstraintError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("constraint violation in %s.%s", e.Table, e.Column))

	if e.Constraint != "" {
		parts = append(parts, fmt.Sprintf("(%s)", e.Constraint))
	}

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}

	if e.Owner != "" {
		parts = append(parts, fmt.Sprintf("held by %s", e.Owner))
	}

	return strings.Join(parts, " - ")
}

func NewUniqueViolation(table, column string, value interface{}, owner string) *ConstraintError {
	return &ConstraintError{
		Table:      table,
		Column:     column,
		Value:      value,
		Constraint: "unique",
		Reason:     "duplicate value",
		Owner:      owner,
	}
}

func NewPrimaryKeyViolation(table, column string, value interface{}) *ConstraintError {
	return &ConstraintError{
		Table:      table,
		Column:     column,
		Value:      value,
		Constraint: "primary_key",
		Reason:     "duplicate primary key",
	}
}
