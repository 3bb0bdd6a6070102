package orb

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrSchemaNotFound is returned when a schema name is not registered.
	ErrSchemaNotFound = errors.New("orb: schema not found")

	// ErrColumnNotFound is returned when a column or collector name does not
	// resolve on a schema.
	ErrColumnNotFound = errors.New("orb: column not found")

	// ErrQueryInvalid is returned when a query cannot be compiled.
	ErrQueryInvalid = errors.New("orb: invalid query")

	// ErrConnectionLost is returned when a live session dropped.
	ErrConnectionLost = errors.New("orb: connection lost")

	// ErrInterrupted is returned when a statement was cancelled.
	ErrInterrupted = errors.New("orb: statement interrupted")

	// ErrTimeout is returned when a statement exceeded its time limit.
	ErrTimeout = errors.New("orb: statement timeout")

	// ErrTxShared is returned when a transaction is used from more than one
	// execution context at the same time.
	ErrTxShared = errors.New("orb: transaction shared across execution contexts")

	// ErrTxDone is returned when a statement runs on a finished transaction.
	ErrTxDone = errors.New("orb: transaction already finished")

	// ErrPoolClosed is returned when checking out from a closed pool.
	ErrPoolClosed = errors.New("orb: pool closed")
)

// Diagnostic holds the rendered statement attached to execution errors.
type Diagnostic struct {
	SQL  string
	Args []any
}

func (d Diagnostic) String() string {
	if d.SQL == "" {
		return ""
	}
	return fmt.Sprintf(" [sql=%q args=%v]", d.SQL, d.Args)
}

// SchemaNotFoundError is returned when a schema lookup fails.
type SchemaNotFoundError struct {
	Name string
}

// Error returns the error string.
func (e *SchemaNotFoundError) Error() string {
	return fmt.Sprintf("orb: schema %q not found", e.Name)
}

// Is reports whether the target error matches SchemaNotFoundError.
func (e *SchemaNotFoundError) Is(err error) bool {
	return err == ErrSchemaNotFound
}

// NewSchemaNotFoundError returns a new SchemaNotFoundError.
func NewSchemaNotFoundError(name string) *SchemaNotFoundError {
	return &SchemaNotFoundError{Name: name}
}

// IsSchemaNotFound returns true if the error is a SchemaNotFoundError.
func IsSchemaNotFound(err error) bool {
	return errors.Is(err, ErrSchemaNotFound)
}

// ColumnNotFoundError is returned when a column lookup fails.
type ColumnNotFoundError struct {
	Schema string
	Column string
}

// Error returns the error string.
func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("orb: column %q not found on %s", e.Column, e.Schema)
}

// Is reports whether the target error matches ColumnNotFoundError.
func (e *ColumnNotFoundError) Is(err error) bool {
	return err == ErrColumnNotFound
}

// NewColumnNotFoundError returns a new ColumnNotFoundError.
func NewColumnNotFoundError(schema, column string) *ColumnNotFoundError {
	return &ColumnNotFoundError{Schema: schema, Column: column}
}

// IsColumnNotFound returns true if the error is a ColumnNotFoundError.
func IsColumnNotFound(err error) bool {
	return errors.Is(err, ErrColumnNotFound)
}

// DuplicateColumnError is returned when two columns of one schema (or of its
// inheritance chain) share a name or a storage field.
type DuplicateColumnError struct {
	Schema string
	Column string
	// Owner is the schema that already defines the column.
	Owner string
}

// Error returns the error string.
func (e *DuplicateColumnError) Error() string {
	if e.Owner != "" && e.Owner != e.Schema {
		return fmt.Sprintf("orb: column %q of %s already defined by %s", e.Column, e.Schema, e.Owner)
	}
	return fmt.Sprintf("orb: duplicate column %q on %s", e.Column, e.Schema)
}

// InheritanceCycleError is returned when a schema chain loops back on itself.
type InheritanceCycleError struct {
	Chain []string
}

// Error returns the error string.
func (e *InheritanceCycleError) Error() string {
	return fmt.Sprintf("orb: inheritance cycle: %s", strings.Join(e.Chain, " -> "))
}

// RelationError is returned when a relationship descriptor cannot be bound
// to a concrete reference column.
type RelationError struct {
	Schema   string
	Relation string
	Reason   string
}

// Error returns the error string.
func (e *RelationError) Error() string {
	return fmt.Sprintf("orb: relation %s.%s: %s", e.Schema, e.Relation, e.Reason)
}

// QueryInvalidError is returned when a query or one of its paths cannot be
// resolved or compiled.
type QueryInvalidError struct {
	Path   string
	Reason string
}

// Error returns the error string.
func (e *QueryInvalidError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("orb: invalid query %q: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("orb: invalid query: %s", e.Reason)
}

// Is reports whether the target error matches QueryInvalidError.
func (e *QueryInvalidError) Is(err error) bool {
	return err == ErrQueryInvalid
}

// NewQueryInvalidError returns a new QueryInvalidError.
func NewQueryInvalidError(path, format string, args ...any) *QueryInvalidError {
	return &QueryInvalidError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// IsQueryInvalid returns true if the error is a QueryInvalidError.
func IsQueryInvalid(err error) bool {
	return errors.Is(err, ErrQueryInvalid)
}

// ConnectionFailedError is returned when a session cannot be opened.
type ConnectionFailedError struct {
	Err error
}

// Error returns the error string.
func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("orb: connection failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionFailedError) Unwrap() error {
	return e.Err
}

// IsConnectionFailed returns true if the error is a ConnectionFailedError.
func IsConnectionFailed(err error) bool {
	var e *ConnectionFailedError
	return errors.As(err, &e)
}

// ConnectionLostError is returned when an open session dropped while in use.
type ConnectionLostError struct {
	Diagnostic
	Err error
}

// Error returns the error string.
func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("orb: connection lost: %v%s", e.Err, e.Diagnostic)
}

// Unwrap returns the underlying error.
func (e *ConnectionLostError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ConnectionLostError.
func (e *ConnectionLostError) Is(err error) bool {
	return err == ErrConnectionLost
}

// IsConnectionLost returns true if the error is a ConnectionLostError.
func IsConnectionLost(err error) bool {
	return errors.Is(err, ErrConnectionLost)
}

// QueryFailedError is returned when the backend rejected a statement.
type QueryFailedError struct {
	Diagnostic
	Err error
}

// Error returns the error string.
func (e *QueryFailedError) Error() string {
	return fmt.Sprintf("orb: query failed: %v%s", e.Err, e.Diagnostic)
}

// Unwrap returns the underlying error.
func (e *QueryFailedError) Unwrap() error {
	return e.Err
}

// IsQueryFailed returns true if the error is a QueryFailedError.
func IsQueryFailed(err error) bool {
	var e *QueryFailedError
	return errors.As(err, &e)
}

// DuplicateEntryError is returned on a uniqueness violation.
type DuplicateEntryError struct {
	Diagnostic
	// Key is the offending column list and Value the offending value, when
	// the backend reports them.
	Key   string
	Value string
	Err   error
}

// Error returns the error string.
func (e *DuplicateEntryError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("orb: duplicate entry (%s)=(%s)%s", e.Key, e.Value, e.Diagnostic)
	}
	return fmt.Sprintf("orb: duplicate entry: %v%s", e.Err, e.Diagnostic)
}

// Unwrap returns the underlying error.
func (e *DuplicateEntryError) Unwrap() error {
	return e.Err
}

// IsDuplicateEntry returns true if the error is a DuplicateEntryError.
func IsDuplicateEntry(err error) bool {
	var e *DuplicateEntryError
	return errors.As(err, &e)
}

// CannotDeleteError is returned when a blocking reference prevents a delete.
type CannotDeleteError struct {
	Diagnostic
	// Table is the referencing table, when the backend reports it.
	Table string
	Err   error
}

// Error returns the error string.
func (e *CannotDeleteError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("orb: cannot delete, still referenced from %s%s", e.Table, e.Diagnostic)
	}
	return fmt.Sprintf("orb: cannot delete: %v%s", e.Err, e.Diagnostic)
}

// Unwrap returns the underlying error.
func (e *CannotDeleteError) Unwrap() error {
	return e.Err
}

// IsCannotDelete returns true if the error is a CannotDeleteError.
func IsCannotDelete(err error) bool {
	var e *CannotDeleteError
	return errors.As(err, &e)
}

// InterruptionError is returned when a running statement was cancelled.
type InterruptionError struct {
	Diagnostic
	Err error
}

// Error returns the error string.
func (e *InterruptionError) Error() string {
	return fmt.Sprintf("orb: interrupted: %v%s", e.Err, e.Diagnostic)
}

// Unwrap returns the underlying error.
func (e *InterruptionError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches InterruptionError.
func (e *InterruptionError) Is(err error) bool {
	return err == ErrInterrupted
}

// IsInterruption returns true if the error is an InterruptionError.
func IsInterruption(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

// QueryTimeoutError is returned when a statement ran past its time limit.
type QueryTimeoutError struct {
	Diagnostic
	Err error
}

// Error returns the error string.
func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("orb: statement timeout: %v%s", e.Err, e.Diagnostic)
}

// Unwrap returns the underlying error.
func (e *QueryTimeoutError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches QueryTimeoutError.
func (e *QueryTimeoutError) Is(err error) bool {
	return err == ErrTimeout
}

// IsQueryTimeout returns true if the error is a QueryTimeoutError.
func IsQueryTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// ValidationError represents a validation error for column values.
type ValidationError struct {
	Name string // Column or schema name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("orb: validator failed for column %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given column.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// TxSharedError is returned when a statement runs on a transaction that
// another execution context is using.
//
// Sharing is detected while a statement of the transaction is running:
// Go has no goroutine identity to bind the transaction to, so a context
// handed to another goroutine and used strictly one statement at a time
// is not rejected. Callers must not hand transaction contexts across
// goroutines.
type TxSharedError struct {
	Diagnostic
}

// Error returns the error string.
func (e *TxSharedError) Error() string {
	return ErrTxShared.Error() + e.Diagnostic.String()
}

// Is reports whether the target error matches TxSharedError.
func (e *TxSharedError) Is(err error) bool {
	return err == ErrTxShared
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("orb: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "orb: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("orb: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// IsCompilation reports whether err happened before any statement reached
// the backend. Such errors are never retried.
func IsCompilation(err error) bool {
	if err == nil {
		return false
	}
	var (
		dup   *DuplicateColumnError
		cycle *InheritanceCycleError
		rel   *RelationError
	)
	return IsSchemaNotFound(err) || IsColumnNotFound(err) || IsQueryInvalid(err) ||
		errors.As(err, &dup) || errors.As(err, &cycle) || errors.As(err, &rel)
}

// IsRetryable reports whether a statement that failed with err may be
// replayed on a fresh session.
func IsRetryable(err error) bool {
	return IsConnectionLost(err)
}

// IsIntegrity reports whether err is a constraint violation.
func IsIntegrity(err error) bool {
	return IsDuplicateEntry(err) || IsCannotDelete(err)
}
