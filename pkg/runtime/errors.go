// Package runtime is the execution boundary: the Executor interface the
// query layer talks to, its PostgreSQL implementation on pgx, the SQL
// compiler and the execution error taxonomy.
package runtime

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNoMatchingRow is returned when a bound record no longer has a row,
	// e.g. after deletion.
	ErrNoMatchingRow = errors.New("no matching row")

	// ErrNothingFound is returned by the or-fail terminals when a query
	// yields no rows.
	ErrNothingFound = errors.New("nothing found")

	// ErrBoolPredicate is returned when a literal bool is passed where a
	// predicate is expected.
	ErrBoolPredicate = errors.New("a bool is not a predicate")

	// ErrUnknownField is returned when a record is asked for a column its
	// model does not declare.
	ErrUnknownField = errors.New("unknown field")

	// ErrNoConnection is returned when no database connection is available.
	ErrNoConnection = errors.New("no database connection")
)

// QueryError ties an execution failure to the statement that caused it.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v\nSQL: %s", e.Err, e.SQL)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
