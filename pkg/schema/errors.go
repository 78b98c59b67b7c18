package schema

import "github.com/cockroachdb/errors"

// Declaration-time failures. Callers match with errors.Is; the wrapped
// message names the model and field involved.
var (
	// ErrUnsupportedType marks a declared field whose Go type has no
	// storage mapping.
	ErrUnsupportedType = errors.New("unsupported field type")

	// ErrInvalidRelationship marks a relationship descriptor that cannot
	// be used, e.g. one declaring both a condition and an on-clause.
	ErrInvalidRelationship = errors.New("invalid relationship")

	// ErrModelNotDefined marks a reference to a model that has not been
	// defined yet.
	ErrModelNotDefined = errors.New("model not defined")
)
