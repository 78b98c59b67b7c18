package schema

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
)

// JoinStrategy selects how a relationship is attached to a query.
type JoinStrategy string

const (
	// JoinDefault picks left for optional or multiple relationships and
	// inner otherwise.
	JoinDefault JoinStrategy = ""
	JoinLeft    JoinStrategy = "left"
	JoinInner   JoinStrategy = "inner"
)

// ConditionFunc produces the join predicate between an owner and an aliased
// target model.
type ConditionFunc func(owner, target *Model) Expr

// OnFunc produces explicit join clauses, for relationships that hop through
// intermediate tables. On-relationships always join left.
type OnFunc func(owner, target *Model) []Join

// Target identifies the far side of a relationship in exactly one of three
// ways: an already-materialized model, a Go declaration type resolved at
// query time, or a bare table name. Name targets that never resolve to a
// declaration fall back to an untyped table.
type Target struct {
	model  *Model
	goType reflect.Type
	name   string
}

// TargetModel builds a target from a materialized model.
func TargetModel(m *Model) Target { return Target{model: m} }

// TargetType builds a target from a declaration type.
func TargetType(t reflect.Type) Target { return Target{goType: t} }

// TargetName builds a deferred target from a table name, resolved against
// the registry when the relationship is first used.
func TargetName(name string) Target { return Target{name: name} }

// Name returns the target's table name without resolving it.
func (t Target) Name() string {
	switch {
	case t.model != nil:
		return t.model.Name()
	case t.goType != nil:
		return TableNameOf(t.goType)
	}
	return t.name
}

// Resolve materializes the target using the given lookup (name → model).
// Unresolvable name targets degrade to a bare table; unresolvable type
// targets are an error since a declaration was clearly intended.
func (t Target) Resolve(lookup func(name string) *Model) (*Model, error) {
	if t.model != nil {
		return t.model, nil
	}
	name := t.Name()
	if name == "" {
		return nil, errors.Wrap(ErrInvalidRelationship, "empty target")
	}
	if lookup != nil {
		if m := lookup(name); m != nil {
			return m, nil
		}
	}
	if t.goType != nil {
		return nil, errors.Wrapf(ErrModelNotDefined, "relationship target %s", name)
	}
	return BareTable(name), nil
}

// Relationship describes how rows of another table relate to rows of the
// owning model: the target, the join predicate (or explicit on-clauses),
// the join strategy and the cardinality. Descriptors are immutable once
// declared; Clone copies before any override.
type Relationship struct {
	target    Target
	condition ConditionFunc
	on        OnFunc
	join      JoinStrategy
	multiple  bool
	err       error
}

// RelationshipOption configures a descriptor at construction.
type RelationshipOption func(*Relationship)

// WithCondition sets the join predicate.
func WithCondition(fn ConditionFunc) RelationshipOption {
	return func(r *Relationship) { r.condition = fn }
}

// WithOn sets explicit join clauses. Mutually exclusive with WithCondition.
func WithOn(fn OnFunc) RelationshipOption {
	return func(r *Relationship) { r.on = fn }
}

// WithJoin overrides the join strategy.
func WithJoin(s JoinStrategy) RelationshipOption {
	return func(r *Relationship) { r.join = s }
}

// One declares a single-valued relationship to the given target, which may be
// a declaration struct (value or pointer), a *Model, a Target, or a table
// name string. A WithCondition or WithOn option is required; there is no
// predicate to synthesize for an explicit declaration.
func One(target any, opts ...RelationshipOption) *Relationship {
	return newRelationship(target, false, opts)
}

// Many declares a multi-valued relationship.
func Many(target any, opts ...RelationshipOption) *Relationship {
	return newRelationship(target, true, opts)
}

func newRelationship(target any, multiple bool, opts []RelationshipOption) *Relationship {
	rel := &Relationship{multiple: multiple}
	switch t := target.(type) {
	case Target:
		rel.target = t
	case *Model:
		rel.target = TargetModel(t)
	case string:
		rel.target = TargetName(t)
	case reflect.Type:
		rel.target = TargetType(t)
	case nil:
		rel.err = errors.Wrap(ErrInvalidRelationship, "nil target")
	default:
		rt := reflect.TypeOf(target)
		for rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		if rt.Kind() != reflect.Struct {
			rel.err = errors.Wrapf(ErrInvalidRelationship, "target %T is not a declaration", target)
			break
		}
		rel.target = TargetType(rt)
	}
	for _, opt := range opts {
		opt(rel)
	}
	if rel.err == nil {
		switch {
		case rel.condition != nil && rel.on != nil:
			rel.err = errors.Wrap(ErrInvalidRelationship, "condition and on are mutually exclusive")
		case rel.condition == nil && rel.on == nil:
			rel.err = errors.Wrap(ErrInvalidRelationship, "a condition or an on clause is required")
		}
	}
	return rel
}

// synthesizeRelationship builds the implicit descriptor for a reference
// field: contains(target.id) for list references, equality otherwise. The
// join defaults to left when the column can be empty.
func synthesizeRelationship(spec *FieldSpec) *Relationship {
	column := spec.Name
	multiple := spec.Column.IsList()
	rel := &Relationship{
		target:   TargetName(spec.Column.ReferencedTable()),
		multiple: multiple,
	}
	if multiple {
		rel.condition = func(owner, target *Model) Expr {
			return owner.Field(column).Contains(target.ID())
		}
		rel.join = JoinLeft
	} else {
		rel.condition = func(owner, target *Model) Expr {
			return owner.Field(column).Eq(target.ID())
		}
		if spec.Optional || spec.Column.Nullable {
			rel.join = JoinLeft
		} else {
			rel.join = JoinInner
		}
	}
	return rel
}

// Err returns the construction error, surfaced by Define.
func (r *Relationship) Err() error { return r.err }

// Multiple reports whether the relationship is multi-valued.
func (r *Relationship) Multiple() bool { return r.multiple }

// Target returns the target descriptor.
func (r *Relationship) Target() Target { return r.target }

// Strategy returns the effective join strategy: the explicit override, left
// when an on-clause or multiplicity forces it, inner otherwise.
func (r *Relationship) Strategy() JoinStrategy {
	if r.on != nil {
		return JoinLeft
	}
	if r.join != JoinDefault {
		return r.join
	}
	if r.multiple {
		return JoinLeft
	}
	return JoinInner
}

// Condition evaluates the join predicate against an owner and aliased target.
func (r *Relationship) Condition(owner, target *Model) Expr {
	if r.condition == nil {
		return nil
	}
	return r.condition(owner, target)
}

// On evaluates the explicit join clauses, nil when the relationship uses a
// plain condition.
func (r *Relationship) On(owner, target *Model) []Join {
	if r.on == nil {
		return nil
	}
	return r.on(owner, target)
}

// HasOn reports whether the relationship declares explicit join clauses.
func (r *Relationship) HasOn() bool { return r.on != nil }

// Clone returns a copy; overrides applied to the copy never touch the
// original.
func (r *Relationship) Clone(opts ...RelationshipOption) *Relationship {
	clone := *r
	for _, opt := range opts {
		opt(&clone)
	}
	if clone.condition != nil && clone.on != nil {
		clone.err = errors.Wrap(ErrInvalidRelationship, "condition and on are mutually exclusive")
	}
	return &clone
}

// Alias derives the deterministic alias a relationship's target carries in a
// query, distinct per (name, shape) so two relationships on the same table
// never collide.
func (r *Relationship) Alias(name string) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%v|%s", r.target.Name(), r.multiple, r.Strategy())
	return fmt.Sprintf("%s_%08x", strings.ReplaceAll(name, ".", "_"), h.Sum32())
}
