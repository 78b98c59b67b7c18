package schema

import (
	"reflect"
)

// Model is the materialized schema of one table: ordered field specs,
// relationship descriptors and the Go declaration it came from. Models are
// produced by Parse, bound by the registrar and treated as immutable
// afterwards; WithAlias returns aliased copies for join clauses.
type Model struct {
	name   string
	alias  string
	goType reflect.Type
	entity bool
	bare   bool
	opts   TableOptions

	fields []*FieldSpec
	index  map[string]*FieldSpec

	rels     map[string]*Relationship
	relOrder []string

	bound bool
}

// BareTable builds an untyped model for a table that has no Go declaration.
// It carries no field specs; fields resolve to raw column handles and rows
// materialize as plain data.
func BareTable(name string) *Model {
	return &Model{
		name:  name,
		bare:  true,
		index: make(map[string]*FieldSpec),
		rels:  make(map[string]*Relationship),
	}
}

// Name returns the table name.
func (m *Model) Name() string { return m.name }

// Alias returns the name the model is addressed by in a query: the alias when
// set, else the table name.
func (m *Model) Alias() string {
	if m.alias != "" {
		return m.alias
	}
	return m.name
}

// GoType returns the declaration type, nil for bare tables.
func (m *Model) GoType() reflect.Type { return m.goType }

// IsEntity reports whether the declaration embedded the Entity marker.
func (m *Model) IsEntity() bool { return m.entity }

// Bare reports whether the model is an untyped table.
func (m *Model) Bare() bool { return m.bare }

// Bound reports whether the model has been materialized by a registrar.
func (m *Model) Bound() bool { return m.bound }

// Options returns the table-level options.
func (m *Model) Options() TableOptions { return m.opts }

// Fields returns the field specs in declaration order, id first.
func (m *Model) Fields() []*FieldSpec { return m.fields }

// Columns returns the column specs in declaration order.
func (m *Model) Columns() []ColumnSpec {
	cols := make([]ColumnSpec, len(m.fields))
	for i, f := range m.fields {
		cols[i] = f.Column
	}
	return cols
}

// Has reports whether a column of that name is declared.
func (m *Model) Has(name string) bool {
	if m.bare {
		return true
	}
	_, ok := m.index[name]
	return ok
}

// Field returns a queryable handle on the named column. Bare tables hand out
// handles for any name; typed models return nil for unknown columns.
func (m *Model) Field(name string) *Field {
	if spec, ok := m.index[name]; ok {
		return &Field{owner: m, column: name, spec: spec}
	}
	if m.bare {
		return &Field{owner: m, column: name}
	}
	return nil
}

// ID returns the handle on the identifier column.
func (m *Model) ID() *Field { return m.Field(IDColumn) }

// Spec returns the field spec for a column, nil when absent.
func (m *Model) Spec(name string) *FieldSpec { return m.index[name] }

// Relationship returns the named descriptor, nil when absent.
func (m *Model) Relationship(name string) *Relationship { return m.rels[name] }

// RelationshipNames returns descriptor names in declaration order.
func (m *Model) RelationshipNames() []string { return m.relOrder }

// WithAlias returns a copy addressed by the given alias. Field handles taken
// from the copy qualify with the alias; the original is untouched.
func (m *Model) WithAlias(alias string) *Model {
	clone := *m
	clone.alias = alias
	return &clone
}

// ApplyOptions merges table-level options, renaming the table when the
// options carry a name. Must happen before Bind.
func (m *Model) ApplyOptions(opts TableOptions) {
	if opts.Name != "" {
		m.name = opts.Name
	}
	if opts.Comment != "" {
		m.opts.Comment = opts.Comment
	}
	m.opts.Name = m.name
}

// Bind marks the model and its field specs as materialized. Called by the
// registrar once the table exists.
func (m *Model) Bind() {
	m.bound = true
	for _, f := range m.fields {
		f.bind(m.name)
	}
}

func (m *Model) addField(spec *FieldSpec) {
	if existing, ok := m.index[spec.Name]; ok {
		*existing = *spec
		return
	}
	m.fields = append(m.fields, spec)
	m.index[spec.Name] = spec
}

func (m *Model) addRelationship(name string, rel *Relationship) {
	if _, ok := m.rels[name]; !ok {
		m.relOrder = append(m.relOrder, name)
	}
	m.rels[name] = rel
}
