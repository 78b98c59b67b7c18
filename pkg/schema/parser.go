package schema

import (
	"reflect"
	"sort"

	"github.com/cockroachdb/errors"
)

// Parse turns a struct declaration into an unbound Model: the implicit id
// column, every declared field mapped to a column spec, explicit relationship
// descriptors and the implicit ones synthesized from reference fields.
// Embedded structs form an inheritance chain walked base-first, so derived
// declarations override inherited fields in place.
func Parse(decl any, cfg Config) (*Model, error) {
	t, ok := decl.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(decl)
	}
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errors.Newf("declaration must be a struct, got %v", t)
	}

	m := &Model{
		name:   TableNameOf(t),
		goType: t,
		entity: EmbedsEntity(t),
		index:  make(map[string]*FieldSpec),
		rels:   make(map[string]*Relationship),
	}
	m.addField(&FieldSpec{
		Name:   IDColumn,
		Column: ColumnSpec{Name: IDColumn, Type: TypeID},
	})

	if err := collectFields(t, m, cfg); err != nil {
		return nil, err
	}

	if err := collectRelationships(t, m); err != nil {
		return nil, err
	}

	// Reference fields without an explicit descriptor of the same name get
	// an implicit one; explicit declarations win.
	for _, spec := range m.fields {
		if !spec.Column.IsReference() {
			continue
		}
		if _, ok := m.rels[spec.Name]; ok {
			continue
		}
		m.addRelationship(spec.Name, synthesizeRelationship(spec))
	}

	return m, nil
}

func collectFields(t reflect.Type, m *Model, cfg Config) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Anonymous {
			base := field.Type
			for base.Kind() == reflect.Pointer {
				base = base.Elem()
			}
			if base == entityType {
				continue
			}
			if base.Kind() == reflect.Struct && !isScalar(base) {
				if err := collectFields(base, m, cfg); err != nil {
					return err
				}
				continue
			}
		}

		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get(StructTagKey)
		if tag == "-" {
			continue
		}

		spec, err := fieldSpec(m.name, field, tag, cfg)
		if err != nil {
			return err
		}
		m.addField(spec)
	}
	return nil
}

func fieldSpec(model string, field reflect.StructField, tag string, cfg Config) (*FieldSpec, error) {
	var opts *tagOptions
	if tag != "" {
		parsed, err := parseTag(tag)
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s", model, field.Name)
		}
		opts = parsed
	} else {
		opts = &tagOptions{Options: map[string]string{}}
	}

	name := opts.Name
	if name == "" {
		name = ToSnake(field.Name)
	}

	col := ColumnSpec{
		Name:     name,
		Nullable: !cfg.NotNullByDefault,
	}
	if storage := opts.Get("type"); storage != "" {
		col.Type = storage
		if field.Type.Kind() == reflect.Pointer {
			col.Nullable = true
		}
	} else {
		col.Type = MapType(field.Type, &col)
		if col.Type == "" {
			return nil, unsupportedTypeError(model, field.Name, field.Type)
		}
	}

	if opts.Has("nullable") {
		col.Nullable = true
	}
	if opts.Has("notnull") {
		col.Nullable = false
	}
	col.Unique = opts.Has("unique")
	col.Default = opts.Get("default")

	return &FieldSpec{
		Name:     name,
		GoName:   field.Name,
		Column:   col,
		Optional: field.Type.Kind() == reflect.Pointer,
	}, nil
}

func collectRelationships(t reflect.Type, m *Model) error {
	v := reflect.New(t).Elem()
	if !v.CanInterface() {
		return nil
	}
	declarer, ok := v.Interface().(RelationshipDeclarer)
	if !ok {
		return nil
	}
	declared := declarer.Relationships()

	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rel := declared[name]
		if rel == nil {
			return errors.Wrapf(ErrInvalidRelationship, "%s.%s: nil descriptor", m.name, name)
		}
		if err := rel.Err(); err != nil {
			return errors.Wrapf(err, "%s.%s", m.name, name)
		}
		m.addRelationship(name, rel)
	}
	return nil
}

// isScalar reports whether an embedded struct is a scalar column type rather
// than an inheritance base.
func isScalar(t reflect.Type) bool {
	_, ok := scalarMappings[t]
	return ok
}
