// Package schema turns Go struct declarations into table definitions:
// column specifications, relationship descriptors and the expression
// primitives used to query them.
package schema

import "reflect"

// Entity marks a struct as a record declaration. Embed it in every model:
//
//	type Author struct {
//	    schema.Entity
//	    Name string `slate:"name"`
//	}
//
// Declarations without the marker can still be defined as tables, but their
// rows are returned as raw data instead of typed records.
type Entity struct{}

var entityType = reflect.TypeOf(Entity{})

// TableNamer overrides the snake_case table name derived from the struct name.
type TableNamer interface {
	TableName() string
}

// RelationshipDeclarer supplies explicit relationship descriptors for a
// declaration. Explicit descriptors take precedence over the ones synthesized
// from reference fields of the same name.
type RelationshipDeclarer interface {
	Relationships() map[string]*Relationship
}

// Config controls declaration-time policy. It is passed explicitly to the
// registrar; there is no package-level mutable default.
type Config struct {
	// NotNullByDefault makes every non-optional column NOT NULL.
	NotNullByDefault bool
}

// DefaultConfig returns the standard declaration policy.
func DefaultConfig() Config {
	return Config{NotNullByDefault: true}
}

// TableOptions carries table-level construction options through to the
// executor.
type TableOptions struct {
	Name    string // overrides the derived table name
	Comment string
}

// EmbedsEntity reports whether t (or one of its embedded bases) carries the
// Entity marker.
func EmbedsEntity(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		if f.Type == entityType {
			return true
		}
		if f.Type.Kind() == reflect.Struct && EmbedsEntity(f.Type) {
			return true
		}
	}
	return false
}

// TableNameOf derives the storage name for a declaration type: the
// TableName() override when present, else the snake_case struct name.
func TableNameOf(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if v := reflect.New(t).Elem(); v.CanInterface() {
		if namer, ok := v.Interface().(TableNamer); ok {
			if name := namer.TableName(); name != "" {
				return name
			}
		}
	}
	return ToSnake(t.Name())
}
