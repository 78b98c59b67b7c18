package schema

import (
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

const (
	// StructTagKey is the key used in struct tags (e.g., `slate:"..."`).
	StructTagKey = "slate"

	// IDColumn is the implicit identifier column present on every table.
	IDColumn = "id"
)

// ColumnSpec is the storage-level description of one column, derived once at
// registration and handed to the executor when the table is created.
type ColumnSpec struct {
	Name     string
	Type     string // storage tag: string, integer, reference <table>, list:<tag>, ...
	Nullable bool
	Unique   bool
	Default  string // raw SQL default expression, optional
}

// IsReference reports whether the column stores a reference (or a list of
// references) to another table.
func (c ColumnSpec) IsReference() bool {
	return strings.HasPrefix(c.Type, "reference ") || strings.HasPrefix(c.Type, "list:reference ")
}

// ReferencedTable returns the target table of a reference column, or "".
func (c ColumnSpec) ReferencedTable() string {
	switch {
	case strings.HasPrefix(c.Type, "reference "):
		return strings.TrimPrefix(c.Type, "reference ")
	case strings.HasPrefix(c.Type, "list:reference "):
		return strings.TrimPrefix(c.Type, "list:reference ")
	}
	return ""
}

// IsList reports whether the column stores a list type.
func (c ColumnSpec) IsList() bool {
	return strings.HasPrefix(c.Type, "list:")
}

// FieldSpec is one declared field: the column specification plus the
// declaration-side metadata. After a successful Define the spec is bound to
// its materialized table.
type FieldSpec struct {
	Name     string // storage name (snake_case)
	GoName   string // declared struct field name, "" for the implicit id
	Column   ColumnSpec
	Optional bool // declared via pointer type

	table string // bound by the registrar
}

// Bound reports whether the field has been bound to a materialized table.
func (f *FieldSpec) Bound() bool { return f.table != "" }

// Table returns the table this field was bound to, or "".
func (f *FieldSpec) Table() string { return f.table }

func (f *FieldSpec) bind(table string) { f.table = table }

// tagOptions is a parsed struct tag: the column name followed by options in
// the form option, option(value) or option:value.
type tagOptions struct {
	Name    string
	Options map[string]string
	order   []string
}

func (t *tagOptions) Has(key string) bool {
	_, ok := t.Options[key]
	return ok
}

func (t *tagOptions) Get(key string) string {
	return t.Options[key]
}

// parseTag parses a tag value like "name,type(text),default(now()),unique".
// The leading column name may be empty ("" or a leading comma) to keep the
// derived name while still passing options.
func parseTag(tag string) (*tagOptions, error) {
	parts := splitTag(tag)
	if len(parts) == 0 {
		return nil, errors.New("empty tag value")
	}
	opts := &tagOptions{
		Name:    parts[0],
		Options: make(map[string]string),
	}
	for _, opt := range parts[1:] {
		if opt == "" {
			continue
		}
		if idx := strings.Index(opt, "("); idx != -1 {
			if !strings.HasSuffix(opt, ")") {
				return nil, errors.Newf("invalid option format: %s", opt)
			}
			key := opt[:idx]
			opts.Options[key] = opt[idx+1 : len(opt)-1]
			opts.order = append(opts.order, key)
		} else if idx := strings.Index(opt, ":"); idx != -1 {
			key := opt[:idx]
			opts.Options[key] = opt[idx+1:]
			opts.order = append(opts.order, key)
		} else {
			opts.Options[opt] = ""
			opts.order = append(opts.order, opt)
		}
	}
	return opts, nil
}

// splitTag splits a tag value by commas, honouring nested parentheses.
func splitTag(tag string) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	for _, ch := range tag {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(current.String()))
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	parts = append(parts, strings.TrimSpace(current.String()))
	return parts
}

// ToSnake converts CamelCase (including initialism runs like "UserID") to
// snake_case.
func ToSnake(s string) string {
	var out []rune
	runes := []rune(s)
	for i, ch := range runes {
		if unicode.IsUpper(ch) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				out = append(out, '_')
			}
			ch = unicode.ToLower(ch)
		}
		out = append(out, ch)
	}
	return string(out)
}
