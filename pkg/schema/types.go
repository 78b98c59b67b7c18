package schema

import (
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Storage tags. Dialect translation to concrete SQL types happens in the
// runtime compiler.
const (
	TypeString   = "string"
	TypeInteger  = "integer"
	TypeBoolean  = "boolean"
	TypeBlob     = "blob"
	TypeDouble   = "double"
	TypeJSON     = "json"
	TypeDecimal  = "decimal(10,2)"
	TypeDate     = "date"
	TypeTime     = "time"
	TypeDatetime = "datetime"
	TypeID       = "id"
)

var scalarMappings = map[reflect.Type]string{
	reflect.TypeOf(time.Time{}):       TypeDatetime,
	reflect.TypeOf(pgtype.Date{}):     TypeDate,
	reflect.TypeOf(pgtype.Time{}):     TypeTime,
	reflect.TypeOf(decimal.Decimal{}): TypeDecimal,
	reflect.TypeOf(JSON{}):            TypeJSON,
	reflect.TypeOf(map[string]any{}):  TypeJSON,
	reflect.TypeOf([]byte{}):          TypeBlob,
}

// MapType translates a declared Go type into a storage tag. Pointer types map
// to the inner type and mark the column nullable. Structs embedding Entity map
// to references, slices to list types. An empty tag means the type cannot be
// stored; the registrar turns that into a declaration error.
func MapType(t reflect.Type, col *ColumnSpec) string {
	if tag, ok := scalarMappings[t]; ok {
		return tag
	}

	switch t.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Int, reflect.Int32, reflect.Int64:
		return TypeInteger
	case reflect.Bool:
		return TypeBoolean
	case reflect.Float32, reflect.Float64:
		return TypeDouble

	case reflect.Pointer:
		col.Nullable = true
		return MapType(t.Elem(), col)

	case reflect.Slice:
		inner := MapType(t.Elem(), col)
		if inner == "" {
			return ""
		}
		return "list:" + inner

	case reflect.Struct:
		if EmbedsEntity(t) {
			return "reference " + TableNameOf(t)
		}
		return ""

	case reflect.Map:
		if t.Key().Kind() == reflect.String && t.Elem().Kind() == reflect.Interface {
			return TypeJSON
		}
		return ""
	}

	// Interfaces (the catch-all union shape) and everything else are
	// unsupported.
	return ""
}

func unsupportedTypeError(model string, field string, t reflect.Type) error {
	return errors.Wrapf(ErrUnsupportedType, "%s.%s: cannot store %s", model, field, t)
}
