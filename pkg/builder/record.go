package builder

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/marshallshelly/slate-orm/pkg/runtime"
	"github.com/marshallshelly/slate-orm/pkg/schema"
)

// Record is one bound row: a snapshot of the stored values plus local
// overrides and the relationship slots filled in by a joined query. Write
// operations go straight through to the executor and re-sync the snapshot
// from what the database returned.
type Record struct {
	db    *DB
	model *schema.Model

	row       runtime.Row    // nil once deleted
	overrides map[string]any // local Set values, read before the snapshot
	relations map[string]any
	relOrder  []string

	id int64 // survives deletion for diagnostics
}

func newRecord(db *DB, model *schema.Model, row runtime.Row) *Record {
	return &Record{
		db:    db,
		model: model,
		row:   row,
		id:    row.ID(),
	}
}

// Bound reports whether the record still has a row behind it.
func (r *Record) Bound() bool { return r.row != nil }

// ID returns the row identifier. It keeps answering after deletion.
func (r *Record) ID() int64 { return r.id }

// Model returns the record's schema.
func (r *Record) Model() *schema.Model { return r.model }

// Get reads a field or relationship slot. Local overrides shadow the
// snapshot; a name the model does not declare is ErrUnknownField, and any
// read from a deleted record is ErrNoMatchingRow.
func (r *Record) Get(name string) (any, error) {
	if v, ok := r.overrides[name]; ok {
		return v, nil
	}
	if v, ok := r.relations[name]; ok {
		return v, nil
	}

	if !r.model.Bare() && !r.model.Has(name) && r.model.Relationship(name) == nil {
		return nil, errors.Wrapf(runtime.ErrUnknownField, "%s.%s", r.model.Name(), name)
	}
	if r.row == nil {
		return nil, errors.Wrapf(runtime.ErrNoMatchingRow, "%s #%d", r.model.Name(), r.id)
	}
	return r.row[name], nil
}

// Set writes a local override. The database is untouched until Update.
func (r *Record) Set(name string, value any) error {
	if !r.model.Bare() && !r.model.Has(name) {
		return errors.Wrapf(runtime.ErrUnknownField, "%s.%s", r.model.Name(), name)
	}
	if r.overrides == nil {
		r.overrides = make(map[string]any)
	}
	r.overrides[name] = value
	return nil
}

// Update writes fields to the row and re-syncs the snapshot from the stored
// result, so defaults and triggers are reflected immediately.
func (r *Record) Update(ctx context.Context, fields map[string]any) error {
	if r.row == nil {
		return errors.Wrapf(runtime.ErrNoMatchingRow, "%s #%d", r.model.Name(), r.id)
	}

	rows, err := r.db.exec.Update(ctx, r.model.Name(), r.model.ID().Eq(r.id), fields)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.Wrapf(runtime.ErrNoMatchingRow, "%s #%d", r.model.Name(), r.id)
	}

	r.row = rows[0]
	for name := range fields {
		delete(r.overrides, name)
	}
	return nil
}

// Save persists the local overrides accumulated with Set.
func (r *Record) Save(ctx context.Context) error {
	if len(r.overrides) == 0 {
		return nil
	}
	fields := make(map[string]any, len(r.overrides))
	for name, v := range r.overrides {
		fields[name] = v
	}
	return r.Update(ctx, fields)
}

// Delete removes the row and clears the record's state. The handle stays
// printable, but field access fails from here on.
func (r *Record) Delete(ctx context.Context) error {
	if r.row == nil {
		return errors.Wrapf(runtime.ErrNoMatchingRow, "%s #%d", r.model.Name(), r.id)
	}

	if _, err := r.db.exec.Delete(ctx, r.model.Name(), r.model.ID().Eq(r.id)); err != nil {
		return err
	}

	r.row = nil
	r.overrides = nil
	r.relations = nil
	r.relOrder = nil
	return nil
}

// AsMap flattens the record: snapshot, overrides and relationship slots.
// Nested records flatten recursively.
func (r *Record) AsMap() map[string]any {
	out := make(map[string]any, len(r.row)+len(r.overrides)+len(r.relations))
	for k, v := range r.row {
		out[k] = v
	}
	for k, v := range r.overrides {
		out[k] = v
	}
	for _, name := range r.relOrder {
		out[name] = flatten(r.relations[name])
	}
	return out
}

func flatten(v any) any {
	switch val := v.(type) {
	case *Record:
		return val.AsMap()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = flatten(item)
		}
		return out
	}
	return v
}

// String renders a short identity; it keeps working after deletion.
func (r *Record) String() string {
	if r.row == nil {
		return fmt.Sprintf("<%s #%d deleted>", r.model.Name(), r.id)
	}
	return fmt.Sprintf("<%s #%d>", r.model.Name(), r.id)
}

func (r *Record) setRelation(name string, v any) {
	if r.relations == nil {
		r.relations = make(map[string]any)
	}
	if _, ok := r.relations[name]; !ok {
		r.relOrder = append(r.relOrder, name)
	}
	r.relations[name] = v
}

func (r *Record) relation(name string) any {
	return r.relations[name]
}
