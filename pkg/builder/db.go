// Package builder is the modeling surface: the Define registrar, table
// handles, the immutable query builder, the result materializer and dynamic
// records.
package builder

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/marshallshelly/slate-orm/pkg/registry"
	"github.com/marshallshelly/slate-orm/pkg/runtime"
	"github.com/marshallshelly/slate-orm/pkg/schema"
)

// DB ties an executor to a registry and holds the declaration policy. All
// query and registration entry points hang off it.
type DB struct {
	exec runtime.Executor
	reg  *registry.Registry
	cfg  schema.Config
	log  *zap.Logger
}

// Option configures a DB handle.
type Option func(*DB)

// WithLogger attaches a logger; registration events log under
// "slate.define".
func WithLogger(log *zap.Logger) Option {
	return func(db *DB) { db.log = log.Named("slate.define") }
}

// WithRegistry uses a private registry instead of the process-wide one.
func WithRegistry(reg *registry.Registry) Option {
	return func(db *DB) { db.reg = reg }
}

// WithConfig overrides the declaration policy.
func WithConfig(cfg schema.Config) Option {
	return func(db *DB) { db.cfg = cfg }
}

// Open wraps an executor as a DB handle.
func Open(exec runtime.Executor, opts ...Option) *DB {
	db := &DB{
		exec: exec,
		reg:  registry.Default(),
		cfg:  schema.DefaultConfig(),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Executor returns the underlying executor.
func (db *DB) Executor() runtime.Executor { return db.exec }

// Registry returns the registry this handle resolves models against.
func (db *DB) Registry() *registry.Registry { return db.reg }

// DefineOption adjusts one Define call.
type DefineOption func(*schema.TableOptions)

// WithTableName overrides the derived table name.
func WithTableName(name string) DefineOption {
	return func(o *schema.TableOptions) { o.Name = name }
}

// WithComment attaches a table comment.
func WithComment(comment string) DefineOption {
	return func(o *schema.TableOptions) { o.Comment = comment }
}

// Define registers a struct declaration: it parses the fields into column
// specs, creates the table and returns a handle for querying it. Nothing is
// registered when any step fails, so a bad declaration leaves no trace.
// Defining the same declaration again returns the existing handle.
func (db *DB) Define(ctx context.Context, decl any, opts ...DefineOption) (*Table, error) {
	model, err := schema.Parse(decl, db.cfg)
	if err != nil {
		return nil, err
	}

	var tableOpts schema.TableOptions
	for _, opt := range opts {
		opt(&tableOpts)
	}
	model.ApplyOptions(tableOpts)

	if existing := db.reg.ByName(model.Name()); existing != nil {
		if existing.GoType() == model.GoType() {
			return &Table{db: db, model: existing}, nil
		}
		return nil, errors.Newf("table %s already defined by %v", model.Name(), existing.GoType())
	}

	if !model.IsEntity() {
		db.log.Warn("declaration does not embed schema.Entity; rows stay untyped",
			zap.String("table", model.Name()))
	}

	if err := db.exec.CreateTable(ctx, model.Name(), model.Columns(), model.Options()); err != nil {
		return nil, err
	}

	model.Bind()
	db.reg.Add(model)

	db.log.Debug("defined table",
		zap.String("table", model.Name()),
		zap.Int("columns", len(model.Columns())),
		zap.Strings("relationships", model.RelationshipNames()))

	return &Table{db: db, model: model}, nil
}

// Table returns a handle on an already-defined table, or an untyped handle
// when the name is unknown.
func (db *DB) Table(name string) *Table {
	if m := db.reg.ByName(name); m != nil {
		return &Table{db: db, model: m}
	}
	return &Table{db: db, model: schema.BareTable(name)}
}

// lookupModel resolves a relationship target name against the registry.
func (db *DB) lookupModel(name string) *schema.Model {
	return db.reg.ByName(name)
}

// Table is a handle on one defined table. Query methods start a fresh
// builder chain.
type Table struct {
	db    *DB
	model *schema.Model
}

// Model returns the table's schema.
func (t *Table) Model() *schema.Model { return t.model }

// Field returns a queryable handle on the named column.
func (t *Table) Field(name string) *schema.Field { return t.model.Field(name) }

// ID returns the handle on the identifier column.
func (t *Table) ID() *schema.Field { return t.model.ID() }

// Query starts an unfiltered builder chain.
func (t *Table) Query() *QueryBuilder {
	return newQueryBuilder(t.db, t.model)
}

// Where starts a chain with an initial predicate. See QueryBuilder.Where for
// the accepted forms.
func (t *Table) Where(conds ...any) *QueryBuilder {
	return t.Query().Where(conds...)
}

// Select starts a chain with an explicit projection.
func (t *Table) Select(fields ...any) *QueryBuilder {
	return t.Query().Select(fields...)
}

// Join starts a chain with relationships attached.
func (t *Table) Join(names ...string) *QueryBuilder {
	return t.Query().Join(names...)
}

// Count counts all rows.
func (t *Table) Count(ctx context.Context) (int64, error) {
	return t.Query().Count(ctx)
}

// Collect fetches all rows.
func (t *Table) Collect(ctx context.Context) (*ResultSet, error) {
	return t.Query().Collect(ctx)
}

// Insert stores one row and returns it as a bound record.
func (t *Table) Insert(ctx context.Context, fields map[string]any) (*Record, error) {
	row, err := t.db.exec.Insert(ctx, t.model.Name(), fields)
	if err != nil {
		return nil, err
	}
	return newRecord(t.db, t.model, row), nil
}

// Fetch retrieves a single record by id or predicate. An absent row yields
// (nil, nil); callers test Bound() or compare against nil.
func (t *Table) Fetch(ctx context.Context, idOrPredicate any) (*Record, error) {
	var pred schema.Expr
	switch v := idOrPredicate.(type) {
	case schema.Expr:
		pred = v
	case bool:
		return nil, errors.WithStack(runtime.ErrBoolPredicate)
	default:
		pred = t.model.ID().Eq(v)
	}

	row, err := t.db.exec.Lookup(ctx, t.model.Name(), pred)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return newRecord(t.db, t.model, row), nil
}
