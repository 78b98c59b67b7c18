// Package registry holds defined models for forward-reference resolution:
// relationships declared against a type or table name that has not been
// defined yet resolve lazily through it.
package registry

import (
	"reflect"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/marshallshelly/slate-orm/pkg/schema"
)

// Registry is a thread-safe name→Model and type→Model map. Entries live for
// the process lifetime; Clear exists for test isolation.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*schema.Model
	byName map[string]*schema.Model
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*schema.Model),
		byName: make(map[string]*schema.Model),
	}
}

// Add stores a materialized model under its table name and declaration type.
// Re-adding the same name replaces the entry.
func (r *Registry) Add(m *schema.Model) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName[m.Name()] = m
	if t := m.GoType(); t != nil {
		r.byType[t] = m
	}
}

// ByName retrieves a model by table name, nil when absent.
func (r *Registry) ByName(name string) *schema.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// ByType retrieves a model by declaration type.
func (r *Registry) ByType(t reflect.Type) (*schema.Model, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mu.RLock()
	m, ok := r.byType[t]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(schema.ErrModelNotDefined, "%s", t.Name())
	}
	return m, nil
}

// Has reports whether a table name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// Names returns all registered table names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered models in name order.
func (r *Registry) All() []*schema.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	models := make([]*schema.Model, len(names))
	for i, name := range names {
		models[i] = r.byName[name]
	}
	return models
}

// Clear removes every entry. Intended for tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType = make(map[reflect.Type]*schema.Model)
	r.byName = make(map[string]*schema.Model)
}

// global is the default registry shared by DB handles that are not given
// their own.
var global = New()

// Default returns the process-wide registry.
func Default() *Registry { return global }
