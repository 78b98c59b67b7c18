package builder

import (
	"github.com/marshallshelly/slate-orm/pkg/runtime"
	"github.com/marshallshelly/slate-orm/pkg/schema"
)

// Metadata describes how a result set was produced.
type Metadata struct {
	SQL           string
	Limit         int64
	Page          int64
	Relationships []string
}

// ResultSet holds materialized records keyed by id, in the order their root
// rows first appeared.
type ResultSet struct {
	db    *DB
	model *schema.Model

	order   []int64
	records map[int64]*Record

	Metadata Metadata
}

func emptyResultSet(db *DB, model *schema.Model, rels []relJoin) *ResultSet {
	rs := &ResultSet{
		db:      db,
		model:   model,
		records: make(map[int64]*Record),
	}
	names := make([]string, len(rels))
	for i, rj := range rels {
		names[i] = rj.name
	}
	rs.Metadata.Relationships = names
	return rs
}

// Len returns the number of distinct records.
func (rs *ResultSet) Len() int { return len(rs.order) }

// Records returns the records in first-appearance order.
func (rs *ResultSet) Records() []*Record {
	out := make([]*Record, len(rs.order))
	for i, id := range rs.order {
		out[i] = rs.records[id]
	}
	return out
}

// IDs returns the record ids in order.
func (rs *ResultSet) IDs() []int64 {
	return append([]int64(nil), rs.order...)
}

// First returns the first record, nil when empty.
func (rs *ResultSet) First() *Record {
	if len(rs.order) == 0 {
		return nil
	}
	return rs.records[rs.order[0]]
}

// Last returns the last record, nil when empty.
func (rs *ResultSet) Last() *Record {
	if len(rs.order) == 0 {
		return nil
	}
	return rs.records[rs.order[len(rs.order)-1]]
}

// Get returns the record with the given id, nil when absent.
func (rs *ResultSet) Get(id int64) *Record { return rs.records[id] }

// Find returns the records for which keep returns true, preserving order.
func (rs *ResultSet) Find(keep func(*Record) bool) []*Record {
	var out []*Record
	for _, id := range rs.order {
		if rec := rs.records[id]; keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Column extracts one field's value from every record, in order. Fields that
// cannot be read come back as nil.
func (rs *ResultSet) Column(name string) []any {
	out := make([]any, 0, len(rs.order))
	for _, id := range rs.order {
		v, err := rs.records[id].Get(name)
		if err != nil {
			v = nil
		}
		out = append(out, v)
	}
	return out
}

// materialize folds flat join rows into one record per distinct root row.
// Join fan-out repeats the parent columns, so the parent is created on first
// sight and later rows only contribute child data; per parent, each
// relationship slot deduplicates children by id. Multi-valued slots start as
// empty slices and single-valued ones as nil, so an unmatched left join
// reads as empty rather than missing. Targets without a declared model keep
// their raw rows.
func materialize(db *DB, model *schema.Model, rows *runtime.RowSet, rels []relJoin) *ResultSet {
	rs := &ResultSet{
		db:      db,
		model:   model,
		records: make(map[int64]*Record),
	}

	seen := make(map[int64]map[string]map[int64]bool)

	for _, grouped := range rows.Rows {
		main := grouped[model.Alias()]
		if main == nil {
			continue
		}
		id := main.ID()

		rec, ok := rs.records[id]
		if !ok {
			rec = newRecord(db, model, main)
			for _, rj := range rels {
				if rj.rel.Multiple() {
					rec.setRelation(rj.name, []any{})
				} else {
					rec.setRelation(rj.name, nil)
				}
			}
			rs.records[id] = rec
			rs.order = append(rs.order, id)
			seen[id] = make(map[string]map[int64]bool)
		}

		for _, rj := range rels {
			sub := grouped[rj.alias]
			if sub == nil {
				sub = grouped[rj.target.Name()]
			}
			if sub == nil {
				continue
			}

			childID := sub.ID()
			if childID == 0 {
				continue
			}

			slot := seen[id][rj.name]
			if slot == nil {
				slot = make(map[int64]bool)
				seen[id][rj.name] = slot
			}
			if slot[childID] {
				continue
			}
			slot[childID] = true

			var child any
			if rj.base.Bare() || !rj.base.IsEntity() {
				child = sub
			} else {
				child = newRecord(db, rj.base, sub)
			}

			if rj.rel.Multiple() {
				existing, _ := rec.relation(rj.name).([]any)
				rec.setRelation(rj.name, append(existing, child))
			} else if rec.relation(rj.name) == nil {
				rec.setRelation(rj.name, child)
			}
		}
	}

	return rs
}
