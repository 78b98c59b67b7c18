package schema

import (
	"errors"
	"testing"
)

type Reader struct {
	Entity
	Name   string `slate:"name,unique"`
	Email  string `slate:"email,default('unknown')"`
	Age    *int   `slate:"age"`
	Note   string `slate:",type(text)"`
	Hidden string `slate:"-"`
	secret string
}

func (Reader) TableName() string { return "readers" }

type Shelf struct {
	Entity
	Label string   `slate:"label"`
	Owner Reader   `slate:"owner"`
	Books []Volume `slate:"books"`
}

type Volume struct {
	Entity
	Title string `slate:"title"`
}

func TestParse(t *testing.T) {
	t.Run("fields and tags", func(t *testing.T) {
		m, err := Parse(Reader{}, DefaultConfig())
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}

		if m.Name() != "readers" {
			t.Errorf("expected TableName override, got %q", m.Name())
		}
		if !m.IsEntity() {
			t.Error("expected entity marker to be detected")
		}

		cols := m.Columns()
		if len(cols) != 5 {
			t.Fatalf("expected 5 columns, got %d: %v", len(cols), cols)
		}
		if cols[0].Name != "id" || cols[0].Type != TypeID {
			t.Errorf("expected implicit id first, got %+v", cols[0])
		}
		if !cols[1].Unique {
			t.Error("expected name to be unique")
		}
		if cols[2].Default != "'unknown'" {
			t.Errorf("expected default expression, got %q", cols[2].Default)
		}
		if !cols[3].Nullable {
			t.Error("expected pointer field to be nullable")
		}
		if cols[4].Name != "note" || cols[4].Type != "text" {
			t.Errorf("expected derived name with type override, got %+v", cols[4])
		}

		if m.Has("hidden") {
			t.Error("slate:\"-\" field should be skipped")
		}
		if m.Has("secret") {
			t.Error("unexported field should be skipped")
		}
	})

	t.Run("non-struct rejected", func(t *testing.T) {
		if _, err := Parse(42, DefaultConfig()); err == nil {
			t.Fatal("expected an error for a non-struct declaration")
		}
	})

	t.Run("nullable by default config", func(t *testing.T) {
		m, err := Parse(Volume{}, Config{NotNullByDefault: false})
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if !m.Spec("title").Column.Nullable {
			t.Error("expected nullable column without NotNullByDefault")
		}
	})

	t.Run("unsupported field type", func(t *testing.T) {
		type Bad struct {
			Entity
			C complex128 `slate:"c"`
		}
		_, err := Parse(Bad{}, DefaultConfig())
		if !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("expected ErrUnsupportedType, got %v", err)
		}
	})

	t.Run("implicit relationships", func(t *testing.T) {
		m, err := Parse(Shelf{}, DefaultConfig())
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}

		owner := m.Relationship("owner")
		if owner == nil {
			t.Fatal("expected implicit relationship for reference field")
		}
		if owner.Multiple() {
			t.Error("single reference should not be multiple")
		}
		if owner.Strategy() != JoinInner {
			t.Errorf("mandatory reference should join inner, got %q", owner.Strategy())
		}

		books := m.Relationship("books")
		if books == nil {
			t.Fatal("expected implicit relationship for list reference")
		}
		if !books.Multiple() {
			t.Error("list reference should be multiple")
		}
		if books.Strategy() != JoinLeft {
			t.Errorf("list reference should join left, got %q", books.Strategy())
		}
	})

	t.Run("optional reference joins left", func(t *testing.T) {
		type Note struct {
			Entity
			Author *Reader `slate:"author"`
		}
		m, err := Parse(Note{}, DefaultConfig())
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		rel := m.Relationship("author")
		if rel == nil {
			t.Fatal("expected implicit relationship")
		}
		if rel.Strategy() != JoinLeft {
			t.Errorf("optional reference should join left, got %q", rel.Strategy())
		}
	})

	t.Run("explicit relationship wins over implicit", func(t *testing.T) {
		m, err := Parse(Curated{}, DefaultConfig())
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		rel := m.Relationship("owner")
		if rel == nil {
			t.Fatal("expected relationship")
		}
		if rel.Strategy() != JoinLeft {
			t.Error("explicit declaration should override the synthesized one")
		}
	})
}

type Curated struct {
	Entity
	Owner Reader `slate:"owner"`
}

func (Curated) Relationships() map[string]*Relationship {
	return map[string]*Relationship{
		"owner": One(Reader{}, curatedOwnerCond(), WithJoin(JoinLeft)),
	}
}

func curatedOwnerCond() RelationshipOption {
	return WithCondition(func(owner, target *Model) Expr {
		return owner.Field("owner").Eq(target.Field("id"))
	})
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		tag  string
		name string
		opts map[string]string
	}{
		{"name", "name", map[string]string{}},
		{"name,unique,notnull", "name", map[string]string{"unique": "", "notnull": ""}},
		{"amount,type(decimal(12,4))", "amount", map[string]string{"type": "decimal(12,4)"}},
		{"ts,default(now()),nullable", "ts", map[string]string{"default": "now()", "nullable": ""}},
		{",type(text)", "", map[string]string{"type": "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			opts, err := parseTag(tt.tag)
			if err != nil {
				t.Fatalf("parseTag(%q) failed: %v", tt.tag, err)
			}
			if opts.Name != tt.name {
				t.Errorf("name = %q, want %q", opts.Name, tt.name)
			}
			for k, v := range tt.opts {
				if got := opts.Get(k); got != v {
					t.Errorf("option %s = %q, want %q", k, got, v)
				}
			}
		})
	}

	if _, err := parseTag("x,type(text"); err == nil {
		t.Error("expected an error for an unclosed option")
	}
}
