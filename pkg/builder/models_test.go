package builder

import (
	"context"
	"testing"

	"github.com/marshallshelly/slate-orm/pkg/registry"
	"github.com/marshallshelly/slate-orm/pkg/schema"
)

type Author struct {
	schema.Entity
	Name string  `slate:"name"`
	Bio  *string `slate:"bio"`
}

func (Author) Relationships() map[string]*schema.Relationship {
	return map[string]*schema.Relationship{
		"books": schema.Many(Book{}, schema.WithCondition(
			func(owner, target *schema.Model) schema.Expr {
				return target.Field("author").Eq(owner.Field("id"))
			})),
	}
}

type Book struct {
	schema.Entity
	Title  string `slate:"title"`
	Author Author `slate:"author"`
	Qty    *int64 `slate:"qty"`
}

func newTestDB(t *testing.T) (*DB, *fakeExec) {
	t.Helper()
	fake := newFakeExec()
	return Open(fake, WithRegistry(registry.New())), fake
}

// defineLibrary sets up the author and book tables.
func defineLibrary(t *testing.T, db *DB) (authors, books *Table) {
	t.Helper()
	ctx := context.Background()

	authors, err := db.Define(ctx, Author{})
	if err != nil {
		t.Fatalf("define author: %v", err)
	}
	books, err = db.Define(ctx, Book{})
	if err != nil {
		t.Fatalf("define book: %v", err)
	}
	return authors, books
}

func insertRow(t *testing.T, tbl *Table, fields map[string]any) *Record {
	t.Helper()
	rec, err := tbl.Insert(context.Background(), fields)
	if err != nil {
		t.Fatalf("insert into %s: %v", tbl.Model().Name(), err)
	}
	return rec
}

// seedLibrary inserts five authors; the first three own two, one and zero
// books respectively, the remaining two own one book each.
func seedLibrary(t *testing.T, authors, books *Table) {
	t.Helper()

	perAuthor := []int{2, 1, 0, 1, 1}
	for i, n := range perAuthor {
		author := insertRow(t, authors, map[string]any{
			"name": authorName(i),
		})
		for j := 0; j < n; j++ {
			insertRow(t, books, map[string]any{
				"title":  authorName(i) + " book",
				"author": author.ID(),
			})
		}
	}
}

func authorName(i int) string {
	return []string{"ada", "brian", "carol", "dmitri", "elena"}[i]
}
