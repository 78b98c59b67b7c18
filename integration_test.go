//go:build integration
// +build integration

package slateorm_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marshallshelly/slate-orm/pkg/builder"
	"github.com/marshallshelly/slate-orm/pkg/registry"
	"github.com/marshallshelly/slate-orm/pkg/runtime"
	"github.com/marshallshelly/slate-orm/pkg/schema"
)

type Author struct {
	schema.Entity
	Name string  `slate:"name"`
	Bio  *string `slate:"bio"`
}

type Book struct {
	schema.Entity
	Title  string `slate:"title"`
	Author Author `slate:"author"`
	Qty    *int64 `slate:"qty"`
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("slate_test"),
		postgres.WithUsername("slate"),
		postgres.WithPassword("slate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func openDB(t *testing.T) *builder.DB {
	t.Helper()
	ctx := context.Background()

	pg, err := runtime.ConnectURL(ctx, startPostgres(t))
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	return builder.Open(pg, builder.WithRegistry(registry.New()))
}

func defineLibrary(t *testing.T, db *builder.DB) (*builder.Table, *builder.Table) {
	t.Helper()
	ctx := context.Background()

	authors, err := db.Define(ctx, Author{})
	require.NoError(t, err)
	books, err := db.Define(ctx, Book{})
	require.NoError(t, err)
	return authors, books
}

func TestIntegrationDefineAndInsert(t *testing.T) {
	db := openDB(t)
	authors, books := defineLibrary(t, db)
	ctx := context.Background()

	ada, err := authors.Insert(ctx, map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.True(t, ada.Bound())
	assert.Equal(t, int64(1), ada.ID())

	_, err = books.Insert(ctx, map[string]any{
		"title":  "notes on the engine",
		"author": ada.ID(),
		"qty":    3,
	})
	require.NoError(t, err)

	n, err := books.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	t.Run("redefining returns the existing handle", func(t *testing.T) {
		again, err := db.Define(ctx, Author{})
		require.NoError(t, err)
		assert.Equal(t, authors.Model(), again.Model())
	})
}

func TestIntegrationQueryAndJoin(t *testing.T) {
	db := openDB(t)
	authors, books := defineLibrary(t, db)
	ctx := context.Background()

	names := []string{"ada", "brian", "carol"}
	perAuthor := []int{2, 1, 0}
	for i, name := range names {
		a, err := authors.Insert(ctx, map[string]any{"name": name})
		require.NoError(t, err)
		for j := 0; j < perAuthor[i]; j++ {
			_, err := books.Insert(ctx, map[string]any{
				"title":  name + " book",
				"author": a.ID(),
				"qty":    j,
			})
			require.NoError(t, err)
		}
	}

	t.Run("filter", func(t *testing.T) {
		rs, err := authors.Where(authors.Field("name").Eq("brian")).Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, rs.Len())
		assert.Equal(t, int64(2), rs.First().ID())
	})

	t.Run("join groups children under parents", func(t *testing.T) {
		rs, err := authors.Join("books").Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, rs.Len(), "left join keeps childless parents")

		ada := rs.Get(1)
		require.NotNil(t, ada)
		owned, err := ada.Get("books")
		require.NoError(t, err)
		assert.Len(t, owned, 2)

		carol := rs.Get(3)
		require.NotNil(t, carol)
		owned, err = carol.Get("books")
		require.NoError(t, err)
		assert.Empty(t, owned)
	})

	t.Run("count stays per-parent under joins", func(t *testing.T) {
		n, err := authors.Join("books").Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("pagination windows parents not joined rows", func(t *testing.T) {
		rs, err := authors.Join("books").Paginate(2, 1).Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, rs.Len())
		assert.Equal(t, []int64{1, 2}, rs.IDs())

		owned, err := rs.First().Get("books")
		require.NoError(t, err)
		assert.Len(t, owned, 2, "windowing must not drop joined children")
	})

	t.Run("null predicate", func(t *testing.T) {
		_, err := books.Insert(ctx, map[string]any{"title": "draft", "author": 1})
		require.NoError(t, err)

		rs, err := books.Where(books.Field("qty").Eq(nil)).Collect(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, rs.Len())
		title, err := rs.First().Get("title")
		require.NoError(t, err)
		assert.Equal(t, "draft", title)
	})

	t.Run("boolean literal is rejected", func(t *testing.T) {
		_, err := authors.Where(true).Collect(ctx)
		assert.True(t, errors.Is(err, runtime.ErrBoolPredicate))
	})
}

func TestIntegrationRecordLifecycle(t *testing.T) {
	db := openDB(t)
	authors, _ := defineLibrary(t, db)
	ctx := context.Background()

	ada, err := authors.Insert(ctx, map[string]any{"name": "ada"})
	require.NoError(t, err)

	rec, err := authors.Fetch(ctx, ada.ID())
	require.NoError(t, err)
	require.NotNil(t, rec)

	require.NoError(t, rec.Set("bio", "pioneer"))
	require.NoError(t, rec.Save(ctx))

	fresh, err := authors.Fetch(ctx, ada.ID())
	require.NoError(t, err)
	bio, err := fresh.Get("bio")
	require.NoError(t, err)
	assert.Equal(t, "pioneer", bio)

	require.NoError(t, rec.Delete(ctx))
	assert.False(t, rec.Bound())

	gone, err := authors.Fetch(ctx, ada.ID())
	require.NoError(t, err)
	assert.Nil(t, gone, "absent rows fetch as nil without an error")
}

func TestIntegrationBulkUpdateDelete(t *testing.T) {
	db := openDB(t)
	authors, _ := defineLibrary(t, db)
	ctx := context.Background()

	for _, name := range []string{"ada", "brian", "carol"} {
		_, err := authors.Insert(ctx, map[string]any{"name": name})
		require.NoError(t, err)
	}

	updated, err := authors.Where(authors.ID().Gt(1)).Update(ctx, map[string]any{"bio": "prolific"})
	require.NoError(t, err)
	assert.Len(t, updated, 2)

	deleted, err := authors.Where(authors.Field("name").Eq("carol")).Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, deleted)

	n, err := authors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
