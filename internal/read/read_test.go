package read

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/database"
	"github.com/rzpsarthak13/starphoenix/internal/kvstore"
	"github.com/rzpsarthak13/starphoenix/internal/schema"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
	"github.com/rzpsarthak13/starphoenix/internal/types"
)

var registry = types.NewRegistry()

type fixture struct {
	db      *database.SQLDatabase
	store   *kvstore.MemoryKVStore
	table   *sequel.Table
	tr      *schema.Translator
	handler *ReadHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewSQLiteDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	table, err := schema.Build(&core.Schema{
		TableName:  "users",
		PrimaryKey: "id",
		Fields: []core.FieldSpec{
			{Name: "id", Type: "TrieInt"},
			{Name: "name", Type: "Str"},
			{Name: "active", Type: "Bool"},
			{Name: "bio", Type: "Text"},
		},
	}, registry)
	require.NoError(t, err)

	create, err := sequel.NewCreate(table).Split()
	require.NoError(t, err)
	rendered, err := sequel.RenderAll(create)
	require.NoError(t, err)
	require.NoError(t, database.ExecBatch(ctx, db, rendered))

	tr := schema.NewTranslator(registry)
	store := kvstore.NewMemoryKVStore()
	cache := NewCacheHandler(store, tr, "test", time.Minute)
	return &fixture{
		db:      db,
		store:   store,
		table:   table,
		tr:      tr,
		handler: NewReadHandler(table, cache, NewFallbackHandler(db, tr)),
	}
}

func (f *fixture) upload(t *testing.T, record map[string]interface{}) {
	t.Helper()
	u, err := f.tr.RecordToUpsert(record, f.table)
	require.NoError(t, err)
	split, err := u.Split()
	require.NoError(t, err)
	rendered, err := sequel.RenderAll(split)
	require.NoError(t, err)
	require.NoError(t, database.ExecBatch(context.Background(), f.db, rendered))
}

func TestReadReassemblesWideFields(t *testing.T) {
	f := newFixture(t)
	bio := strings.Repeat("abcdefghij", 60)
	f.upload(t, map[string]interface{}{"id": 7, "name": "ada", "active": true, "bio": bio})

	record, err := f.handler.ReadFromDB(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"id":     int64(7),
		"name":   "ada",
		"active": int64(1),
		"bio":    bio,
	}, record)
}

func TestReadMissingRecord(t *testing.T) {
	f := newFixture(t)
	_, err := f.handler.Read(context.Background(), 99)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestReadPopulatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.upload(t, map[string]interface{}{"id": 1, "name": "first", "bio": nil})

	_, hit, err := f.handler.ReadFromCache(ctx, 1)
	require.NoError(t, err)
	assert.False(t, hit)

	record, err := f.handler.Read(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "first", record["name"])
	assert.Nil(t, record["bio"])

	// Served from the cache even after the row changes underneath.
	f.upload(t, map[string]interface{}{"id": 1, "name": "second"})
	record, err = f.handler.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "first", record["name"])

	require.NoError(t, f.handler.Invalidate(ctx, 1.0))
	record, err = f.handler.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "second", record["name"])
}

func TestInvalidateAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 1; i <= 3; i++ {
		require.NoError(t, f.handler.Write(ctx, map[string]interface{}{"id": i, "name": "x"}))
	}
	keys, err := f.store.Keys(ctx, "test:users:")
	require.NoError(t, err)
	assert.Equal(t, []string{"test:users:1", "test:users:2", "test:users:3"}, keys)

	require.NoError(t, f.handler.InvalidateAll(ctx))
	keys, err = f.store.Keys(ctx, "test:users:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestQuerySelectedFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.upload(t, map[string]interface{}{"id": 1, "name": "a", "active": true, "bio": "one"})
	f.upload(t, map[string]interface{}{"id": 2, "name": "b", "active": false, "bio": "two"})
	f.upload(t, map[string]interface{}{"id": 3, "name": "c", "active": true, "bio": "three"})

	sel := sequel.NewSelect(f.table)
	require.NoError(t, sel.AddField("name", "bio"))
	cond, err := sel.ValueCondition("active", "=", true)
	require.NoError(t, err)
	sel.Where().AddCondition(cond, sequel.And)

	records, err := f.handler.Query(ctx, sel)
	require.NoError(t, err)
	assert.ElementsMatch(t, []map[string]interface{}{
		{"name": "a", "bio": "one"},
		{"name": "c", "bio": "three"},
	}, records)
}

func TestKeyBuilder(t *testing.T) {
	assert.Equal(t, "ns:users:7", NewKeyBuilder("ns").BuildKey("users", 7))
	assert.Equal(t, "users:7", NewKeyBuilder("").BuildKey("users", 7))
}

func TestQueryWideFieldsWithoutKey(t *testing.T) {
	f := newFixture(t)
	text, err := registry.ResolveIn("Text", types.Store)
	require.NoError(t, err)
	notes := sequel.NewTable(registry, "notes")
	require.NoError(t, notes.AddField(sequel.NewField("body", text, false)))

	fallback := NewFallbackHandler(f.db, f.tr)
	_, err = fallback.Query(context.Background(), sequel.NewSelect(notes))
	assert.ErrorIs(t, err, sequel.ErrMissingPrimaryKey)
}

func TestCacheKeepsLargeKeys(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const big = int64(9007199254740993)
	require.NoError(t, f.handler.Write(ctx, map[string]interface{}{"id": big, "name": "big"}))

	record, hit, err := f.handler.ReadFromCache(ctx, big)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, big, record["id"])

	_, hit, err = f.handler.ReadFromCache(ctx, big-1)
	require.NoError(t, err)
	assert.False(t, hit)
}
