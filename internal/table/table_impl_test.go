package table

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
	"github.com/rzpsarthak13/starphoenix/internal/read"
	"github.com/rzpsarthak13/starphoenix/internal/schema"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
	"github.com/rzpsarthak13/starphoenix/internal/types"
	"github.com/rzpsarthak13/starphoenix/internal/write"
	"github.com/rzpsarthak13/starphoenix/internal/writeback"
)

var registry = types.NewRegistry()

type harness struct {
	db    *database.SQLDatabase
	queue *writeback.MemoryQueue
	wal   *write.WALManager
	table *TableImpl
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewSQLiteDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	definition, err := schema.Build(&core.Schema{
		TableName:  "articles",
		PrimaryKey: "id",
		Fields: []core.FieldSpec{
			{Name: "id", Type: "TrieLong"},
			{Name: "title", Type: "Str"},
			{Name: "draft", Type: "Bool"},
			{Name: "body", Type: "Text"},
		},
	}, registry)
	require.NoError(t, err)

	store := kvstore.NewMemoryKVStore()
	queue := writeback.NewMemoryQueue(100)
	wal := write.NewWALManager(store, writeback.JSONCodec{}, "wal", 0)
	impl := NewTableImpl(definition, schema.NewTranslator(registry), store, db, queue, wal, time.Minute, "test")
	require.NoError(t, impl.Define(ctx))

	return &harness{db: db, queue: queue, wal: wal, table: impl}
}

// drain applies every queued operation.
func (h *harness) drain(t *testing.T) int {
	t.Helper()
	ctx := context.Background()
	ops, err := h.queue.Dequeue(ctx, 100)
	require.NoError(t, err)
	for _, op := range ops {
		require.NoError(t, h.table.ExecuteWriteOperation(ctx, op))
	}
	return len(ops)
}

func (h *harness) count(t *testing.T, query string) int64 {
	t.Helper()
	rows, err := h.db.Query(context.Background(), query)
	require.NoError(t, err)
	values, err := database.ScanColumn(rows)
	require.NoError(t, err)
	require.Len(t, values, 1)
	return values[0].(int64)
}

func TestDirectWrites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	body := strings.Repeat("x", 600)

	require.NoError(t, h.table.Upload(ctx, map[string]interface{}{"id": 1, "title": "one", "draft": false, "body": body}))
	assert.Equal(t, int64(3), h.count(t, "SELECT COUNT(*) FROM body"))

	record, err := h.table.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, body, record["body"])
	assert.Equal(t, int64(0), record["draft"])

	// A shorter body replaces every old chunk.
	require.NoError(t, h.table.Upload(ctx, map[string]interface{}{"id": 1, "title": "one", "body": "short"}))
	assert.Equal(t, int64(1), h.count(t, "SELECT COUNT(*) FROM body"))
	record, err = h.table.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "short", record["body"])
	assert.Nil(t, record["draft"])

	require.NoError(t, h.table.Delete(ctx, 1))
	assert.Equal(t, int64(0), h.count(t, "SELECT COUNT(*) FROM body"))
	_, err = h.table.Read(ctx, 1)
	assert.ErrorIs(t, err, read.ErrRecordNotFound)
	assert.Equal(t, 0, h.queue.Size())
}

func TestUploadRejectsBadRecords(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	assert.ErrorIs(t, h.table.Upload(ctx, map[string]interface{}{"title": "no key"}), sequel.ErrMissingPrimaryKeyValue)
	assert.ErrorIs(t, h.table.Upload(ctx, map[string]interface{}{"id": 1, "author": "x"}), sequel.ErrUnknownField)
	assert.Error(t, h.table.Upload(ctx, map[string]interface{}{"id": "not a number"}))
	_, err := h.table.Read(ctx, nil)
	assert.Error(t, err)
}

func TestWriteBackWrites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.table.EnableKV())

	require.NoError(t, h.table.Upload(ctx, map[string]interface{}{"id": 5, "title": "queued", "draft": true, "body": "text"}))
	assert.Equal(t, 1, h.queue.Size())
	assert.Equal(t, int64(0), h.count(t, "SELECT COUNT(*) FROM articles"))

	// Served from the cache before the drainer runs.
	record, err := h.table.Read(ctx, int64(5))
	require.NoError(t, err)
	assert.Equal(t, "queued", record["title"])
	assert.Equal(t, "text", record["body"])

	pending, err := h.wal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, core.OperationUpsert, pending[0].Operation)

	assert.Equal(t, 1, h.drain(t))
	assert.Equal(t, int64(1), h.count(t, "SELECT COUNT(*) FROM articles"))
	pending, err = h.wal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, h.table.Delete(ctx, 5))
	assert.Equal(t, 1, h.drain(t))
	_, err = h.table.Read(ctx, 5)
	assert.ErrorIs(t, err, read.ErrRecordNotFound)
}

func TestQueryAndRemove(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for i, title := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, h.table.Upload(ctx, map[string]interface{}{
			"id": i + 1, "title": title, "draft": i%2 == 0, "body": title + " body",
		}))
	}

	drafts := func(sel *sequel.Select) error {
		if err := sel.AddField("id", "body"); err != nil {
			return err
		}
		cond, err := sel.ValueCondition("draft", "=", true)
		if err != nil {
			return err
		}
		sel.Where().AddCondition(cond, sequel.And)
		return nil
	}
	records, err := h.table.Query(ctx, drafts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []map[string]interface{}{
		{"id": int64(1), "body": "alpha body"},
		{"id": int64(3), "body": "gamma body"},
	}, records)

	found, err := h.table.FindByField(ctx, "title", "beta")
	require.NoError(t, err)
	assert.Equal(t, int64(2), found["id"])

	require.NoError(t, h.table.Remove(ctx, func(del *sequel.Delete) error {
		cond, err := del.ValueCondition("draft", "=", true)
		if err != nil {
			return err
		}
		del.Where().AddCondition(cond, sequel.And)
		return nil
	}))
	assert.Equal(t, int64(1), h.count(t, "SELECT COUNT(*) FROM articles"))
	assert.Equal(t, int64(1), h.count(t, "SELECT COUNT(*) FROM body"))

	all, err := h.table.Query(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "beta", all[0]["title"])
}

func TestEnableKVNeedsQueue(t *testing.T) {
	h := newHarness(t)
	impl := NewTableImpl(h.table.Definition(), schema.NewTranslator(registry), nil, h.db, nil, nil, 0, "")
	assert.Error(t, impl.EnableKV())
	assert.Equal(t, "articles", impl.Name())
}
