package starphoenix

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func articlesDefinition() *Definition {
	return &Definition{
		TableName:  "articles",
		PrimaryKey: "id",
		Fields: []FieldDefinition{
			{Name: "id", Type: "TrieLong"},
			{Name: "title", Type: "Str"},
			{Name: "draft", Type: "Bool"},
			{Name: "body", Type: "Text"},
		},
	}
}

func newTestClient(t *testing.T) *clientWrapper {
	t.Helper()
	config := DefaultConfig()
	config.Database.Path = ":memory:"
	config.WriteBack.MaxRetries = 1
	config.WriteBack.RetryBackoffBase = time.Millisecond

	c, err := NewClient(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c.(*clientWrapper)
}

func TestClientDirectWrites(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	articles, err := c.Register(ctx, articlesDefinition())
	require.NoError(t, err)
	assert.Equal(t, []string{"articles"}, c.Tables())

	body := strings.Repeat("x", 300)
	require.NoError(t, articles.Upload(ctx, map[string]interface{}{
		"id": 1, "title": "hello", "draft": true, "body": body,
	}))

	record, err := articles.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "hello", record["title"])
	assert.Equal(t, body, record["body"])
	assert.EqualValues(t, 1, record["draft"])

	found, err := articles.FindByField(ctx, "title", "hello")
	require.NoError(t, err)
	assert.EqualValues(t, 1, found["id"])

	require.NoError(t, articles.Remove(ctx, func(del *DeleteStatement) error {
		cond, err := del.ValueCondition("draft", "=", true)
		if err != nil {
			return err
		}
		del.Where().AddCondition(cond, "")
		return nil
	}))
	_, err = articles.Read(ctx, 1)
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestClientRegisterConflicts(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	first, err := c.Register(ctx, articlesDefinition())
	require.NoError(t, err)
	again, err := c.Register(ctx, articlesDefinition())
	require.NoError(t, err)
	assert.Equal(t, first.Name(), again.Name())

	changed := articlesDefinition()
	changed.Fields = changed.Fields[:2]
	_, err = c.Register(ctx, changed)
	assert.True(t, errors.Is(err, ErrDefinitionConflict))
}

func TestClientWriteBack(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.Register(ctx, articlesDefinition())
	require.NoError(t, err)
	articles, err := c.EnableKV(ctx, "articles", WithDrainRate(1000))
	require.NoError(t, err)
	require.NotNil(t, c.GetDrainer("articles"))
	assert.Equal(t, 1000, c.GetDrainer("articles").GetConfig().DrainRate)

	require.NoError(t, articles.Upload(ctx, map[string]interface{}{
		"id": 7, "title": "queued", "draft": false, "body": "short",
	}))
	assert.Equal(t, 1, c.GetDrainer("articles").QueueSize())

	// Served from the cache before the drainer runs.
	record, err := articles.Read(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "queued", record["title"])

	rows, err := articles.Query(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, c.Start(ctx))
	assert.True(t, c.IsRunning())
	assert.Eventually(t, func() bool {
		rows, err := articles.Query(ctx, nil)
		return err == nil && len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = c.Flush(ctx)
	assert.Error(t, err)
	require.NoError(t, c.Stop())
	assert.False(t, c.IsRunning())

	require.NoError(t, articles.Delete(ctx, 7))
	written, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	require.NoError(t, c.DisableKV(ctx, "articles"))
	assert.Nil(t, c.GetDrainer("articles"))
	_, err = articles.Read(ctx, 7)
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestClientRegisterFile(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tables:
  - name: notes
    primary_key: id
    fields:
      - name: id
        type: TrieInt
      - name: text
        type: Text
  - name: labels
    fields:
      - name: label
        type: Str
`), 0o644))

	tables, err := c.RegisterFile(ctx, path, WithKV())
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.ElementsMatch(t, []string{"notes", "labels"}, c.Tables())
	assert.NotNil(t, c.GetDrainer("notes"))
	assert.NotNil(t, c.GetDrainer("labels"))

	require.NoError(t, c.Unregister(ctx, "labels"))
	assert.Nil(t, c.GetDrainer("labels"))
	_, err = c.GetTable("labels")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  type: sqlite
  path: data.db
writeback:
  codec: msgpack
  drain_rate: 20
tables:
  articles:
    ttl: 30s
    namespace: news
`), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "data.db", config.Database.Path)
	assert.Equal(t, "msgpack", config.WriteBack.Codec)
	assert.Equal(t, "memory", config.KVStore.Type)

	tc := tableConfig(config, "articles")
	assert.Equal(t, 30*time.Second, tc.TTL)
	assert.Equal(t, "news", tc.Namespace)
	assert.Equal(t, 20, tc.DrainRate)
	assert.Equal(t, 100, tc.WriteBackBatchSize)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "config.toml"))
	assert.Error(t, err)
}
