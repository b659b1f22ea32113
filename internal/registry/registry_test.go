package registry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/kvstore"
	"github.com/rzpsarthak13/starphoenix/internal/registry"
	"github.com/rzpsarthak13/starphoenix/internal/schema"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
	"github.com/rzpsarthak13/starphoenix/internal/types"
)

// fakeTable records KV toggles; the data path is not exercised here.
type fakeTable struct {
	name    string
	def     *sequel.Table
	enabled bool
}

func (f *fakeTable) Name() string                     { return f.name }
func (f *fakeTable) Definition() *sequel.Table        { return f.def }
func (f *fakeTable) Define(ctx context.Context) error { return nil }
func (f *fakeTable) Upload(ctx context.Context, record map[string]interface{}) error {
	return nil
}
func (f *fakeTable) Read(ctx context.Context, key interface{}) (map[string]interface{}, error) {
	return nil, nil
}
func (f *fakeTable) Query(ctx context.Context, build func(*sequel.Select) error) ([]map[string]interface{}, error) {
	return nil, nil
}
func (f *fakeTable) Delete(ctx context.Context, key interface{}) error { return nil }
func (f *fakeTable) Remove(ctx context.Context, build func(*sequel.Delete) error) error {
	return nil
}
func (f *fakeTable) EnableKV() error  { f.enabled = true; return nil }
func (f *fakeTable) DisableKV() error { f.enabled = false; return nil }
func (f *fakeTable) ExecuteWriteOperation(ctx context.Context, op *core.WriteOperation) error {
	return nil
}
func (f *fakeTable) GetWriteBackQueue() core.WriteBackQueue { return nil }

func usersSchema() *core.Schema {
	return &core.Schema{
		TableName:  "users",
		PrimaryKey: "id",
		Fields:     []core.FieldSpec{{Name: "id", Type: "TrieInt"}, {Name: "bio", Type: "Text"}},
	}
}

func TestConfigDefaults(t *testing.T) {
	cm := registry.NewConfigManager()
	require.NoError(t, cm.LoadFromYAML(nil))
	cfg := cm.GetConfig()
	assert.Equal(t, "memory", cfg.KVStore.Type)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "json", cfg.WriteBack.Codec)
	assert.True(t, cfg.Schema.CreateOnRegister)
}

func TestConfigLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  type: mysql
  host: db
  port: 3306
  database: app
  username: svc
  max_open_conns: 4
writeback:
  batch_size: 10
  drain_rate: 5
  default_ttl: 10m
  queue_type: memory
  codec: msgpack
tables:
  users:
    ttl: 30s
`), 0o644))

	cm := registry.NewConfigManager()
	require.NoError(t, cm.LoadFromFile(path))
	cfg := cm.GetConfig()
	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, 10*time.Minute, cfg.WriteBack.DefaultTTL)
	assert.Equal(t, "msgpack", cfg.WriteBack.Codec)

	users := cm.GetTableConfig("users")
	assert.Equal(t, 30*time.Second, users.TTL)
	assert.Equal(t, 10, users.WriteBackBatchSize)
	assert.Equal(t, 10*time.Minute, cm.GetTableConfig("other").TTL)
}

func TestConfigRejectsInvalid(t *testing.T) {
	cm := registry.NewConfigManager()
	assert.Error(t, cm.LoadFromYAML([]byte("kvstore:\n  type: cassandra\n")))
	assert.Error(t, cm.LoadFromYAML([]byte("database:\n  type: postgresql\n")))
	assert.Error(t, cm.LoadFromYAML([]byte("writeback:\n  codec: xml\n")))
	assert.Error(t, cm.LoadFromYAML([]byte("database:\n  type: mysql\n  database: app\n")))
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("STARPHOENIX_DATABASE_PATH", "/tmp/x.db")
	t.Setenv("STARPHOENIX_WRITEBACK_CODEC", "msgpack")
	t.Setenv("STARPHOENIX_SCHEMA_SOURCES", "a.yaml,b.xml")

	cm := registry.NewConfigManager()
	require.NoError(t, cm.LoadFromEnv())
	cfg := cm.GetConfig()
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, "msgpack", cfg.WriteBack.Codec)
	assert.Equal(t, []string{"a.yaml", "b.xml"}, cfg.Schema.Sources)
}

func TestRegistryPersistsCatalog(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryKVStore()

	tr := registry.NewTableRegistry(registry.NewConfigManager(), nil)
	tr.SetCatalog(store, "")
	require.NoError(t, tr.Register(ctx, "users", &fakeTable{name: "users"}, usersSchema()))

	reloaded := registry.NewTableRegistry(registry.NewConfigManager(), nil)
	reloaded.SetCatalog(store, "")
	schemas, err := reloaded.LoadCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, usersSchema(), schemas[0])

	require.NoError(t, tr.Unregister(ctx, "users"))
	schemas, err = reloaded.LoadCatalog(ctx)
	require.NoError(t, err)
	assert.Empty(t, schemas)
}

func TestRegistryHooks(t *testing.T) {
	ctx := context.Background()
	lifecycle := registry.NewLifecycleManager()
	tr := registry.NewTableRegistry(registry.NewConfigManager(), lifecycle)

	var registered []string
	lifecycle.RegisterHook(&registry.LifecycleHookFunc{
		OnRegisterFunc: func(ctx context.Context, tableName string, schema *core.Schema) error {
			// Hooks run outside the registry lock.
			_, err := tr.Get(tableName)
			registered = append(registered, tableName)
			return err
		},
	})
	require.NoError(t, tr.Register(ctx, "users", &fakeTable{name: "users"}, usersSchema()))
	require.NoError(t, tr.Register(ctx, "users", &fakeTable{name: "users"}, usersSchema()))
	assert.Equal(t, []string{"users"}, registered)

	failing := &registry.LifecycleHookFunc{
		OnRegisterFunc: func(ctx context.Context, tableName string, schema *core.Schema) error {
			return errors.New("boom")
		},
	}
	lifecycle.RegisterHook(failing)
	docs := &core.Schema{TableName: "docs", Fields: []core.FieldSpec{{Name: "a", Type: "Str"}}}
	assert.Error(t, tr.Register(ctx, "docs", &fakeTable{name: "docs"}, docs))
	_, err := tr.Get("docs")
	assert.Error(t, err)

	lifecycle.UnregisterHook(failing)
	assert.Equal(t, 1, lifecycle.HookCount())
}

func TestRegistryEnableDisable(t *testing.T) {
	ctx := context.Background()
	tr := registry.NewTableRegistry(registry.NewConfigManager(), nil)
	table := &fakeTable{name: "users"}
	require.NoError(t, tr.Register(ctx, "users", table, usersSchema()))

	require.NoError(t, tr.EnableKV(ctx, "users"))
	assert.True(t, table.enabled)
	assert.Equal(t, []string{"users"}, tr.ListEnabled())

	require.NoError(t, tr.DisableKV(ctx, "users"))
	assert.False(t, table.enabled)
	assert.Empty(t, tr.ListEnabled())
	assert.Equal(t, []string{"users"}, tr.List())
	assert.Error(t, tr.EnableKV(ctx, "missing"))
}

func builtTable(t *testing.T, s *core.Schema) *fakeTable {
	t.Helper()
	def, err := schema.Build(s, types.NewRegistry())
	require.NoError(t, err)
	return &fakeTable{name: s.TableName, def: def}
}

func TestRegistryRejectsSharedPhysicalTables(t *testing.T) {
	ctx := context.Background()
	tr := registry.NewTableRegistry(registry.NewConfigManager(), nil)

	articles := &core.Schema{
		TableName:  "articles",
		PrimaryKey: "id",
		Fields:     []core.FieldSpec{{Name: "id", Type: "TrieLong"}, {Name: "body", Type: "Text"}},
	}
	require.NoError(t, tr.Register(ctx, "articles", builtTable(t, articles), articles))
	meta, err := tr.GetMetadata("articles")
	require.NoError(t, err)
	assert.Equal(t, []string{"articles", "body"}, meta.Physical)

	comments := &core.Schema{
		TableName:  "comments",
		PrimaryKey: "id",
		Fields:     []core.FieldSpec{{Name: "id", Type: "TrieLong"}, {Name: "body", Type: "Text"}},
	}
	err = tr.Register(ctx, "comments", builtTable(t, comments), comments)
	assert.ErrorIs(t, err, registry.ErrPhysicalTableConflict)

	// A logical table named after another table's side table.
	body := &core.Schema{TableName: "BODY", Fields: []core.FieldSpec{{Name: "x", Type: "Str"}}}
	err = tr.Register(ctx, "BODY", builtTable(t, body), body)
	assert.ErrorIs(t, err, registry.ErrPhysicalTableConflict)

	// A wide field named after its own table.
	notes := &core.Schema{
		TableName:  "notes",
		PrimaryKey: "id",
		Fields:     []core.FieldSpec{{Name: "id", Type: "TrieInt"}, {Name: "notes", Type: "Text"}},
	}
	err = tr.Register(ctx, "notes", builtTable(t, notes), notes)
	assert.ErrorIs(t, err, registry.ErrPhysicalTableConflict)
	assert.Equal(t, []string{"articles"}, tr.List())

	// Re-registering the same table does not conflict with itself, and an
	// unregistered table frees its names.
	require.NoError(t, tr.Register(ctx, "articles", builtTable(t, articles), articles))
	require.NoError(t, tr.Unregister(ctx, "articles"))
	require.NoError(t, tr.Register(ctx, "comments", builtTable(t, comments), comments))
}
