package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/database"
	"github.com/rzpsarthak13/starphoenix/internal/kvstore"
	"github.com/rzpsarthak13/starphoenix/internal/registry"
	"github.com/rzpsarthak13/starphoenix/internal/schema"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
	"github.com/rzpsarthak13/starphoenix/internal/table"
	"github.com/rzpsarthak13/starphoenix/internal/types"
	"github.com/rzpsarthak13/starphoenix/internal/write"
	"github.com/rzpsarthak13/starphoenix/internal/writeback"
)

// DefaultNamespace prefixes cache keys of tables that configure none.
const DefaultNamespace = "cache"

// ErrDefinitionConflict is returned when a table is registered again with a
// different definition.
var ErrDefinitionConflict = errors.New("table is registered with a different definition")

// TableConfigData represents table configuration data without importing the public package.
type TableConfigData struct {
	TTL                time.Duration
	WriteBackBatchSize int
	DrainRate          int
	Enabled            bool
	Namespace          string
}

// ConfigProvider is an interface to provide configuration as YAML without importing the public package.
type ConfigProvider interface {
	GetYAML() ([]byte, error)
}

// ClientImpl owns the connections and the catalog of logical tables.
type ClientImpl struct {
	mu            sync.RWMutex
	configMgr     *registry.ConfigManager
	types         *types.Registry
	translator    *schema.Translator
	codec         writeback.Codec
	kvStore       core.KVStore
	database      core.Database
	wal           *write.WALManager
	tableRegistry *registry.TableRegistry
	lifecycle     *registry.LifecycleManager
	closed        bool
}

// NewClientImpl creates a client from YAML handed over by configProvider.
func NewClientImpl(ctx context.Context, configProvider ConfigProvider) (*ClientImpl, error) {
	if configProvider == nil {
		return nil, fmt.Errorf("config provider cannot be nil")
	}

	configMgr := registry.NewConfigManager()
	yamlData, err := configProvider.GetYAML()
	if err != nil {
		return nil, fmt.Errorf("failed to get config YAML: %w", err)
	}
	if err := configMgr.LoadFromYAML(yamlData); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewClientImplFromManager(ctx, configMgr)
}

// NewClientImplFromManager creates a client from an already loaded configuration.
func NewClientImplFromManager(ctx context.Context, configMgr *registry.ConfigManager) (*ClientImpl, error) {
	config := configMgr.GetConfig()

	codec, err := writeback.NewCodec(config.WriteBack.Codec)
	if err != nil {
		return nil, err
	}

	typeRegistry := types.NewRegistry()
	lifecycle := registry.NewLifecycleManager()
	c := &ClientImpl{
		configMgr:     configMgr,
		types:         typeRegistry,
		translator:    schema.NewTranslator(typeRegistry),
		codec:         codec,
		tableRegistry: registry.NewTableRegistry(configMgr, lifecycle),
		lifecycle:     lifecycle,
	}

	if err := c.initializeConnections(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize connections: %w", err)
	}

	c.wal = write.NewWALManager(c.kvStore, codec, "wal", 0)
	c.tableRegistry.SetCatalog(c.kvStore, config.Schema.CatalogPrefix)
	if config.Schema.CreateOnRegister {
		lifecycle.RegisterHook(&registry.LifecycleHookFunc{
			OnRegisterFunc: c.defineTable,
		})
	}
	return c, nil
}

// initializeConnections initializes the KV store and database connections.
func (c *ClientImpl) initializeConnections(ctx context.Context) error {
	config := c.configMgr.GetConfig()

	kvStore, err := kvstore.Create(kvstore.ConfigFromInternal(config.KVStore))
	if err != nil {
		return fmt.Errorf("failed to create KV store: %w", err)
	}
	c.kvStore = kvStore

	switch config.Database.Type {
	case "sqlite":
		db, err := database.NewSQLiteDatabase(ctx, config.Database.Path)
		if err != nil {
			kvStore.Close()
			return fmt.Errorf("failed to create database: %w", err)
		}
		c.database = db
	case "mysql":
		db, err := database.NewMySQLDatabase(database.MySQLOptions{
			Host:              config.Database.Host,
			Port:              config.Database.Port,
			Database:          config.Database.Database,
			Username:          config.Database.Username,
			Password:          config.Database.Password,
			MaxOpenConns:      config.Database.MaxOpenConns,
			MaxIdleConns:      config.Database.MaxIdleConns,
			ConnMaxLifetime:   config.Database.ConnMaxLifetime,
			ConnMaxIdleTime:   config.Database.ConnMaxIdleTime,
			ConnectionTimeout: config.Database.ConnectionTimeout,
			VarcharLength:     config.Database.VarcharLength,
		})
		if err != nil {
			kvStore.Close()
			return fmt.Errorf("failed to create database: %w", err)
		}
		c.database = db
	default:
		kvStore.Close()
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	return nil
}

func (c *ClientImpl) defineTable(ctx context.Context, tableName string, _ *core.Schema) error {
	t, err := c.tableRegistry.Get(tableName)
	if err != nil {
		return err
	}
	return t.Define(ctx)
}

func (c *ClientImpl) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("client is closed")
	}
	return nil
}

// TableConfig returns the effective configuration of a table.
func (c *ClientImpl) TableConfig(tableName string) TableConfigData {
	tc := c.configMgr.GetTableConfig(tableName)
	return TableConfigData{
		TTL:                tc.TTL,
		WriteBackBatchSize: tc.WriteBackBatchSize,
		DrainRate:          tc.DrainRate,
		Enabled:            tc.Enabled,
		Namespace:          tc.Namespace,
	}
}

// Register validates a definition, builds its table and adds it to the
// catalog. Tables configured as enabled start with KV on. Registering the
// same definition twice returns the existing table.
func (c *ClientImpl) Register(ctx context.Context, s *core.Schema, tableConfig TableConfigData) (core.Table, error) {
	return c.register(ctx, s, tableConfig, false)
}

func (c *ClientImpl) register(ctx context.Context, s *core.Schema, tableConfig TableConfigData, replace bool) (core.Table, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("schema cannot be nil")
	}
	if existing, err := c.tableRegistry.GetMetadata(s.TableName); err == nil {
		if reflect.DeepEqual(existing.Schema, s) {
			return existing.Table, nil
		}
		if !replace {
			return nil, fmt.Errorf("%w: %s", ErrDefinitionConflict, s.TableName)
		}
		log.Printf("[CATALOG] Replacing definition of %s", s.TableName)
		if err := c.tableRegistry.Unregister(ctx, s.TableName); err != nil {
			return nil, err
		}
	}

	if err := schema.ValidateSchema(s, c.types); err != nil {
		return nil, fmt.Errorf("invalid definition: %w", err)
	}
	definition, err := schema.Build(s, c.types)
	if err != nil {
		return nil, fmt.Errorf("failed to build table %q: %w", s.TableName, err)
	}

	t, err := c.createTableInstance(definition, tableConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create table instance: %w", err)
	}
	if err := c.tableRegistry.Register(ctx, s.TableName, t, s); err != nil {
		t.GetWriteBackQueue().Close()
		return nil, err
	}
	if tableConfig.Enabled {
		if err := c.tableRegistry.EnableKV(ctx, s.TableName); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// createTableInstance creates a table instance with its own write-back queue.
func (c *ClientImpl) createTableInstance(definition *sequel.Table, tableConfig TableConfigData) (core.Table, error) {
	queue, err := c.createQueue(definition.Name())
	if err != nil {
		return nil, err
	}
	namespace := tableConfig.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return table.NewTableImpl(
		definition,
		c.translator,
		c.kvStore,
		c.database,
		queue,
		c.wal,
		tableConfig.TTL,
		namespace,
	), nil
}

// createQueue builds the configured write-back queue for one table.
func (c *ClientImpl) createQueue(tableName string) (core.WriteBackQueue, error) {
	wb := c.configMgr.GetConfig().WriteBack
	switch wb.QueueType {
	case "redis":
		return writeback.NewRedisQueue(c.kvStore, "wbq:"+tableName, c.codec)
	case "kafka":
		kc := wb.KafkaConfig
		queue, err := writeback.NewKafkaQueue(writeback.KafkaQueueConfig{
			Brokers:         kc.Brokers,
			Topic:           kc.Topic + "." + tableName,
			GroupID:         kc.GroupID,
			BatchSize:       kc.BatchSize,
			BatchTimeout:    kc.BatchTimeout,
			WriteTimeout:    kc.WriteTimeout,
			ReadTimeout:     kc.ReadTimeout,
			RequiredAcks:    kc.RequiredAcks,
			MaxMessageBytes: kc.MaxMessageBytes,
			MinBytes:        kc.MinBytes,
			MaxBytes:        kc.MaxBytes,
			MaxWait:         kc.MaxWait,
		}, c.codec)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka queue: %w", err)
		}
		return queue, nil
	default:
		return writeback.NewMemoryQueue(wb.QueueBufferSize), nil
	}
}

// LoadSchemas registers the definitions persisted in the catalog, then the
// ones in the configured source files. Sources win over the catalog.
func (c *ClientImpl) LoadSchemas(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	persisted, err := c.tableRegistry.LoadCatalog(ctx)
	if err != nil {
		return err
	}
	for _, s := range persisted {
		if _, err := c.Register(ctx, s, c.TableConfig(s.TableName)); err != nil {
			return fmt.Errorf("failed to restore table %q: %w", s.TableName, err)
		}
	}

	for _, path := range c.configMgr.GetConfig().Schema.Sources {
		schemas, err := schema.NewFileSource(path).Load(ctx)
		if err != nil {
			return err
		}
		for _, s := range schemas {
			if _, err := c.register(ctx, s, c.TableConfig(s.TableName), true); err != nil {
				return fmt.Errorf("failed to register table %q from %s: %w", s.TableName, path, err)
			}
		}
	}
	return nil
}

// Recover replays operations the WAL holds but the database never saw.
// Operations of tables with KV off are applied directly. The others are
// re-queued unless this process still holds them in a queue or drainer, so
// a durable queue may see an operation twice after a restart; UPSERT and
// DELETE make that harmless. Returns the number of operations replayed.
func (c *ClientImpl) Recover(ctx context.Context) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}

	pending, err := c.wal.Pending(ctx)
	if err != nil {
		return 0, err
	}
	replayed := 0
	for _, op := range pending {
		t, err := c.tableRegistry.Get(op.Table)
		if err != nil {
			log.Printf("[RECOVERY] WARNING: skipping %s for unknown table %s", op.ID, op.Table)
			continue
		}
		if enabled, _ := c.tableRegistry.IsEnabled(op.Table); !enabled {
			if err := t.ExecuteWriteOperation(ctx, op); err != nil {
				return replayed, fmt.Errorf("failed to replay %s: %w", op.ID, err)
			}
			replayed++
			continue
		}
		if c.wal.Tracked(op) {
			continue
		}
		if err := t.GetWriteBackQueue().Enqueue(ctx, op); err != nil {
			return replayed, fmt.Errorf("failed to re-queue %s: %w", op.ID, err)
		}
		c.wal.Track(op)
		replayed++
	}
	if replayed > 0 {
		log.Printf("[RECOVERY] Replayed %d operation(s) from the WAL", replayed)
	}
	return replayed, nil
}

// EnableKV enables KV store caching for a registered table.
func (c *ClientImpl) EnableKV(ctx context.Context, tableName string) (core.Table, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := c.tableRegistry.EnableKV(ctx, tableName); err != nil {
		return nil, err
	}
	return c.tableRegistry.Get(tableName)
}

// DisableKV disables KV store caching for a table.
func (c *ClientImpl) DisableKV(ctx context.Context, tableName string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.tableRegistry.DisableKV(ctx, tableName)
}

// Unregister drops a table from the catalog. Its physical tables stay.
func (c *ClientImpl) Unregister(ctx context.Context, tableName string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.tableRegistry.Unregister(ctx, tableName)
}

// GetTable retrieves a table instance by name.
func (c *ClientImpl) GetTable(tableName string) (core.Table, error) {
	if tableName == "" {
		return nil, fmt.Errorf("table name cannot be empty")
	}
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.tableRegistry.Get(tableName)
}

// IsEnabled reports whether KV is on for a table.
func (c *ClientImpl) IsEnabled(tableName string) (bool, error) {
	return c.tableRegistry.IsEnabled(tableName)
}

// Tables returns the names of the registered tables.
func (c *ClientImpl) Tables() []string {
	return c.tableRegistry.List()
}

// Database returns the database connection.
func (c *ClientImpl) Database() core.Database {
	return c.database
}

// Close closes all connections and releases resources.
func (c *ClientImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	ctx := context.Background()
	for _, name := range c.tableRegistry.List() {
		if t, err := c.tableRegistry.Get(name); err == nil {
			if err := t.GetWriteBackQueue().Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close queue of %s: %w", name, err))
			}
		}
	}
	if err := c.tableRegistry.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear table registry: %w", err))
	}
	if err := c.kvStore.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close KV store: %w", err))
	}
	if err := c.database.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
