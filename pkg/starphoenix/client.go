package starphoenix

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/starphoenix/internal/client"
	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/schema"
)

// Client is the main interface of starphoenix. It keeps the catalog of
// logical tables and runs one drainer per table with KV enabled.
//
// Typical usage:
//
//	client, _ := starphoenix.NewClient(ctx, config)
//	defer client.Close()
//
//	articles, _ := client.Register(ctx, definition)
//	client.EnableKV(ctx, "articles")
//	client.Start(ctx) // start background drainers
//
//	articles.Upload(ctx, record)
//	articles.Read(ctx, key)
type Client interface {
	// Register adds a definition to the catalog and returns its table.
	// TTL and namespace options apply here.
	Register(ctx context.Context, definition *Definition, opts ...TableOption) (Table, error)

	// RegisterFile registers every definition in a YAML, JSON or Solr
	// schema.xml file.
	RegisterFile(ctx context.Context, path string, opts ...TableOption) ([]Table, error)

	// LoadSchemas restores the persisted catalog, then registers the
	// configured schema sources.
	LoadSchemas(ctx context.Context) error

	// Unregister drops a table from the catalog. Its physical tables stay.
	Unregister(ctx context.Context, tableName string) error

	// EnableKV routes a table's writes through its write-back queue and its
	// reads through the cache. Drain rate and batch size options apply here.
	EnableKV(ctx context.Context, tableName string, opts ...TableOption) (Table, error)

	// DisableKV sends a table's operations straight to the database.
	DisableKV(ctx context.Context, tableName string) error

	// GetTable retrieves a registered table by name.
	GetTable(tableName string) (Table, error)

	// Tables lists the registered table names.
	Tables() []string

	// Start replays what the WAL still holds, then starts the drainers.
	Start(ctx context.Context) error

	// Stop gracefully stops all drainers.
	Stop() error

	// Flush writes everything queued to the database and returns the number
	// of operations written. Drainers must be stopped.
	Flush(ctx context.Context) (int, error)

	// IsRunning returns whether the drainers are currently running.
	IsRunning() bool

	// Close stops the drainers and closes all connections.
	Close() error
}

// ErrDefinitionConflict is returned when a table is registered again with a
// different definition.
var ErrDefinitionConflict = client.ErrDefinitionConflict

// configProvider implements client.ConfigProvider to provide config as YAML without import cycles.
type configProvider struct {
	config *Config
}

func (cp *configProvider) GetYAML() ([]byte, error) {
	return yaml.Marshal(cp.config)
}

// clientWrapper wraps the internal client implementation to provide the public Client interface.
type clientWrapper struct {
	mu             sync.RWMutex
	impl           *client.ClientImpl
	config         *Config
	drainerManager *DrainerManager
	started        bool
	startCtx       context.Context
}

// NewClient creates a client with the provided configuration, connecting to
// the KV store and the database it names.
func NewClient(ctx context.Context, config *Config) (Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	impl, err := client.NewClientImpl(ctx, &configProvider{config: config})
	if err != nil {
		return nil, err
	}

	return &clientWrapper{
		impl:           impl,
		config:         config,
		drainerManager: NewDrainerManager(drainerConfig(config, tableConfig(config, ""))),
	}, nil
}

func drainerConfig(config *Config, tc TableConfig) DrainerConfig {
	return DrainerConfig{
		DrainRate:       tc.DrainRate,
		BatchSize:       tc.WriteBackBatchSize,
		PollInterval:    100 * time.Millisecond,
		MaxRetries:      config.WriteBack.MaxRetries,
		RetryBackoff:    config.WriteBack.RetryBackoffBase,
		RetryBackoffMax: config.WriteBack.RetryBackoffMax,
	}
}

// Register adds a definition to the catalog.
func (cw *clientWrapper) Register(ctx context.Context, definition *Definition, opts ...TableOption) (Table, error) {
	if definition == nil {
		return nil, fmt.Errorf("definition cannot be nil")
	}

	tc := tableConfig(cw.config, definition.TableName)
	for _, opt := range opts {
		opt(&tc)
	}

	t, err := cw.impl.Register(ctx, definition, client.TableConfigData{
		TTL:                tc.TTL,
		WriteBackBatchSize: tc.WriteBackBatchSize,
		DrainRate:          tc.DrainRate,
		Enabled:            tc.Enabled,
		Namespace:          tc.Namespace,
	})
	if err != nil {
		return nil, err
	}
	if err := cw.syncDrainers(); err != nil {
		return nil, err
	}
	return &tableWrapper{table: t}, nil
}

// RegisterFile registers every definition in a schema file.
func (cw *clientWrapper) RegisterFile(ctx context.Context, path string, opts ...TableOption) ([]Table, error) {
	definitions, err := schema.NewFileSource(path).Load(ctx)
	if err != nil {
		return nil, err
	}
	tables := make([]Table, 0, len(definitions))
	for _, definition := range definitions {
		t, err := cw.Register(ctx, definition, opts...)
		if err != nil {
			return tables, fmt.Errorf("failed to register %q from %s: %w", definition.TableName, path, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// LoadSchemas restores the catalog and loads the configured sources.
func (cw *clientWrapper) LoadSchemas(ctx context.Context) error {
	if err := cw.impl.LoadSchemas(ctx); err != nil {
		return err
	}
	return cw.syncDrainers()
}

// Unregister drops a table from the catalog.
func (cw *clientWrapper) Unregister(ctx context.Context, tableName string) error {
	if err := cw.drainerManager.RemoveDrainer(tableName); err != nil {
		return fmt.Errorf("failed to stop drainer for table %s: %w", tableName, err)
	}
	return cw.impl.Unregister(ctx, tableName)
}

// EnableKV enables KV store caching for a table.
func (cw *clientWrapper) EnableKV(ctx context.Context, tableName string, opts ...TableOption) (Table, error) {
	t, err := cw.impl.EnableKV(ctx, tableName)
	if err != nil {
		return nil, err
	}

	tc := tableConfig(cw.config, tableName)
	for _, opt := range opts {
		opt(&tc)
	}
	if err := cw.addDrainer(t, drainerConfig(cw.config, tc)); err != nil {
		return nil, err
	}
	return &tableWrapper{table: t}, nil
}

// syncDrainers gives every table with KV enabled a drainer.
func (cw *clientWrapper) syncDrainers() error {
	for _, name := range cw.impl.Tables() {
		enabled, err := cw.impl.IsEnabled(name)
		if err != nil || !enabled {
			continue
		}
		t, err := cw.impl.GetTable(name)
		if err != nil {
			return err
		}
		if existing := cw.drainerManager.GetDrainer(name); existing != nil {
			if existing.queue == t.GetWriteBackQueue() {
				continue
			}
			// The table was replaced; its old queue has no writers left.
			if err := cw.drainerManager.RemoveDrainer(name); err != nil {
				return err
			}
		}
		if err := cw.addDrainer(t, drainerConfig(cw.config, tableConfig(cw.config, name))); err != nil {
			return err
		}
	}
	return nil
}

// addDrainer creates the drainer of a table and starts it if the client is
// already running.
func (cw *clientWrapper) addDrainer(t core.Table, config DrainerConfig) error {
	queue := t.GetWriteBackQueue()
	if queue == nil {
		return fmt.Errorf("table %s does not have a write-back queue", t.Name())
	}
	drainer := cw.drainerManager.AddDrainerWithConfig(t.Name(), queue, t, config)

	cw.mu.RLock()
	started, ctx := cw.started, cw.startCtx
	cw.mu.RUnlock()
	if started {
		if err := drainer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start drainer for table %s: %w", t.Name(), err)
		}
	}
	return nil
}

// DisableKV disables KV store caching for a table. Queued operations are
// flushed first so nothing accepted is lost.
func (cw *clientWrapper) DisableKV(ctx context.Context, tableName string) error {
	if drainer := cw.drainerManager.GetDrainer(tableName); drainer != nil {
		if err := drainer.Stop(); err != nil {
			return fmt.Errorf("failed to stop drainer for table %s: %w", tableName, err)
		}
		if n, err := drainer.Flush(ctx); err != nil {
			return fmt.Errorf("failed to flush table %s: %w", tableName, err)
		} else if n > 0 {
			log.Printf("[CLIENT] Flushed %d operation(s) of %s before disabling KV", n, tableName)
		}
		if err := cw.drainerManager.RemoveDrainer(tableName); err != nil {
			return err
		}
	}
	return cw.impl.DisableKV(ctx, tableName)
}

// GetTable retrieves a table instance by name.
func (cw *clientWrapper) GetTable(tableName string) (Table, error) {
	t, err := cw.impl.GetTable(tableName)
	if err != nil {
		return nil, err
	}
	return &tableWrapper{table: t}, nil
}

func (cw *clientWrapper) Tables() []string {
	return cw.impl.Tables()
}

// Start replays the WAL and starts the drainers.
func (cw *clientWrapper) Start(ctx context.Context) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.started {
		return nil
	}

	if _, err := cw.impl.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover write-ahead log: %w", err)
	}
	if err := cw.drainerManager.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start drainers: %w", err)
	}

	cw.started = true
	cw.startCtx = ctx
	return nil
}

// Stop gracefully stops all background drainer workers.
func (cw *clientWrapper) Stop() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.started {
		return nil
	}

	if err := cw.drainerManager.StopAll(); err != nil {
		return fmt.Errorf("failed to stop drainers: %w", err)
	}

	cw.started = false
	cw.startCtx = nil
	return nil
}

func (cw *clientWrapper) Flush(ctx context.Context) (int, error) {
	if cw.IsRunning() {
		return 0, fmt.Errorf("stop the client before flushing")
	}
	return cw.drainerManager.FlushAll(ctx)
}

// IsRunning returns whether the drainer workers are currently running.
func (cw *clientWrapper) IsRunning() bool {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.started
}

// Close closes all connections and releases resources.
func (cw *clientWrapper) Close() error {
	if err := cw.Stop(); err != nil {
		log.Printf("[CLIENT] WARNING: error stopping drainers: %v", err)
	}
	return cw.impl.Close()
}

// GetDrainer returns the drainer of a table, or nil. Useful for monitoring
// queue size and drainer status.
func (cw *clientWrapper) GetDrainer(tableName string) *Drainer {
	return cw.drainerManager.GetDrainer(tableName)
}

// TableOption is a function type for configuring table options.
type TableOption func(*TableConfig)

// WithTTL sets the TTL for cached records in the KV store.
func WithTTL(ttl time.Duration) TableOption {
	return func(config *TableConfig) {
		config.TTL = ttl
	}
}

// WithNamespace sets the namespace prefix for keys in the KV store.
func WithNamespace(namespace string) TableOption {
	return func(config *TableConfig) {
		config.Namespace = namespace
	}
}

// WithWriteBackBatchSize sets how many operations a drainer dequeues at once.
func WithWriteBackBatchSize(batchSize int) TableOption {
	return func(config *TableConfig) {
		config.WriteBackBatchSize = batchSize
	}
}

// WithDrainRate sets the maximum number of operations per second to drain.
func WithDrainRate(drainRate int) TableOption {
	return func(config *TableConfig) {
		config.DrainRate = drainRate
	}
}

// WithKV turns KV on as soon as the table is registered.
func WithKV() TableOption {
	return func(config *TableConfig) {
		config.Enabled = true
	}
}
