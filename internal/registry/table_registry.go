package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

// ErrPhysicalTableConflict is returned when a table would share a physical
// table with another registered table.
var ErrPhysicalTableConflict = errors.New("physical table is already in use")

// TableMetadata is what the registry knows about one logical table.
type TableMetadata struct {
	TableName string
	Table     core.Table
	// Schema is the declarative definition the table was built from.
	Schema *core.Schema
	Config InternalTableConfig
	// Physical names the database tables the logical table occupies, primary
	// first.
	Physical []string

	// Enabled reports whether writes go through the write-back queue.
	Enabled   bool
	ToggledAt time.Time
	CreatedAt time.Time
}

// TableRegistry is the catalog of logical tables and their KV state. With a
// catalog store attached, definitions survive restarts.
type TableRegistry struct {
	mu        sync.RWMutex
	tables    map[string]*TableMetadata
	configMgr *ConfigManager
	lifecycle *LifecycleManager
	catalog   *catalog
}

// NewTableRegistry creates an empty registry. A nil lifecycle gets a manager
// with no hooks.
func NewTableRegistry(configMgr *ConfigManager, lifecycle *LifecycleManager) *TableRegistry {
	if lifecycle == nil {
		lifecycle = NewLifecycleManager()
	}
	return &TableRegistry{
		tables:    make(map[string]*TableMetadata),
		configMgr: configMgr,
		lifecycle: lifecycle,
	}
}

// SetCatalog persists definitions to store under "<prefix>:<table>".
func (tr *TableRegistry) SetCatalog(store core.KVStore, prefix string) {
	if prefix == "" {
		prefix = DefaultCatalogPrefix
	}
	tr.mu.Lock()
	tr.catalog = &catalog{store: store, prefix: prefix}
	tr.mu.Unlock()
}

// LoadCatalog returns every persisted definition, sorted by table name.
func (tr *TableRegistry) LoadCatalog(ctx context.Context) ([]*core.Schema, error) {
	tr.mu.RLock()
	c := tr.catalog
	tr.mu.RUnlock()
	return c.load(ctx)
}

// Register adds or replaces a table. Register hooks run only for a table not
// seen before; a failing hook rolls the registration back. A replaced table
// keeps its KV state, but EnableKV is not re-applied to the new instance.
func (tr *TableRegistry) Register(ctx context.Context, tableName string, table core.Table, schema *core.Schema) error {
	switch {
	case tableName == "":
		return fmt.Errorf("table name cannot be empty")
	case table == nil:
		return fmt.Errorf("table cannot be nil")
	case schema == nil:
		return fmt.Errorf("schema cannot be nil")
	case schema.TableName != tableName:
		return fmt.Errorf("schema table name %q does not match provided table name %q", schema.TableName, tableName)
	}

	physical, err := physicalNames(tableName, table)
	if err != nil {
		return fmt.Errorf("failed to register table %q: %w", tableName, err)
	}

	tr.mu.Lock()
	if err := tr.checkPhysical(tableName, physical); err != nil {
		tr.mu.Unlock()
		return err
	}
	entry := &TableMetadata{
		TableName: tableName,
		Table:     table,
		Schema:    schema,
		Config:    tr.configMgr.GetTableConfig(tableName),
		Physical:  physical,
		CreatedAt: time.Now(),
	}
	previous, replaced := tr.tables[tableName]
	if replaced {
		entry.Enabled = previous.Enabled
		entry.ToggledAt = previous.ToggledAt
		entry.CreatedAt = previous.CreatedAt
	}
	if err := tr.catalog.save(ctx, schema); err != nil {
		tr.mu.Unlock()
		return fmt.Errorf("failed to register table %q: %w", tableName, err)
	}
	tr.tables[tableName] = entry
	tr.mu.Unlock()

	if replaced {
		return nil
	}

	// Unlocked so hooks can look the table up.
	if err := tr.lifecycle.ExecuteRegisterHooks(ctx, tableName, schema); err != nil {
		tr.mu.Lock()
		delete(tr.tables, tableName)
		dropErr := tr.catalog.drop(ctx, tableName)
		tr.mu.Unlock()
		if dropErr != nil {
			log.Printf("[CATALOG] WARNING: failed to drop definition of %s after hook error: %v", tableName, dropErr)
		}
		return fmt.Errorf("register hook failed for table %q: %w", tableName, err)
	}

	log.Printf("[CATALOG] Registered table %s (%d fields)", tableName, len(schema.Fields))
	return nil
}

// physicalNames lists the database tables of a logical table. Tables without
// a definition occupy only their own name.
func physicalNames(tableName string, table core.Table) ([]string, error) {
	def := table.Definition()
	if def == nil {
		return []string{tableName}, nil
	}
	split, err := def.Split()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(split))
	for i, t := range split {
		names[i] = t.Name()
	}
	return names, nil
}

// checkPhysical rejects physical names used twice by one table or already
// held by another one. Names compare case-insensitively, as SQL identifiers
// do. Requires tr.mu held.
func (tr *TableRegistry) checkPhysical(tableName string, physical []string) error {
	owners := make(map[string]string)
	for name, entry := range tr.tables {
		if name == tableName {
			continue
		}
		for _, p := range entry.Physical {
			owners[strings.ToLower(p)] = name
		}
	}
	seen := make(map[string]bool, len(physical))
	for _, p := range physical {
		key := strings.ToLower(p)
		if owner, ok := owners[key]; ok {
			return fmt.Errorf("%w: %s of table %q belongs to table %q", ErrPhysicalTableConflict, p, tableName, owner)
		}
		if seen[key] {
			return fmt.Errorf("%w: table %q maps %s twice", ErrPhysicalTableConflict, tableName, p)
		}
		seen[key] = true
	}
	return nil
}

func (tr *TableRegistry) lookup(tableName string) (*TableMetadata, error) {
	entry, ok := tr.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("table %q is not registered", tableName)
	}
	return entry, nil
}

// Get returns the table instance registered under tableName.
func (tr *TableRegistry) Get(tableName string) (core.Table, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	entry, err := tr.lookup(tableName)
	if err != nil {
		return nil, err
	}
	return entry.Table, nil
}

// GetMetadata returns a copy of the table's metadata.
func (tr *TableRegistry) GetMetadata(tableName string) (*TableMetadata, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	entry, err := tr.lookup(tableName)
	if err != nil {
		return nil, err
	}
	cp := *entry
	return &cp, nil
}

// EnableKV routes the table's operations through the KV store. Enable hooks
// run first; if one fails the table is left as it was.
func (tr *TableRegistry) EnableKV(ctx context.Context, tableName string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	entry, err := tr.lookup(tableName)
	if err != nil {
		return err
	}
	if entry.Enabled {
		return nil
	}

	if err := tr.lifecycle.ExecuteEnableHooks(ctx, tableName, entry.Schema); err != nil {
		return fmt.Errorf("enable hook failed for table %q: %w", tableName, err)
	}
	if err := entry.Table.EnableKV(); err != nil {
		return fmt.Errorf("failed to enable KV for table %q: %w", tableName, err)
	}
	entry.Enabled = true
	entry.ToggledAt = time.Now()
	return nil
}

// DisableKV sends the table's operations straight to the database.
func (tr *TableRegistry) DisableKV(ctx context.Context, tableName string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	entry, err := tr.lookup(tableName)
	if err != nil {
		return err
	}
	return tr.disable(ctx, entry)
}

// disable requires tr.mu held.
func (tr *TableRegistry) disable(ctx context.Context, entry *TableMetadata) error {
	if !entry.Enabled {
		return nil
	}
	if err := tr.lifecycle.ExecuteDisableHooks(ctx, entry.TableName, entry.Schema); err != nil {
		return fmt.Errorf("disable hook failed for table %q: %w", entry.TableName, err)
	}
	if err := entry.Table.DisableKV(); err != nil {
		return fmt.Errorf("failed to disable KV for table %q: %w", entry.TableName, err)
	}
	entry.Enabled = false
	entry.ToggledAt = time.Now()
	return nil
}

// Unregister disables KV if needed and removes the table from the registry
// and the catalog store. Physical tables are left in place.
func (tr *TableRegistry) Unregister(ctx context.Context, tableName string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	entry, err := tr.lookup(tableName)
	if err != nil {
		return err
	}
	if err := tr.disable(ctx, entry); err != nil {
		return err
	}
	if err := tr.lifecycle.ExecuteUnregisterHooks(ctx, tableName, entry.Schema); err != nil {
		return fmt.Errorf("unregister hook failed for table %q: %w", tableName, err)
	}
	if err := tr.catalog.drop(ctx, tableName); err != nil {
		return fmt.Errorf("failed to drop definition of table %q: %w", tableName, err)
	}
	delete(tr.tables, tableName)
	return nil
}

// List returns the registered table names, sorted.
func (tr *TableRegistry) List() []string {
	return tr.names(func(*TableMetadata) bool { return true })
}

// ListEnabled returns the sorted names of tables with KV enabled.
func (tr *TableRegistry) ListEnabled() []string {
	return tr.names(func(e *TableMetadata) bool { return e.Enabled })
}

func (tr *TableRegistry) names(keep func(*TableMetadata) bool) []string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	names := make([]string, 0, len(tr.tables))
	for name, entry := range tr.tables {
		if keep(entry) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsEnabled reports whether the table has KV enabled.
func (tr *TableRegistry) IsEnabled(tableName string) (bool, error) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	entry, err := tr.lookup(tableName)
	if err != nil {
		return false, err
	}
	return entry.Enabled, nil
}

// Clear disables every table and empties the registry. The catalog store is
// left untouched.
func (tr *TableRegistry) Clear(ctx context.Context) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, entry := range tr.tables {
		if err := tr.disable(ctx, entry); err != nil {
			return err
		}
	}
	tr.tables = make(map[string]*TableMetadata)
	return nil
}
