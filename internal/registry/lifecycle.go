package registry

import (
	"context"
	"sync"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

// LifecycleHook observes catalog events. Hooks run synchronously in
// registration order; an error aborts the event.
type LifecycleHook interface {
	// OnRegister is called after a new table definition is registered.
	// If this hook returns an error, the registration is rolled back.
	OnRegister(ctx context.Context, tableName string, schema *core.Schema) error

	// OnUnregister is called before a table definition is removed.
	OnUnregister(ctx context.Context, tableName string, schema *core.Schema) error

	// OnEnable runs before a table's writes switch to the write-back queue.
	OnEnable(ctx context.Context, tableName string, schema *core.Schema) error

	// OnDisable runs before a table's writes go back to the database.
	OnDisable(ctx context.Context, tableName string, schema *core.Schema) error
}

// HookFunc is the signature shared by every lifecycle event.
type HookFunc func(ctx context.Context, tableName string, schema *core.Schema) error

// LifecycleHookFunc adapts plain functions to LifecycleHook. Nil fields
// are no-ops.
type LifecycleHookFunc struct {
	OnRegisterFunc   HookFunc
	OnUnregisterFunc HookFunc
	OnEnableFunc     HookFunc
	OnDisableFunc    HookFunc
}

func (f HookFunc) call(ctx context.Context, tableName string, schema *core.Schema) error {
	if f == nil {
		return nil
	}
	return f(ctx, tableName, schema)
}

func (f *LifecycleHookFunc) OnRegister(ctx context.Context, tableName string, schema *core.Schema) error {
	return f.OnRegisterFunc.call(ctx, tableName, schema)
}

func (f *LifecycleHookFunc) OnUnregister(ctx context.Context, tableName string, schema *core.Schema) error {
	return f.OnUnregisterFunc.call(ctx, tableName, schema)
}

func (f *LifecycleHookFunc) OnEnable(ctx context.Context, tableName string, schema *core.Schema) error {
	return f.OnEnableFunc.call(ctx, tableName, schema)
}

func (f *LifecycleHookFunc) OnDisable(ctx context.Context, tableName string, schema *core.Schema) error {
	return f.OnDisableFunc.call(ctx, tableName, schema)
}

// LifecycleManager holds the hooks of a registry.
type LifecycleManager struct {
	mu    sync.RWMutex
	hooks []LifecycleHook
}

func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

// RegisterHook appends hook.
func (lm *LifecycleManager) RegisterHook(hook LifecycleHook) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = append(lm.hooks, hook)
}

// UnregisterHook removes hook, compared by identity.
func (lm *LifecycleManager) UnregisterHook(hook LifecycleHook) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for i, h := range lm.hooks {
		if h == hook {
			lm.hooks = append(lm.hooks[:i], lm.hooks[i+1:]...)
			return
		}
	}
}

// run executes event against every hook in order, stopping at the first error.
func (lm *LifecycleManager) run(event func(LifecycleHook) error) error {
	lm.mu.RLock()
	hooks := make([]LifecycleHook, len(lm.hooks))
	copy(hooks, lm.hooks)
	lm.mu.RUnlock()

	for _, hook := range hooks {
		if err := event(hook); err != nil {
			return err
		}
	}
	return nil
}

func (lm *LifecycleManager) ExecuteRegisterHooks(ctx context.Context, tableName string, schema *core.Schema) error {
	return lm.run(func(h LifecycleHook) error { return h.OnRegister(ctx, tableName, schema) })
}

func (lm *LifecycleManager) ExecuteUnregisterHooks(ctx context.Context, tableName string, schema *core.Schema) error {
	return lm.run(func(h LifecycleHook) error { return h.OnUnregister(ctx, tableName, schema) })
}

func (lm *LifecycleManager) ExecuteEnableHooks(ctx context.Context, tableName string, schema *core.Schema) error {
	return lm.run(func(h LifecycleHook) error { return h.OnEnable(ctx, tableName, schema) })
}

func (lm *LifecycleManager) ExecuteDisableHooks(ctx context.Context, tableName string, schema *core.Schema) error {
	return lm.run(func(h LifecycleHook) error { return h.OnDisable(ctx, tableName, schema) })
}

// HookCount returns the number of registered hooks.
func (lm *LifecycleManager) HookCount() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.hooks)
}
