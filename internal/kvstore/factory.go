package kvstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/registry"
)

// KVStoreFactory builds one kind of KV store. Backends register a factory
// from their init function and Create dispatches on KVStoreConfig.Type.
type KVStoreFactory interface {
	Create(config KVStoreConfig) (core.KVStore, error)
	Type() string
	Validate(config KVStoreConfig) error
}

// KVStoreConfig is the flattened connection settings of every backend; each
// factory reads the fields it needs.
type KVStoreConfig struct {
	Type         string
	Endpoints    []string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Region    string
	TableName string
	// Endpoint overrides the DynamoDB endpoint, e.g. for LocalStack.
	Endpoint string
	// Static credentials; the default AWS chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string
}

// ConfigFromInternal flattens the loaded configuration into a KVStoreConfig.
func ConfigFromInternal(cfg registry.InternalKVStoreConfig) KVStoreConfig {
	return KVStoreConfig{
		Type:            cfg.Type,
		Endpoints:       cfg.RedisConfig.Endpoints,
		Password:        cfg.RedisConfig.Password,
		DB:              cfg.RedisConfig.DB,
		MaxRetries:      cfg.MaxRetries,
		PoolSize:        cfg.RedisConfig.PoolSize,
		MinIdleConns:    cfg.RedisConfig.MinIdleConns,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		Region:          cfg.DynamoDBConfig.Region,
		TableName:       cfg.DynamoDBConfig.TableName,
		Endpoint:        cfg.DynamoDBConfig.Endpoint,
		AccessKeyID:     cfg.DynamoDBConfig.AccessKeyID,
		SecretAccessKey: cfg.DynamoDBConfig.SecretAccessKey,
	}
}

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]KVStoreFactory)
)

// RegisterFactory makes a backend available to Create. It panics on a nil
// factory, an empty type or a duplicate registration.
func RegisterFactory(factory KVStoreFactory) {
	if factory == nil || factory.Type() == "" {
		panic("kvstore factory must be non-nil with a type")
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[factory.Type()]; dup {
		panic(fmt.Sprintf("factory for type %q is already registered", factory.Type()))
	}
	factories[factory.Type()] = factory
}

// Create validates config with the factory registered for config.Type and
// builds the store.
func Create(config KVStoreConfig) (core.KVStore, error) {
	if config.Type == "" {
		return nil, fmt.Errorf("kvstore type is required")
	}
	factoriesMu.RLock()
	factory, ok := factories[config.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported KV store type: %s (registered: %v)", config.Type, GetRegisteredTypes())
	}
	if err := factory.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", config.Type, err)
	}
	return factory.Create(config)
}

// GetRegisteredTypes returns the registered backend types, sorted.
func GetRegisteredTypes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func IsTypeRegistered(storeType string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[storeType]
	return ok
}
