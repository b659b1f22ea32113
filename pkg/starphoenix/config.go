package starphoenix

import (
	"github.com/rzpsarthak13/starphoenix/internal/registry"
)

// Configuration types. See DefaultConfig for the values a zero section
// falls back to.
type (
	Config          = registry.InternalConfig
	KVStoreConfig   = registry.InternalKVStoreConfig
	RedisConfig     = registry.InternalRedisConfig
	DynamoDBConfig  = registry.InternalDynamoDBConfig
	DatabaseConfig  = registry.InternalDatabaseConfig
	TableConfig     = registry.InternalTableConfig
	WriteBackConfig = registry.InternalWriteBackConfig
	KafkaConfig     = registry.InternalKafkaConfig
	SchemaConfig    = registry.InternalSchemaConfig
)

// DefaultConfig returns a configuration that runs in one process: in-memory
// KV store and queues over a local SQLite file.
func DefaultConfig() *Config {
	return registry.DefaultInternalConfig()
}

// LoadConfig reads a .yaml, .yml or .json file over the defaults, then
// applies STARPHOENIX_* environment overrides. The result is validated.
func LoadConfig(path string) (*Config, error) {
	cm := registry.NewConfigManager()
	if err := cm.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cm.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cm.GetConfig(), nil
}

// tableConfig resolves the overrides of one table against the write-back defaults.
func tableConfig(c *Config, name string) TableConfig {
	return registry.ResolveTableConfig(c, name)
}
