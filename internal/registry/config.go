package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigValidator checks the KV store section of a configuration. Each KV
// store backend registers one from its init function.
type ConfigValidator interface {
	Validate(config *InternalConfig) error
	Type() string
}

var (
	validatorsMu sync.RWMutex
	validators   = make(map[string]ConfigValidator)
)

// RegisterValidator makes a validator available for its KV store type. It
// panics on a nil validator, an empty type or a duplicate registration.
func RegisterValidator(validator ConfigValidator) {
	if validator == nil || validator.Type() == "" {
		panic("config validator must be non-nil with a type")
	}
	validatorsMu.Lock()
	defer validatorsMu.Unlock()
	if _, dup := validators[validator.Type()]; dup {
		panic(fmt.Sprintf("validator for type %q is already registered", validator.Type()))
	}
	validators[validator.Type()] = validator
}

// GetValidator returns the validator registered for a KV store type.
func GetValidator(kvType string) (ConfigValidator, bool) {
	validatorsMu.RLock()
	defer validatorsMu.RUnlock()
	v, ok := validators[kvType]
	return v, ok
}

// EnvPrefix prefixes every environment variable LoadFromEnv reads.
const EnvPrefix = "STARPHOENIX_"

// DefaultCatalogPrefix namespaces persisted table definitions in the KV store.
const DefaultCatalogPrefix = "catalog"

// ConfigManager handles loading and managing configuration from various sources.
type ConfigManager struct {
	config *InternalConfig
}

// NewConfigManager creates a new configuration manager with default configuration.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config: DefaultInternalConfig(),
	}
}

// DefaultInternalConfig returns a configuration that runs in a single
// process: in-memory KV store, in-memory queue and a local SQLite file.
func DefaultInternalConfig() *InternalConfig {
	return &InternalConfig{
		KVStore: InternalKVStoreConfig{
			Type: "memory",
			RedisConfig: InternalRedisConfig{
				Endpoints:    []string{"localhost:6379"},
				DB:           0,
				PoolSize:     10,
				MinIdleConns: 5,
			},
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Database: InternalDatabaseConfig{
			Type:              "sqlite",
			Path:              "starphoenix.db",
			Host:              "localhost",
			Port:              3306,
			VarcharLength:     255,
			MaxOpenConns:      25,
			MaxIdleConns:      5,
			ConnMaxLifetime:   5 * time.Minute,
			ConnMaxIdleTime:   10 * time.Minute,
			ConnectionTimeout: 10 * time.Second,
		},
		Tables: make(map[string]InternalTableConfig),
		WriteBack: InternalWriteBackConfig{
			BatchSize:        100,
			DrainRate:        50,
			MaxRetries:       5,
			RetryBackoffBase: 1 * time.Second,
			RetryBackoffMax:  30 * time.Second,
			DefaultTTL:       1 * time.Hour,
			QueueType:        "memory",
			QueueBufferSize:  10000,
			Codec:            "json",
			KafkaConfig: InternalKafkaConfig{
				Brokers:         []string{"localhost:9092"},
				Topic:           "starphoenix-writeback",
				GroupID:         "starphoenix-writeback",
				BatchSize:       100,
				BatchTimeout:    10 * time.Millisecond,
				WriteTimeout:    10 * time.Second,
				ReadTimeout:     10 * time.Second,
				RequiredAcks:    -1,      // All replicas
				MaxMessageBytes: 1000000, // 1MB
				MinBytes:        1,
				MaxBytes:        10 * 1024 * 1024, // 10MB
				MaxWait:         100 * time.Millisecond,
			},
		},
		Schema: InternalSchemaConfig{
			CreateOnRegister: true,
			CatalogPrefix:    DefaultCatalogPrefix,
		},
	}
}

// LoadFromFile loads a .yaml, .yml or .json file over the defaults. JSON is
// read with the YAML decoder so durations can be written as "30s" in both.
func (cm *ConfigManager) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml", ".json":
		return cm.LoadFromYAML(data)
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

// LoadFromYAML loads configuration from YAML data.
func (cm *ConfigManager) LoadFromYAML(data []byte) error {
	config := DefaultInternalConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return cm.apply(config)
}

// LoadFromEnv overlays STARPHOENIX_<SECTION>_<KEY> environment variables on
// the current configuration, e.g. STARPHOENIX_DATABASE_PATH or
// STARPHOENIX_SCHEMA_SOURCES=tables.yaml,solr/schema.xml. Values that do not
// parse are ignored.
func (cm *ConfigManager) LoadFromEnv() error {
	c := cm.snapshot()
	bindings := map[string]interface{}{
		"KVSTORE_TYPE":        &c.KVStore.Type,
		"KVSTORE_ENDPOINTS":   &c.KVStore.RedisConfig.Endpoints,
		"KVSTORE_PASSWORD":    &c.KVStore.RedisConfig.Password,
		"KVSTORE_DB":          &c.KVStore.RedisConfig.DB,
		"KVSTORE_MAX_RETRIES": &c.KVStore.MaxRetries,
		"KVSTORE_POOL_SIZE":   &c.KVStore.RedisConfig.PoolSize,
		"KVSTORE_REGION":      &c.KVStore.DynamoDBConfig.Region,
		"KVSTORE_TABLE_NAME":  &c.KVStore.DynamoDBConfig.TableName,
		"KVSTORE_ENDPOINT":    &c.KVStore.DynamoDBConfig.Endpoint,

		"DATABASE_TYPE":           &c.Database.Type,
		"DATABASE_PATH":           &c.Database.Path,
		"DATABASE_HOST":           &c.Database.Host,
		"DATABASE_PORT":           &c.Database.Port,
		"DATABASE_DATABASE":       &c.Database.Database,
		"DATABASE_USERNAME":       &c.Database.Username,
		"DATABASE_PASSWORD":       &c.Database.Password,
		"DATABASE_MAX_OPEN_CONNS": &c.Database.MaxOpenConns,
		"DATABASE_MAX_IDLE_CONNS": &c.Database.MaxIdleConns,

		"WRITEBACK_BATCH_SIZE":    &c.WriteBack.BatchSize,
		"WRITEBACK_DRAIN_RATE":    &c.WriteBack.DrainRate,
		"WRITEBACK_MAX_RETRIES":   &c.WriteBack.MaxRetries,
		"WRITEBACK_DEFAULT_TTL":   &c.WriteBack.DefaultTTL,
		"WRITEBACK_QUEUE_TYPE":    &c.WriteBack.QueueType,
		"WRITEBACK_CODEC":         &c.WriteBack.Codec,
		"WRITEBACK_KAFKA_BROKERS": &c.WriteBack.KafkaConfig.Brokers,
		"WRITEBACK_KAFKA_TOPIC":   &c.WriteBack.KafkaConfig.Topic,

		"SCHEMA_SOURCES":            &c.Schema.Sources,
		"SCHEMA_CREATE_ON_REGISTER": &c.Schema.CreateOnRegister,
	}
	for key, dst := range bindings {
		if val, ok := os.LookupEnv(EnvPrefix + key); ok && val != "" {
			setFromEnv(dst, val)
		}
	}
	return cm.apply(c)
}

func setFromEnv(dst interface{}, val string) {
	switch p := dst.(type) {
	case *string:
		*p = val
	case *[]string:
		*p = strings.Split(val, ",")
	case *int:
		if n, err := strconv.Atoi(val); err == nil {
			*p = n
		}
	case *bool:
		if b, err := strconv.ParseBool(val); err == nil {
			*p = b
		}
	case *time.Duration:
		if d, err := time.ParseDuration(val); err == nil {
			*p = d
		}
	}
}

// snapshot returns a copy of the current configuration to overlay on.
func (cm *ConfigManager) snapshot() *InternalConfig {
	copied := *cm.config
	copied.Tables = make(map[string]InternalTableConfig, len(cm.config.Tables))
	for name, tc := range cm.config.Tables {
		copied.Tables[name] = tc
	}
	return &copied
}

func (cm *ConfigManager) apply(config *InternalConfig) error {
	if config.Tables == nil {
		config.Tables = make(map[string]InternalTableConfig)
	}
	if err := cm.validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cm.config = config
	return nil
}

// GetConfig returns the current internal configuration.
func (cm *ConfigManager) GetConfig() *InternalConfig {
	return cm.config
}

// GetTableConfig returns a table's configuration with unset values taken
// from the write-back defaults.
func (cm *ConfigManager) GetTableConfig(tableName string) InternalTableConfig {
	return ResolveTableConfig(cm.config, tableName)
}

// ResolveTableConfig fills the unset values of a table's overrides from the
// write-back section of config.
func ResolveTableConfig(config *InternalConfig, tableName string) InternalTableConfig {
	tc := config.Tables[tableName]
	wb := config.WriteBack
	if tc.TTL == 0 {
		tc.TTL = wb.DefaultTTL
	}
	if tc.WriteBackBatchSize == 0 {
		tc.WriteBackBatchSize = wb.BatchSize
	}
	if tc.DrainRate == 0 {
		tc.DrainRate = wb.DrainRate
	}
	return tc
}

// validateConfig checks every section. The KV store section is delegated to
// the validator registered for its type.
func (cm *ConfigManager) validateConfig(config *InternalConfig) error {
	if config.KVStore.Type == "" {
		return fmt.Errorf("kvstore.type is required")
	}
	validator, ok := GetValidator(config.KVStore.Type)
	if !ok {
		return fmt.Errorf("unsupported KV store type: %s", config.KVStore.Type)
	}
	if err := validator.Validate(config); err != nil {
		return fmt.Errorf("kvstore validation failed: %w", err)
	}
	if err := validateDatabase(&config.Database); err != nil {
		return err
	}
	return validateWriteBack(config)
}

func validateDatabase(db *InternalDatabaseConfig) error {
	switch db.Type {
	case "":
		return fmt.Errorf("database.type is required")
	case "sqlite":
		if db.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
		return nil
	case "mysql":
	default:
		return fmt.Errorf("database.type must be 'sqlite' or 'mysql'")
	}

	required := []struct{ key, value string }{
		{"host", db.Host},
		{"database", db.Database},
		{"username", db.Username},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("database.%s is required for mysql", r.key)
		}
	}
	if db.Port <= 0 || db.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535")
	}
	if db.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be greater than 0")
	}
	return nil
}

func validateWriteBack(config *InternalConfig) error {
	wb := &config.WriteBack
	switch {
	case wb.BatchSize <= 0:
		return fmt.Errorf("writeback.batch_size must be greater than 0")
	case wb.DrainRate <= 0:
		return fmt.Errorf("writeback.drain_rate must be greater than 0")
	case wb.MaxRetries < 0:
		return fmt.Errorf("writeback.max_retries must be non-negative")
	case wb.DefaultTTL <= 0:
		return fmt.Errorf("writeback.default_ttl must be greater than 0")
	}

	switch wb.Codec {
	case "", "json", "msgpack":
	default:
		return fmt.Errorf("writeback.codec must be 'json' or 'msgpack'")
	}

	switch wb.QueueType {
	case "", "memory":
	case "redis":
		if config.KVStore.Type == "dynamodb" {
			return fmt.Errorf("writeback.queue_type 'redis' needs a redis or memory kvstore")
		}
	case "kafka":
		if len(wb.KafkaConfig.Brokers) == 0 || wb.KafkaConfig.Topic == "" {
			return fmt.Errorf("kafka_config needs brokers and a topic when queue_type is 'kafka'")
		}
	default:
		return fmt.Errorf("writeback.queue_type must be 'memory', 'redis', or 'kafka'")
	}
	return nil
}
