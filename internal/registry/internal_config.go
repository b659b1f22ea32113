package registry

import (
	"time"
)

// InternalConfig is the whole runtime configuration. The public package
// re-exports these types under shorter names.
type InternalConfig struct {
	KVStore   InternalKVStoreConfig          `yaml:"kvstore" json:"kvstore"`
	Database  InternalDatabaseConfig         `yaml:"database" json:"database"`
	Tables    map[string]InternalTableConfig `yaml:"tables,omitempty" json:"tables,omitempty"`
	WriteBack InternalWriteBackConfig        `yaml:"writeback" json:"writeback"`
	Schema    InternalSchemaConfig           `yaml:"schema" json:"schema"`
}

// InternalKVStoreConfig selects and tunes the KV store. Type is "memory",
// "redis" or "dynamodb"; only the matching sub-section is read.
type InternalKVStoreConfig struct {
	Type           string                 `yaml:"type" json:"type"`
	RedisConfig    InternalRedisConfig    `yaml:"redis_config,omitempty" json:"redis_config,omitempty"`
	DynamoDBConfig InternalDynamoDBConfig `yaml:"dynamodb_config,omitempty" json:"dynamodb_config,omitempty"`
	MaxRetries     int                    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	DialTimeout    time.Duration          `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`
	ReadTimeout    time.Duration          `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout   time.Duration          `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
}

// InternalRedisConfig holds Redis settings. Only the first endpoint is dialed.
type InternalRedisConfig struct {
	Endpoints    []string `yaml:"endpoints" json:"endpoints"`
	Password     string   `yaml:"password,omitempty" json:"password,omitempty"`
	DB           int      `yaml:"db,omitempty" json:"db,omitempty"`
	PoolSize     int      `yaml:"pool_size,omitempty" json:"pool_size,omitempty"`
	MinIdleConns int      `yaml:"min_idle_conns,omitempty" json:"min_idle_conns,omitempty"`
}

// InternalDynamoDBConfig holds DynamoDB settings. Endpoint and static
// credentials are optional.
type InternalDynamoDBConfig struct {
	Region          string `yaml:"region" json:"region"`
	TableName       string `yaml:"table_name" json:"table_name"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// InternalDatabaseConfig selects the relational database. SQLite reads Path,
// which may be ":memory:"; MySQL reads the host fields. VarcharLength sizes
// unsized VARCHAR columns on MySQL.
type InternalDatabaseConfig struct {
	Type              string        `yaml:"type" json:"type"`
	Path              string        `yaml:"path,omitempty" json:"path,omitempty"`
	Host              string        `yaml:"host,omitempty" json:"host,omitempty"`
	Port              int           `yaml:"port,omitempty" json:"port,omitempty"`
	Database          string        `yaml:"database,omitempty" json:"database,omitempty"`
	Username          string        `yaml:"username,omitempty" json:"username,omitempty"`
	Password          string        `yaml:"password,omitempty" json:"password,omitempty"`
	VarcharLength     int           `yaml:"varchar_length,omitempty" json:"varchar_length,omitempty"`
	MaxOpenConns      int           `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitempty"`
	MaxIdleConns      int           `yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitempty"`
	ConnMaxLifetime   time.Duration `yaml:"conn_max_lifetime,omitempty" json:"conn_max_lifetime,omitempty"`
	ConnMaxIdleTime   time.Duration `yaml:"conn_max_idle_time,omitempty" json:"conn_max_idle_time,omitempty"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout,omitempty" json:"connection_timeout,omitempty"`
}

// InternalTableConfig overrides the write-back defaults for one table.
// Enabled turns KV on at registration; Namespace prefixes cache keys.
type InternalTableConfig struct {
	TTL                time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	WriteBackBatchSize int           `yaml:"writeback_batch_size,omitempty" json:"writeback_batch_size,omitempty"`
	DrainRate          int           `yaml:"drain_rate,omitempty" json:"drain_rate,omitempty"`
	Enabled            bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Namespace          string        `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// InternalWriteBackConfig sets the write-back defaults. DrainRate is in
// operations per second; Codec is "json" or "msgpack" and applies to queued
// operations and WAL entries.
type InternalWriteBackConfig struct {
	BatchSize        int                 `yaml:"batch_size" json:"batch_size"`
	DrainRate        int                 `yaml:"drain_rate" json:"drain_rate"`
	MaxRetries       int                 `yaml:"max_retries" json:"max_retries"`
	RetryBackoffBase time.Duration       `yaml:"retry_backoff_base" json:"retry_backoff_base"`
	RetryBackoffMax  time.Duration       `yaml:"retry_backoff_max" json:"retry_backoff_max"`
	DefaultTTL       time.Duration       `yaml:"default_ttl" json:"default_ttl"`
	QueueType        string              `yaml:"queue_type" json:"queue_type"`
	QueueBufferSize  int                 `yaml:"queue_buffer_size" json:"queue_buffer_size"`
	Codec            string              `yaml:"codec" json:"codec"`
	KafkaConfig      InternalKafkaConfig `yaml:"kafka_config" json:"kafka_config"`
}

// InternalKafkaConfig is read when QueueType is "kafka". Each table gets the
// topic {Topic}.{table}.
type InternalKafkaConfig struct {
	Brokers         []string      `yaml:"brokers" json:"brokers"`
	Topic           string        `yaml:"topic" json:"topic"`
	GroupID         string        `yaml:"group_id" json:"group_id"`
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	RequiredAcks    int           `yaml:"required_acks" json:"required_acks"`
	MaxMessageBytes int           `yaml:"max_message_bytes" json:"max_message_bytes"`
	MinBytes        int           `yaml:"min_bytes" json:"min_bytes"`
	MaxBytes        int           `yaml:"max_bytes" json:"max_bytes"`
	MaxWait         time.Duration `yaml:"max_wait" json:"max_wait"`
}

// InternalSchemaConfig says where table definitions come from and what
// happens when one is registered.
type InternalSchemaConfig struct {
	// Sources are definition files (.yaml, .yml, .json or Solr .xml) loaded at startup.
	Sources []string `yaml:"sources,omitempty" json:"sources,omitempty"`

	// CreateOnRegister creates the physical tables when a definition is registered.
	CreateOnRegister bool `yaml:"create_on_register" json:"create_on_register"`

	// CatalogPrefix namespaces persisted definitions in the KV store.
	CatalogPrefix string `yaml:"catalog_prefix,omitempty" json:"catalog_prefix,omitempty"`
}
