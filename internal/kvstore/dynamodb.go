package kvstore

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/registry"
)

const (
	// maxBatchSize is the BatchWriteItem request limit.
	maxBatchSize = 25
	// maxUnprocessedRetries bounds resubmission of throttled batch items.
	maxUnprocessedRetries = 5
)

// DynamoDBKVStore implements core.KVStore on one DynamoDB table keyed by the
// string attribute "key". Expiry is enforced on read; the "ttl" attribute
// also suits DynamoDB's own TTL sweeper.
type DynamoDBKVStore struct {
	client    *dynamodb.Client
	tableName string
	closed    atomic.Bool
}

type dynamoItem struct {
	Key       string `dynamodbav:"key"`
	Value     []byte `dynamodbav:"value"`
	TTL       int64  `dynamodbav:"ttl,omitempty"`
	CreatedAt string `dynamodbav:"created_at"`
}

func newDynamoItem(key string, value []byte, ttl time.Duration) dynamoItem {
	item := dynamoItem{
		Key:       key,
		Value:     value,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if ttl > 0 {
		item.TTL = time.Now().Add(ttl).Unix()
	}
	return item
}

func (i dynamoItem) expired(now time.Time) bool {
	return i.TTL > 0 && now.Unix() > i.TTL
}

func keyAttribute(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: key},
	}
}

// NewDynamoDBKVStore creates a new DynamoDB KV store implementation.
func NewDynamoDBKVStore(cfg KVStoreConfig) (*DynamoDBKVStore, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if cfg.TableName == "" {
		return nil, fmt.Errorf("table name is required")
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	clientOptions := []func(*dynamodb.Options){}
	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := dynamodb.NewFromConfig(awsCfg, clientOptions...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(cfg.TableName),
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to DynamoDB table %s: %w", cfg.TableName, err)
	}

	log.Printf("[DYNAMODB] Connected to table %s in %s", cfg.TableName, cfg.Region)
	return &DynamoDBKVStore{
		client:    client,
		tableName: cfg.TableName,
	}, nil
}

func (d *DynamoDBKVStore) getItem(ctx context.Context, key string) (*dynamoItem, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key:       keyAttribute(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("invalid item format for key %s: %w", key, err)
	}
	if item.expired(time.Now()) {
		return nil, nil
	}
	return &item, nil
}

// Get retrieves a value by key from the store.
func (d *DynamoDBKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if d.closed.Load() {
		return nil, ErrStoreClosed
	}

	item, err := d.getItem(ctx, key)
	if err != nil {
		log.Printf("[DYNAMODB] ERROR: %v", err)
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return item.Value, nil
}

// Set stores a key-value pair with an optional TTL.
func (d *DynamoDBKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if d.closed.Load() {
		return ErrStoreClosed
	}

	av, err := attributevalue.MarshalMap(newDynamoItem(key, value, ttl))
	if err != nil {
		return fmt.Errorf("failed to marshal item for key %s: %w", key, err)
	}

	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	}); err != nil {
		log.Printf("[DYNAMODB] ERROR: Failed to set key %s: %v", key, err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	log.Printf("[DYNAMODB] PUT %s (%d bytes, ttl %v)", key, len(value), ttl)
	return nil
}

// Delete removes a key from the store.
func (d *DynamoDBKVStore) Delete(ctx context.Context, key string) error {
	if d.closed.Load() {
		return ErrStoreClosed
	}

	if _, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       keyAttribute(key),
	}); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists in the store.
func (d *DynamoDBKVStore) Exists(ctx context.Context, key string) (bool, error) {
	if d.closed.Load() {
		return false, ErrStoreClosed
	}

	item, err := d.getItem(ctx, key)
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

// BatchSet writes items in BatchWriteItem chunks. Items DynamoDB reports as
// unprocessed are resubmitted with a growing pause; the batch is not atomic.
func (d *DynamoDBKVStore) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if d.closed.Load() {
		return ErrStoreClosed
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for key, value := range items {
		av, err := attributevalue.MarshalMap(newDynamoItem(key, value, ttl))
		if err != nil {
			return fmt.Errorf("failed to marshal item for key %s: %w", key, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	for len(requests) > 0 {
		n := len(requests)
		if n > maxBatchSize {
			n = maxBatchSize
		}
		if err := d.writeBatch(ctx, requests[:n]); err != nil {
			return err
		}
		requests = requests[n:]
	}
	return nil
}

func (d *DynamoDBKVStore) writeBatch(ctx context.Context, batch []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{d.tableName: batch}
	for attempt := 0; ; attempt++ {
		out, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("failed to batch set keys: %w", err)
		}
		left := len(out.UnprocessedItems[d.tableName])
		if left == 0 {
			return nil
		}
		if attempt >= maxUnprocessedRetries {
			return fmt.Errorf("failed to batch set keys: %d item(s) unprocessed after %d attempts", left, attempt+1)
		}
		log.Printf("[DYNAMODB] %d item(s) unprocessed, retrying", left)
		pending = out.UnprocessedItems
		select {
		case <-time.After(time.Duration(50<<attempt) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Keys returns every unexpired key that starts with prefix.
func (d *DynamoDBKVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if d.closed.Load() {
		return nil, ErrStoreClosed
	}

	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:                aws.String(d.tableName),
		FilterExpression:         aws.String("begins_with(#k, :prefix)"),
		ProjectionExpression:     aws.String("#k, #t"),
		ExpressionAttributeNames: map[string]string{"#k": "key", "#t": "ttl"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
	})

	now := time.Now()
	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys with prefix %s: %w", prefix, err)
		}
		var items []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("invalid item format: %w", err)
		}
		for _, item := range items {
			if !item.expired(now) {
				keys = append(keys, item.Key)
			}
		}
	}
	return keys, nil
}

// Close marks the store closed. The SDK client holds nothing to release.
func (d *DynamoDBKVStore) Close() error {
	d.closed.Store(true)
	return nil
}

// DynamoDBKVStoreFactory implements the KVStoreFactory interface for DynamoDB.
type DynamoDBKVStoreFactory struct{}

func (f *DynamoDBKVStoreFactory) Type() string {
	return "dynamodb"
}

// Validate validates the DynamoDB-specific configuration.
func (f *DynamoDBKVStoreFactory) Validate(config KVStoreConfig) error {
	if config.Type != "dynamodb" {
		return fmt.Errorf("invalid type for DynamoDB factory: %s", config.Type)
	}
	if config.Region == "" {
		return fmt.Errorf("region is required for DynamoDB")
	}
	if config.TableName == "" {
		return fmt.Errorf("table_name is required for DynamoDB")
	}
	return nil
}

// Create creates a new DynamoDB KV store instance based on the provided configuration.
func (f *DynamoDBKVStoreFactory) Create(config KVStoreConfig) (core.KVStore, error) {
	dynamoStore, err := NewDynamoDBKVStore(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB KV store: %w", err)
	}
	return dynamoStore, nil
}

// DynamoDBConfigValidator implements the ConfigValidator interface for DynamoDB.
type DynamoDBConfigValidator struct{}

func (v *DynamoDBConfigValidator) Type() string {
	return "dynamodb"
}

// Validate validates the DynamoDB-specific configuration in the internal config.
func (v *DynamoDBConfigValidator) Validate(config *registry.InternalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	kv := ConfigFromInternal(config.KVStore)
	if err := (&DynamoDBKVStoreFactory{}).Validate(kv); err != nil {
		return err
	}
	if config.KVStore.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got: %d", config.KVStore.MaxRetries)
	}
	return validateTimeouts(kv.DialTimeout, kv.ReadTimeout, kv.WriteTimeout)
}

func init() {
	RegisterFactory(&DynamoDBKVStoreFactory{})
	registry.RegisterValidator(&DynamoDBConfigValidator{})
}
