package writeback

import (
	"context"
)

// RedisQueueOperations are the list primitives a KV store offers to back a
// RedisQueue. The redis and memory stores implement them.
type RedisQueueOperations interface {
	// ListPush appends value to the list at key.
	ListPush(ctx context.Context, key string, value []byte) error
	// ListPopN removes and returns up to n values from the head of the list.
	// An empty or missing list yields no values and no error.
	ListPopN(ctx context.Context, key string, n int) ([][]byte, error)
	ListLength(ctx context.Context, key string) (int64, error)
}
