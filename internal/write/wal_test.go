package write

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/kvstore"
	"github.com/rzpsarthak13/starphoenix/internal/writeback"
)

func TestWALAppendAcknowledge(t *testing.T) {
	ctx := context.Background()
	wal := NewWALManager(kvstore.NewMemoryKVStore(), writeback.MsgpackCodec{}, "", 0)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := &core.WriteOperation{Table: "b", Operation: core.OperationDelete, Statements: []string{"DELETE FROM b"}, Timestamp: base.Add(time.Second)}
	first := &core.WriteOperation{Table: "a", Operation: core.OperationDefine, Statements: []string{"CREATE TABLE a (x VARCHAR)"}, Timestamp: base}
	require.NoError(t, wal.Append(ctx, second))
	require.NoError(t, wal.Append(ctx, first))
	assert.NotEmpty(t, first.ID)

	got, err := wal.Get(ctx, "a", first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Statements, got.Statements)

	pending, err := wal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	require.NoError(t, wal.Acknowledge(ctx, first))
	pending, err = wal.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].Table)

	assert.False(t, wal.Tracked(first))
	assert.True(t, wal.Tracked(second))
}

func TestWALTrackingIsPerProcess(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryKVStore()
	wal := NewWALManager(store, writeback.JSONCodec{}, "", 0)

	op := &core.WriteOperation{Table: "a", Operation: core.OperationUpsert, Statements: []string{"UPSERT INTO a(x) VALUES ('y')"}}
	require.NoError(t, wal.Append(ctx, op))
	assert.True(t, wal.Tracked(op))

	// A manager over the same store starts with nothing tracked.
	restarted := NewWALManager(store, writeback.JSONCodec{}, "", 0)
	pending, err := restarted.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.False(t, restarted.Tracked(pending[0]))

	restarted.Track(pending[0])
	assert.True(t, restarted.Tracked(op))
}
