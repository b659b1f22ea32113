package starphoenix

import (
	"context"
	"fmt"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/read"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
)

// Definition describes a logical table in document-store types.
type Definition = core.Schema

// FieldDefinition is one field of a Definition.
type FieldDefinition = core.FieldSpec

// SelectStatement is the statement handed to Query builders.
type SelectStatement = sequel.Select

// DeleteStatement is the statement handed to Remove builders.
type DeleteStatement = sequel.Delete

// ErrRecordNotFound is returned by reads of a missing key.
var ErrRecordNotFound = read.ErrRecordNotFound

// Table provides a high-level interface over one logical table. Records are
// in document-store form; the table splits them across the primary and side
// tables and reassembles them on read.
type Table interface {
	// Name returns the logical table name.
	Name() string

	// Define creates the primary table and its side tables.
	Define(ctx context.Context) error

	// Upload writes one record. With KV enabled the write is queued and
	// applied by the table's drainer.
	Upload(ctx context.Context, record map[string]interface{}) error

	// Read retrieves a record by its primary key, from the cache first when
	// KV is enabled.
	Read(ctx context.Context, key interface{}) (map[string]interface{}, error)

	// Query returns the records matching the select built by build. A nil
	// build selects every field of every row.
	Query(ctx context.Context, build func(*SelectStatement) error) ([]map[string]interface{}, error)

	// Delete removes a record by its primary key.
	Delete(ctx context.Context, key interface{}) error

	// Remove deletes every record matching the predicate built by build.
	Remove(ctx context.Context, build func(*DeleteStatement) error) error

	// FindByField returns the first record whose field equals value.
	FindByField(ctx context.Context, fieldName string, fieldValue interface{}) (map[string]interface{}, error)
}

// fieldFinder is implemented by tables that can look records up by a
// non-key field.
type fieldFinder interface {
	FindByField(ctx context.Context, field string, value interface{}) (map[string]interface{}, error)
}

// tableWrapper wraps the internal core.Table interface to provide
// the public Table interface.
type tableWrapper struct {
	table core.Table
}

func (tw *tableWrapper) Name() string {
	return tw.table.Name()
}

func (tw *tableWrapper) Define(ctx context.Context) error {
	return tw.table.Define(ctx)
}

func (tw *tableWrapper) Upload(ctx context.Context, record map[string]interface{}) error {
	return tw.table.Upload(ctx, record)
}

func (tw *tableWrapper) Read(ctx context.Context, key interface{}) (map[string]interface{}, error) {
	return tw.table.Read(ctx, key)
}

func (tw *tableWrapper) Query(ctx context.Context, build func(*SelectStatement) error) ([]map[string]interface{}, error) {
	return tw.table.Query(ctx, build)
}

func (tw *tableWrapper) Delete(ctx context.Context, key interface{}) error {
	return tw.table.Delete(ctx, key)
}

func (tw *tableWrapper) Remove(ctx context.Context, build func(*DeleteStatement) error) error {
	return tw.table.Remove(ctx, build)
}

func (tw *tableWrapper) FindByField(ctx context.Context, fieldName string, fieldValue interface{}) (map[string]interface{}, error) {
	finder, ok := tw.table.(fieldFinder)
	if !ok {
		return nil, fmt.Errorf("table %s does not support lookups by field", tw.table.Name())
	}
	return finder.FindByField(ctx, fieldName, fieldValue)
}
