package read

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/database"
	"github.com/rzpsarthak13/starphoenix/internal/schema"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
)

// ErrRecordNotFound is returned when no row has the requested key.
var ErrRecordNotFound = errors.New("record not found")

// FallbackHandler reads records from the physical tables. Wide fields are
// gathered from their side tables in chunk order and joined back.
type FallbackHandler struct {
	database   core.Database
	translator *schema.Translator
}

// NewFallbackHandler creates a new fallback handler.
func NewFallbackHandler(db core.Database, translator *schema.Translator) *FallbackHandler {
	return &FallbackHandler{
		database:   db,
		translator: translator,
	}
}

// keySelect builds a select on table restricted to one primary key value.
func keySelect(table *sequel.Table, key interface{}, fields []string) (*sequel.Select, error) {
	pk := table.PrimaryKey()
	if pk == nil {
		return nil, fmt.Errorf("%w: %s", sequel.ErrMissingPrimaryKey, table.Name())
	}
	sel := sequel.NewSelect(table)
	if err := sel.AddField(fields...); err != nil {
		return nil, err
	}
	cond, err := sel.ValueCondition(pk.Name, "=", key)
	if err != nil {
		return nil, err
	}
	sel.Where().AddCondition(cond, sequel.And)
	return sel, nil
}

// ReadFromDB reads the record with the given primary key.
func (fh *FallbackHandler) ReadFromDB(ctx context.Context, table *sequel.Table, key interface{}) (map[string]interface{}, error) {
	sel, err := keySelect(table, key, nil)
	if err != nil {
		return nil, err
	}
	records, err := fh.Query(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: table=%s, key=%v", ErrRecordNotFound, table.Name(), key)
	}
	return records[0], nil
}

// Query runs sel against the physical tables and returns the matching
// records in store form.
func (fh *FallbackHandler) Query(ctx context.Context, sel *sequel.Select) ([]map[string]interface{}, error) {
	table := sel.Table()

	var wide []string
	for _, f := range table.WideFields() {
		if sel.Requested(f.Name) {
			wide = append(wide, f.Name)
		}
	}
	pk := table.PrimaryKey()
	if len(wide) > 0 && pk == nil {
		return nil, fmt.Errorf("%w: %s has wide fields", sequel.ErrMissingPrimaryKey, table.Name())
	}
	// The key is needed to find the chunks of each row.
	dropKey := false
	if len(wide) > 0 && !sel.Requested(pk.Name) {
		if err := sel.AddField(pk.Name); err != nil {
			return nil, err
		}
		dropKey = true
	}

	statements, err := sel.Split()
	if err != nil {
		return nil, err
	}

	primary, err := statements[0].Render()
	if err != nil {
		return nil, err
	}
	rows, err := fh.database.Query(ctx, primary)
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	results, err := database.ScanMaps(rows)
	if err != nil {
		return nil, err
	}

	records := make([]map[string]interface{}, 0, len(results))
	for _, row := range results {
		if len(wide) > 0 {
			// Side reads carry no key column, so they run per row.
			key := row[pk.Name]
			if err := fh.gather(ctx, table, key, wide, row); err != nil {
				return nil, err
			}
			if dropKey {
				delete(row, pk.Name)
			}
		}
		record, err := fh.translator.RowToRecord(row, table)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// gather reads the chunks of the wide fields of one row into row.
func (fh *FallbackHandler) gather(ctx context.Context, table *sequel.Table, key interface{}, wide []string, row map[string]interface{}) error {
	sel, err := keySelect(table, key, wide)
	if err != nil {
		return err
	}
	statements, err := sel.Split()
	if err != nil {
		return err
	}
	for _, stmt := range statements[1:] {
		kb, ok := stmt.(*sequel.KeyBased)
		if !ok {
			continue
		}
		q, err := kb.Render()
		if err != nil {
			return err
		}
		rows, err := fh.database.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", kb.Table().Name(), err)
		}
		values, err := database.ScanColumn(rows)
		if err != nil {
			return err
		}
		name := kb.Table().SideField().Name
		if len(values) == 0 {
			row[name] = nil
			continue
		}
		chunks := make([]string, 0, len(values))
		for _, v := range values {
			chunks = append(chunks, fmt.Sprint(v))
		}
		row[name] = chunks
	}
	return nil
}
