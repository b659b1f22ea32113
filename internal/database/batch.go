package database

import (
	"context"
	"fmt"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

// ExecBatch runs statements in order inside one transaction. Either all of
// them apply or none do.
func ExecBatch(ctx context.Context, db core.Database, statements []string) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	for i, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("statement %d failed: %w (rollback failed: %v)", i, err, rbErr)
			}
			return fmt.Errorf("statement %d failed: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ScanMaps drains rows into one map per row keyed by column name. The rows
// are closed when it returns.
func ScanMaps(rows core.Rows) ([]map[string]interface{}, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ScanColumn drains rows into the values of their first column.
func ScanColumn(rows core.Rows) ([]interface{}, error) {
	maps, err := ScanMaps(rows)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, len(maps))
	for _, row := range maps {
		if len(row) != 1 {
			return nil, fmt.Errorf("expected one column, got %d", len(row))
		}
		for _, v := range row {
			out = append(out, v)
		}
	}
	return out, nil
}
