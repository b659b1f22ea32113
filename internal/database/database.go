package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

// SQLDatabase implements the core.Database interface over database/sql.
// Statements pass through the dialect before they reach the driver.
type SQLDatabase struct {
	db      *sql.DB
	dialect Dialect
	closed  bool
}

// newSQLDatabase wraps an open pool.
func newSQLDatabase(db *sql.DB, dialect Dialect) *SQLDatabase {
	return &SQLDatabase{db: db, dialect: dialect}
}

// Dialect returns the dialect statements are rewritten with.
func (d *SQLDatabase) Dialect() Dialect {
	return d.dialect
}

// Query executes a SELECT query and returns rows.
func (d *SQLDatabase) Query(ctx context.Context, query string, args ...interface{}) (core.Rows, error) {
	if d.closed {
		return nil, fmt.Errorf("database is closed")
	}
	query = d.dialect.Rewrite(query)
	log.Printf("[%s] Executing query: %s", d.dialect.Tag(), query)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Printf("[%s] ERROR: Query failed: %v", d.dialect.Tag(), err)
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &sqlRows{rows: rows}, nil
}

// Exec executes a non-query statement and returns a result.
func (d *SQLDatabase) Exec(ctx context.Context, query string, args ...interface{}) (core.Result, error) {
	if d.closed {
		return nil, fmt.Errorf("database is closed")
	}
	query = d.dialect.Rewrite(query)
	log.Printf("[%s] Executing statement: %s", d.dialect.Tag(), query)
	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Printf("[%s] ERROR: Exec failed: %v", d.dialect.Tag(), err)
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	return &sqlResult{result: result}, nil
}

// BeginTx starts a new transaction.
func (d *SQLDatabase) BeginTx(ctx context.Context) (core.Transaction, error) {
	if d.closed {
		return nil, fmt.Errorf("database is closed")
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTransaction{tx: tx, dialect: d.dialect}, nil
}

// GetTables returns a list of all table names in the database.
func (d *SQLDatabase) GetTables(ctx context.Context) ([]string, error) {
	if d.closed {
		return nil, fmt.Errorf("database is closed")
	}

	rows, err := d.db.QueryContext(ctx, d.dialect.TablesQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}

	return tables, rows.Err()
}

// Close closes the database connection.
func (d *SQLDatabase) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

// sqlRows wraps sql.Rows to implement core.Rows.
type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

func (r *sqlRows) Scan(dest ...interface{}) error {
	return r.rows.Scan(dest...)
}

func (r *sqlRows) Columns() ([]string, error) {
	return r.rows.Columns()
}

func (r *sqlRows) Close() error {
	return r.rows.Close()
}

func (r *sqlRows) Err() error {
	return r.rows.Err()
}

// sqlResult wraps sql.Result to implement core.Result.
type sqlResult struct {
	result sql.Result
}

func (r *sqlResult) LastInsertId() (int64, error) {
	return r.result.LastInsertId()
}

func (r *sqlResult) RowsAffected() (int64, error) {
	return r.result.RowsAffected()
}

// sqlTransaction wraps sql.Tx to implement core.Transaction.
type sqlTransaction struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTransaction) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqlTransaction) Query(ctx context.Context, query string, args ...interface{}) (core.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.Rewrite(query), args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (t *sqlTransaction) Exec(ctx context.Context, query string, args ...interface{}) (core.Result, error) {
	result, err := t.tx.ExecContext(ctx, t.dialect.Rewrite(query), args...)
	if err != nil {
		return nil, err
	}
	return &sqlResult{result: result}, nil
}
