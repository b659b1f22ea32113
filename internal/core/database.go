package core

import "context"

// Database is the relational store the split statements execute against.
type Database interface {
	// Query runs a statement that returns rows.
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)

	// BeginTx starts a transaction.
	BeginTx(ctx context.Context) (Transaction, error)

	// GetTables lists the table names in the database.
	GetTables(ctx context.Context) ([]string, error)

	// Close releases the connection pool.
	Close() error
}

// Rows is a cursor over a query result.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Columns() ([]string, error)
	Close() error
	Err() error
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Transaction is an open database transaction.
type Transaction interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
	Commit() error
	Rollback() error
}
