package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *SQLDatabase {
	t.Helper()
	db, err := NewSQLiteDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteDialectRewrite(t *testing.T) {
	d := SQLiteDialect{}
	assert.Equal(t, "INSERT OR REPLACE INTO users(id) VALUES (1)", d.Rewrite("UPSERT INTO users(id) VALUES (1)"))
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY)", d.Rewrite("CREATE TABLE users (id INTEGER PRIMARY KEY)"))
	assert.Equal(t, "SELECT * FROM users", d.Rewrite("SELECT * FROM users"))
}

func TestMySQLDialectRewrite(t *testing.T) {
	d := MySQLDialect{}
	assert.Equal(t, "REPLACE INTO users(id) VALUES (1)", d.Rewrite("UPSERT INTO users(id) VALUES (1)"))
	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY, name VARCHAR(255), joined DATETIME)",
		d.Rewrite("CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR, joined DATE)"))
	assert.Contains(t, MySQLDialect{VarcharLength: 64}.Rewrite("CREATE TABLE t (a VARCHAR)"), "a VARCHAR(64)")
}

func TestMySQLOptionsDSN(t *testing.T) {
	dsn := MySQLOptions{Host: "db", Port: 3306, Database: "app", Username: "u", Password: "p"}.DSN()
	assert.Contains(t, dsn, "u:p@tcp(db:3306)/app")
}

func TestExecBatchAndScan(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	require.NoError(t, ExecBatch(ctx, db, []string{
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR)",
		"UPSERT INTO users(id, name) VALUES (1, 'ann')",
		"UPSERT INTO users(id, name) VALUES (1, 'bo')",
		"UPSERT INTO users(id, name) VALUES (2, 'cy')",
	}))

	rows, err := db.Query(ctx, "SELECT id, name FROM users ORDER BY id")
	require.NoError(t, err)
	maps, err := ScanMaps(rows)
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, int64(1), maps[0]["id"])
	assert.Equal(t, "bo", maps[0]["name"])

	tables, err := db.GetTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, tables)
}

func TestExecBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	require.NoError(t, ExecBatch(ctx, db, []string{"CREATE TABLE t (a INTEGER)"}))

	err := ExecBatch(ctx, db, []string{
		"UPSERT INTO t(a) VALUES (1)",
		"UPSERT INTO missing(a) VALUES (1)",
	})
	require.Error(t, err)

	rows, err := db.Query(ctx, "SELECT a FROM t")
	require.NoError(t, err)
	values, err := ScanColumn(rows)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestClosedDatabase(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, db.Close())
	_, err := db.Exec(context.Background(), "SELECT 1")
	assert.Error(t, err)
	assert.NoError(t, db.Close())
}
