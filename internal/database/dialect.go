package database

import (
	"regexp"
	"strconv"
	"strings"
)

// Dialect adapts the rendered statements to a concrete engine.
type Dialect interface {
	// Tag is the log prefix of the engine.
	Tag() string

	// Rewrite returns stmt in the engine's syntax.
	Rewrite(stmt string) string

	// TablesQuery lists base table names.
	TablesQuery() string
}

const (
	upsertPrefix = "UPSERT INTO "
	createPrefix = "CREATE TABLE "
)

var (
	varcharWord = regexp.MustCompile(`\bVARCHAR\b`)
	dateWord    = regexp.MustCompile(`\bDATE\b`)
)

// MySQLDialect writes upserts as REPLACE and gives string columns a length.
type MySQLDialect struct {
	// VarcharLength is the length of VARCHAR columns.
	VarcharLength int
}

func (MySQLDialect) Tag() string { return "MYSQL" }

func (d MySQLDialect) Rewrite(stmt string) string {
	switch {
	case strings.HasPrefix(stmt, upsertPrefix):
		return "REPLACE INTO " + stmt[len(upsertPrefix):]
	case strings.HasPrefix(stmt, createPrefix):
		length := d.VarcharLength
		if length <= 0 {
			length = 255
		}
		body := stmt[len(createPrefix):]
		body = varcharWord.ReplaceAllString(body, "VARCHAR("+strconv.Itoa(length)+")")
		body = dateWord.ReplaceAllString(body, "DATETIME")
		return "CREATE TABLE IF NOT EXISTS " + body
	}
	return stmt
}

func (MySQLDialect) TablesQuery() string {
	return `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
	`
}

// SQLiteDialect writes upserts as INSERT OR REPLACE.
type SQLiteDialect struct{}

func (SQLiteDialect) Tag() string { return "SQLITE" }

func (SQLiteDialect) Rewrite(stmt string) string {
	switch {
	case strings.HasPrefix(stmt, upsertPrefix):
		return "INSERT OR REPLACE INTO " + stmt[len(upsertPrefix):]
	case strings.HasPrefix(stmt, createPrefix):
		return "CREATE TABLE IF NOT EXISTS " + stmt[len(createPrefix):]
	}
	return stmt
}

func (SQLiteDialect) TablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}
