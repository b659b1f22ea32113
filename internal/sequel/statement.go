package sequel

import (
	"fmt"
	"strings"
)

// Statement is a single-table SQL statement bound to a logical or physical table.
type Statement interface {
	// Table returns the bound table.
	Table() *Table

	// Render returns the statement text.
	Render() (string, error)

	// Split fans the statement out into one statement per physical table,
	// primary table first.
	Split() ([]Statement, error)
}

// RenderAll renders statements in order.
func RenderAll(statements []Statement) ([]string, error) {
	out := make([]string, 0, len(statements))
	for _, s := range statements {
		text, err := s.Render()
		if err != nil {
			return nil, fmt.Errorf("failed to render statement on %s: %w", s.Table().Name(), err)
		}
		out = append(out, text)
	}
	return out, nil
}

// Create renders CREATE TABLE for its table.
type Create struct {
	table *Table
}

// NewCreate binds a Create to a copy of t.
func NewCreate(t *Table) *Create {
	return &Create{table: t.Clone()}
}

// Table returns the bound table.
func (c *Create) Table() *Table {
	return c.table
}

// Render returns "CREATE TABLE <name> (<clauses>)".
func (c *Create) Render() (string, error) {
	fields := c.table.Fields()
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: %s has no fields", ErrUnknownField, c.table.Name())
	}
	clauses := make([]string, len(fields))
	for i, f := range fields {
		clauses[i] = f.Clause()
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", c.table.Name(), strings.Join(clauses, ", ")), nil
}

// Split returns one Create per physical table.
func (c *Create) Split() ([]Statement, error) {
	tables, err := c.table.Split()
	if err != nil {
		return nil, err
	}
	out := make([]Statement, len(tables))
	for i, t := range tables {
		out[i] = &Create{table: t}
	}
	return out, nil
}
