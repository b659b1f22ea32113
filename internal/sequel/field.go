// Package sequel models single-table SQL statements over a logical table and
// fans them out over the table's physical decomposition: one primary table
// plus one side table per field whose type cannot live in a single column.
package sequel

import (
	"fmt"

	"github.com/rzpsarthak13/starphoenix/internal/types"
)

// Field is a named, typed column.
type Field struct {
	Name       string
	Type       *types.Type
	PrimaryKey bool
}

// NewField returns a field.
func NewField(name string, typ *types.Type, primaryKey bool) *Field {
	return &Field{Name: name, Type: typ, PrimaryKey: primaryKey}
}

// Clone returns a copy of f.
func (f *Field) Clone() *Field {
	c := *f
	return &c
}

// Wide reports whether the field must be moved to a side table.
func (f *Field) Wide() bool {
	return f.Type != nil && f.Type.NeedsSideTable
}

// TypeName returns the field's type name in the given system.
func (f *Field) TypeName(system types.System) string {
	return f.Type.Name(system)
}

// Clause renders the field as a CREATE TABLE column clause.
func (f *Field) Clause() string {
	clause := fmt.Sprintf("%s %s", f.Name, f.Type.RelationalName)
	if f.PrimaryKey {
		clause += " PRIMARY KEY"
	}
	return clause
}

func (f *Field) operand() {}

// renderOperand renders a field used as a condition operand.
func (f *Field) renderOperand() (string, error) {
	return f.Name, nil
}
