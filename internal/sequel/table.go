package sequel

import (
	"fmt"

	"github.com/rzpsarthak13/starphoenix/internal/types"
)

const (
	// PositionField is the chunk-order column of every side table.
	PositionField = "position"

	// ValueField is the payload column of every side table.
	ValueField = "value"
)

// Table is a named collection of fields kept in declaration order. A table
// built by NewSideTable additionally remembers the wide field it holds.
type Table struct {
	name       string
	registry   *types.Registry
	fields     []*Field
	index      map[string]int
	primaryKey *Field

	// side tables only
	sideField *Field
	ownerKey  *Field
}

// NewTable returns an empty table.
func NewTable(registry *types.Registry, name string) *Table {
	return &Table{
		name:     name,
		registry: registry,
		index:    make(map[string]int),
	}
}

// NewSideTable builds the side table that stores the chunks of field. The
// side table is named after the field and holds a copy of the owner's primary
// key, a position column and a value column typed as the field's element type.
func NewSideTable(owner *Table, field *Field) (*Table, error) {
	if owner.primaryKey == nil {
		return nil, fmt.Errorf("%w: side table %s needs a key on %s", ErrMissingPrimaryKey, field.Name, owner.name)
	}
	if !field.Wide() || field.Type.Element == nil {
		return nil, fmt.Errorf("%w: field %s does not need a side table", ErrTypeMismatch, field.Name)
	}

	key := owner.primaryKey.Clone()
	key.PrimaryKey = false

	side := NewTable(owner.registry, field.Name)
	side.sideField = field.Clone()
	side.ownerKey = key

	for _, f := range []*Field{
		key,
		NewField(PositionField, owner.registry.Position(), false),
		NewField(ValueField, field.Type.Element, false),
	} {
		if err := side.AddField(f); err != nil {
			return nil, fmt.Errorf("failed to build side table %s: %w", field.Name, err)
		}
	}
	return side, nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Registry returns the type registry the table was built with.
func (t *Table) Registry() *types.Registry {
	return t.registry
}

// AddField appends a field.
func (t *Table) AddField(f *Field) error {
	if f == nil || f.Name == "" {
		return fmt.Errorf("%w: field name cannot be empty", ErrUnknownField)
	}
	if f.Type == nil {
		return fmt.Errorf("%w: field %s has no type", types.ErrUnknownType, f.Name)
	}
	if _, exists := t.index[f.Name]; exists {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateFieldName, t.name, f.Name)
	}
	if f.PrimaryKey {
		if t.primaryKey != nil {
			return fmt.Errorf("%w: %s already keyed by %s", ErrDuplicatePrimaryKey, t.name, t.primaryKey.Name)
		}
		if f.Wide() {
			return fmt.Errorf("%w: %s.%s is %s", ErrWidePrimaryKey, t.name, f.Name, f.Type.StoreName)
		}
		t.primaryKey = f
	}
	t.index[f.Name] = len(t.fields)
	t.fields = append(t.fields, f)
	return nil
}

// Fields returns the fields in declaration order.
func (t *Table) Fields() []*Field {
	out := make([]*Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// Field looks a field up by name.
func (t *Table) Field(name string) (*Field, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.fields[i], true
}

// Has reports whether the table has a field called name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// PrimaryKey returns the primary key field, or nil.
func (t *Table) PrimaryKey() *Field {
	return t.primaryKey
}

// Key returns the field rows are identified by: the primary key, or for a
// side table the copy of its owner's key.
func (t *Table) Key() *Field {
	if t.ownerKey != nil {
		return t.ownerKey
	}
	return t.primaryKey
}

// SideField returns the wide field a side table was built for, or nil.
func (t *Table) SideField() *Field {
	return t.sideField
}

// IsSide reports whether t is a side table.
func (t *Table) IsSide() bool {
	return t.sideField != nil
}

// WideFields returns the fields that need side tables, in declaration order.
func (t *Table) WideFields() []*Field {
	var wide []*Field
	for _, f := range t.fields {
		if f.Wide() {
			wide = append(wide, f)
		}
	}
	return wide
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	return t.subset(func(*Field) bool { return true })
}

// subset copies t keeping only the fields keep accepts.
func (t *Table) subset(keep func(*Field) bool) *Table {
	c := NewTable(t.registry, t.name)
	if t.sideField != nil {
		c.sideField = t.sideField.Clone()
	}
	for _, f := range t.fields {
		if !keep(f) {
			continue
		}
		cf := f.Clone()
		c.index[cf.Name] = len(c.fields)
		c.fields = append(c.fields, cf)
		if cf.PrimaryKey {
			c.primaryKey = cf
		}
		if t.ownerKey != nil && cf.Name == t.ownerKey.Name {
			c.ownerKey = cf
		}
	}
	return c
}

// Split decomposes t into its physical tables: the primary table holding
// every field that fits in a column, followed by one side table per wide
// field in declaration order.
func (t *Table) Split() ([]*Table, error) {
	wide := t.WideFields()
	if len(wide) > 0 && t.primaryKey == nil {
		return nil, fmt.Errorf("%w: %s has %d wide field(s)", ErrMissingPrimaryKey, t.name, len(wide))
	}

	tables := []*Table{t.subset(func(f *Field) bool { return !f.Wide() })}
	for _, f := range wide {
		side, err := NewSideTable(t, f)
		if err != nil {
			return nil, err
		}
		tables = append(tables, side)
	}
	return tables, nil
}
