package sequel

import (
	"fmt"
	"strings"
)

// Upsert writes one row. Every field of the bound table needs a value before
// it renders.
type Upsert struct {
	table  *Table
	values map[string]Value
}

// NewUpsert binds an Upsert to a copy of t.
func NewUpsert(t *Table) *Upsert {
	return &Upsert{table: t.Clone(), values: make(map[string]Value)}
}

// Table returns the bound table.
func (u *Upsert) Table() *Table {
	return u.table
}

// Set assigns the value of a field. An untyped value takes the field's type.
func (u *Upsert) Set(name string, v Value) error {
	f, ok := u.table.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, u.table.Name(), name)
	}
	if v.Type == nil {
		v.Type = f.Type
	} else if !v.Type.Is(f.Type) {
		return fmt.Errorf("%w: %s.%s is %s, value is %s", ErrTypeMismatch, u.table.Name(), name, f.Type, v.Type)
	}
	u.values[name] = v
	return nil
}

// SetRaw assigns a raw value typed as the field.
func (u *Upsert) SetRaw(name string, raw interface{}) error {
	return u.Set(name, Value{Raw: raw})
}

// Value returns the value assigned to a field.
func (u *Upsert) Value(name string) (Value, bool) {
	v, ok := u.values[name]
	return v, ok
}

// Render returns "UPSERT INTO <name>(<fields>) VALUES (<values>)" with both
// lists in field declaration order.
func (u *Upsert) Render() (string, error) {
	fields := u.table.Fields()
	names := make([]string, len(fields))
	literals := make([]string, len(fields))
	for i, f := range fields {
		v, ok := u.values[f.Name]
		if !ok {
			return "", fmt.Errorf("%w: %s.%s", ErrMissingValue, u.table.Name(), f.Name)
		}
		literal, err := v.Render()
		if err != nil {
			return "", fmt.Errorf("failed to render %s.%s: %w", u.table.Name(), f.Name, err)
		}
		names[i] = f.Name
		literals[i] = literal
	}
	return fmt.Sprintf("UPSERT INTO %s(%s) VALUES (%s)",
		u.table.Name(), strings.Join(names, ", "), strings.Join(literals, ", ")), nil
}

// Split returns the primary-table upsert followed by one upsert per chunk
// of each wide field, side tables in declaration order and chunks in
// position order.
func (u *Upsert) Split() ([]Statement, error) {
	tables, err := u.table.Split()
	if err != nil {
		return nil, err
	}

	primary := &Upsert{table: tables[0], values: make(map[string]Value)}
	for _, f := range tables[0].Fields() {
		if v, ok := u.values[f.Name]; ok {
			primary.values[f.Name] = v
		}
	}
	out := []Statement{primary}
	if len(tables) == 1 {
		return out, nil
	}

	pk := u.table.PrimaryKey()
	key, ok := u.values[pk.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrMissingPrimaryKeyValue, u.table.Name(), pk.Name)
	}

	for _, side := range tables[1:] {
		chunks, err := u.chunks(side)
		if err != nil {
			return nil, err
		}
		for position, chunk := range chunks {
			out = append(out, u.chunkUpsert(side, key, position, chunk))
		}
	}
	return out, nil
}

// chunks transcodes the side table's field value into its chunk sequence.
func (u *Upsert) chunks(side *Table) ([]string, error) {
	field := side.SideField()
	v, ok := u.values[field.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrMissingValue, u.table.Name(), field.Name)
	}
	rel, err := field.Type.ToRelational(v.Raw)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk %s.%s: %w", u.table.Name(), field.Name, err)
	}
	if rel == nil {
		return nil, nil
	}
	chunks, ok := rel.([]string)
	if !ok {
		return nil, fmt.Errorf("%w: %s did not chunk to a sequence", ErrTypeMismatch, field.Type)
	}
	return chunks, nil
}

func (u *Upsert) chunkUpsert(side *Table, key Value, position int, chunk string) *Upsert {
	valueField, _ := side.Field(ValueField)
	return &Upsert{
		table: side,
		values: map[string]Value{
			side.Key().Name: {Raw: key.Raw, Type: side.Key().Type},
			PositionField:   {Raw: position, Type: side.Registry().Position()},
			ValueField:      {Raw: chunk, Type: valueField.Type},
		},
	}
}
