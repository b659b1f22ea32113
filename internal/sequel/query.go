package sequel

import (
	"fmt"
	"strings"
)

// filter is the table-plus-predicate part shared by Select and Delete.
type filter struct {
	table *Table
	where *Where
}

// Table returns the bound table.
func (q *filter) Table() *Table {
	return q.table
}

// Where returns the predicate tree for authoring.
func (q *filter) Where() *Where {
	return q.where
}

// FieldCondition builds "<left> <op> <right>" comparing two columns.
func (q *filter) FieldCondition(left, operator, right string) (*Condition, error) {
	l, err := q.field(left)
	if err != nil {
		return nil, err
	}
	r, err := q.field(right)
	if err != nil {
		return nil, err
	}
	return NewCondition(l, operator, r)
}

// ValueCondition builds "<left> <op> <literal>" with raw typed as the left field.
func (q *filter) ValueCondition(left, operator string, raw interface{}) (*Condition, error) {
	l, err := q.field(left)
	if err != nil {
		return nil, err
	}
	return NewCondition(l, operator, Value{Raw: raw, Type: l.Type})
}

func (q *filter) field(name string) (*Field, error) {
	f, ok := q.table.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, q.table.Name(), name)
	}
	return f, nil
}

func (q *filter) whereClause() (string, error) {
	if q.where.Empty() {
		return "", nil
	}
	expr, err := q.where.Render()
	if err != nil {
		return "", err
	}
	return " WHERE " + expr, nil
}

// split validates the predicate against the primary table and returns the
// physical tables plus a key sub-query for the side tables.
func (q *filter) split() ([]*Table, *KeyFinder, error) {
	tables, err := q.table.Split()
	if err != nil {
		return nil, nil, err
	}
	if err := q.where.Validate(tables[0]); err != nil {
		return nil, nil, err
	}
	if len(tables) == 1 {
		return tables, nil, nil
	}
	finder, err := NewKeyFinder(tables[0], q.where)
	if err != nil {
		return nil, nil, err
	}
	return tables, finder, nil
}

// Select reads a subset of fields. With no fields requested it selects all.
type Select struct {
	filter
	fields []string
}

// NewSelect binds a Select to a copy of t.
func NewSelect(t *Table) *Select {
	return &Select{filter: filter{table: t.Clone(), where: NewWhere()}}
}

// AddField requests fields, in order.
func (s *Select) AddField(names ...string) error {
	for _, name := range names {
		if _, err := s.field(name); err != nil {
			return err
		}
		s.fields = append(s.fields, name)
	}
	return nil
}

// Fields returns the requested field names.
func (s *Select) Fields() []string {
	out := make([]string, len(s.fields))
	copy(out, s.fields)
	return out
}

// Render returns "SELECT <fields> FROM <name>[ WHERE <expr>]".
func (s *Select) Render() (string, error) {
	where, err := s.whereClause()
	if err != nil {
		return "", err
	}
	columns := "*"
	if len(s.fields) > 0 {
		columns = strings.Join(s.fields, ", ")
	}
	return fmt.Sprintf("SELECT %s FROM %s%s", columns, s.table.Name(), where), nil
}

// Split returns the primary select followed by one ordered chunk read per
// requested side table (every side table when all fields are requested).
func (s *Select) Split() ([]Statement, error) {
	tables, finder, err := s.split()
	if err != nil {
		return nil, err
	}

	primary := &Select{filter: filter{table: tables[0], where: s.where.Clone()}}
	for _, name := range s.fields {
		if tables[0].Has(name) {
			primary.fields = append(primary.fields, name)
		}
	}
	if len(s.fields) > 0 && len(primary.fields) == 0 {
		if key := tables[0].Key(); key != nil {
			primary.fields = []string{key.Name}
		}
	}

	out := []Statement{primary}
	for _, side := range tables[1:] {
		if !s.Requested(side.SideField().Name) {
			continue
		}
		out = append(out, &KeyBased{side: side, finder: finder, remove: false})
	}
	return out, nil
}

// Requested reports whether name was asked for explicitly or, with no
// fields requested, whether the table has it.
func (s *Select) Requested(name string) bool {
	if len(s.fields) == 0 {
		return s.table.Has(name)
	}
	for _, f := range s.fields {
		if f == name {
			return true
		}
	}
	return false
}

// Delete removes the rows matching its predicate; with no predicate, all rows.
type Delete struct {
	filter
}

// NewDelete binds a Delete to a copy of t.
func NewDelete(t *Table) *Delete {
	return &Delete{filter: filter{table: t.Clone(), where: NewWhere()}}
}

// Render returns "DELETE FROM <name>[ WHERE <expr>]".
func (d *Delete) Render() (string, error) {
	where, err := d.whereClause()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DELETE FROM %s%s", d.table.Name(), where), nil
}

// Split returns the primary delete followed by one key-based delete per
// side table. Executing side deletes before the primary one keeps the key
// sub-query able to see the owning rows.
func (d *Delete) Split() ([]Statement, error) {
	tables, finder, err := d.split()
	if err != nil {
		return nil, err
	}
	out := []Statement{&Delete{filter: filter{table: tables[0], where: d.where.Clone()}}}
	for _, side := range tables[1:] {
		out = append(out, &KeyBased{side: side, finder: finder, remove: true})
	}
	return out, nil
}

// KeyFinder is the sub-query "SELECT <pk> FROM <name>[ WHERE <expr>]" that
// yields the keys of the rows a predicate matches.
type KeyFinder struct {
	filter
}

// NewKeyFinder builds a key sub-query over t. t must have a primary key.
func NewKeyFinder(t *Table, where *Where) (*KeyFinder, error) {
	if t.Key() == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingPrimaryKey, t.Name())
	}
	return &KeyFinder{filter: filter{table: t, where: where.Clone()}}, nil
}

// Render returns the sub-query text.
func (k *KeyFinder) Render() (string, error) {
	where, err := k.whereClause()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT %s FROM %s%s", k.table.Key().Name, k.table.Name(), where), nil
}

// Split returns k itself.
func (k *KeyFinder) Split() ([]Statement, error) {
	return []Statement{k}, nil
}

// KeyBased targets a side table through the keys a KeyFinder yields.
type KeyBased struct {
	side   *Table
	finder *KeyFinder
	remove bool
}

// Table returns the side table.
func (k *KeyBased) Table() *Table {
	return k.side
}

// Finder returns the key sub-query.
func (k *KeyBased) Finder() *KeyFinder {
	return k.finder
}

// Deletes reports whether the statement is a DELETE.
func (k *KeyBased) Deletes() bool {
	return k.remove
}

// Render returns the ordered chunk read or the cascade delete.
func (k *KeyBased) Render() (string, error) {
	sub, err := k.finder.Render()
	if err != nil {
		return "", err
	}
	key := k.side.Key().Name
	if k.remove {
		return fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", k.side.Name(), key, sub), nil
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s) ORDER BY %s ASC",
		ValueField, k.side.Name(), key, sub, PositionField), nil
}

// Split returns k itself.
func (k *KeyBased) Split() ([]Statement, error) {
	return []Statement{k}, nil
}
