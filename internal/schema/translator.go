package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rzpsarthak13/starphoenix/internal/sequel"
	"github.com/rzpsarthak13/starphoenix/internal/types"
)

// ErrNotTranslatableInPlace is returned when a field, value or condition
// involves a type that lives in a side table and so has no single-column
// counterpart in the other system.
var ErrNotTranslatableInPlace = errors.New("type is not translatable in place")

// Direction is the way a translation goes.
type Direction int

const (
	// StoreToRelational converts document-store names and values to relational ones.
	StoreToRelational Direction = iota

	// RelationalToStore converts relational names and values to document-store ones.
	RelationalToStore
)

func (d Direction) source() types.System {
	if d == RelationalToStore {
		return types.Relational
	}
	return types.Store
}

// String returns a readable direction name.
func (d Direction) String() string {
	if d == RelationalToStore {
		return "relational->store"
	}
	return "store->relational"
}

// Translator converts fields, values and conditions between the document
// store and the relational store. It also moves whole records between
// their store form, their statement form and their cached form.
type Translator struct {
	registry *types.Registry
}

// NewTranslator creates a new translator over the given type catalog.
func NewTranslator(registry *types.Registry) *Translator {
	return &Translator{registry: registry}
}

// resolve looks a type up by its name in the direction's source system and
// rejects types that need a side table.
func (t *Translator) resolve(typ *types.Type, dir Direction) (*types.Type, error) {
	if typ == nil {
		return nil, fmt.Errorf("%w: untyped operand", types.ErrUnknownType)
	}
	source := dir.source()
	resolved, err := t.registry.ResolveIn(typ.Name(source), source)
	if err != nil {
		return nil, err
	}
	if resolved.NeedsSideTable {
		return nil, fmt.Errorf("%w: %s", ErrNotTranslatableInPlace, resolved)
	}
	return resolved, nil
}

// TranslateField returns a copy of f whose type is resolved in the target system.
func (t *Translator) TranslateField(f *sequel.Field, dir Direction) (*sequel.Field, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil field", sequel.ErrUnknownField)
	}
	typ, err := t.resolve(f.Type, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to translate field %s: %w", f.Name, err)
	}
	out := f.Clone()
	out.Type = typ
	return out, nil
}

// TranslateValue transcodes v's raw value into the target system.
func (t *Translator) TranslateValue(v sequel.Value, dir Direction) (sequel.Value, error) {
	typ, err := t.resolve(v.Type, dir)
	if err != nil {
		return sequel.Value{}, fmt.Errorf("failed to translate value %v: %w", v.Raw, err)
	}
	raw, err := t.transcode(typ, v.Raw, dir)
	if err != nil {
		return sequel.Value{}, err
	}
	return sequel.Value{Raw: raw, Type: typ}, nil
}

// TranslateCondition translates both operands of c. A value operand is
// transcoded with the left field's type.
func (t *Translator) TranslateCondition(c *sequel.Condition, dir Direction) (*sequel.Condition, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil condition", sequel.ErrMissingValue)
	}
	left, err := t.TranslateField(c.Left, dir)
	if err != nil {
		return nil, err
	}

	var right sequel.Operand
	switch r := c.Right.(type) {
	case *sequel.Field:
		f, err := t.TranslateField(r, dir)
		if err != nil {
			return nil, err
		}
		right = f
	case sequel.Value:
		if r.Type != nil {
			if _, err := t.resolve(r.Type, dir); err != nil {
				return nil, fmt.Errorf("failed to translate condition on %s: %w", c.Left.Name, err)
			}
		}
		raw, err := t.transcode(left.Type, r.Raw, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to translate condition on %s: %w", c.Left.Name, err)
		}
		right = sequel.Value{Raw: raw, Type: left.Type}
	default:
		return nil, fmt.Errorf("%w: condition on %s", sequel.ErrMissingValue, c.Left.Name)
	}
	return sequel.NewCondition(left, c.Operator, right)
}

func (t *Translator) transcode(typ *types.Type, raw interface{}, dir Direction) (interface{}, error) {
	if dir == StoreToRelational {
		return typ.ToRelational(raw)
	}
	return typ.ToStore(raw)
}

// RecordToUpsert binds a store-side record to an upsert on table. Fields
// absent from the record are written as NULL; the primary key must be set.
func (t *Translator) RecordToUpsert(record map[string]interface{}, table *sequel.Table) (*sequel.Upsert, error) {
	if err := NewValidator(table).ValidateRecord(record); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	u := sequel.NewUpsert(table)
	for _, f := range table.Fields() {
		if err := u.SetRaw(f.Name, record[f.Name]); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// RowToRecord converts a row read from the physical tables (with wide
// fields already gathered into their chunk sequences) into store form.
// Columns the table does not declare are dropped.
func (t *Translator) RowToRecord(row map[string]interface{}, table *sequel.Table) (map[string]interface{}, error) {
	record := make(map[string]interface{}, len(row))
	for name, raw := range row {
		f, ok := table.Field(name)
		if !ok {
			continue
		}
		v, err := f.Type.ToStore(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column '%s': %w", name, err)
		}
		record[name] = v
	}
	return record, nil
}

// Canonical normalizes every value of a store-side record by sending it
// through the relational form and back, so that "T" and true both become 1.
func (t *Translator) Canonical(record map[string]interface{}, table *sequel.Table) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(record))
	for name, raw := range record {
		f, ok := table.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", sequel.ErrUnknownField, table.Name(), name)
		}
		rel, err := f.Type.ToRelational(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to convert field '%s': %w", name, err)
		}
		v, err := f.Type.ToStore(rel)
		if err != nil {
			return nil, fmt.Errorf("failed to convert field '%s': %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// EncodeRecord serializes a record for the KV cache.
func (t *Translator) EncodeRecord(record map[string]interface{}, table *sequel.Table) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("record cannot be nil")
	}
	canonical, err := t.Canonical(record, table)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}
	return data, nil
}

// DecodeRecord deserializes a cached record and restores its value types.
func (t *Translator) DecodeRecord(data []byte, table *sequel.Table) (map[string]interface{}, error) {
	// UseNumber keeps BIGINT values above 2^53 exact.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}
	return t.RowToRecord(raw, table)
}
