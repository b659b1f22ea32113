package schema

import (
	"fmt"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
	"github.com/rzpsarthak13/starphoenix/internal/types"
)

// Validator validates records against a logical table.
type Validator struct {
	table *sequel.Table
}

// NewValidator creates a new record validator.
func NewValidator(table *sequel.Table) *Validator {
	return &Validator{table: table}
}

// ValidateRecord validates a store-side record against the table.
// Returns an error if the record doesn't match the table requirements.
func (v *Validator) ValidateRecord(record map[string]interface{}) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	if v.table == nil {
		return fmt.Errorf("table cannot be nil")
	}

	if pk := v.table.PrimaryKey(); pk != nil {
		if value, exists := record[pk.Name]; !exists || value == nil {
			return fmt.Errorf("%w: %s.%s", sequel.ErrMissingPrimaryKeyValue, v.table.Name(), pk.Name)
		}
	}

	for name, value := range record {
		f, ok := v.table.Field(name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", sequel.ErrUnknownField, v.table.Name(), name)
		}
		if value == nil {
			continue
		}
		if _, err := f.Type.ToRelational(value); err != nil {
			return fmt.Errorf("field '%s': type mismatch: expected %s, got %T: %w", name, f.Type, value, err)
		}
	}

	return nil
}

// ValidatePrimaryKey validates that a primary key value is valid.
func (v *Validator) ValidatePrimaryKey(key interface{}) error {
	if key == nil {
		return fmt.Errorf("primary key cannot be nil")
	}

	pk := v.table.PrimaryKey()
	if pk == nil {
		return fmt.Errorf("%w: %s", sequel.ErrMissingPrimaryKey, v.table.Name())
	}

	if _, err := pk.Type.ToRelational(key); err != nil {
		return fmt.Errorf("primary key '%s': type mismatch: expected %s, got %T: %w", pk.Name, pk.Type, key, err)
	}
	return nil
}

// ValidateSchema checks a declarative definition before it is built.
func ValidateSchema(s *core.Schema, registry *types.Registry) error {
	if s == nil {
		return fmt.Errorf("schema cannot be nil")
	}
	if s.TableName == "" {
		return fmt.Errorf("schema has no table name")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("table '%s' has no fields", s.TableName)
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("table '%s' has a field without a name", s.TableName)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: %s.%s", sequel.ErrDuplicateFieldName, s.TableName, f.Name)
		}
		seen[f.Name] = true
		typ, err := registry.ResolveIn(f.Type, types.Store)
		if err != nil {
			return fmt.Errorf("field '%s.%s': %w", s.TableName, f.Name, err)
		}
		if typ.NeedsSideTable && s.PrimaryKey == "" {
			return fmt.Errorf("%w: %s.%s is stored in a side table keyed by the primary key",
				sequel.ErrMissingPrimaryKey, s.TableName, f.Name)
		}
	}

	if s.PrimaryKey != "" && !seen[s.PrimaryKey] {
		return fmt.Errorf("%w: %s declares primary key '%s' but has no such field",
			sequel.ErrMissingPrimaryKey, s.TableName, s.PrimaryKey)
	}
	return nil
}
