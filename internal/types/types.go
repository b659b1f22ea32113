// Package types holds the catalog of column types shared by the document
// store (Solr) and the relational store (Phoenix), and the transcoders that
// move values between the two representations.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// System identifies one of the two type vocabularies.
type System int

const (
	// Store is the document-store vocabulary (Bool, DateRange, Str, ...).
	Store System = iota

	// Relational is the column-store vocabulary (TINYINT, DATE, VARCHAR, ...).
	Relational
)

// String returns the system name.
func (s System) String() string {
	if s == Store {
		return "store"
	}
	return "relational"
}

// Transcoder converts values between the store and relational forms of a type.
// Both directions must be idempotent on values that are already in the
// destination form.
type Transcoder interface {
	// ToRelational converts a store-side value. Types that need a side table
	// return a []string of chunks.
	ToRelational(raw interface{}) (interface{}, error)

	// ToStore converts a relational value (or a chunk sequence) back.
	ToStore(raw interface{}) (interface{}, error)
}

// Type is one entry in the Registry.
type Type struct {
	// StoreName is the document-store type name, e.g. "TrieInt".
	StoreName string

	// RelationalName is the column type name, e.g. "INTEGER".
	RelationalName string

	// NeedsSideTable is set for types whose values cannot live in a single
	// relational column and are chunked into a side table instead.
	NeedsSideTable bool

	// Element is the type of a side table's value column. Nil unless
	// NeedsSideTable is set.
	Element *Type

	codec Transcoder
}

// Name returns the type's name in the given system.
func (t *Type) Name(system System) string {
	if system == Store {
		return t.StoreName
	}
	return t.RelationalName
}

// Is reports whether t and other describe the same catalog entry.
func (t *Type) Is(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.StoreName == other.StoreName && t.RelationalName == other.RelationalName
}

// String returns "store/relational".
func (t *Type) String() string {
	return t.StoreName + "/" + t.RelationalName
}

// ToRelational transcodes a store-side value. Nil stays nil.
func (t *Type) ToRelational(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := t.codec.ToRelational(raw)
	if err != nil {
		return nil, fmt.Errorf("%s to relational: %w", t.StoreName, err)
	}
	return v, nil
}

// ToStore transcodes a relational value back to its store form. Nil stays nil.
func (t *Type) ToStore(raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := t.codec.ToStore(raw)
	if err != nil {
		return nil, fmt.Errorf("%s to store: %w", t.StoreName, err)
	}
	return v, nil
}

// Literal renders raw as a relational literal suitable for embedding in a
// statement. The value is always routed through ToRelational first.
func (t *Type) Literal(raw interface{}) (string, error) {
	v, err := t.ToRelational(raw)
	if err != nil {
		return "", err
	}
	return formatLiteral(v), nil
}

func formatLiteral(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return quote(val)
	case []string:
		parts := make([]string, len(val))
		for i, chunk := range val {
			parts[i] = quote(chunk)
		}
		return "ARRAY[" + strings.Join(parts, ", ") + "]"
	default:
		return quote(fmt.Sprintf("%v", val))
	}
}

// quote wraps s in single quotes, doubling embedded quotes.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
