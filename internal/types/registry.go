package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned when a type name has no catalog entry.
var ErrUnknownType = errors.New("unknown type")

// Registry is the immutable type catalog. Build one with NewRegistry at
// startup and share the pointer; nothing mutates it afterwards.
type Registry struct {
	types        []*Type
	byStore      map[string]*Type
	byRelational map[string]*Type
	position     *Type
}

// NewRegistry builds the fixed catalog.
func NewRegistry() *Registry {
	str := &Type{StoreName: "Str", RelationalName: "VARCHAR", codec: stringCodec{}}
	integer := &Type{StoreName: "TrieInt", RelationalName: "INTEGER", codec: intCodec{}}

	catalog := []*Type{
		{StoreName: "Bool", RelationalName: "TINYINT", codec: boolCodec{}},
		{StoreName: "DateRange", RelationalName: "DATE", codec: dateCodec{}},
		str,
		{
			StoreName:      "Text",
			RelationalName: "VARCHAR ARRAY",
			NeedsSideTable: true,
			Element:        str,
			codec:          textCodec{chunkSize: ChunkSize},
		},
		{StoreName: "TrieDouble", RelationalName: "DOUBLE", codec: floatCodec{}},
		integer,
		{StoreName: "TrieFloat", RelationalName: "FLOAT", codec: floatCodec{}},
		{StoreName: "TrieLong", RelationalName: "BIGINT", codec: intCodec{}},
	}

	r := &Registry{
		types:        catalog,
		byStore:      make(map[string]*Type, len(catalog)),
		byRelational: make(map[string]*Type, len(catalog)),
		position:     integer,
	}
	for _, t := range catalog {
		r.byStore[t.StoreName] = t
		r.byRelational[t.RelationalName] = t
	}
	return r
}

// Resolve looks a type up by name. fromStore selects the vocabulary the name
// belongs to. Relational names are matched case-insensitively.
func (r *Registry) Resolve(name string, fromStore bool) (*Type, error) {
	var (
		t  *Type
		ok bool
	)
	if fromStore {
		t, ok = r.byStore[strings.TrimSpace(name)]
	} else {
		t, ok = r.byRelational[normalizeRelational(name)]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// ResolveIn is Resolve keyed by System.
func (r *Registry) ResolveIn(name string, system System) (*Type, error) {
	return r.Resolve(name, system == Store)
}

// Position returns the type of a side table's position column.
func (r *Registry) Position() *Type {
	return r.position
}

// Types returns the catalog in declaration order.
func (r *Registry) Types() []*Type {
	out := make([]*Type, len(r.types))
	copy(out, r.types)
	return out
}

func normalizeRelational(name string) string {
	return strings.Join(strings.Fields(strings.ToUpper(name)), " ")
}
