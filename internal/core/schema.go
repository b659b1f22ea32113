package core

import "context"

// Schema is the declarative description of a logical table as handed over by
// a schema source (YAML/JSON definition file or a Solr schema.xml). Type names
// are in the document-store vocabulary.
type Schema struct {
	// TableName is the name of the logical table.
	TableName string `yaml:"name" json:"name"`

	// PrimaryKey is the name of the primary key field. Optional for tables
	// without wide fields.
	PrimaryKey string `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`

	// Fields lists the fields in declaration order.
	Fields []FieldSpec `yaml:"fields" json:"fields"`
}

// FieldSpec is one field of a Schema.
type FieldSpec struct {
	// Name is the field name.
	Name string `yaml:"name" json:"name"`

	// Type is the document-store type name (e.g. "TrieInt", "Text").
	Type string `yaml:"type" json:"type"`
}

// Field returns the spec for name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// SchemaSource loads table definitions.
type SchemaSource interface {
	// Load returns the schemas the source describes.
	Load(ctx context.Context) ([]*Schema, error)
}
