package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
	"github.com/rzpsarthak13/starphoenix/internal/types"
)

// definitionFile is the document layout of a YAML or JSON definition file.
type definitionFile struct {
	Tables []*core.Schema `yaml:"tables" json:"tables"`
}

// Build turns a declarative definition into a logical table.
func Build(s *core.Schema, registry *types.Registry) (*sequel.Table, error) {
	if err := ValidateSchema(s, registry); err != nil {
		return nil, err
	}

	table := sequel.NewTable(registry, s.TableName)
	for _, spec := range s.Fields {
		typ, err := registry.ResolveIn(spec.Type, types.Store)
		if err != nil {
			return nil, fmt.Errorf("field '%s.%s': %w", s.TableName, spec.Name, err)
		}
		if err := table.AddField(sequel.NewField(spec.Name, typ, spec.Name == s.PrimaryKey)); err != nil {
			return nil, fmt.Errorf("failed to build table '%s': %w", s.TableName, err)
		}
	}
	return table, nil
}

// Describe is the inverse of Build.
func Describe(t *sequel.Table) *core.Schema {
	s := &core.Schema{TableName: t.Name()}
	if pk := t.PrimaryKey(); pk != nil {
		s.PrimaryKey = pk.Name
	}
	for _, f := range t.Fields() {
		s.Fields = append(s.Fields, core.FieldSpec{Name: f.Name, Type: f.TypeName(types.Store)})
	}
	return s
}

// LoadYAML parses a YAML definition document.
func LoadYAML(data []byte) ([]*core.Schema, error) {
	var doc definitionFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML definitions: %w", err)
	}
	return doc.Tables, nil
}

// LoadJSON parses a JSON definition document.
func LoadJSON(data []byte) ([]*core.Schema, error) {
	var doc definitionFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON definitions: %w", err)
	}
	return doc.Tables, nil
}

// FileSource loads definitions from a file. The format is determined by the
// file extension (.yaml, .yml, .json or .xml). A Solr schema.xml describes a
// single table named after the file unless TableName is set.
type FileSource struct {
	Path      string
	TableName string
}

// NewFileSource creates a source reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load implements core.SchemaSource.
func (fs *FileSource) Load(ctx context.Context) ([]*core.Schema, error) {
	data, err := os.ReadFile(fs.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(fs.Path)); ext {
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".json":
		return LoadJSON(data)
	case ".xml":
		name := fs.TableName
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(fs.Path), filepath.Ext(fs.Path))
		}
		s, err := LoadSolrSchema(data, name)
		if err != nil {
			return nil, err
		}
		return []*core.Schema{s}, nil
	default:
		return nil, fmt.Errorf("unsupported schema file format: %s (supported: .yaml, .yml, .json, .xml)", ext)
	}
}
