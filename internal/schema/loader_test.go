package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/starphoenix/internal/core"
	"github.com/rzpsarthak13/starphoenix/internal/sequel"
	"github.com/rzpsarthak13/starphoenix/internal/types"
)

const definitionsYAML = `
tables:
  - name: users
    primary_key: id
    fields:
      - name: id
        type: TrieInt
      - name: bio
        type: Text
  - name: tags
    fields:
      - name: label
        type: Str
`

const solrSchema = `<?xml version="1.0" encoding="UTF-8" ?>
<schema name="docs" version="1.6">
  <types>
    <fieldType name="string" class="solr.StrField" sortMissingLast="true"/>
    <fieldType name="long" class="solr.TrieLongField"/>
    <fieldType name="text_general" class="solr.TextField"/>
    <fieldType name="date" class="solr.DateRangeField"/>
    <fieldType name="boolean" class="solr.BoolField"/>
  </types>
  <fields>
    <field name="doc_id" type="long" indexed="true" stored="true"/>
    <field name="title" type="string"/>
    <field name="body" type="text_general"/>
    <field name="published" type="date"/>
    <field name="draft" type="boolean"/>
    <dynamicField name="*_s" type="string"/>
  </fields>
  <uniqueKey>doc_id</uniqueKey>
</schema>`

func TestLoadYAML(t *testing.T) {
	schemas, err := LoadYAML([]byte(definitionsYAML))
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	assert.Equal(t, "users", schemas[0].TableName)
	assert.Equal(t, "id", schemas[0].PrimaryKey)
	assert.Equal(t, core.FieldSpec{Name: "bio", Type: "Text"}, schemas[0].Fields[1])
	assert.Empty(t, schemas[1].PrimaryKey)

	table, err := Build(schemas[0], registry)
	require.NoError(t, err)
	assert.Len(t, table.WideFields(), 1)
}

func TestBuildRejectsBadDefinitions(t *testing.T) {
	_, err := Build(&core.Schema{TableName: "t", Fields: []core.FieldSpec{{Name: "a", Type: "Nope"}}}, registry)
	assert.ErrorIs(t, err, types.ErrUnknownType)

	_, err = Build(&core.Schema{TableName: "t", PrimaryKey: "b", Fields: []core.FieldSpec{{Name: "a", Type: "Str"}}}, registry)
	assert.ErrorIs(t, err, sequel.ErrMissingPrimaryKey)

	_, err = Build(&core.Schema{TableName: "t", Fields: []core.FieldSpec{{Name: "a", Type: "Str"}, {Name: "a", Type: "Str"}}}, registry)
	assert.ErrorIs(t, err, sequel.ErrDuplicateFieldName)

	_, err = Build(&core.Schema{TableName: "t", PrimaryKey: "a", Fields: []core.FieldSpec{{Name: "a", Type: "Text"}}}, registry)
	assert.ErrorIs(t, err, sequel.ErrWidePrimaryKey)

	_, err = Build(&core.Schema{TableName: "t", Fields: []core.FieldSpec{{Name: "a", Type: "Str"}, {Name: "b", Type: "Text"}}}, registry)
	assert.ErrorIs(t, err, sequel.ErrMissingPrimaryKey)
}

func TestDescribeRoundTrip(t *testing.T) {
	s := usersSchema()
	table, err := Build(s, registry)
	require.NoError(t, err)
	assert.Equal(t, s, Describe(table))
}

func TestLoadSolrSchema(t *testing.T) {
	s, err := LoadSolrSchema([]byte(solrSchema), "docs")
	require.NoError(t, err)
	assert.Equal(t, "doc_id", s.PrimaryKey)
	assert.Equal(t, []core.FieldSpec{
		{Name: "doc_id", Type: "TrieLong"},
		{Name: "title", Type: "Str"},
		{Name: "body", Type: "Text"},
		{Name: "published", Type: "DateRange"},
		{Name: "draft", Type: "Bool"},
	}, s.Fields)

	table, err := Build(s, registry)
	require.NoError(t, err)
	statements, err := sequel.NewCreate(table).Split()
	require.NoError(t, err)
	rendered, err := sequel.RenderAll(statements)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE TABLE docs (doc_id BIGINT PRIMARY KEY, title VARCHAR, published DATE, draft TINYINT)",
		"CREATE TABLE body (doc_id BIGINT, position INTEGER, value VARCHAR)",
	}, rendered)
}

func TestLoadSolrSchemaUndeclaredType(t *testing.T) {
	_, err := LoadSolrSchema([]byte(`<schema><field name="a" type="missing"/></schema>`), "t")
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docs.xml")
	require.NoError(t, os.WriteFile(path, []byte(solrSchema), 0o644))

	schemas, err := NewFileSource(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "docs", schemas[0].TableName)

	bad := filepath.Join(dir, "defs.toml")
	require.NoError(t, os.WriteFile(bad, []byte(""), 0o644))
	_, err = NewFileSource(bad).Load(context.Background())
	assert.Error(t, err)
}
