package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/starphoenix/internal/sequel"
	"github.com/rzpsarthak13/starphoenix/internal/types"
)

const definitions = `
tables:
  - name: users
    primary_key: id
    fields:
      - name: id
        type: TrieInt
      - name: name
        type: Str
      - name: bio
        type: Text
  - name: tags
    fields:
      - name: label
        type: Str
`

func usersTable(t *testing.T) *sequel.Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definitions), 0o644))

	registry := types.NewRegistry()
	_, err := SchemaArgs{Schema: path}.load(context.Background(), registry)
	assert.Error(t, err, "two tables and no --table")
	_, err = SchemaArgs{Schema: path, Table: "missing"}.load(context.Background(), registry)
	assert.Error(t, err)

	table, err := SchemaArgs{Schema: path, Table: "users"}.load(context.Background(), registry)
	require.NoError(t, err)
	return table
}

func split(t *testing.T, stmt sequel.Statement) string {
	t.Helper()
	color.NoColor = true
	var buf bytes.Buffer
	require.NoError(t, printSplit(&buf, stmt))
	return buf.String()
}

func TestPrintSplitCreate(t *testing.T) {
	assert.Equal(t,
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR);\n"+
			"CREATE TABLE bio (id INTEGER, position INTEGER, value VARCHAR);\n",
		split(t, sequel.NewCreate(usersTable(t))))
}

func TestAddConditions(t *testing.T) {
	del := sequel.NewDelete(usersTable(t))
	require.NoError(t, addConditions([]string{"id < 10", "name = 'o brien'"}, del.ValueCondition, del.Where()))
	assert.Equal(t,
		"DELETE FROM users WHERE id < 10 AND name = 'o brien';\n"+
			"DELETE FROM bio WHERE id IN (SELECT id FROM users WHERE id < 10 AND name = 'o brien');\n",
		split(t, del))

	sel := sequel.NewSelect(usersTable(t))
	require.NoError(t, sel.AddField("name"))
	require.NoError(t, addConditions(nil, sel.ValueCondition, sel.Where()))
	assert.Equal(t, "SELECT name FROM users;\n", split(t, sel))

	for _, bad := range []string{"id <", "missing = 1"} {
		del := sequel.NewDelete(usersTable(t))
		assert.Error(t, addConditions([]string{bad}, del.ValueCondition, del.Where()), bad)
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want interface{}
	}{
		{"42", "42"},
		{" true ", true},
		{"FALSE", false},
		{"'quoted value'", "quoted value"},
		{`"double"`, "double"},
		{"'", "'"},
		{"it's", "it's"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseValue(tc.in), tc.in)
	}
}
