package sequel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFieldRejectsDuplicates(t *testing.T) {
	users := usersTable(t)

	err := users.AddField(NewField("name", typeOf(t, "Str"), false))
	assert.ErrorIs(t, err, ErrDuplicateFieldName)

	err = users.AddField(NewField("other_id", typeOf(t, "TrieLong"), true))
	assert.ErrorIs(t, err, ErrDuplicatePrimaryKey)
}

func TestAddFieldRejectsWidePrimaryKey(t *testing.T) {
	docs := NewTable(registry, "docs")
	err := docs.AddField(NewField("body", typeOf(t, "Text"), true))
	assert.ErrorIs(t, err, ErrWidePrimaryKey)
}

func TestSplitProducesPrimaryAndSideTables(t *testing.T) {
	users := usersTable(t)
	require.NoError(t, users.AddField(NewField("notes", typeOf(t, "Text"), false)))

	tables, err := users.Split()
	require.NoError(t, err)
	require.Len(t, tables, 3)

	primary := tables[0]
	assert.Equal(t, "users", primary.Name())
	assert.False(t, primary.IsSide())
	var names []string
	for _, f := range primary.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "name"}, names)
	require.NotNil(t, primary.PrimaryKey())
	assert.Equal(t, "id", primary.PrimaryKey().Name)

	assert.Equal(t, "bio", tables[1].Name())
	assert.Equal(t, "notes", tables[2].Name())

	bio := tables[1]
	assert.True(t, bio.IsSide())
	assert.Equal(t, "bio", bio.SideField().Name)
	assert.Nil(t, bio.PrimaryKey())
	assert.Equal(t, "id", bio.Key().Name)

	fields := bio.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, "id INTEGER", fields[0].Clause())
	assert.Equal(t, "position INTEGER", fields[1].Clause())
	assert.Equal(t, "value VARCHAR", fields[2].Clause())
}

func TestSplitLeavesOriginalUntouched(t *testing.T) {
	users := usersTable(t)

	_, err := users.Split()
	require.NoError(t, err)

	assert.Len(t, users.Fields(), 3)
	assert.True(t, users.Has("bio"))
}

func TestSplitWithoutWideFields(t *testing.T) {
	plain := NewTable(registry, "plain")
	require.NoError(t, plain.AddField(NewField("a", typeOf(t, "Str"), false)))

	tables, err := plain.Split()
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "plain", tables[0].Name())
}

func TestSplitWithoutPrimaryKey(t *testing.T) {
	notes := NewTable(registry, "notes")
	require.NoError(t, notes.AddField(NewField("body", typeOf(t, "Text"), false)))

	_, err := notes.Split()
	assert.ErrorIs(t, err, ErrMissingPrimaryKey)
}

func TestSideTableNameCollision(t *testing.T) {
	odd := NewTable(registry, "odd")
	require.NoError(t, odd.AddField(NewField("position", typeOf(t, "TrieInt"), true)))
	require.NoError(t, odd.AddField(NewField("body", typeOf(t, "Text"), false)))

	_, err := odd.Split()
	assert.ErrorIs(t, err, ErrDuplicateFieldName)
}
