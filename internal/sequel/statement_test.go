package sequel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSplitEndToEnd(t *testing.T) {
	users := NewTable(registry, "users")
	require.NoError(t, users.AddField(NewField("id", typeOf(t, "TrieInt"), true)))
	require.NoError(t, users.AddField(NewField("bio", typeOf(t, "Text"), false)))

	create := NewCreate(users)
	text, err := create.Render()
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE users (id INTEGER PRIMARY KEY, bio VARCHAR ARRAY)", text)

	statements, err := create.Split()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE TABLE users (id INTEGER PRIMARY KEY)",
		"CREATE TABLE bio (id INTEGER, position INTEGER, value VARCHAR)",
	}, renderAll(t, statements))
}

func TestCreateIsBoundToSnapshot(t *testing.T) {
	users := usersTable(t)
	create := NewCreate(users)
	require.NoError(t, users.AddField(NewField("late", typeOf(t, "Str"), false)))

	text, err := create.Render()
	require.NoError(t, err)
	assert.NotContains(t, text, "late")
}

func TestUpsertRender(t *testing.T) {
	upsert := NewUpsert(usersTable(t))
	require.NoError(t, upsert.SetRaw("id", 7))
	require.NoError(t, upsert.SetRaw("name", "ann"))

	_, err := upsert.Render()
	assert.ErrorIs(t, err, ErrMissingValue)

	require.NoError(t, upsert.SetRaw("bio", "hi"))
	text, err := upsert.Render()
	require.NoError(t, err)
	assert.Equal(t, "UPSERT INTO users(id, name, bio) VALUES (7, 'ann', ARRAY['hi'])", text)
}

func TestUpsertSetValidation(t *testing.T) {
	upsert := NewUpsert(usersTable(t))

	assert.ErrorIs(t, upsert.SetRaw("missing", 1), ErrUnknownField)
	assert.ErrorIs(t, upsert.Set("id", NewValue("x", typeOf(t, "Str"))), ErrTypeMismatch)
	assert.NoError(t, upsert.Set("id", NewValue(3, typeOf(t, "TrieInt"))))
}

func TestUpsertSplitChunksWideField(t *testing.T) {
	upsert := NewUpsert(usersTable(t))
	require.NoError(t, upsert.SetRaw("id", 7))
	require.NoError(t, upsert.SetRaw("name", "ann"))
	bio := strings.Repeat("a", 255) + strings.Repeat("b", 45)
	require.NoError(t, upsert.SetRaw("bio", bio))

	statements, err := upsert.Split()
	require.NoError(t, err)
	rendered := renderAll(t, statements)
	require.Len(t, rendered, 3)

	assert.Equal(t, "UPSERT INTO users(id, name) VALUES (7, 'ann')", rendered[0])
	assert.Equal(t, "UPSERT INTO bio(id, position, value) VALUES (7, 0, '"+strings.Repeat("a", 255)+"')", rendered[1])
	assert.Equal(t, "UPSERT INTO bio(id, position, value) VALUES (7, 1, '"+strings.Repeat("b", 45)+"')", rendered[2])
}

func TestUpsertSplitWithoutKey(t *testing.T) {
	upsert := NewUpsert(usersTable(t))
	require.NoError(t, upsert.SetRaw("name", "ann"))
	require.NoError(t, upsert.SetRaw("bio", "x"))

	_, err := upsert.Split()
	assert.ErrorIs(t, err, ErrMissingPrimaryKeyValue)
}

func TestUpsertSplitEmptyText(t *testing.T) {
	upsert := NewUpsert(usersTable(t))
	require.NoError(t, upsert.SetRaw("id", 1))
	require.NoError(t, upsert.SetRaw("name", "n"))
	require.NoError(t, upsert.SetRaw("bio", ""))

	statements, err := upsert.Split()
	require.NoError(t, err)
	rendered := renderAll(t, statements)
	require.Len(t, rendered, 2)
	assert.Equal(t, "UPSERT INTO bio(id, position, value) VALUES (1, 0, '')", rendered[1])
}

func TestSelectRender(t *testing.T) {
	sel := NewSelect(usersTable(t))
	text, err := sel.Render()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users", text)

	require.NoError(t, sel.AddField("id", "name"))
	cond, err := sel.ValueCondition("id", "=", 7)
	require.NoError(t, err)
	sel.Where().AddCondition(cond, "")

	text, err = sel.Render()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users WHERE id = 7", text)

	assert.ErrorIs(t, sel.AddField("nope"), ErrUnknownField)
}

func TestSelectSplit(t *testing.T) {
	sel := NewSelect(usersTable(t))
	require.NoError(t, sel.AddField("name", "bio"))
	cond, err := sel.ValueCondition("name", "=", "ann")
	require.NoError(t, err)
	sel.Where().AddCondition(cond, "")

	statements, err := sel.Split()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"SELECT name FROM users WHERE name = 'ann'",
		"SELECT value FROM bio WHERE id IN (SELECT id FROM users WHERE name = 'ann') ORDER BY position ASC",
	}, renderAll(t, statements))
}

func TestSelectSplitSkipsUnrequestedSideTables(t *testing.T) {
	sel := NewSelect(usersTable(t))
	require.NoError(t, sel.AddField("id"))

	statements, err := sel.Split()
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT id FROM users"}, renderAll(t, statements))
}

func TestSelectSplitOnlyWideRequested(t *testing.T) {
	sel := NewSelect(usersTable(t))
	require.NoError(t, sel.AddField("bio"))

	statements, err := sel.Split()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"SELECT id FROM users",
		"SELECT value FROM bio WHERE id IN (SELECT id FROM users) ORDER BY position ASC",
	}, renderAll(t, statements))
}

func TestSelectSplitRejectsSideFieldCondition(t *testing.T) {
	sel := NewSelect(usersTable(t))
	cond, err := sel.ValueCondition("bio", "=", "x")
	require.NoError(t, err)
	sel.Where().AddCondition(cond, "")

	_, err = sel.Split()
	assert.ErrorIs(t, err, ErrInvalidConditionField)
}

func TestDeleteSplit(t *testing.T) {
	del := NewDelete(usersTable(t))
	cond, err := del.ValueCondition("id", "<", 10)
	require.NoError(t, err)
	del.Where().AddCondition(cond, "")

	text, err := del.Render()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM users WHERE id < 10", text)

	statements, err := del.Split()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"DELETE FROM users WHERE id < 10",
		"DELETE FROM bio WHERE id IN (SELECT id FROM users WHERE id < 10)",
	}, renderAll(t, statements))

	side, ok := statements[1].(*KeyBased)
	require.True(t, ok)
	assert.True(t, side.Deletes())
	assert.Equal(t, "users", side.Finder().Table().Name())
}

func TestDeleteWithoutWhere(t *testing.T) {
	statements, err := NewDelete(usersTable(t)).Split()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"DELETE FROM users",
		"DELETE FROM bio WHERE id IN (SELECT id FROM users)",
	}, renderAll(t, statements))
}

func TestKeyFinderRequiresKey(t *testing.T) {
	plain := NewTable(registry, "plain")
	require.NoError(t, plain.AddField(NewField("a", typeOf(t, "Str"), false)))

	_, err := NewKeyFinder(plain, NewWhere())
	assert.ErrorIs(t, err, ErrMissingPrimaryKey)
}
