package sequel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/starphoenix/internal/types"
)

var registry = types.NewRegistry()

func typeOf(t *testing.T, name string) *types.Type {
	t.Helper()
	typ, err := registry.Resolve(name, true)
	require.NoError(t, err)
	return typ
}

// usersTable is users(id TrieInt pk, name Str, bio Text).
func usersTable(t *testing.T) *Table {
	t.Helper()
	users := NewTable(registry, "users")
	require.NoError(t, users.AddField(NewField("id", typeOf(t, "TrieInt"), true)))
	require.NoError(t, users.AddField(NewField("name", typeOf(t, "Str"), false)))
	require.NoError(t, users.AddField(NewField("bio", typeOf(t, "Text"), false)))
	return users
}

func renderAll(t *testing.T, statements []Statement) []string {
	t.Helper()
	out, err := RenderAll(statements)
	require.NoError(t, err)
	return out
}
