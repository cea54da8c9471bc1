package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStatementInsertUsesSortedPlaceholders(t *testing.T) {
	cmd := Insert("users", map[string]any{"name": "Alice", "age": 30})
	stmt, params, err := cmd.BuildStatement()
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (age, name) VALUES (:age, :name)", stmt)
	assert.Equal(t, map[string]any{"name": "Alice", "age": 30}, params)
}

func TestBuildStatementUpdateRejectsOverlappingSetAndWhere(t *testing.T) {
	cmd := Update("users", map[string]any{"id": 2}, map[string]any{"id": 1})
	_, _, err := cmd.BuildStatement()
	var invalid *ErrInvalidCommand
	require.ErrorAs(t, err, &invalid)
}

func TestBuildStatementUpdateMergesSetAndWhereParams(t *testing.T) {
	cmd := Update("users", map[string]any{"name": "Bob"}, map[string]any{"id": "42"})
	stmt, params, err := cmd.BuildStatement()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE users SET name=:name WHERE id=:id", stmt)
	assert.Equal(t, map[string]any{"name": "Bob", "id": "42"}, params)
}

func TestBuildStatementDelete(t *testing.T) {
	cmd := Delete("users", map[string]any{"id": "42"})
	stmt, params, err := cmd.BuildStatement()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM users WHERE id=:id", stmt)
	assert.Equal(t, map[string]any{"id": "42"}, params)
}

func TestJSONRoundTripPreservesVariant(t *testing.T) {
	original := Insert("users", map[string]any{"name": "Alice"})
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Command
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, KindInsert, decoded.Kind())
	assert.Equal(t, "users", decoded.Table())

	stmt, params, err := decoded.BuildStatement()
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO users (name) VALUES (:name)", stmt)
	assert.Equal(t, map[string]any{"name": "Alice"}, params)
}

func TestUnmarshalJSONRejectsUnknownType(t *testing.T) {
	var decoded Command
	err := json.Unmarshal([]byte(`{"type":"upsert","table":"users"}`), &decoded)
	var unknown *ErrUnknownCommandType
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "upsert", unknown.Tag)
}

func TestMarshalJSONOmitsEmptyFieldGroups(t *testing.T) {
	cmd := Delete("users", map[string]any{"id": "1"})
	data, err := json.Marshal(cmd)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	_, hasValues := raw["values"]
	_, hasSet := raw["set"]
	assert.False(t, hasValues)
	assert.False(t, hasSet)
	assert.Equal(t, "delete", raw["type"])
}
