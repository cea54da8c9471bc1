package commandlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlfront/proxy/pkg/backend"
	"github.com/sqlfront/proxy/pkg/command"
)

// fakeExecutor records every committed statement in order.
type fakeExecutor struct {
	executed []string
	failOn   int // 1-indexed; 0 means never fail
	calls    int
}

type fakeTx struct {
	exec *fakeExecutor
	fail bool
}

func (t *fakeTx) Execute(ctx context.Context, statement string, params backend.Params) ([]backend.Row, error) {
	t.exec.calls++
	if t.exec.failOn != 0 && t.exec.calls == t.exec.failOn {
		t.fail = true
		return nil, assertErr{}
	}
	t.exec.executed = append(t.exec.executed, statement)
	return nil, nil
}

func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

func (e *fakeExecutor) Begin(ctx context.Context) (backend.Tx, error) {
	return &fakeTx{exec: e}, nil
}
func (e *fakeExecutor) Ping(ctx context.Context) error { return nil }

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestAppendThenReplayPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "command_db3.json")
	l, err := Open("db3", path, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, l.Append(command.Insert("users", map[string]any{"id": 1, "name": "Alice"})))
	require.NoError(t, l.Append(command.Update("users", map[string]any{"name": "ALICJA"}, map[string]any{"id": 1})))
	require.NoError(t, l.Append(command.Delete("users", map[string]any{"id": 1})))
	assert.Equal(t, 3, l.Len())

	exec := &fakeExecutor{}
	require.NoError(t, l.Replay(context.Background(), exec))

	assert.Len(t, exec.executed, 3)
	assert.Contains(t, exec.executed[0], "INSERT INTO users")
	assert.Contains(t, exec.executed[1], "UPDATE users")
	assert.Contains(t, exec.executed[2], "DELETE FROM users")
	assert.Equal(t, 0, l.Len())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestReplayFailureLeavesFailingCommandOnward(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "command_db1.json")
	l, err := Open("db1", path, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, l.Append(command.Insert("t", map[string]any{"a": 1})))
	require.NoError(t, l.Append(command.Insert("t", map[string]any{"a": 2})))
	require.NoError(t, l.Append(command.Insert("t", map[string]any{"a": 3})))

	exec := &fakeExecutor{failOn: 2}
	err = l.Replay(context.Background(), exec)
	require.Error(t, err)

	assert.Equal(t, 2, l.Len(), "failing command and everything after it should remain")
}

func TestOpenAbsentFileIsEmptyLog(t *testing.T) {
	dir := t.TempDir()
	l, err := Open("dbX", filepath.Join(dir, "does-not-exist.json"), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

func TestOpenLoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "command_db2.json")
	seed := []byte(`[{"type":"insert","table":"users","values":{"name":"Bob"}}]`)
	require.NoError(t, os.WriteFile(path, seed, 0o644))

	l, err := Open("db2", path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())
}

func TestOpenRejectsUnknownCommandType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "command_db2.json")
	seed := []byte(`[{"type":"upsert","table":"users"}]`)
	require.NoError(t, os.WriteFile(path, seed, 0o644))

	_, err := Open("db2", path, zerolog.Nop())
	assert.Error(t, err)
}

func TestAppendIsDurableBeforeReturning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "command_db1.json")
	l, err := Open("db1", path, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, l.Append(command.Insert("users", map[string]any{"name": "Alice"})))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 1)
}
