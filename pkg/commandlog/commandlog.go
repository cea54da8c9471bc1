// Package commandlog implements the per-node durable journal of writes a
// replica misses while disabled. Appends are persisted atomically
// (temp file + rename) before the call returns; replay runs the
// sequence in order and only drops the durable prefix once the entire
// sequence has replayed successfully.
package commandlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sqlfront/proxy/pkg/backend"
	"github.com/sqlfront/proxy/pkg/command"
	"github.com/sqlfront/proxy/pkg/errs"
	"github.com/sqlfront/proxy/pkg/metrics"
)

// Log is one node's command journal.
type Log struct {
	mu       sync.Mutex
	path     string
	node     string
	commands []command.Command
	logger   zerolog.Logger
}

// Open loads path if it exists and returns a Log backed by it. A missing
// file is equivalent to an empty log.
func Open(node, path string, logger zerolog.Logger) (*Log, error) {
	l := &Log{
		path:   path,
		node:   node,
		logger: logger.With().Str("component", "commandlog").Str("node", node).Logger(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			metrics.SetCommandLogDepth(node, 0)
			return l, nil
		}
		return nil, &errs.LogIOError{Node: node, Cause: err}
	}

	var cmds []command.Command
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cmds); err != nil {
			return nil, fmt.Errorf("loading command log for %q: %w", node, err)
		}
	}
	l.commands = cmds
	metrics.SetCommandLogDepth(node, len(l.commands))
	return l, nil
}

// Len reports the number of pending commands.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.commands)
}

// Append adds cmd to the sequence and persists the full sequence before
// returning.
func (l *Log) Append(cmd command.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.commands = append(l.commands, cmd)
	if err := l.saveLocked(); err != nil {
		l.commands = l.commands[:len(l.commands)-1]
		return err
	}
	l.logger.Info().Int("depth", len(l.commands)).Msg("command journaled")
	metrics.SetCommandLogDepth(l.node, len(l.commands))
	return nil
}

// Replay runs every journaled command against executor, in order, each
// inside its own transaction. On success of the entire sequence, the
// log is cleared and persisted empty. On any mid-sequence failure, the
// successful prefix is dropped and the log is left holding the failing
// command onward; the caller observes the error.
func (l *Log) Replay(ctx context.Context, executor backend.Executor) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.commands) > 0 {
		cmd := l.commands[0]
		if err := l.execOne(ctx, executor, cmd); err != nil {
			metrics.ObserveReplay(l.node, false)
			metrics.SetCommandLogDepth(l.node, len(l.commands))
			return fmt.Errorf("replaying command for %q: %w", l.node, err)
		}
		l.commands = l.commands[1:]
	}

	if err := l.saveLocked(); err != nil {
		return err
	}
	metrics.ObserveReplay(l.node, true)
	metrics.SetCommandLogDepth(l.node, 0)
	l.logger.Info().Msg("replay complete, log cleared")
	return nil
}

func (l *Log) execOne(ctx context.Context, executor backend.Executor, cmd command.Command) error {
	statement, params, err := cmd.BuildStatement()
	if err != nil {
		return err
	}
	tx, err := executor.Begin(ctx)
	if err != nil {
		return &errs.BackendUnavailable{Node: l.node, Cause: err}
	}
	if _, err := tx.Execute(ctx, statement, backend.Params(params)); err != nil {
		_ = tx.Rollback(ctx)
		return &errs.BackendUnavailable{Node: l.node, Cause: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &errs.BackendUnavailable{Node: l.node, Cause: err}
	}
	return nil
}

// saveLocked writes the full sequence to a temp file in the log's
// directory, then renames it over path. Callers must hold l.mu.
func (l *Log) saveLocked() error {
	data, err := json.MarshalIndent(l.commands, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling command log for %q: %w", l.node, err)
	}
	if l.commands == nil {
		data = []byte("[]")
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &errs.LogIOError{Node: l.node, Cause: err}
	}

	tmp, err := os.CreateTemp(dir, ".commandlog-*.tmp")
	if err != nil {
		return &errs.LogIOError{Node: l.node, Cause: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &errs.LogIOError{Node: l.node, Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &errs.LogIOError{Node: l.node, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &errs.LogIOError{Node: l.node, Cause: err}
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return &errs.LogIOError{Node: l.node, Cause: err}
	}
	return nil
}

// PathFor returns the conventional log file path for a node name under
// dir: command_<name>.json.
func PathFor(dir, node string) string {
	return filepath.Join(dir, fmt.Sprintf("command_%s.json", node))
}
