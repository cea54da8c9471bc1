// Package memexec is an in-process Backend Executor over a mutex-guarded
// table store. It understands exactly the small statement shapes the
// rest of this repository generates (command.Command.BuildStatement and
// the demo HTTP surface's fixed SELECT), which is enough to exercise the
// coordination engine end to end without a real database driver.
package memexec

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sqlfront/proxy/pkg/backend"
)

// Executor is a single node's in-memory backend.
type Executor struct {
	mu        sync.Mutex
	tables    map[string][]backend.Row
	pingErr   error
	execErr   error
	beginErr  error
	commitErr error
}

// New creates an Executor with no rows in any table.
func New() *Executor {
	return &Executor{tables: make(map[string][]backend.Row)}
}

// SetPingErr makes every future Ping fail with err (nil clears it). Used
// by tests to simulate a node going DOWN.
func (e *Executor) SetPingErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pingErr = err
}

// SetExecErr makes every future Execute fail with err (nil clears it).
// Used by tests to simulate a node failing mid-write or mid-read.
func (e *Executor) SetExecErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execErr = err
}

// SetBeginErr makes every future Begin fail with err (nil clears it).
func (e *Executor) SetBeginErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.beginErr = err
}

// SetCommitErr makes every future Commit fail with err (nil clears it).
// Used by tests to simulate a node that accepts writes but fails to
// durably commit them.
func (e *Executor) SetCommitErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commitErr = err
}

// Rows returns a copy of table's current rows, for test assertions.
func (e *Executor) Rows(table string) []backend.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	rows := e.tables[table]
	out := make([]backend.Row, len(rows))
	copy(out, rows)
	return out
}

func (e *Executor) Ping(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pingErr
}

func (e *Executor) Begin(ctx context.Context) (backend.Tx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.beginErr != nil {
		return nil, e.beginErr
	}
	return &tx{exec: e}, nil
}

type tx struct {
	exec *Executor
}

func (t *tx) Execute(ctx context.Context, statement string, params backend.Params) ([]backend.Row, error) {
	t.exec.mu.Lock()
	execErr := t.exec.execErr
	t.exec.mu.Unlock()
	if execErr != nil {
		return nil, execErr
	}
	return t.exec.run(statement, params)
}

func (t *tx) Commit(ctx context.Context) error {
	t.exec.mu.Lock()
	defer t.exec.mu.Unlock()
	return t.exec.commitErr
}

func (t *tx) Rollback(ctx context.Context) error { return nil }

var (
	insertRe = regexp.MustCompile(`(?is)^INSERT INTO\s+(\S+)\s*\(([^)]*)\)\s*VALUES\s*\(([^)]*)\)$`)
	updateRe = regexp.MustCompile(`(?is)^UPDATE\s+(\S+)\s+SET\s+(.+?)\s+WHERE\s+(.+)$`)
	deleteRe = regexp.MustCompile(`(?is)^DELETE FROM\s+(\S+)\s+WHERE\s+(.+)$`)
	selectRe = regexp.MustCompile(`(?is)^SELECT\s+(.+?)\s+FROM\s+(\S+)(?:\s+ORDER BY\s+(.+))?$`)
)

func (e *Executor) run(statement string, params backend.Params) ([]backend.Row, error) {
	stmt := strings.TrimSpace(statement)

	if m := insertRe.FindStringSubmatch(stmt); m != nil {
		return e.runInsert(m[1], params)
	}
	if m := updateRe.FindStringSubmatch(stmt); m != nil {
		return e.runUpdate(m[1], m[3], params)
	}
	if m := deleteRe.FindStringSubmatch(stmt); m != nil {
		return e.runDelete(m[1], m[2], params)
	}
	if m := selectRe.FindStringSubmatch(stmt); m != nil {
		return e.runSelect(m[2], m[1], m[3])
	}
	return nil, fmt.Errorf("memexec: unsupported statement %q", statement)
}

func (e *Executor) runInsert(table string, params backend.Params) ([]backend.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	row := backend.Row{}
	for k, v := range params {
		row[k] = v
	}
	e.tables[table] = append(e.tables[table], row)
	return []backend.Row{row}, nil
}

func (e *Executor) runUpdate(table, whereClause string, params backend.Params) ([]backend.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	whereCols := clauseColumns(whereClause)
	var updated []backend.Row
	for i, row := range e.tables[table] {
		if !matches(row, whereCols, params) {
			continue
		}
		for k, v := range params {
			if _, isWhere := whereCols[k]; isWhere {
				continue
			}
			row[k] = v
		}
		e.tables[table][i] = row
		updated = append(updated, row)
	}
	return updated, nil
}

func (e *Executor) runDelete(table, whereClause string, params backend.Params) ([]backend.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	whereCols := clauseColumns(whereClause)
	var kept []backend.Row
	var deleted []backend.Row
	for _, row := range e.tables[table] {
		if matches(row, whereCols, params) {
			deleted = append(deleted, row)
			continue
		}
		kept = append(kept, row)
	}
	e.tables[table] = kept
	return deleted, nil
}

func (e *Executor) runSelect(table, columnsClause, orderBy string) ([]backend.Row, error) {
	e.mu.Lock()
	rows := make([]backend.Row, len(e.tables[table]))
	copy(rows, e.tables[table])
	e.mu.Unlock()

	cols := strings.Split(columnsClause, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}

	orderBy = strings.TrimSpace(orderBy)
	if orderBy != "" {
		col := strings.Fields(orderBy)[0]
		sort.SliceStable(rows, func(i, j int) bool {
			return fmt.Sprint(rows[i][col]) < fmt.Sprint(rows[j][col])
		})
	}

	if len(cols) == 1 && cols[0] == "*" {
		return rows, nil
	}

	out := make([]backend.Row, len(rows))
	for i, row := range rows {
		projected := backend.Row{}
		for _, c := range cols {
			projected[c] = row[c]
		}
		out[i] = projected
	}
	return out, nil
}

// clauseColumns extracts the left-hand column names from a "k=:k AND
// k2=:k2" WHERE clause.
func clauseColumns(whereClause string) map[string]struct{} {
	cols := make(map[string]struct{})
	for _, part := range strings.Split(whereClause, " AND ") {
		part = strings.TrimSpace(part)
		if eq := strings.Index(part, "="); eq > 0 {
			cols[strings.TrimSpace(part[:eq])] = struct{}{}
		}
	}
	return cols
}

func matches(row backend.Row, whereCols map[string]struct{}, params backend.Params) bool {
	for col := range whereCols {
		want, ok := params[col]
		if !ok {
			continue
		}
		if fmt.Sprint(row[col]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
