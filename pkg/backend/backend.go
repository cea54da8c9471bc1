// Package backend defines the narrow capability the coordination engine
// needs from a concrete database driver: execute a parameterised
// statement inside a transaction, and probe liveness. It deliberately
// says nothing about which driver or wire protocol backs it, which keeps
// the core testable against an in-memory fake.
package backend

import "context"

// Row is a single result row keyed by column name.
type Row map[string]any

// Params is the parameter map passed alongside a ":name"-style statement.
type Params map[string]any

// Tx is a single transactional scope against one node. Callers must call
// exactly one of Commit or Rollback, and Execute must not be called after
// either.
type Tx interface {
	Execute(ctx context.Context, statement string, params Params) ([]Row, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Executor is the capability a Node fronts. Implementations bind to a
// specific driver; the coordination engine only ever sees this interface.
type Executor interface {
	// Begin opens a transactional scope. The caller is responsible for
	// releasing it via Tx.Commit or Tx.Rollback on every exit path.
	Begin(ctx context.Context) (Tx, error)

	// Ping performs a lightweight liveness probe, e.g. "SELECT 1",
	// within its own short-lived connection scope.
	Ping(ctx context.Context) error
}
