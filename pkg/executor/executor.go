// Package executor implements the Executor Facade: the component that
// actually runs a classified statement, either against a single node
// (read path, with fallback) or broadcast to every enabled node (write
// path), journaling to disabled nodes and to any node that fails
// mid-broadcast.
package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sqlfront/proxy/pkg/backend"
	"github.com/sqlfront/proxy/pkg/command"
	"github.com/sqlfront/proxy/pkg/commandlog"
	"github.com/sqlfront/proxy/pkg/errs"
	"github.com/sqlfront/proxy/pkg/metrics"
	"github.com/sqlfront/proxy/pkg/registry"
	"github.com/sqlfront/proxy/pkg/router"
)

// Result is a materialised set of rows plus the name of the node that
// served them.
type Result struct {
	Rows     []backend.Row
	ServedBy string
}

// Facade is the executor facade described by the coordination engine's
// read and write paths.
type Facade struct {
	router   *router.Router
	registry *registry.Registry
	logs     map[string]*commandlog.Log
	logger   zerolog.Logger
}

// New builds a Facade. logs is keyed by node name; a node without an
// entry simply never gets journaled to.
func New(r *router.Router, reg *registry.Registry, logs map[string]*commandlog.Log, logger zerolog.Logger) *Facade {
	return &Facade{router: r, registry: reg, logs: logs, logger: logger.With().Str("component", "executor").Logger()}
}

// ExecuteRead runs a SELECT-class statement against one routed node,
// falling over to the remaining enabled nodes in registry order on
// failure.
func (f *Facade) ExecuteRead(ctx context.Context, statement string) (Result, error) {
	node, err := f.router.RouteRead(statement)
	if err != nil {
		metrics.ObserveRead(false)
		return Result{}, err
	}

	t0 := time.Now()
	if rows, err := f.execInTx(ctx, node, statement, nil); err == nil {
		f.registry.RecordLatency(node.Name, time.Since(t0))
		metrics.ObserveRead(true)
		return Result{Rows: rows, ServedBy: node.Name}, nil
	} else {
		f.logger.Warn().Str("node", node.Name).Err(err).Msg("read failed on routed node, retrying")
	}

	for _, alt := range f.registry.EnabledSnapshot() {
		if alt.Name == node.Name {
			continue
		}
		t1 := time.Now()
		rows, err := f.execInTx(ctx, alt, statement, nil)
		if err != nil {
			f.logger.Warn().Str("node", alt.Name).Err(err).Msg("read retry failed")
			continue
		}
		f.registry.RecordLatency(alt.Name, time.Since(t1))
		metrics.ObserveRead(true)
		return Result{Rows: rows, ServedBy: alt.Name}, nil
	}

	metrics.ObserveRead(false)
	return Result{}, &errs.NoEnabledNodes{Op: errs.OpRetry}
}

// ExecuteWrite broadcasts a WRITE-class statement to every enabled node,
// journals it to every disabled node, and journals it to any enabled
// node that failed mid-broadcast. cmd may be nil, in which case
// journaling is skipped but the broadcast still happens. params is bound
// alongside statement on every live execution; it plays no part in
// journaling, which replays cmd's own field maps instead.
func (f *Facade) ExecuteWrite(ctx context.Context, statement string, params backend.Params, cmd *command.Command) (Result, error) {
	writeSet, journalSet, err := f.router.RouteWrite(statement)
	if err != nil {
		if cmd != nil {
			for _, n := range journalSet {
				f.journalTo(n.Name, *cmd)
			}
		}
		metrics.ObserveWrite(false)
		return Result{}, err
	}

	var rows []backend.Row
	for i, node := range writeSet {
		nodeRows, execErr := f.execInTx(ctx, node, statement, params)
		if execErr != nil {
			f.logger.Warn().Str("node", node.Name).Err(execErr).Msg("node was enabled but failed mid-write")
			if cmd != nil {
				f.journalTo(node.Name, *cmd)
			}
			continue
		}
		if i == 0 {
			rows = nodeRows
		}
	}

	for _, node := range journalSet {
		if cmd != nil {
			f.journalTo(node.Name, *cmd)
		}
	}

	metrics.ObserveWrite(true)
	return Result{Rows: rows, ServedBy: writeSet[0].Name}, nil
}

func (f *Facade) journalTo(nodeName string, cmd command.Command) {
	log, ok := f.logs[nodeName]
	if !ok {
		return
	}
	if err := log.Append(cmd); err != nil {
		f.logger.Error().Str("node", nodeName).Err(err).Msg("failed to journal command")
	}
}

func (f *Facade) execInTx(ctx context.Context, node *registry.Node, statement string, params backend.Params) ([]backend.Row, error) {
	tx, err := node.Executor.Begin(ctx)
	if err != nil {
		return nil, &errs.BackendUnavailable{Node: node.Name, Cause: err}
	}
	rows, err := tx.Execute(ctx, statement, params)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, &errs.BackendUnavailable{Node: node.Name, Cause: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return rows, &errs.BackendUnavailable{Node: node.Name, Cause: err}
	}
	return rows, nil
}

// TxScope is an explicit multi-statement transactional scope opened on
// every currently-enabled node. Every statement run through it executes
// on every node that successfully opened a transaction; on Close, all
// open transactions commit (normal exit) or all roll back (abnormal
// exit). A per-node commit failure is logged and does not roll back
// already-committed peers: there is no global consensus here, by design.
type TxScope struct {
	facade *Facade
	ctx    context.Context
	nodes  []*registry.Node
	txs    map[string]backend.Tx
	// pending holds the last Command executed against each still-open
	// node, so a commit failure in Close can journal it exactly like a
	// failed broadcast write does in ExecuteWrite.
	pending map[string]*command.Command
}

// BeginTxScope opens a transaction on every enabled node.
func (f *Facade) BeginTxScope(ctx context.Context) (*TxScope, error) {
	nodes := f.registry.EnabledSnapshot()
	if len(nodes) == 0 {
		return nil, &errs.NoEnabledNodes{Op: errs.OpWrite}
	}

	txs := make(map[string]backend.Tx, len(nodes))
	for _, n := range nodes {
		tx, err := n.Executor.Begin(ctx)
		if err != nil {
			f.logger.Warn().Str("node", n.Name).Err(err).Msg("failed to open transaction for scope")
			continue
		}
		txs[n.Name] = tx
	}

	return &TxScope{facade: f, ctx: ctx, nodes: nodes, txs: txs, pending: make(map[string]*command.Command)}, nil
}

// Execute runs statement on every node still part of the scope. cmd, if
// supplied, is journaled to any node whose execution fails, and is
// remembered as that node's pending command so a later commit failure in
// Close can journal it too.
func (s *TxScope) Execute(statement string, params backend.Params, cmd *command.Command) Result {
	var result Result
	first := true
	for _, n := range s.nodes {
		tx, ok := s.txs[n.Name]
		if !ok {
			continue
		}
		rows, err := tx.Execute(s.ctx, statement, params)
		if err != nil {
			s.facade.logger.Warn().Str("node", n.Name).Err(err).Msg("statement failed within transactional scope")
			if cmd != nil {
				s.facade.journalTo(n.Name, *cmd)
			}
			delete(s.txs, n.Name)
			delete(s.pending, n.Name)
			continue
		}
		if cmd != nil {
			s.pending[n.Name] = cmd
		}
		if first {
			result = Result{Rows: rows, ServedBy: n.Name}
			first = false
		}
	}
	return result
}

// Close commits every still-open transaction if commit is true (normal
// scope exit), otherwise rolls them all back. A per-node commit failure
// is logged and journals that node's pending command, exactly as a
// mid-broadcast write failure does in ExecuteWrite; it does not roll
// back already-committed peers.
func (s *TxScope) Close(commit bool) {
	for name, tx := range s.txs {
		var err error
		if commit {
			err = tx.Commit(s.ctx)
		} else {
			err = tx.Rollback(s.ctx)
		}
		if err != nil {
			s.facade.logger.Error().Str("node", name).Bool("commit", commit).Err(err).Msg("scope exit failed for node")
			if commit {
				if cmd := s.pending[name]; cmd != nil {
					s.facade.journalTo(name, *cmd)
				}
			}
		}
	}
}
