// Package recovery implements the observer that reconciles a node once
// it returns: on UP, it replays the node's durable command log against
// its Backend Executor and only then re-enables it in the registry. A
// node is never routable again without a successful replay — this
// asymmetry with the failover observer is the key invariant of the
// reconciliation design.
package recovery

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sqlfront/proxy/pkg/backend"
	"github.com/sqlfront/proxy/pkg/commandlog"
	"github.com/sqlfront/proxy/pkg/events"
	"github.com/sqlfront/proxy/pkg/registry"
)

// Observer replays a node's command log on UP and re-enables it on
// success.
type Observer struct {
	registry  *registry.Registry
	logs      map[string]*commandlog.Log
	executors map[string]backend.Executor
	logger    zerolog.Logger
}

// New builds a recovery Observer. logs and executors are keyed by node
// name and shared with whoever constructed the registry's nodes.
func New(reg *registry.Registry, logs map[string]*commandlog.Log, executors map[string]backend.Executor, logger zerolog.Logger) *Observer {
	return &Observer{
		registry:  reg,
		logs:      logs,
		executors: executors,
		logger:    logger.With().Str("component", "recovery").Logger(),
	}
}

// OnStatusEvent implements events.Observer.
func (o *Observer) OnStatusEvent(e events.StatusEvent) error {
	if e.Status != events.StatusUp {
		return nil
	}

	log, ok := o.logs[e.Node]
	if !ok {
		o.logger.Warn().Str("node", e.Node).Msg("no command log registered, skipping replay")
		return nil
	}
	executor, ok := o.executors[e.Node]
	if !ok {
		o.logger.Warn().Str("node", e.Node).Msg("no executor registered, skipping replay")
		return nil
	}

	if err := log.Replay(context.Background(), executor); err != nil {
		o.logger.Error().Err(err).Str("node", e.Node).Msg("replay failed, node remains disabled")
		return err
	}

	o.registry.Enable(e.Node)
	o.logger.Info().Str("node", e.Node).Msg("replay succeeded, node re-enabled")
	return nil
}
