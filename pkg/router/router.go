// Package router glues the node registry and selection strategy
// together, exposing the two entry points the executor facade calls:
// RouteRead and RouteWrite.
package router

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/sqlfront/proxy/pkg/errs"
	"github.com/sqlfront/proxy/pkg/registry"
	"github.com/sqlfront/proxy/pkg/strategy"
)

// Router is constructed once per proxy instance and passed down
// explicitly; it holds no package-level state.
type Router struct {
	registry *registry.Registry

	mu      sync.Mutex
	current strategy.Strategy

	logger zerolog.Logger
}

// New builds a Router over reg using the given initial strategy.
func New(reg *registry.Registry, initial strategy.Strategy, logger zerolog.Logger) *Router {
	return &Router{
		registry: reg,
		current:  initial,
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// SetStrategy swaps the active selection strategy atomically. In-flight
// RouteRead calls that already captured the previous strategy finish
// against it; only subsequent calls see the swap.
func (r *Router) SetStrategy(s strategy.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger.Info().Str("strategy", s.Name()).Msg("strategy swapped")
	r.current = s
}

// StrategyName reports the name of the currently active strategy.
func (r *Router) StrategyName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Name()
}

// RouteRead picks exactly one node for a read-only statement. The
// decision is taken at the moment this call is made; subsequent status
// changes do not retarget it.
func (r *Router) RouteRead(statement string) (*registry.Node, error) {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()

	return r.registry.WithEnabled(func(enabled []*registry.Node) (*registry.Node, error) {
		return s.Pick(enabled)
	})
}

// RouteWrite returns the set of nodes to broadcast a write to and the
// set to journal it to instead. It fails with *errs.NoEnabledNodes only
// when the entire cluster is disabled; the caller may still use
// journalSet in that case.
func (r *Router) RouteWrite(statement string) (writeSet, journalSet []*registry.Node, err error) {
	writeSet = r.registry.EnabledSnapshot()
	journalSet = r.registry.DisabledSnapshot()
	if len(writeSet) == 0 {
		err = &errs.NoEnabledNodes{Op: errs.OpWrite}
	}
	return writeSet, journalSet, err
}
