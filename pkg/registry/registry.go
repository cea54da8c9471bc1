// Package registry owns the set of backend nodes a proxy instance fronts:
// their enabled/disabled state, weight, and rolling latency statistics.
// It is constructed once at startup and passed down explicitly to the
// router, executor facade, and observers — there is no package-level
// singleton, unlike the Python original this proxy replaces.
package registry

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sqlfront/proxy/pkg/backend"
	"github.com/sqlfront/proxy/pkg/metrics"
)

// Node is one backend database replica. Fields are mutated only by the
// Registry that owns it, always under the Registry's lock; a Node
// instance returned from a lookup stays the same instance for the life
// of the process (add overwrites the map entry with a fresh Node, it
// never mutates an existing pointer's identity away from callers holding
// it from before the overwrite).
type Node struct {
	Name     string
	Executor backend.Executor
	Weight   int

	enabled bool

	totalLatency time.Duration
	sampleCount  int
}

// Enabled reports whether the node is currently routable. Safe to call
// only while the owning Registry's lock is held, or on a Node obtained
// from a Snapshot (itself taken under lock) where the caller tolerates a
// point-in-time read.
func (n *Node) Enabled() bool { return n.enabled }

// AvgLatency returns total/count, or +Inf when no samples have been
// recorded yet.
func (n *Node) AvgLatency() time.Duration {
	if n.sampleCount == 0 {
		return time.Duration(math.MaxInt64)
	}
	return n.totalLatency / time.Duration(n.sampleCount)
}

// Registry is the mapping from node name to Node, with insertion-order
// iteration so weighted strategies are deterministic across runs.
type Registry struct {
	mu     sync.Mutex
	order  []string
	nodes  map[string]*Node
	logger zerolog.Logger
}

// New creates an empty Registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		nodes:  make(map[string]*Node),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Add inserts a node or overwrites an existing one by name, resetting its
// latency statistics. weight must be >= 1.
func (r *Registry) Add(name string, executor backend.Executor, weight int, enabled bool) {
	if weight < 1 {
		weight = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[name]; !exists {
		r.order = append(r.order, name)
	}
	r.nodes[name] = &Node{Name: name, Executor: executor, Weight: weight, enabled: enabled}
	metrics.SetNodeUp(name, enabled)
	r.logger.Info().Str("node", name).Int("weight", weight).Bool("enabled", enabled).Msg("node added")
}

// Remove deletes a node if present; idempotent.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[name]; !exists {
		return
	}
	delete(r.nodes, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Enable marks name as routable. No-op if unknown; idempotent.
func (r *Registry) Enable(name string) {
	r.setEnabled(name, true)
}

// Disable marks name as not routable. No-op if unknown; idempotent.
func (r *Registry) Disable(name string) {
	r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[name]
	if !ok {
		return
	}
	if node.enabled == enabled {
		return
	}
	node.enabled = enabled
	metrics.SetNodeUp(name, enabled)
	r.logger.Info().Str("node", name).Bool("enabled", enabled).Msg("node state changed")
}

// RecordLatency atomically adds a latency sample for name. No-op if
// unknown.
func (r *Registry) RecordLatency(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[name]
	if !ok {
		return
	}
	node.totalLatency += d
	node.sampleCount++
	metrics.SetNodeAvgLatency(name, node.AvgLatency())
}

// EnabledSnapshot returns a point-in-time, insertion-ordered list of
// enabled nodes. Later mutations do not affect the returned slice.
func (r *Registry) EnabledSnapshot() []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterLocked(true)
}

// DisabledSnapshot returns a point-in-time, insertion-ordered list of
// disabled nodes.
func (r *Registry) DisabledSnapshot() []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterLocked(false)
}

func (r *Registry) filterLocked(enabled bool) []*Node {
	out := make([]*Node, 0, len(r.order))
	for _, name := range r.order {
		if n := r.nodes[name]; n.enabled == enabled {
			out = append(out, n)
		}
	}
	return out
}

// Snapshot returns every node in insertion order, enabled and disabled
// alike. Used by the demo HTTP surface's node listing; the core itself
// only ever asks for EnabledSnapshot or DisabledSnapshot.
func (r *Registry) Snapshot() []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Node, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.nodes[name])
	}
	return out
}

// FindByExecutor returns the Node fronting executor, if any.
func (r *Registry) FindByExecutor(executor backend.Executor) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.order {
		if n := r.nodes[name]; n.Executor == executor {
			return n
		}
	}
	return nil
}

// Get returns the node with the given name, or nil.
func (r *Registry) Get(name string) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nodes[name]
}

// WithEnabled runs fn with the current enabled snapshot while holding the
// registry lock, so a Selection Strategy's pick is serialised against
// concurrent enable/disable/latency mutations. This is how the Router
// satisfies "strategies are mutated only while the registry lock is
// held".
func (r *Registry) WithEnabled(fn func(enabled []*Node) (*Node, error)) (*Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.filterLocked(true))
}
