// Package strategy implements the pluggable rules a Router uses to pick
// one node from the currently enabled set for a read. Each strategy
// keeps small internal indices that persist across calls and must stay
// in range even when the enabled set shrinks between calls.
package strategy

import (
	"github.com/sqlfront/proxy/pkg/errs"
	"github.com/sqlfront/proxy/pkg/registry"
)

// Strategy picks one node from a non-nil, possibly-empty slice of
// currently enabled nodes. It fails with *errs.NoEnabledNodes on an
// empty slice. Strategies are not safe to share across registries and
// are not safe for concurrent use; the Router serialises access via
// registry.Registry.WithEnabled.
type Strategy interface {
	Pick(enabled []*registry.Node) (*registry.Node, error)
	Name() string
}

func noNodes() error { return &errs.NoEnabledNodes{Op: errs.OpRead} }

// RoundRobin cycles through the enabled set in order, one node per call.
type RoundRobin struct {
	index int
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (s *RoundRobin) Name() string { return "round_robin" }

func (s *RoundRobin) Pick(enabled []*registry.Node) (*registry.Node, error) {
	if len(enabled) == 0 {
		return nil, noNodes()
	}
	if s.index >= len(enabled) {
		s.index = s.index % len(enabled)
	}
	node := enabled[s.index]
	s.index = (s.index + 1) % len(enabled)
	return node, nil
}

// WeightedRoundRobin emits the node at index until counter reaches that
// node's weight, then advances. Over a stable enabled set with total
// weight W, a full cycle of W picks returns each node exactly weight
// times.
type WeightedRoundRobin struct {
	index   int
	counter int
}

func NewWeightedRoundRobin() *WeightedRoundRobin { return &WeightedRoundRobin{} }

func (s *WeightedRoundRobin) Name() string { return "weighted_round_robin" }

func (s *WeightedRoundRobin) Pick(enabled []*registry.Node) (*registry.Node, error) {
	if len(enabled) == 0 {
		return nil, noNodes()
	}
	if s.index >= len(enabled) {
		s.index = 0
		s.counter = 0
	}
	node := enabled[s.index]

	s.counter++
	if s.counter >= node.Weight {
		s.counter = 0
		s.index = (s.index + 1) % len(enabled)
	}
	return node, nil
}

// LeastTime returns the enabled node with the smallest rolling average
// latency; a node with no samples compares as +Inf and so is chosen only
// when every alternative also has no samples. Ties are broken by
// registry insertion order, which the enabled slice already reflects.
type LeastTime struct{}

func NewLeastTime() *LeastTime { return &LeastTime{} }

func (s *LeastTime) Name() string { return "least_time" }

func (s *LeastTime) Pick(enabled []*registry.Node) (*registry.Node, error) {
	if len(enabled) == 0 {
		return nil, noNodes()
	}
	best := enabled[0]
	bestAvg := best.AvgLatency()
	for _, n := range enabled[1:] {
		if avg := n.AvgLatency(); avg < bestAvg {
			best, bestAvg = n, avg
		}
	}
	return best, nil
}

// ByName constructs the strategy named by the configuration string.
func ByName(name string) (Strategy, bool) {
	switch name {
	case "round_robin", "":
		return NewRoundRobin(), true
	case "weighted_round_robin":
		return NewWeightedRoundRobin(), true
	case "least_time":
		return NewLeastTime(), true
	default:
		return nil, false
	}
}
