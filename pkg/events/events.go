// Package events is the minimal observer dispatch the health monitor
// uses to tell the failover and recovery observers about node status
// transitions. Unlike the teacher's channel-backed Broker, delivery here
// is synchronous and on the caller's goroutine: a Status event must be
// fully handled by every observer before Notify returns, since failover
// disabling a node must be visible to the very next routing decision.
package events

import "github.com/rs/zerolog"

// Status is a node's liveness as observed by the health monitor.
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// StatusEvent is emitted only on a transition in a node's observed
// status, never for an unchanged status.
type StatusEvent struct {
	Node   string
	Status Status
}

// Observer reacts to status transitions. Observers must be fast and
// non-blocking, or dispatch their own work off-thread; Notify calls them
// synchronously in registration order.
type Observer interface {
	OnStatusEvent(e StatusEvent) error
}

// Bus holds an ordered list of observers and notifies them synchronously
// on the caller's goroutine.
type Bus struct {
	observers []Observer
	logger    zerolog.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger.With().Str("component", "events").Logger()}
}

// Subscribe registers o. Registering the same Observer twice is a no-op.
func (b *Bus) Subscribe(o Observer) {
	for _, existing := range b.observers {
		if existing == o {
			return
		}
	}
	b.observers = append(b.observers, o)
}

// Notify walks the registered observers in registration order and
// invokes each synchronously. An observer error is logged and does not
// stop delivery to the remaining observers.
func (b *Bus) Notify(e StatusEvent) {
	for _, o := range b.observers {
		if err := o.OnStatusEvent(e); err != nil {
			b.logger.Error().Err(err).Str("node", e.Node).Str("status", string(e.Status)).Msg("observer failed")
		}
	}
}
