// Package failover implements the observer that removes a node from the
// routing pool the instant the health monitor reports it DOWN. It is a
// plain consumer of events.StatusEvent holding a non-owning reference to
// the registry; the registry has no back-pointer to it.
package failover

import (
	"github.com/rs/zerolog"

	"github.com/sqlfront/proxy/pkg/events"
	"github.com/sqlfront/proxy/pkg/registry"
)

// Observer disables nodes on DOWN transitions. It intentionally does
// nothing on UP: re-enabling a node is the Recovery observer's job,
// after its command log has drained.
type Observer struct {
	registry *registry.Registry
	logger   zerolog.Logger
}

// New builds a failover Observer over reg.
func New(reg *registry.Registry, logger zerolog.Logger) *Observer {
	return &Observer{registry: reg, logger: logger.With().Str("component", "failover").Logger()}
}

// OnStatusEvent implements events.Observer.
func (o *Observer) OnStatusEvent(e events.StatusEvent) error {
	if e.Status != events.StatusDown {
		return nil
	}
	o.registry.Disable(e.Node)
	o.logger.Warn().Str("node", e.Node).Msg("node disabled after DOWN transition")
	return nil
}
