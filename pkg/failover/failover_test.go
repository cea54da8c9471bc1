package failover

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlfront/proxy/pkg/events"
	"github.com/sqlfront/proxy/pkg/memexec"
	"github.com/sqlfront/proxy/pkg/registry"
)

func TestOnStatusEventDisablesNodeOnDown(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	reg.Add("db2", memexec.New(), 1, true)

	obs := New(reg, zerolog.Nop())
	require.NoError(t, obs.OnStatusEvent(events.StatusEvent{Node: "db2", Status: events.StatusDown}))

	assert.False(t, reg.Get("db2").Enabled())
}

func TestOnStatusEventIgnoresUp(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	reg.Add("db1", memexec.New(), 1, false)

	obs := New(reg, zerolog.Nop())
	require.NoError(t, obs.OnStatusEvent(events.StatusEvent{Node: "db1", Status: events.StatusUp}))

	assert.False(t, reg.Get("db1").Enabled(), "failover must never enable a node itself")
}

func TestOnStatusEventUnknownNodeIsNoop(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	obs := New(reg, zerolog.Nop())
	assert.NoError(t, obs.OnStatusEvent(events.StatusEvent{Node: "ghost", Status: events.StatusDown}))
}
