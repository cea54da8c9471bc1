package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlfront/proxy/pkg/events"
	"github.com/sqlfront/proxy/pkg/memexec"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []events.StatusEvent
}

func (r *recordingObserver) OnStatusEvent(e events.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingObserver) snapshot() []events.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.StatusEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestRunCheckEmitsOneEventOnFirstFailureAndNoneOnRepeat(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	obs := &recordingObserver{}
	bus.Subscribe(obs)

	mon := NewMonitor(bus, time.Second, zerolog.Nop())
	db2 := memexec.New()
	db2.SetPingErr(errors.New("connection refused"))
	mon.AddNode("db2", db2)

	mon.RunCheck(context.Background())
	require.Len(t, obs.snapshot(), 1)
	assert.Equal(t, events.StatusEvent{Node: "db2", Status: events.StatusDown}, obs.snapshot()[0])

	mon.RunCheck(context.Background())
	assert.Len(t, obs.snapshot(), 1, "a second identical failure must not emit a second event")
}

func TestRunCheckEmitsUpDownThenUpOnRecovery(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	obs := &recordingObserver{}
	bus.Subscribe(obs)

	mon := NewMonitor(bus, time.Second, zerolog.Nop())
	db1 := memexec.New()
	mon.AddNode("db1", db1)

	mon.RunCheck(context.Background())
	require.Len(t, obs.snapshot(), 1)
	assert.Equal(t, events.StatusUp, obs.snapshot()[0].Status)

	db1.SetPingErr(errors.New("timeout"))
	mon.RunCheck(context.Background())
	require.Len(t, obs.snapshot(), 2)
	assert.Equal(t, events.StatusDown, obs.snapshot()[1].Status)

	db1.SetPingErr(nil)
	mon.RunCheck(context.Background())
	require.Len(t, obs.snapshot(), 3)
	assert.Equal(t, events.StatusUp, obs.snapshot()[2].Status)
}

func TestRunCheckProbesNodesConcurrentlyAndIndependently(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	obs := &recordingObserver{}
	bus.Subscribe(obs)

	mon := NewMonitor(bus, time.Second, zerolog.Nop())
	db1, db2, db3 := memexec.New(), memexec.New(), memexec.New()
	db2.SetPingErr(errors.New("down"))
	mon.AddNode("db1", db1)
	mon.AddNode("db2", db2)
	mon.AddNode("db3", db3)

	mon.RunCheck(context.Background())

	got := make(map[string]events.Status)
	for _, e := range obs.snapshot() {
		got[e.Node] = e.Status
	}
	assert.Equal(t, events.StatusUp, got["db1"])
	assert.Equal(t, events.StatusDown, got["db2"])
	assert.Equal(t, events.StatusUp, got["db3"])
}

func TestLoopStopsWithoutRunningAfterStop(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	mon := NewMonitor(bus, time.Second, zerolog.Nop())
	loop := NewLoop(mon, time.Hour, zerolog.Nop())

	loop.Start()
	loop.Stop()
}
