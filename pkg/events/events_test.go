package events

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type recordingObserver struct {
	received []StatusEvent
	err      error
}

func (o *recordingObserver) OnStatusEvent(e StatusEvent) error {
	o.received = append(o.received, e)
	return o.err
}

func TestSubscribeIsIdempotentByIdentity(t *testing.T) {
	b := NewBus(zerolog.Nop())
	obs := &recordingObserver{}

	b.Subscribe(obs)
	b.Subscribe(obs)

	b.Notify(StatusEvent{Node: "db1", Status: StatusDown})
	assert.Len(t, obs.received, 1, "an observer subscribed twice must still be notified once")
}

func TestNotifyDeliversInRegistrationOrder(t *testing.T) {
	b := NewBus(zerolog.Nop())
	var order []string
	first := &orderObserver{name: "first", order: &order}
	second := &orderObserver{name: "second", order: &order}

	b.Subscribe(first)
	b.Subscribe(second)
	b.Notify(StatusEvent{Node: "db1", Status: StatusUp})

	assert.Equal(t, []string{"first", "second"}, order)
}

type orderObserver struct {
	name  string
	order *[]string
}

func (o *orderObserver) OnStatusEvent(e StatusEvent) error {
	*o.order = append(*o.order, o.name)
	return nil
}

func TestNotifyIsolatesAnObserverErrorFromLaterObservers(t *testing.T) {
	b := NewBus(zerolog.Nop())
	failing := &recordingObserver{err: errors.New("boom")}
	healthy := &recordingObserver{}

	b.Subscribe(failing)
	b.Subscribe(healthy)
	b.Notify(StatusEvent{Node: "db1", Status: StatusDown})

	assert.Len(t, failing.received, 1)
	assert.Len(t, healthy.received, 1, "a failing observer must not block delivery to the next one")
}
