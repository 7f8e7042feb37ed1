package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishInvokesSubscribers(t *testing.T) {
	bus := NewBus()
	var got []Event
	bus.Subscribe(TopicServiceStarted, func(e Event) { got = append(got, e) })

	bus.Publish(Event{Topic: TopicServiceStarted, ServiceName: "app"})

	require.Len(t, got, 1)
	assert.Equal(t, "app", got[0].ServiceName)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestPublishOnlyInvokesMatchingTopic(t *testing.T) {
	bus := NewBus()
	var startedCalls, stoppedCalls int
	bus.Subscribe(TopicServiceStarted, func(Event) { startedCalls++ })
	bus.Subscribe(TopicServiceStopped, func(Event) { stoppedCalls++ })

	bus.Publish(Event{Topic: TopicServiceStarted})

	assert.Equal(t, 1, startedCalls)
	assert.Equal(t, 0, stoppedCalls)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	calls := 0
	sub := bus.Subscribe(TopicServiceStarting, func(Event) { calls++ })

	bus.Publish(Event{Topic: TopicServiceStarting})
	bus.Unsubscribe(sub)
	bus.Publish(Event{Topic: TopicServiceStarting})

	assert.Equal(t, 1, calls)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicServiceFailed, func(Event) {})
	bus.Unsubscribe(sub)
	assert.NotPanics(t, func() { bus.Unsubscribe(sub) })
}

func TestUnsubscribeAllClearsEveryTopic(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TopicServiceStarted, func(Event) {})
	bus.Subscribe(TopicServiceStopped, func(Event) {})

	bus.UnsubscribeAll()

	assert.Equal(t, 0, bus.SubscriberCount(TopicServiceStarted))
	assert.Equal(t, 0, bus.SubscriberCount(TopicServiceStopped))
}

func TestSubscriberCount(t *testing.T) {
	bus := NewBus()
	assert.Equal(t, 0, bus.SubscriberCount(TopicServiceStarted))

	bus.Subscribe(TopicServiceStarted, func(Event) {})
	bus.Subscribe(TopicServiceStarted, func(Event) {})

	assert.Equal(t, 2, bus.SubscriberCount(TopicServiceStarted))
}

func TestPublishOrderingStartedBeforeStarting(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(TopicServiceStarting, func(e Event) { order = append(order, "starting:"+e.ServiceName) })
	bus.Subscribe(TopicServiceStarted, func(e Event) { order = append(order, "started:"+e.ServiceName) })

	bus.Publish(Event{Topic: TopicServiceStarted, ServiceName: "db"})
	bus.Publish(Event{Topic: TopicServiceStarting, ServiceName: "app"})

	assert.Equal(t, []string{"started:db", "starting:app"}, order)
}
