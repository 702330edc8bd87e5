package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusKeyedDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got []Event
	unsub := bus.Subscribe(Key("chat1", "msg1"), func(e Event) {
		got = append(got, e)
	})
	defer unsub()

	bus.Publish(Key("chat1", "msg1"), Event{Type: ChatMessageDelta, Data: DeltaData{Delta: "a"}})
	bus.Publish(Key("chat2", "msg2"), Event{Type: ChatMessageDelta, Data: DeltaData{Delta: "b"}})

	require.Len(t, got, 1)
	assert.Equal(t, ChatMessageDelta, got[0].Type)
}

func TestBusPublishOrderPreserved(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var order []string
	bus.Subscribe(Key("c", "m"), func(e Event) {
		order = append(order, e.Data.(DeltaData).Delta)
	})

	for _, d := range []string{"1", "2", "3", "4", "5"} {
		bus.Publish(Key("c", "m"), Event{Type: ChatMessageDelta, Data: DeltaData{Delta: d}})
	}

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, order)
}

func TestBusGlobalSubscriberSeesAllKeys(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int
	unsub := bus.SubscribeAll(func(Event) { count++ })
	defer unsub()

	bus.Publish(Key("a", "1"), Event{Type: ChatMessage})
	bus.Publish(Key("b", "2"), Event{Type: ChatCompletion})

	assert.Equal(t, 2, count)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int
	unsub := bus.Subscribe("k", func(Event) { count++ })

	bus.Publish("k", Event{Type: ChatMessage})
	unsub()
	bus.Publish("k", Event{Type: ChatMessage})

	assert.Equal(t, 1, count)
}

func TestBusMirrorsEventsToPubSub(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	msgs, err := bus.PubSub().Subscribe(context.Background(), Key("c", "m"))
	require.NoError(t, err)

	bus.Publish(Key("c", "m"), Event{Type: ChatMessageDelta, Data: DeltaData{Delta: "x"}})

	select {
	case msg := <-msgs:
		var got Event
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, ChatMessageDelta, got.Type)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("no mirrored message on pubsub")
	}
}

func TestBusClosedDropsEvents(t *testing.T) {
	bus := NewBus()

	var count int
	bus.Subscribe("k", func(Event) { count++ })

	require.NoError(t, bus.Close())
	bus.Publish("k", Event{Type: ChatMessage})

	assert.Zero(t, count)
}
