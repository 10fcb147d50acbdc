package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	got := make(chan Message, 1)
	b.Subscribe("a/topic", func(m Message) { got <- m })

	err := b.Publish("a/topic", map[string]int{"value": 7})
	require.NoError(t, err)

	select {
	case m := <-got:
		assert.Equal(t, "a/topic", m.Topic)
		var payload map[string]int
		require.NoError(t, json.Unmarshal(m.Payload, &payload))
		assert.Equal(t, 7, payload["value"])
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
}

func TestPublishPreservesPerSubscriberOrder(t *testing.T) {
	b := New()
	got := make(chan int, 100)
	b.Subscribe("seq", func(m Message) {
		var v int
		if err := json.Unmarshal(m.Payload, &v); err == nil {
			got <- v
		}
	})

	for i := 0; i < 50; i++ {
		require.NoError(t, b.Publish("seq", i))
	}

	for i := 0; i < 50; i++ {
		select {
		case v := <-got:
			assert.Equal(t, i, v)
		case <-time.After(time.Second):
			t.Fatalf("missing message %d", i)
		}
	}
}

func TestPublishToTopicWithNoSubscribersSucceeds(t *testing.T) {
	b := New()
	assert.NoError(t, b.Publish("nobody/listens", 1))
}

func TestPublishUnmarshalablePayloadFails(t *testing.T) {
	b := New()
	assert.Error(t, b.Publish("bad", func() {}))
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	b := New()
	got := make(chan Message, 10)
	cancel := b.Subscribe("x", func(m Message) { got <- m })

	require.NoError(t, b.Publish("x", 1))
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("no first delivery")
	}

	cancel()
	cancel() // idempotent

	require.NoError(t, b.Publish("x", 2))
	select {
	case m := <-got:
		t.Fatalf("unexpected delivery after cancel: %s", m.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTwoSubscribersEachReceive(t *testing.T) {
	b := New()
	a := make(chan Message, 1)
	c := make(chan Message, 1)
	b.Subscribe("dup", func(m Message) { a <- m })
	b.Subscribe("dup", func(m Message) { c <- m })

	require.NoError(t, b.Publish("dup", "hello"))

	for _, ch := range []chan Message{a, c} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the message")
		}
	}
}
