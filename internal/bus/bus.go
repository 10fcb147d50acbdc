// Package bus implements the topic-based publish/subscribe channel that
// every listener and the fusion controller talk through. The default
// transport is in-process; an external MQTT broker is an optional mirror,
// not a requirement.
package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is what a subscriber callback receives: the topic it matched, the
// still-encoded JSON payload, and the wall-clock time Publish was called.
type Message struct {
	Topic     string
	Payload   json.RawMessage
	Timestamp time.Time
}

// Handler processes one Message. The bus guarantees in-order, serialized
// delivery of messages to a single Handler: it is never called concurrently
// with itself.
type Handler func(Message)

const subscriberQueueDepth = 64

// subscription owns one handler's delivery goroutine and queue.
type subscription struct {
	topic   string
	handler Handler
	queue   chan Message
	done    chan struct{}
}

// Bus is an in-process, topic-based publish/subscribe broker. The zero value
// is not usable; construct with New. A Bus is safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]*subscription

	broker       mqtt.Client
	brokerTopics map[string]bool
}

// New creates an empty in-process bus.
func New() *Bus {
	return &Bus{
		subs:         make(map[string][]*subscription),
		brokerTopics: make(map[string]bool),
	}
}

// Subscribe registers handler to be called, in publish order, for every
// message published to topic. The returned cancel function stops delivery
// and is idempotent. Subscribing the same topic twice yields two independent,
// independently-serialized deliveries: ordering is guaranteed per-subscriber,
// not globally per-topic.
func (b *Bus) Subscribe(topic string, handler Handler) (cancel func()) {
	sub := &subscription{
		topic:   topic,
		handler: handler,
		queue:   make(chan Message, subscriberQueueDepth),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case msg := <-sub.queue:
				sub.handler(msg)
			case <-sub.done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(sub.done)
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			for i, s := range list {
				if s == sub {
					b.subs[topic] = append(list[:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish JSON-encodes v and fans it out to every subscriber of topic.
// Publish never blocks on a slow subscriber: if a subscriber's queue is
// full, that one delivery is dropped and logged. If a broker mirror is
// attached and this
// topic is allow-listed for mirroring, the payload is also published there.
func (b *Bus) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: marshal payload for topic %q: %w", topic, err)
	}

	msg := Message{Topic: topic, Payload: payload, Timestamp: time.Now()}

	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[topic]...)
	broker := b.broker
	mirror := b.brokerTopics[topic]
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- msg:
		default:
			log.Printf("bus: subscriber queue full on topic %q, dropping message", topic)
		}
	}

	if broker != nil && mirror && broker.IsConnected() {
		token := broker.Publish(topic, 0, false, payload)
		if token.WaitTimeout(time.Second) && token.Error() != nil {
			log.Printf("bus: mirror publish to broker on topic %q failed: %v", topic, token.Error())
		}
	}

	return nil
}
