package bus

import (
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// BrokerConfig configures the optional external-broker mirror. Topics lists
// the local topics that should also be published to the broker; Subscribe
// lists broker topics whose inbound messages should be republished onto the
// in-process bus (for example, an externally-produced "track/pos" feed).
type BrokerConfig struct {
	Broker      string
	ClientID    string
	Topics      []string
	Subscribe   []string
	DialTimeout time.Duration
}

// AttachBroker connects to an external MQTT broker and wires it to mirror
// local publishes out and external messages in. The caller decides whether
// a connect failure disables the broker mirror or the whole process; this
// never panics.
func (b *Bus) AttachBroker(cfg BrokerConfig) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("bus: connected to broker %s", cfg.Broker)
		for _, topic := range cfg.Subscribe {
			topic := topic
			token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
				b.mu.RLock()
				subs := append([]*subscription(nil), b.subs[msg.Topic()]...)
				b.mu.RUnlock()

				relayed := Message{Topic: msg.Topic(), Payload: msg.Payload(), Timestamp: time.Now()}
				for _, sub := range subs {
					select {
					case sub.queue <- relayed:
					default:
						log.Printf("bus: subscriber queue full relaying broker topic %q, dropping message", msg.Topic())
					}
				}
			})
			if token.WaitTimeout(5*time.Second) && token.Error() != nil {
				log.Printf("bus: failed to subscribe broker topic %q: %v", topic, token.Error())
			}
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("bus: broker connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return mqttTimeoutError(cfg.Broker)
	}
	if token.Error() != nil {
		return token.Error()
	}

	b.mu.Lock()
	b.broker = client
	for _, topic := range cfg.Topics {
		b.brokerTopics[topic] = true
	}
	b.mu.Unlock()
	return nil
}

// DetachBroker disconnects the broker mirror, if attached. Idempotent.
func (b *Bus) DetachBroker() {
	b.mu.Lock()
	broker := b.broker
	b.broker = nil
	b.mu.Unlock()

	if broker != nil && broker.IsConnected() {
		broker.Disconnect(250)
	}
}

type brokerDialError struct{ broker string }

func (e brokerDialError) Error() string {
	return "bus: timed out connecting to broker " + e.broker
}

func mqttTimeoutError(broker string) error {
	return brokerDialError{broker: broker}
}
