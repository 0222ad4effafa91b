package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"nrelay/internal/relay"
)

// eventTopic carries every ingested event between relay instances.
const eventTopic = "nrelay/events"

// MQTTBus is a Bus backed by an MQTT broker, for running several relay
// instances against the same database. Events are published as their
// canonical JSON encoding; every instance, including the publisher,
// receives each event back through its subscription.
type MQTTBus struct {
	client mqtt.Client
	logger relay.Logger

	mu       sync.RWMutex
	handlers []func(e *relay.Event)
}

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// NewMQTTBus connects to the broker and subscribes to the event topic.
// The subscription is re-established automatically on reconnect.
func NewMQTTBus(opts MQTTOptions, logger relay.Logger) (*MQTTBus, error) {
	if logger == nil {
		logger = relay.NewNopLogger()
	}

	b := &MQTTBus{logger: logger}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetUsername(opts.Username)
	clientOpts.SetPassword(opts.Password)
	clientOpts.SetAutoReconnect(true)
	clientOpts.OnConnect = b.onConnect
	clientOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	}

	b.client = mqtt.NewClient(clientOpts)

	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connecting to mqtt broker %s: timeout", opts.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", opts.BrokerURL, err)
	}

	return b, nil
}

func (b *MQTTBus) onConnect(client mqtt.Client) {
	b.logger.Info("connected to mqtt broker")

	if token := client.Subscribe(eventTopic, 0, b.messageHandler); token.Wait() && token.Error() != nil {
		b.logger.Error("mqtt subscribe failed", "topic", eventTopic, "error", token.Error())
	}
}

func (b *MQTTBus) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var e relay.Event
	if err := json.Unmarshal(msg.Payload(), &e); err != nil {
		b.logger.Warn("dropping malformed bus event", "error", err)
		return
	}

	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(&e)
	}
}

func (b *MQTTBus) Publish(e *relay.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", e.ID, err)
	}

	token := b.client.Publish(eventTopic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing event %s: %w", e.ID, token.Error())
	}
	return nil
}

func (b *MQTTBus) Subscribe(fn func(e *relay.Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
	return nil
}

func (b *MQTTBus) Close() error {
	b.client.Disconnect(250)
	return nil
}

var _ relay.Bus = (*MQTTBus)(nil)
