// Package broker wraps the MQTT connection to the shared public broker.
// One Channel owns at most one connection subscribed to exactly one
// room topic, and surfaces everything the broker does as typed events
// on a single channel so the reconciliation loop can consume broker
// callbacks and local commands from one place.
package broker

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dittotube/watchparty/internal/observability"
)

const (
	qosAtLeastOnce byte = 1

	eventBufferSize     = 64
	defaultWaitTimeout  = 10 * time.Second
	unsubscribeTimeout  = 2 * time.Second
	disconnectQuiesceMs = 250
)

// ErrNotJoined is returned when a publish is attempted with no active
// broker connection. Mutations in that state are dropped, not queued.
var ErrNotJoined = fmt.Errorf("not joined to any room topic")

// State describes the observable connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

// String returns the human-readable status surfaced to users.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "connection error"
	default:
		return "disconnected"
	}
}

// EventKind discriminates the events a Channel emits.
type EventKind int

const (
	EventConnected EventKind = iota
	EventMessage
	EventReconnecting
	EventError
	EventDisconnected
)

// Event is a single broker occurrence delivered to the reconciliation
// loop. Payload is only set for EventMessage; Err only for EventError
// and EventReconnecting.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	Err     error
}

// Channel is the sync channel for one room topic at a time.
type Channel struct {
	url            string
	connectTimeout time.Duration
	publishTimeout time.Duration
	newClient      func(*mqtt.ClientOptions) mqtt.Client
	logger         zerolog.Logger
	events         chan Event

	mu     sync.Mutex
	client mqtt.Client
	topic  string
	state  State
}

// New creates a channel targeting the given WebSocket broker endpoint.
func New(url string, logger zerolog.Logger) *Channel {
	return &Channel{
		url:            url,
		connectTimeout: defaultWaitTimeout,
		publishTimeout: defaultWaitTimeout,
		newClient:      mqtt.NewClient,
		logger:         logger.With().Str("component", "sync_channel").Logger(),
		events:         make(chan Event, eventBufferSize),
		state:          StateDisconnected,
	}
}

// Events exposes the single stream of broker events, in broker
// delivery order. The channel is never closed; consumers stop reading
// when their own context ends.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// State reports the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Join connects to the broker and subscribes to topic at QoS 1.
// Calling Join for the topic already joined is a no-op. Joining a
// different topic leaves the previous one first, so stale-room
// messages can never land in the new room's document.
func (c *Channel) Join(topic string) error {
	c.mu.Lock()
	if c.client != nil && c.topic == topic {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.Leave()

	c.mu.Lock()
	opts := mqtt.NewClientOptions().
		AddBroker(c.url).
		SetClientID("watchparty-" + uuid.NewString()).
		SetAutoReconnect(true).
		SetCleanSession(true)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.onConnect(client, topic)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		c.transition(client, StateReconnecting, Event{Kind: EventReconnecting, Topic: topic, Err: err})
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, _ *mqtt.ClientOptions) {
		c.transition(client, StateReconnecting, Event{Kind: EventReconnecting, Topic: topic})
	})

	client := c.newClient(opts)
	c.client = client
	c.topic = topic
	c.state = StateConnecting
	c.mu.Unlock()

	token := client.Connect()
	if ok := token.WaitTimeout(c.connectTimeout); !ok || token.Error() != nil {
		err := token.Error()
		if err == nil {
			err = fmt.Errorf("broker connect timed out after %s", c.connectTimeout)
		}

		c.teardown(client, topic, err)
		return fmt.Errorf("failed to join %s: %w", topic, err)
	}

	return nil
}

// teardown disconnects the client and releases ownership on a
// connection error. An errored connection is never kept around: it
// must not satisfy a later Join of the same topic, and it must not
// keep emitting events with no owner.
func (c *Channel) teardown(client mqtt.Client, topic string, err error) {
	c.mu.Lock()
	if c.client != client {
		c.mu.Unlock()
		return
	}
	c.client = nil
	c.topic = ""
	c.state = StateError
	c.mu.Unlock()

	client.Disconnect(disconnectQuiesceMs)

	c.emit(Event{Kind: EventError, Topic: topic, Err: err})
	c.logger.Warn().Err(err).Str("topic", topic).Msg("tore down errored broker connection")
}

// Publish sends the full serialized document as the retained payload
// for topic, at-least-once. The broker stores it and replays it to
// every future subscriber, which is how late joiners bootstrap.
func (c *Channel) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil {
		return ErrNotJoined
	}

	token := client.Publish(topic, qosAtLeastOnce, true, payload)
	if ok := token.WaitTimeout(c.publishTimeout); !ok {
		observability.SyncPublishes().WithLabelValues("timeout").Inc()
		return fmt.Errorf("publish to %s timed out after %s", topic, c.publishTimeout)
	}
	if err := token.Error(); err != nil {
		observability.SyncPublishes().WithLabelValues("error").Inc()
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}

	observability.SyncPublishes().WithLabelValues("ok").Inc()
	return nil
}

// PublishEmpty publishes an empty retained payload, the sanctioned way
// to destroy a room: the broker clears what future subscribers receive
// and current subscribers observe the tombstone.
func (c *Channel) PublishEmpty(topic string) error {
	return c.Publish(topic, []byte{})
}

// Leave unsubscribes and disconnects. It is safe to call in any state
// and safe to call repeatedly.
func (c *Channel) Leave() {
	c.mu.Lock()
	client := c.client
	topic := c.topic
	c.client = nil
	c.topic = ""
	wasActive := client != nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if !wasActive {
		return
	}

	if topic != "" && client.IsConnected() {
		token := client.Unsubscribe(topic)
		if ok := token.WaitTimeout(unsubscribeTimeout); !ok || token.Error() != nil {
			c.logger.Debug().Str("topic", topic).Msg("unsubscribe did not complete before disconnect")
		}
	}
	client.Disconnect(disconnectQuiesceMs)

	c.emit(Event{Kind: EventDisconnected, Topic: topic})
	c.logger.Info().Str("topic", topic).Msg("left room topic")
}

func (c *Channel) onConnect(client mqtt.Client, topic string) {
	token := client.Subscribe(topic, qosAtLeastOnce, func(_ mqtt.Client, msg mqtt.Message) {
		payload := append([]byte(nil), msg.Payload()...)
		c.emit(Event{Kind: EventMessage, Topic: msg.Topic(), Payload: payload})
	})

	if ok := token.WaitTimeout(c.connectTimeout); !ok || token.Error() != nil {
		err := token.Error()
		if err == nil {
			err = fmt.Errorf("subscribe to %s timed out", topic)
		}
		c.teardown(client, topic, err)
		return
	}

	c.transition(client, StateConnected, Event{Kind: EventConnected, Topic: topic})
	c.logger.Info().Str("topic", topic).Msg("subscribed to room topic")
}

// transition updates state and emits only when the callback belongs to
// the current client; callbacks from a connection already left are
// ignored.
func (c *Channel) transition(client mqtt.Client, state State, ev Event) {
	c.mu.Lock()
	if c.client != client {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()

	c.emit(ev)
}

// emit never blocks inside a broker callback. Dropping an event is
// tolerable: the protocol self-heals on the next retained publish.
func (c *Channel) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		observability.SyncEventsDropped().Inc()
		c.logger.Warn().Str("topic", ev.Topic).Msg("dropping broker event for slow consumer")
	}
}
