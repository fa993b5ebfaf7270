package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttName = "mqtt"

// MQTTSettings configure the broker connection of an MQTT transport.
type MQTTSettings struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
}

// MQTT carries topics over an MQTT broker. Each canonical topic maps to
// TopicPrefix+topic and the message body is the payload itself. Paho invokes
// callbacks on its own goroutines; they are funnelled through one dispatch
// goroutine so listeners observe a single ordered event stream.
type MQTT struct {
	mqttSettings MQTTSettings
	settings     settings
	client       mqtt.Client
	router       *router

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	state  atomic.Int32
	closed atomic.Bool

	mu         sync.Mutex
	subscribed map[string]struct{}
}

// NewMQTT creates the transport and starts connecting in the background.
// Paho retries the initial connection and reconnects after failures.
func NewMQTT(cfg MQTTSettings, opts ...Option) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address is required")
	}
	m := &MQTT{
		mqttSettings: cfg,
		settings:     applyOptions(opts),
		subscribed:   make(map[string]struct{}),
		done:         make(chan struct{}),
	}
	m.events = make(chan Event, m.settings.queueSize)
	m.router = newRouter(m.release)
	m.state.Store(int32(Connecting))

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		clientOpts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		clientOpts.SetUsername(cfg.Username)
		clientOpts.SetPassword(cfg.Password)
	}
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	clientOpts.SetCleanSession(true)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectRetryInterval(m.settings.reconnectInterval)
	clientOpts.SetMaxReconnectInterval(m.settings.reconnectInterval * 8)
	clientOpts.SetOnConnectHandler(m.handleConnect)
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.settings.logger.Warn().Err(err).Msg("mqtt: connection lost")
		m.handleLost()
	})
	clientOpts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		m.settings.logger.Info().Msg("mqtt: reconnecting")
		m.settings.telemetry.IncReconnect(mqttName)
	})

	m.wg.Add(1)
	go m.loop()

	m.client = mqtt.NewClient(clientOpts)
	m.client.Connect()
	return m, nil
}

func (m *MQTT) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case ev := <-m.events:
			if !IsReserved(ev.Name) {
				m.settings.telemetry.IncMessage(mqttName)
			}
			m.router.dispatch(ev)
		}
	}
}

func (m *MQTT) enqueue(ev Event) {
	select {
	case <-m.done:
	case m.events <- ev:
	}
}

func (m *MQTT) handleConnect(mqtt.Client) {
	m.mu.Lock()
	m.subscribed = make(map[string]struct{})
	m.mu.Unlock()
	m.state.Store(int32(Open))
	m.settings.logger.Info().Str("broker", m.mqttSettings.Broker).Msg("mqtt: connected")
	m.enqueue(Event{Name: EventOpen})
}

func (m *MQTT) handleLost() {
	m.mu.Lock()
	m.subscribed = make(map[string]struct{})
	m.mu.Unlock()
	m.state.Store(int32(Closed))
	m.enqueue(Event{Name: EventClose})
}

// ReadyState implements Transport.
func (m *MQTT) ReadyState() ReadyState {
	return ReadyState(m.state.Load())
}

// AddListener implements Transport.
func (m *MQTT) AddListener(name string, l Listener) func() {
	return m.router.add(name, l)
}

// Subscribe implements Transport.
func (m *MQTT) Subscribe(topic string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if m.ReadyState() != Open {
		return ErrNotOpen
	}
	m.mu.Lock()
	if _, ok := m.subscribed[topic]; ok {
		m.mu.Unlock()
		return nil
	}
	m.subscribed[topic] = struct{}{}
	m.mu.Unlock()

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		m.enqueue(Event{Name: topic, Data: append([]byte(nil), msg.Payload()...)})
	}
	token := m.client.Subscribe(m.mqttSettings.TopicPrefix+topic, m.mqttSettings.QoS, handler)
	m.settings.telemetry.IncSubscribe(mqttName)
	go m.awaitToken(token, "subscribe", topic)
	return nil
}

func (m *MQTT) release(topic string) {
	m.mu.Lock()
	_, ok := m.subscribed[topic]
	delete(m.subscribed, topic)
	m.mu.Unlock()
	if !ok || m.ReadyState() != Open {
		return
	}
	token := m.client.Unsubscribe(m.mqttSettings.TopicPrefix + topic)
	go m.awaitToken(token, "unsubscribe", topic)
}

func (m *MQTT) awaitToken(token mqtt.Token, op, topic string) {
	if !token.WaitTimeout(30 * time.Second) {
		m.settings.logger.Warn().Str("topic", topic).Msgf("mqtt: %s timed out", op)
		return
	}
	if err := token.Error(); err != nil {
		m.settings.logger.Warn().Err(err).Str("topic", topic).Msgf("mqtt: %s failed", op)
	}
}

// Close disconnects from the broker and stops dispatching.
func (m *MQTT) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.state.Store(int32(Closing))
	if m.client != nil {
		m.client.Disconnect(250)
	}
	close(m.done)
	m.wg.Wait()
	m.state.Store(int32(Closed))
	return nil
}

// Topics returns the topics that currently have listeners.
func (m *MQTT) Topics() []string {
	return m.router.topics()
}
