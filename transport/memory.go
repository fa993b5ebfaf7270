package transport

import (
	"encoding/json"
	"sort"
	"sync"
)

// Memory is an in-process transport. Lifecycle changes and messages are
// dispatched synchronously on the caller's goroutine, which makes it the
// transport of choice for embedding and tests.
type Memory struct {
	router *router

	mu         sync.Mutex
	state      ReadyState
	subscribed map[string]struct{}
	calls      []string
	released   []string
}

// NewMemory returns a memory transport in the Connecting state.
func NewMemory() *Memory {
	m := &Memory{state: Connecting}
	m.router = newRouter(m.release)
	return m
}

// ReadyState implements Transport.
func (m *Memory) ReadyState() ReadyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AddListener implements Transport.
func (m *Memory) AddListener(name string, l Listener) func() {
	return m.router.add(name, l)
}

// Subscribe implements Transport. Every call is recorded, duplicates on the
// same connection are collapsed.
func (m *Memory) Subscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, topic)
	if m.state != Open {
		return ErrNotOpen
	}
	m.subscribed[topic] = struct{}{}
	return nil
}

func (m *Memory) release(topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribed[topic]; ok {
		delete(m.subscribed, topic)
		m.released = append(m.released, topic)
	}
}

// Open marks the connection open and emits the open event.
func (m *Memory) Open() {
	m.mu.Lock()
	m.state = Open
	m.subscribed = make(map[string]struct{})
	m.mu.Unlock()
	m.router.dispatch(Event{Name: EventOpen})
}

// Close marks the connection closed and emits the close event.
func (m *Memory) Close() {
	m.mu.Lock()
	m.state = Closed
	m.subscribed = nil
	m.mu.Unlock()
	m.router.dispatch(Event{Name: EventClose})
}

// Publish encodes payload as JSON and delivers it to the topic's listeners.
// It reports whether the topic was subscribed on the current connection.
func (m *Memory) Publish(topic string, payload any) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	return m.PublishRaw(topic, raw), nil
}

// PublishRaw delivers raw bytes to the topic's listeners when subscribed.
func (m *Memory) PublishRaw(topic string, data []byte) bool {
	if IsReserved(topic) {
		return false
	}
	m.mu.Lock()
	_, ok := m.subscribed[topic]
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.router.dispatch(Event{Name: topic, Data: append([]byte(nil), data...)})
	return true
}

// SubscribeCalls returns every Subscribe call in order, including rejected ones.
func (m *Memory) SubscribeCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Subscribed returns the topics subscribed on the current connection.
func (m *Memory) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subscribed))
	for topic := range m.subscribed {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// Released returns the topics that lost their last listener while subscribed.
func (m *Memory) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}

// Topics returns the topics that currently have listeners.
func (m *Memory) Topics() []string {
	return m.router.topics()
}
