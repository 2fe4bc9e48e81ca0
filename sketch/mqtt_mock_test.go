package sketch

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockToken is a completed mqtt.Token
type mockToken struct {
	err error
}

func (t *mockToken) Wait() bool                     { return true }
func (t *mockToken) WaitTimeout(time.Duration) bool { return true }
func (t *mockToken) Error() error                   { return t.err }
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// pendingToken never completes, like a publish the broker never acknowledges
type pendingToken struct{}

func (t *pendingToken) Wait() bool                     { return false }
func (t *pendingToken) WaitTimeout(time.Duration) bool { return false }
func (t *pendingToken) Error() error                   { return nil }
func (t *pendingToken) Done() <-chan struct{}          { return make(chan struct{}) }

// publishedMessage records one Publish call
type publishedMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// mockClient implements mqtt.Client in memory. Subscriptions are exact topic
// matches; SimulateMessage delivers to them synchronously.
type mockClient struct {
	mu           sync.RWMutex
	connected    bool
	publishError error
	stalled      bool
	handlers     map[string]mqtt.MessageHandler
	qos          map[string]byte
	published    []publishedMessage
}

func newMockClient() *mockClient {
	return &mockClient{
		handlers: make(map[string]mqtt.MessageHandler),
		qos:      make(map[string]byte),
	}
}

func (c *mockClient) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

func (c *mockClient) SetPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishError = err
}

// SetStalled makes every publish hang without an acknowledgement.
func (c *mockClient) SetStalled(stalled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stalled = stalled
}

func (c *mockClient) Published() []publishedMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]publishedMessage, len(c.published))
	copy(out, c.published)
	return out
}

func (c *mockClient) PublishedTo(topic string) []publishedMessage {
	var out []publishedMessage
	for _, m := range c.Published() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (c *mockClient) SubscribedQoS(topic string) (byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.qos[topic]
	return q, ok
}

func (c *mockClient) SimulateMessage(topic string, payload []byte) {
	c.deliver(&mockMessage{topic: topic, payload: payload})
}

// SimulateRetainedMessage delivers a message as the broker replays it on subscribe.
func (c *mockClient) SimulateRetainedMessage(topic string, payload []byte) {
	c.deliver(&mockMessage{topic: topic, payload: payload, retained: true})
}

func (c *mockClient) deliver(msg *mockMessage) {
	c.mu.RLock()
	handler, ok := c.handlers[msg.topic]
	c.mu.RUnlock()
	if ok && handler != nil {
		handler(c, msg)
	}
}

func (c *mockClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *mockClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *mockClient) Connect() mqtt.Token {
	c.SetConnected(true)
	return &mockToken{}
}

func (c *mockClient) Disconnect(uint) { c.SetConnected(false) }

func (c *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return &mockToken{err: mqtt.ErrNotConnected}
	}
	if c.publishError != nil {
		return &mockToken{err: c.publishError}
	}
	if c.stalled {
		return &pendingToken{}
	}

	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	}
	c.published = append(c.published, publishedMessage{Topic: topic, Payload: data, QoS: qos, Retain: retained})
	return &mockToken{}
}

func (c *mockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return &mockToken{err: mqtt.ErrNotConnected}
	}
	c.handlers[topic] = callback
	c.qos[topic] = qos
	return &mockToken{}
}

func (c *mockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		if tok := c.Subscribe(topic, qos, callback); tok.Error() != nil {
			return tok
		}
	}
	return &mockToken{}
}

func (c *mockClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.handlers, topic)
		delete(c.qos, topic)
	}
	return &mockToken{}
}

func (c *mockClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
}

func (c *mockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// mockMessage implements mqtt.Message
type mockMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return m.retained }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}
