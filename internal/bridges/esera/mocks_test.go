package esera

import (
	"context"
	"sync"

	"github.com/ckauhaus/esera-mqtt/internal/infrastructure/mqtt"
	"github.com/ckauhaus/esera-mqtt/internal/protocol"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	publishErr    error
	handlers      map[string]mqtt.MessageHandler
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = up
}

func (m *MockMQTTClient) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions
}

// Retained returns the last payload published to topic.
func (m *MockMQTTClient) Retained(topic string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].Topic == topic {
			return string(m.published[i].Payload), true
		}
	}
	return "", false
}

// SimulateMessage delivers a message to the handler subscribed with filter.
func (m *MockMQTTClient) SimulateMessage(filter, topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[filter]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return handler(topic, payload)
}

// MockConnector implements Connector for testing.
type MockConnector struct {
	mu        sync.Mutex
	sent      []protocol.Command
	sendErr   error
	connected bool
	onRecord  func(protocol.Record)
}

func NewMockConnector() *MockConnector {
	return &MockConnector{connected: true}
}

func (m *MockConnector) Send(_ context.Context, cmd protocol.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, cmd)
	return nil
}

func (m *MockConnector) SetOnRecord(callback func(protocol.Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRecord = callback
}

func (m *MockConnector) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockConnector) Stats() ControllerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ControllerStats{
		Connected: m.connected,
		State:     "connected",
		Breaker:   "closed",
		RecordsRx: 42,
	}
}

func (m *MockConnector) SetConnected(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = up
}

func (m *MockConnector) GetSent() []protocol.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Command, len(m.sent))
	copy(out, m.sent)
	return out
}

// SimulateLine parses line and feeds it to the record callback.
func (m *MockConnector) SimulateLine(line string) error {
	rec, err := protocol.Parse(line)
	if err != nil {
		return err
	}
	m.mu.Lock()
	callback := m.onRecord
	m.mu.Unlock()
	if callback != nil {
		callback(rec)
	}
	return nil
}

// mockMetrics counts calls of the Metrics interface.
type mockMetrics struct {
	mu     sync.Mutex
	counts map[string]int
	gauges map[string]float64
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{counts: make(map[string]int), gauges: make(map[string]float64)}
}

func (m *mockMetrics) inc(name string) {
	m.mu.Lock()
	m.counts[name]++
	m.mu.Unlock()
}

func (m *mockMetrics) get(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

func (m *mockMetrics) gauge(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[name]
}

func (m *mockMetrics) IncRecords(t string)          { m.inc("records_" + t) }
func (m *mockMetrics) IncParseErrors()              { m.inc("parse_errors") }
func (m *mockMetrics) IncControllerErrors()         { m.inc("controller_errors") }
func (m *mockMetrics) IncReadingsPublished()        { m.inc("published") }
func (m *mockMetrics) IncPublishFailures()          { m.inc("publish_failures") }
func (m *mockMetrics) IncCommandsSent()             { m.inc("commands_sent") }
func (m *mockMetrics) IncCommandsRejected(r string) { m.inc("rejected_" + r) }
func (m *mockMetrics) IncQueueDrops(q string)       { m.inc("drops_" + q) }
func (m *mockMetrics) IncReconnects(l string)       { m.inc("reconnects_" + l) }

func (m *mockMetrics) SetConnected(l string, up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if up {
		m.gauges["connected_"+l] = 1
	} else {
		m.gauges["connected_"+l] = 0
	}
}

func (m *mockMetrics) SetDevices(n int) {
	m.mu.Lock()
	m.gauges["devices"] = float64(n)
	m.mu.Unlock()
}

// mockLogger records log messages by level.
type mockLogger struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newMockLogger() *mockLogger {
	return &mockLogger{messages: make(map[string][]string)}
}

func (l *mockLogger) log(level, msg string) {
	l.mu.Lock()
	l.messages[level] = append(l.messages[level], msg)
	l.mu.Unlock()
}

func (l *mockLogger) Debug(msg string, _ ...any) { l.log("debug", msg) }
func (l *mockLogger) Info(msg string, _ ...any)  { l.log("info", msg) }
func (l *mockLogger) Warn(msg string, _ ...any)  { l.log("warn", msg) }
func (l *mockLogger) Error(msg string, _ ...any) { l.log("error", msg) }

func (l *mockLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages[level] {
		if m == msg {
			return true
		}
	}
	return false
}

func (m *MockConnector) hasRecordHandler() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onRecord != nil
}
