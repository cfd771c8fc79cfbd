// Package messaging bridges hub nodes over a broker so pushes reach clients
// connected elsewhere. One backend per deployment: MQTT for small installs,
// Kafka where ordering and replay matter.
package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"marketlink/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
)

// broker is the transport under the push bridge. Both backends echo a node's
// own publishes back to it; the envelope's node tag is how subscribers tell
// their own traffic from a peer's.
type broker interface {
	connect() error
	connected() bool
	publish(topic string, payload []byte) error
	subscribe(topic string, handler func(payload []byte)) error
	close()
}

// Client ties a hub node to the configured broker backend.
type Client struct {
	node string
	b    broker
}

// NewClient creates a broker client for the node. The backend comes from
// config; an unknown backend surfaces as an error on Connect.
func NewClient(cfg *config.MessagingConfig, node string) *Client {
	c := &Client{node: node}
	switch cfg.Backend {
	case "mqtt":
		c.b = &mqttBroker{cfg: &cfg.MQTT}
	case "kafka":
		c.b = newKafkaBroker(&cfg.Kafka, node)
	}
	return c
}

// Connect establishes the broker connection.
func (c *Client) Connect() error {
	if c.b == nil {
		return fmt.Errorf("messaging: no broker backend configured")
	}
	return c.b.connect()
}

// IsConnected reports whether the broker link is usable.
func (c *Client) IsConnected() bool {
	return c.b != nil && c.b.connected()
}

// Publish sends raw payload bytes to the given topic.
func (c *Client) Publish(topic string, payload []byte) error {
	if c.b == nil {
		return fmt.Errorf("messaging: no broker backend configured")
	}
	return c.b.publish(topic, payload)
}

// SubscribePush consumes push envelopes from the topic, dropping the node's
// own echoes and anything that does not decode.
func (c *Client) SubscribePush(topic string, handler func(env *PushEnvelope)) error {
	if c.b == nil {
		return fmt.Errorf("messaging: no broker backend configured")
	}
	return c.b.subscribe(topic, func(payload []byte) {
		env, err := DecodePush(payload)
		if err != nil {
			log.Printf("messaging: push on %s: %v", topic, err)
			return
		}
		if env.Node == c.node {
			return
		}
		handler(env)
	})
}

// Close tears down the broker connection.
func (c *Client) Close() {
	if c.b != nil {
		c.b.close()
	}
}

type mqttBroker struct {
	cfg *config.MQTTConfig

	mu   sync.Mutex
	conn mqtt.Client
}

func (m *mqttBroker) connect() error {
	addr := fmt.Sprintf("tcp://%s:%d", m.cfg.Broker, m.cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(addr).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	conn := mqtt.NewClient(opts)
	token := conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", addr, err)
	}
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	return nil
}

func (m *mqttBroker) connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil && m.conn.IsConnected()
}

func (m *mqttBroker) publish(topic string, payload []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	// QoS 1: a push lost on the wire is a push a peer node never fans out.
	token := conn.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}

func (m *mqttBroker) subscribe(topic string, handler func(payload []byte)) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("mqtt not connected")
	}
	token := conn.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (m *mqttBroker) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Disconnect(250)
		m.conn = nil
	}
}

type kafkaBroker struct {
	cfg   *config.KafkaConfig
	group string

	mu      sync.Mutex
	writer  *kafkago.Writer
	readers []*kafkago.Reader
}

func newKafkaBroker(cfg *config.KafkaConfig, node string) *kafkaBroker {
	group := cfg.GroupID
	if group == "" {
		// Every hub node must see every push, so nodes never share a
		// consumer group.
		group = "marketlink-" + node
	}
	return &kafkaBroker{cfg: cfg, group: group}
}

func (k *kafkaBroker) connect() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(k.cfg.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return nil
}

func (k *kafkaBroker) connected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.writer != nil
}

func (k *kafkaBroker) publish(topic string, payload []byte) error {
	k.mu.Lock()
	w := k.writer
	k.mu.Unlock()
	if w == nil {
		return fmt.Errorf("kafka writer not initialized")
	}
	return w.WriteMessages(context.Background(), kafkago.Message{
		Topic: topic,
		Value: payload,
	})
}

func (k *kafkaBroker) subscribe(topic string, handler func(payload []byte)) error {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: k.cfg.Brokers,
		Topic:   topic,
		GroupID: k.group,
	})
	k.mu.Lock()
	k.readers = append(k.readers, reader)
	k.mu.Unlock()

	go func() {
		for {
			msg, err := reader.ReadMessage(context.Background())
			if err != nil {
				return
			}
			handler(msg.Value)
		}
	}()
	return nil
}

func (k *kafkaBroker) close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, r := range k.readers {
		r.Close()
	}
	k.readers = nil
	if k.writer != nil {
		if err := k.writer.Close(); err != nil {
			log.Printf("messaging: close kafka writer: %v", err)
		}
		k.writer = nil
	}
}
