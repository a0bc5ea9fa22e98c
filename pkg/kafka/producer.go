package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Producer interface {
	SendMessage(ctx context.Context, key string, message interface{}) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
}

// NewProducer returns a producer for topic. When the broker cannot be
// reached it falls back to a producer that only logs.
func NewProducer(ctx context.Context, brokers, topic string) Producer {
	addrs := splitBrokers(brokers)
	if len(addrs) == 0 {
		logrus.Warn("Kafka brokers not configured, using mock producer")
		return NewMockProducer(topic)
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(dialCtx, "tcp", addrs[0])
	if err != nil {
		logrus.Warnf("Kafka connection failed: %v, using mock producer instead", err)
		return NewMockProducer(topic)
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		logrus.Debugf("Could not create topic %s (might already exist): %v", topic, err)
	}

	logrus.WithFields(logrus.Fields{"brokers": addrs, "topic": topic}).Info("Connected to Kafka")
	return &kafkaProducer{writer: writer}
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (p *kafkaProducer) SendMessage(ctx context.Context, key string, message interface{}) error {
	value, err := json.Marshal(message)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		logrus.Errorf("Failed to write message to Kafka: %v", err)
		return err
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

// MockProducer keeps messages in memory, used when Kafka is unavailable.
type MockProducer struct {
	topic    string
	mu       sync.Mutex
	messages []MockMessage
}

type MockMessage struct {
	Key   string
	Value []byte
}

func NewMockProducer(topic string) *MockProducer {
	return &MockProducer{topic: topic}
}

func (m *MockProducer) SendMessage(ctx context.Context, key string, message interface{}) error {
	value, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.messages = append(m.messages, MockMessage{Key: key, Value: value})
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{"topic": m.topic, "key": key}).Debug("MOCK: Kafka message")
	return nil
}

func (m *MockProducer) Messages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockMessage(nil), m.messages...)
}

func (m *MockProducer) Close() error {
	return nil
}
