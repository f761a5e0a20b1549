package kafka

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"course-marketplace/logger"

	"github.com/segmentio/kafka-go"
)

const publishAttempts = 3

// Producer publishes JSON messages with retry and exponential backoff.
// Messages that still fail are handed to the dead letter queue.
type Producer struct {
	mu        sync.Mutex
	writer    *kafka.Writer
	brokers   []string
	dlq       *DLQ
	connected bool
	backoff   func(attempt int) time.Duration
	log       *logger.Logger
}

// NewProducer builds a producer for brokers. dlq may be nil.
func NewProducer(brokers []string, dlq *DLQ) *Producer {
	p := &Producer{
		brokers: brokers,
		dlq:     dlq,
		backoff: func(attempt int) time.Duration {
			return time.Duration(math.Pow(2, float64(attempt))) * time.Second
		},
		log: logger.Default().With("component", "kafka-producer"),
	}
	p.writer = newWriter(brokers, "")
	p.connected = true
	p.log.Info("Kafka producer initialized. Brokers=%v", brokers)
	return p
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		Async:        false,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
	}
}

// EnsureTopics creates topics in the background, retrying while the broker
// starts up. Topics that already exist count as created.
func EnsureTopics(brokers []string, topics ...string) {
	go func() {
		log := logger.Default().With("component", "kafka-admin")
		const maxRetries = 5
		for attempt := 0; attempt < maxRetries; attempt++ {
			time.Sleep(time.Duration(math.Pow(2, float64(attempt))) * time.Second)

			conn, err := kafka.Dial("tcp", brokers[0])
			if err != nil {
				if attempt == maxRetries-1 {
					log.Warn("Could not connect to Kafka broker for topic creation after %d attempts: %v", maxRetries, err)
				}
				continue
			}

			created := 0
			for _, topic := range topics {
				err := conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
				if err == nil || strings.Contains(err.Error(), "already exists") {
					created++
				}
			}
			conn.Close()

			if created == len(topics) {
				log.Info("Kafka topics ready: %v", topics)
				return
			}
		}
	}()
}

// Publish marshals value and writes it to topic. After the last failed
// attempt the message is stored in the dead letter queue and the error is
// returned.
func (p *Producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		p.log.Error("Error marshaling Kafka message: %v", err)
		return err
	}

	lastErr := p.write(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: payload})
	if lastErr == nil {
		return nil
	}

	if p.dlq != nil {
		p.log.Info("Sending failed message to DLQ. Topic: %s, Key: %s", topic, key)
		if dlqErr := p.dlq.Send(context.Background(), topic, key, payload, lastErr.Error()); dlqErr != nil {
			p.log.Error("Failed to send message to DLQ: %v", dlqErr)
		}
	}
	return lastErr
}

// Republish writes an already encoded message without DLQ fallback. Used
// when replaying dead letters.
func (p *Producer) Republish(ctx context.Context, topic, key string, value []byte) error {
	return p.write(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: value})
}

func (p *Producer) write(ctx context.Context, msg kafka.Message) error {
	var lastErr error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		writer := p.currentWriter()

		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := writer.WriteMessages(wctx, msg)
		cancel()

		if err == nil {
			p.setConnected(true)
			return nil
		}

		lastErr = err
		p.setConnected(false)
		p.log.Warn("Kafka publish attempt %d/%d to %s failed: %v", attempt+1, publishAttempts, msg.Topic, err)

		if attempt == 1 {
			// Stale broker metadata survives on the old writer.
			p.recreateWriter()
		}
		if attempt < publishAttempts-1 {
			select {
			case <-time.After(p.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (p *Producer) currentWriter() *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer
}

func (p *Producer) recreateWriter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Info("Recreating Kafka producer due to connection issues")
	old := p.writer
	p.writer = newWriter(p.brokers, "")
	go old.Close()
}

func (p *Producer) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// IsConnected reports whether the last write succeeded.
func (p *Producer) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Close()
}
