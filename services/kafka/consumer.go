package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"course-marketplace/logger"

	"github.com/segmentio/kafka-go"
)

// HandlerFunc processes the raw value of one event.
type HandlerFunc func(ctx context.Context, value []byte) error

// Consumer reads a topic in a consumer group and routes each message to the
// handler registered for its "event" field. Messages that cannot be handled
// go to the dead letter queue.
type Consumer struct {
	reader   *kafka.Reader
	dlq      *DLQ
	log      *logger.Logger
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewConsumer(brokers []string, topic, groupID string, dlq *DLQ) *Consumer {
	c := &Consumer{
		dlq:      dlq,
		handlers: make(map[string]HandlerFunc),
		log:      logger.Default().With("component", "kafka-consumer"),
	}
	if len(brokers) > 0 {
		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:          brokers,
			Topic:            topic,
			GroupID:          groupID,
			StartOffset:      kafka.LastOffset,
			CommitInterval:   time.Second,
			MaxBytes:         10e6,
			SessionTimeout:   20 * time.Second,
			ReadBackoffMin:   100 * time.Millisecond,
			ReadBackoffMax:   1 * time.Second,
			QueueCapacity:    100,
			RebalanceTimeout: 60 * time.Second,
		})
		c.log.Info("Kafka consumer initialized. Brokers=%v, Topic=%s, ConsumerGroup=%s", brokers, topic, groupID)
	}
	return c
}

// On registers fn for an event type.
func (c *Consumer) On(event string, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = fn
}

// Start consumes in a goroutine until ctx is done or Stop is called.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	if c.reader == nil || c.running {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.running = true
	c.mu.Unlock()

	go c.consume(ctx)
	c.log.Info("Kafka consumer started")
}

func (c *Consumer) consume(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		close(c.done)
		c.mu.Unlock()
	}()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			if strings.Contains(err.Error(), "Group Coordinator Not Available") {
				time.Sleep(500 * time.Millisecond)
				continue
			}
			c.log.Warn("Kafka read error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		c.Process(ctx, msg)
	}
}

// Process dispatches msg and dead-letters it on failure. It reports whether
// the message was handled.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) bool {
	err := c.Dispatch(ctx, msg)
	if err == nil {
		return true
	}

	c.log.Error("Error handling message on %s: %v", msg.Topic, err)
	if c.dlq != nil {
		if dlqErr := c.dlq.Send(ctx, msg.Topic, string(msg.Key), msg.Value, err.Error()); dlqErr != nil {
			c.log.Error("Failed to dead-letter message: %v", dlqErr)
		}
	}
	return false
}

// Dispatch routes msg to its handler without dead-lettering. DLQ replays
// use it so a failing replay does not create a second dead letter.
func (c *Consumer) Dispatch(ctx context.Context, msg kafka.Message) error {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if envelope.Event == "" {
		return fmt.Errorf("message does not contain valid event type")
	}

	c.mu.Lock()
	handler, ok := c.handlers[envelope.Event]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown event type: %s", envelope.Event)
	}

	if err := handler(ctx, msg.Value); err != nil {
		return fmt.Errorf("handler error: %w", err)
	}
	return nil
}

// Stop cancels consumption, waits for the loop to exit and closes the reader.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		if c.reader != nil {
			return c.reader.Close()
		}
		return nil
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done

	if err := c.reader.Close(); err != nil {
		c.log.Error("Error closing consumer: %v", err)
		return err
	}
	c.log.Info("Kafka consumer stopped")
	return nil
}

// IsRunning reports whether the consume loop is active.
func (c *Consumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
