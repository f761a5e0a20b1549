package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	apperrors "course-marketplace/errors"
	"course-marketplace/logger"
	"course-marketplace/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// DLQStore persists dead letters.
type DLQStore interface {
	StoreDLQMessage(ctx context.Context, m *models.DLQMessage) error
	GetDLQMessage(ctx context.Context, messageID string) (*models.DLQMessage, error)
	ListDLQMessages(ctx context.Context, limit int) ([]models.DLQMessage, error)
	ListRetryableDLQMessages(ctx context.Context, limit int) ([]models.DLQMessage, error)
	RecordDLQRetry(ctx context.Context, messageID string, succeeded bool, notes string) error
	ResolveDLQMessage(ctx context.Context, messageID, notes string) error
	DLQStats(ctx context.Context) (*models.DLQStats, error)
}

// ReplayFunc reprocesses a dead letter; a nil error means it succeeded.
type ReplayFunc func(ctx context.Context, msg kafka.Message) error

// DLQ stores messages that could not be published or processed, mirrors
// them to a Kafka DLQ topic when one is configured, and replays them on
// demand or on a timer.
type DLQ struct {
	store  DLQStore
	writer *kafka.Writer
	topic  string
	log    *logger.Logger

	mu     sync.Mutex
	replay ReplayFunc
	stop   chan struct{}
}

// NewDLQ builds a dead letter queue over store. With brokers and a topic it
// also publishes each dead letter to Kafka.
func NewDLQ(store DLQStore, brokers []string, topic string) *DLQ {
	d := &DLQ{
		store: store,
		topic: topic,
		log:   logger.Default().With("component", "dlq"),
	}
	if len(brokers) > 0 && topic != "" {
		d.writer = newWriter(brokers, topic)
		d.log.Info("Kafka DLQ producer initialized. Brokers=%v, DLQ Topic=%s", brokers, topic)
	}
	return d
}

// SetReplay registers how dead letters are reprocessed.
func (d *DLQ) SetReplay(fn ReplayFunc) {
	d.mu.Lock()
	d.replay = fn
	d.mu.Unlock()
}

// Send records a failed message. The database copy is authoritative; the
// Kafka copy is best effort and is switched off if the topic is missing.
func (d *DLQ) Send(ctx context.Context, topic, key string, value []byte, errorMsg string) error {
	d.mu.Lock()
	writer := d.writer
	d.mu.Unlock()

	if writer != nil {
		envelope, err := json.Marshal(map[string]interface{}{
			"original_topic": topic,
			"original_key":   key,
			"original_value": string(value),
			"error_message":  errorMsg,
			"timestamp":      time.Now().Unix(),
		})
		if err == nil {
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = writer.WriteMessages(wctx, kafka.Message{Key: []byte(key), Value: envelope})
			cancel()
		}
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "unknown topic") {
				d.log.Warn("DLQ topic missing on broker; disabling DLQ producer: %v", err)
				d.mu.Lock()
				d.writer = nil
				d.mu.Unlock()
			} else {
				d.log.Warn("DLQ publish failed, storing to DB only: %v", err)
			}
		}
	}

	if d.store == nil {
		d.log.Warn("Database not available for DLQ storage, dropping message for %s", topic)
		return nil
	}

	m := &models.DLQMessage{
		MessageID:    uuid.NewString(),
		Topic:        topic,
		Key:          key,
		Value:        value,
		ErrorMessage: errorMsg,
	}
	if err := d.store.StoreDLQMessage(ctx, m); err != nil {
		d.log.Error("Error storing DLQ message in database: %v", err)
		return err
	}

	d.log.Info("DLQ message %s stored. Topic: %s, Key: %s", m.MessageID, topic, key)
	return nil
}

func (d *DLQ) List(ctx context.Context, limit int) ([]models.DLQMessage, error) {
	return d.store.ListDLQMessages(ctx, limit)
}

func (d *DLQ) Stats(ctx context.Context) (*models.DLQStats, error) {
	return d.store.DLQStats(ctx)
}

func (d *DLQ) Resolve(ctx context.Context, messageID, notes string) error {
	if notes == "" {
		notes = "Manually resolved"
	}
	if err := d.store.ResolveDLQMessage(ctx, messageID, notes); err != nil {
		return err
	}
	d.log.Info("DLQ message %s marked as resolved", messageID)
	return nil
}

// Retry replays one dead letter and returns whether it succeeded. The
// message is resolved on success; otherwise only its retry count grows.
func (d *DLQ) Retry(ctx context.Context, messageID string) (bool, error) {
	m, err := d.store.GetDLQMessage(ctx, messageID)
	if err != nil {
		return false, err
	}
	if m.Resolved {
		return false, apperrors.NewInvalidParamsError("message is already resolved")
	}
	return d.retry(ctx, m, "Manually retried successfully")
}

func (d *DLQ) retry(ctx context.Context, m *models.DLQMessage, notes string) (bool, error) {
	d.mu.Lock()
	replay := d.replay
	d.mu.Unlock()
	if replay == nil {
		return false, apperrors.NewServiceUnavailableError("dlq replay is not configured")
	}

	err := replay(ctx, kafka.Message{Topic: m.Topic, Key: []byte(m.Key), Value: m.Value})
	ok := err == nil
	if !ok {
		d.log.Warn("Replay of DLQ message %s failed: %v", m.MessageID, err)
	}

	if err := d.store.RecordDLQRetry(ctx, m.MessageID, ok, notes); err != nil {
		return ok, err
	}
	return ok, nil
}

// StartAutoRetry replays retryable dead letters every interval until
// StopAutoRetry is called.
func (d *DLQ) StartAutoRetry(ctx context.Context, interval time.Duration) {
	d.mu.Lock()
	if d.stop != nil {
		d.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	d.stop = stop
	d.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		d.log.Info("DLQ auto-retry started (every %v)", interval)
		for {
			select {
			case <-ticker.C:
				d.retryPending(ctx)
			case <-ctx.Done():
				return
			case <-stop:
				d.log.Info("DLQ auto-retry stopped")
				return
			}
		}
	}()
}

func (d *DLQ) StopAutoRetry() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
}

func (d *DLQ) retryPending(ctx context.Context) {
	messages, err := d.store.ListRetryableDLQMessages(ctx, 10)
	if err != nil {
		d.log.Error("Error querying unresolved DLQ messages for retry: %v", err)
		return
	}

	resolved := 0
	for i := range messages {
		ok, err := d.retry(ctx, &messages[i], "Auto-retried successfully")
		if err != nil {
			d.log.Error("Error updating DLQ message %s: %v", messages[i].MessageID, err)
		}
		if ok {
			resolved++
		}
	}
	if len(messages) > 0 {
		d.log.Info("DLQ auto-retry completed: processed %d messages, %d resolved", len(messages), resolved)
	}
}

func (d *DLQ) Close() error {
	d.StopAutoRetry()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writer != nil {
		return d.writer.Close()
	}
	return nil
}
