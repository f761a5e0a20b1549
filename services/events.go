package services

import (
	"context"
	"sync"
	"time"

	"course-marketplace/logger"
	"course-marketplace/models"

	"github.com/google/uuid"
)

const publishTimeout = 30 * time.Second

// Dispatcher publishes domain events and queues emails in the background.
// Publishing never blocks or fails the request that caused it. Without a
// publisher, emails go straight to the mailer and events are dropped.
type Dispatcher struct {
	publisher     EventPublisher
	mailer        Mailer
	paymentsTopic string
	emailTopic    string
	wg            sync.WaitGroup
	log           *logger.Logger
}

func NewDispatcher(publisher EventPublisher, mailer Mailer, paymentsTopic, emailTopic string) *Dispatcher {
	return &Dispatcher{
		publisher:     publisher,
		mailer:        mailer,
		paymentsTopic: paymentsTopic,
		emailTopic:    emailTopic,
		log:           logger.Default().With("component", "events"),
	}
}

// PaymentEvent publishes evt on the payments topic keyed by student.
func (d *Dispatcher) PaymentEvent(evt models.PaymentEvent) {
	if d == nil {
		return
	}
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if d.publisher == nil {
		d.log.Debug("Kafka disabled, dropping event %s", evt.Event)
		return
	}

	key := "student-" + evt.StudentID
	if evt.StudentID == "" {
		key = evt.Event
	}
	d.goPublish(d.paymentsTopic, key, evt)
}

// Email queues msg on the emails topic, or sends it directly when no
// publisher is configured.
func (d *Dispatcher) Email(msg models.EmailMessage) {
	if d == nil || msg.Recipient == "" {
		return
	}
	msg.Event = models.EventEmailSend
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	if d.publisher != nil {
		d.goPublish(d.emailTopic, "email-"+msg.Recipient, msg)
		return
	}
	if d.mailer == nil {
		d.log.Debug("No mailer configured, dropping email to %s", msg.Recipient)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.mailer.Send(msg); err != nil {
			d.log.Error("Failed to send email to %s: %v", msg.Recipient, err)
		}
	}()
}

func (d *Dispatcher) goPublish(topic, key string, value interface{}) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := d.publisher.Publish(ctx, topic, key, value); err != nil {
			d.log.Warn("Failed to publish to %s (key %s): %v", topic, key, err)
		}
	}()
}

// Wait blocks until every in-flight publish has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
