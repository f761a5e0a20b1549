package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	apperrors "course-marketplace/errors"
	"course-marketplace/models"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []models.EmailMessage
}

func (m *recordingMailer) Send(msg models.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func TestEmailHandler(t *testing.T) {
	valid := models.EmailMessage{Event: models.EventEmailSend, Recipient: "a@example.com", Subject: "Hi", Body: "<p>hi</p>"}

	tests := []struct {
		name    string
		mutate  func(m *models.EmailMessage)
		raw     string
		wantErr bool
	}{
		{name: "valid", mutate: func(*models.EmailMessage) {}},
		{name: "missing recipient", mutate: func(m *models.EmailMessage) { m.Recipient = "" }, wantErr: true},
		{name: "missing subject", mutate: func(m *models.EmailMessage) { m.Subject = "" }, wantErr: true},
		{name: "missing body", mutate: func(m *models.EmailMessage) { m.Body = "" }, wantErr: true},
		{name: "not json", raw: "not json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &recordingMailer{}
			value := []byte(tt.raw)
			if tt.mutate != nil {
				msg := valid
				tt.mutate(&msg)
				value, _ = json.Marshal(msg)
			}

			err := EmailHandler(mailer)(context.Background(), value)
			if tt.wantErr {
				assertKind(t, err, apperrors.Invalid)
				if len(mailer.sent) != 0 {
					t.Error("invalid event was mailed")
				}
				return
			}
			if err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if len(mailer.sent) != 1 || mailer.sent[0].Recipient != "a@example.com" {
				t.Errorf("sent = %+v", mailer.sent)
			}
		})
	}
}

func TestDispatcherMailsDirectlyWithoutPublisher(t *testing.T) {
	mailer := &recordingMailer{}
	d := NewDispatcher(nil, mailer, "payments", "emails")
	n := NewNotifier(d)

	n.RefundProcessed("a@example.com", "Go in Practice", 500, "INR", "rfnd_1")
	n.PaymentFailed("", "Go in Practice")
	d.PaymentEvent(models.PaymentEvent{Event: models.EventPaymentVerified})
	d.Wait()

	if len(mailer.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if msg.Event != models.EventEmailSend {
		t.Errorf("event = %q", msg.Event)
	}
	if !strings.Contains(msg.Body, "₹500") || !strings.Contains(msg.Body, "rfnd_1") {
		t.Errorf("body missing amount or refund id: %s", msg.Body)
	}
}

func TestDispatcherKeysEventsByStudent(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, nil, "payments", "emails")

	d.PaymentEvent(models.PaymentEvent{Event: models.EventPaymentVerified, StudentID: "s1"})
	d.PaymentEvent(models.PaymentEvent{Event: models.EventPaymentsExpired, Count: 3})
	d.Wait()

	keys := map[string]bool{}
	for _, m := range pub.msgs {
		if m.topic != "payments" {
			t.Errorf("topic = %s", m.topic)
		}
		keys[m.key] = true
	}
	if !keys["student-s1"] || !keys[models.EventPaymentsExpired] {
		t.Errorf("keys = %v", keys)
	}

	for _, evt := range pub.events(models.EventPaymentVerified) {
		if evt.EventID == "" || evt.Timestamp.IsZero() {
			t.Errorf("event missing id or timestamp: %+v", evt)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   int64
		currency string
		want     string
	}{
		{500, "INR", "₹500"},
		{20, "USD", "20 USD"},
	}
	for _, tt := range tests {
		if got := formatAmount(tt.amount, tt.currency); got != tt.want {
			t.Errorf("formatAmount(%d, %s) = %q, want %q", tt.amount, tt.currency, got, tt.want)
		}
	}
}
