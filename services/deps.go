package services

import (
	"context"
	"time"

	"course-marketplace/models"
)

// Gateway is the payment provider as seen by the checkout flow. Amounts are
// in minor currency units.
type Gateway interface {
	Enabled() bool
	KeyID() string
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (string, error)
	Refund(ctx context.Context, paymentID string, amount int64) (string, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

// EventPublisher writes a JSON-encoded value to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Mailer delivers a single email.
type Mailer interface {
	Send(msg models.EmailMessage) error
}

// CertificateIssuer renders a completion certificate and returns where it
// was written.
type CertificateIssuer interface {
	Issue(ctx context.Context, e *models.Enrollment, course *models.Course, recipient string) (string, error)
}

// Locker hands out short-lived named locks. ok is false when another holder
// has the lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// WebhookLog records provider webhook deliveries.
type WebhookLog interface {
	LogWebhook(ctx context.Context, webhookID, eventType string, payload []byte, signatureValid bool) (duplicate bool, priorStatus string, err error)
	MarkWebhookProcessed(ctx context.Context, webhookID, status, errorMsg string) error
}
