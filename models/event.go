package models

import "time"

// Payment domain event types published on the payments topic.
const (
	EventPaymentInitiated  = "payment.initiated"
	EventPaymentVerified   = "payment.verified"
	EventPaymentFailed     = "payment.failed"
	EventPaymentRefunded   = "payment.refunded"
	EventPaymentDuplicate  = "payment.duplicate"
	EventPaymentsExpired   = "payments.expired"
	EventRefundReconcile   = "refund.reconcile"
	EventEnrollmentCreated = "enrollment.created"
	EventCertificateIssued = "certificate.issued"
	EventEmailSend         = "email.send"
)

// PaymentEvent is the envelope for everything on the payments topic.
type PaymentEvent struct {
	EventID   string    `json:"event_id"`
	Event     string    `json:"event"`
	PaymentID string    `json:"payment_id,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	StudentID string    `json:"student_id,omitempty"`
	CourseID  string    `json:"course_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status,omitempty"`
	Count     int64     `json:"count,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// EmailMessage is the payload on the emails topic.
type EmailMessage struct {
	Event      string    `json:"event"`
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Attachment string    `json:"attachment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// DLQMessage is a message that could not be processed and awaits retry or
// manual resolution.
type DLQMessage struct {
	ID           int64      `json:"id"`
	MessageID    string     `json:"message_id"`
	Topic        string     `json:"topic"`
	Key          string     `json:"key"`
	Value        []byte     `json:"value"`
	ErrorMessage string     `json:"error_message"`
	RetryCount   int        `json:"retry_count"`
	Resolved     bool       `json:"resolved"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// DLQStats summarises the dead letter table.
type DLQStats struct {
	Total      int `json:"total_dlq_messages"`
	Unresolved int `json:"unresolved_messages"`
	Resolved   int `json:"resolved_messages"`
}
