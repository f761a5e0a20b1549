package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// Retryable reports whether a new checkout may be started from this status.
func (s PaymentStatus) Retryable() bool {
	switch s {
	case PaymentStatusFailed, PaymentStatusExpired, PaymentStatusPending:
		return true
	}
	return false
}

// Payment is one checkout attempt for a course. Amount is the course price
// in major currency units at the moment the order was created.
type Payment struct {
	ID                string        `json:"id"`
	RazorpayOrderID   string        `json:"razorpayOrderId"`
	RazorpayPaymentID string        `json:"razorpayPaymentId,omitempty"`
	RazorpaySignature string        `json:"razorpaySignature,omitempty"`
	RazorpayRefundID  string        `json:"razorpayRefundId,omitempty"`
	StudentID         string        `json:"student"`
	CourseID          string        `json:"course"`
	TutorID           string        `json:"tutor"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	Status            PaymentStatus `json:"status"`
	FailureReason     string        `json:"failureReason,omitempty"`
	ExpiresAt         time.Time     `json:"expiresAt"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// MinorAmount is the amount the payment provider is asked to charge (paise for INR).
func (p *Payment) MinorAmount() int64 {
	return ToMinorUnits(p.Amount)
}

// ToMinorUnits converts a major-unit price into provider minor units.
func ToMinorUnits(amount int64) int64 {
	return amount * 100
}

// PaymentFilter selects payments for history views.
type PaymentFilter struct {
	StudentID string
	TutorID   string
	Status    PaymentStatus
}

// CheckoutOrder is what the client needs to open the hosted checkout.
type CheckoutOrder struct {
	PaymentID   string `json:"paymentId"`
	OrderID     string `json:"orderId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	KeyID       string `json:"keyId"`
	CourseTitle string `json:"courseTitle"`
}
