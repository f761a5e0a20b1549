// Package gateway wraps the Razorpay API behind the small surface the
// checkout flow needs.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	apperrors "course-marketplace/errors"
	"course-marketplace/logger"

	"github.com/razorpay/razorpay-go"
)

const unavailableMsg = "payment provider is not configured"

// Razorpay creates orders and refunds and checks checkout signatures. A
// Razorpay built without credentials is disabled: every call returns a
// ServiceUnavailable error instead of reaching the provider.
type Razorpay struct {
	client    *razorpay.Client
	keyID     string
	keySecret string
	log       *logger.Logger
}

// Config carries the Razorpay credentials.
type Config struct {
	KeyID     string
	KeySecret string
}

// NewRazorpay builds the adapter. Missing credentials yield a disabled
// adapter rather than an error so the server can still start.
func NewRazorpay(cfg Config) *Razorpay {
	r := &Razorpay{
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		log:       logger.Default().With("component", "razorpay"),
	}

	if cfg.KeyID == "" || cfg.KeySecret == "" {
		r.log.Warn("Razorpay credentials not configured, payment routes are disabled")
		return r
	}

	r.client = razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	r.log.Info("Razorpay client initialized (key id length: %d)", len(cfg.KeyID))
	return r
}

// Enabled reports whether credentials were supplied.
func (r *Razorpay) Enabled() bool {
	return r.client != nil
}

// KeyID is the publishable key handed to the browser checkout.
func (r *Razorpay) KeyID() string {
	return r.keyID
}

// CreateOrder asks Razorpay for a hosted order of amount minor units and
// returns the provider order id.
func (r *Razorpay) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (string, error) {
	if !r.Enabled() {
		return "", apperrors.NewServiceUnavailableError(unavailableMsg)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		data["notes"] = notes
	}

	resp, err := r.client.Order.Create(data, nil)
	if err != nil {
		r.log.Error("Error creating razorpay order (receipt %s): %v", receipt, err)
		return "", apperrors.E(apperrors.ServiceUnavailable, "payment provider unavailable", err)
	}

	orderID, ok := resp["id"].(string)
	if !ok || orderID == "" {
		return "", apperrors.E(apperrors.Internal, "payment provider returned no order id")
	}

	r.log.Info("Razorpay order created - Order: %s, Amount: %d %s", orderID, amount, currency)
	return orderID, nil
}

// Refund refunds amount minor units of a captured payment and returns the
// provider refund id.
func (r *Razorpay) Refund(ctx context.Context, paymentID string, amount int64) (string, error) {
	if !r.Enabled() {
		return "", apperrors.NewServiceUnavailableError(unavailableMsg)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := r.client.Payment.Refund(paymentID, int(amount), map[string]interface{}{"speed": "normal"}, nil)
	if err != nil {
		r.log.Error("Error refunding razorpay payment %s: %v", paymentID, err)
		return "", apperrors.E(apperrors.ServiceUnavailable, "refund request was rejected by the payment provider", err)
	}

	refundID, _ := resp["id"].(string)
	r.log.Info("Razorpay refund issued - Payment: %s, Refund: %s, Amount: %d", paymentID, refundID, amount)
	return refundID, nil
}

// VerifySignature checks the checkout callback signature.
func (r *Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	if r.keySecret == "" {
		return false
	}
	return hmac.Equal([]byte(Signature(orderID, paymentID, r.keySecret)), []byte(signature))
}

// Signature computes the hex HMAC-SHA256 of "orderID|paymentID" keyed with
// secret, which is what Razorpay sends back after a successful checkout.
func Signature(orderID, paymentID, secret string) string {
	return HMACHex([]byte(fmt.Sprintf("%s|%s", orderID, paymentID)), secret)
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header of a webhook body.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(HMACHex(body, secret)), []byte(signature))
}

// HMACHex returns hex(HMAC-SHA256(secret, payload)).
func HMACHex(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
