package services

import (
	"context"
	"encoding/json"

	"course-marketplace/db"
	apperrors "course-marketplace/errors"
	"course-marketplace/models"
	"course-marketplace/services/gateway"

	"github.com/google/uuid"
)

// Webhook processing states stored in razorpay_webhooks.status.
const (
	WebhookCompleted = "COMPLETED"
	WebhookFailed    = "FAILED"
	WebhookRejected  = "REJECTED"
	WebhookIgnored   = "IGNORED"
)

type WebhookResult struct {
	Status  string `json:"status"`
	Event   string `json:"event"`
	OrderID string `json:"order_id,omitempty"`
}

// HandleWebhook processes a Razorpay webhook delivery. Captures complete a
// pending or expired payment through the same ledger transition as
// VerifyPayment; failures mark a pending payment failed. Every delivery is
// logged, including ones with a bad signature. A redelivery of an event
// that already completed or was ignored is acknowledged without running it
// again; one whose earlier run failed is processed anew. eventID identifies
// the delivery when the body carries no id.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (*WebhookResult, error) {
	var payload models.RazorpayWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.E(apperrors.Invalid, "invalid payload format", err)
	}
	if payload.ID == "" {
		payload.ID = eventID
	}
	if payload.ID == "" {
		payload.ID = "wh_" + uuid.NewString()
	}

	valid := gateway.VerifyWebhookSignature(body, signature, s.cfg.WebhookSecret)

	var (
		duplicate bool
		prior     string
	)
	if s.webhooks != nil {
		var err error
		duplicate, prior, err = s.webhooks.LogWebhook(ctx, payload.ID, payload.Event, body, valid)
		if err != nil {
			s.log.Error("[WEBHOOK] DB error logging %s: %v", payload.ID, err)
		}
	}

	if !valid {
		// A forged copy of a known id must not overwrite its outcome.
		if !duplicate {
			s.markWebhook(ctx, payload.ID, WebhookRejected, "invalid signature")
		}
		return nil, apperrors.NewUnauthorizedError("invalid webhook signature")
	}

	s.log.Info("[WEBHOOK] Received: %s (%s, duplicate=%v)", payload.Event, payload.ID, duplicate)

	if duplicate && (prior == WebhookCompleted || prior == WebhookIgnored) {
		s.log.Info("[WEBHOOK] %s already handled as %s, skipping", payload.ID, prior)
		return &WebhookResult{Status: "already_processed", Event: payload.Event}, nil
	}

	var (
		res *WebhookResult
		err error
	)
	switch payload.Event {
	case "payment.captured", "order.paid":
		res, err = s.webhookCaptured(ctx, payload)
	case "payment.failed":
		res, err = s.webhookFailed(ctx, payload)
	default:
		s.log.Info("[WEBHOOK] Unhandled event type: %s - acknowledging anyway", payload.Event)
		res = &WebhookResult{Status: "acknowledged", Event: payload.Event}
		s.markWebhook(ctx, payload.ID, WebhookIgnored, "")
		return res, nil
	}

	if err != nil {
		s.log.Error("[WEBHOOK] Error processing %s: %v", payload.ID, err)
		s.markWebhook(ctx, payload.ID, WebhookFailed, err.Error())
		return nil, err
	}
	s.markWebhook(ctx, payload.ID, WebhookCompleted, "")
	return res, nil
}

func (s *PaymentService) markWebhook(ctx context.Context, id, status, msg string) {
	if s.webhooks == nil {
		return
	}
	if err := s.webhooks.MarkWebhookProcessed(ctx, id, status, msg); err != nil {
		s.log.Error("[WEBHOOK] Status update error for %s: %v", id, err)
	}
}

func (s *PaymentService) webhookCaptured(ctx context.Context, payload models.RazorpayWebhookPayload) (*WebhookResult, error) {
	providerPaymentID, orderID, _, ok := payload.PaymentEntity()
	if !ok || providerPaymentID == "" || orderID == "" {
		return nil, apperrors.NewInvalidParamsError("missing payment_id or order_id")
	}

	var result *completion
	res := &WebhookResult{Status: "processed", Event: payload.Event, OrderID: orderID}

	err := s.store.InTx(ctx, func(tx db.Store) error {
		p, err := tx.GetPaymentByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		switch p.Status {
		case models.PaymentStatusPending, models.PaymentStatusExpired:
			result, err = s.complete(ctx, tx, p, providerPaymentID, p.RazorpaySignature)
			return err
		case models.PaymentStatusCompleted:
			res.Status = "already_processed"
		default:
			s.log.Warn("[WEBHOOK] Capture for order %s ignored, payment %s is %s", orderID, p.ID, p.Status)
			res.Status = "ignored"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result != nil {
		s.completed(result, "")
	}
	return res, nil
}

func (s *PaymentService) webhookFailed(ctx context.Context, payload models.RazorpayWebhookPayload) (*WebhookResult, error) {
	_, orderID, reason, ok := payload.PaymentEntity()
	if !ok || orderID == "" {
		return nil, apperrors.NewInvalidParamsError("missing order_id")
	}
	if reason == "" {
		reason = "payment failed at provider"
	}

	res := &WebhookResult{Status: "processed", Event: payload.Event, OrderID: orderID}
	var failed *models.Payment

	err := s.store.InTx(ctx, func(tx db.Store) error {
		p, err := tx.GetPaymentByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if p.Status != models.PaymentStatusPending {
			res.Status = "ignored"
			return nil
		}
		p.Status = models.PaymentStatusFailed
		p.FailureReason = reason
		p.UpdatedAt = s.now().UTC()
		failed = p
		return tx.UpdatePayment(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	if failed != nil {
		s.events.PaymentEvent(models.PaymentEvent{
			Event:     models.EventPaymentFailed,
			PaymentID: failed.ID,
			OrderID:   failed.RazorpayOrderID,
			StudentID: failed.StudentID,
			CourseID:  failed.CourseID,
			Amount:    failed.Amount,
			Status:    string(failed.Status),
			Detail:    reason,
		})
	}
	return res, nil
}
