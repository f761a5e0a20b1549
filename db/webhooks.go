package db

import (
	"context"
)

// LogWebhook records a received webhook keyed by its event id. A repeat
// delivery bumps retry_count, reports duplicate=true and returns the status
// stored for the earlier delivery. A validly signed row stays valid.
func (s *PostgresStore) LogWebhook(ctx context.Context, webhookID, eventType string, payload []byte, signatureValid bool) (bool, string, error) {
	var (
		retryCount int
		status     string
	)
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO razorpay_webhooks (webhook_id, event_type, payload, signature_valid, status)
		VALUES ($1, $2, $3::jsonb, $4, 'RECEIVED')
		ON CONFLICT (webhook_id) DO UPDATE
		SET retry_count = razorpay_webhooks.retry_count + 1,
		    signature_valid = razorpay_webhooks.signature_valid OR EXCLUDED.signature_valid
		RETURNING retry_count, status`,
		webhookID, eventType, string(payload), signatureValid).Scan(&retryCount, &status)
	if err != nil {
		return false, "", mapError(err, "")
	}
	return retryCount > 0, status, nil
}

// MarkWebhookProcessed stores the outcome of handling a webhook.
func (s *PostgresStore) MarkWebhookProcessed(ctx context.Context, webhookID, status, errorMsg string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE razorpay_webhooks
		SET status = $2, error_message = $3, processed_at = NOW()
		WHERE webhook_id = $1`, webhookID, status, errorMsg)
	return mapError(err, "")
}
