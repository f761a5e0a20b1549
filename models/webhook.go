package models

// RazorpayWebhookPayload represents the structure of Razorpay webhook payload
type RazorpayWebhookPayload struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	CreatedAt int64                  `json:"created_at"`
	Contains  []string               `json:"contains"`
	Payload   map[string]interface{} `json:"payload"`
}

// PaymentEntity pulls payment.entity out of a webhook payload.
func (p RazorpayWebhookPayload) PaymentEntity() (paymentID, orderID, errorDescription string, ok bool) {
	paymentMap, ok := p.Payload["payment"].(map[string]interface{})
	if !ok {
		return "", "", "", false
	}
	entity, ok := paymentMap["entity"].(map[string]interface{})
	if !ok {
		return "", "", "", false
	}

	paymentID, _ = entity["id"].(string)
	orderID, _ = entity["order_id"].(string)
	errorDescription, _ = entity["error_description"].(string)
	return paymentID, orderID, errorDescription, paymentID != "" && orderID != ""
}
