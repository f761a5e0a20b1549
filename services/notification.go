package services

import (
	"fmt"

	"course-marketplace/models"
)

const emailLayout = `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: %s; color: white; padding: 20px; text-align: center; border-radius: 5px; }
        .content { background-color: #f9f9f9; padding: 20px; margin-top: 20px; border-radius: 5px; }
        .info { background-color: #e8f5e9; padding: 15px; margin: 15px 0; border-left: 4px solid #4CAF50; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h2>%s</h2></div>
        <div class="content">%s</div>
    </div>
</body>
</html>`

// Notifier builds the transactional emails students receive.
type Notifier struct {
	events *Dispatcher
}

func NewNotifier(events *Dispatcher) *Notifier {
	return &Notifier{events: events}
}

func (n *Notifier) send(to, subject, color, heading, content, attachment string) {
	if n == nil || to == "" {
		return
	}
	n.events.Email(models.EmailMessage{
		Recipient:  to,
		Subject:    subject,
		Body:       fmt.Sprintf(emailLayout, color, heading, content),
		Attachment: attachment,
	})
}

func formatAmount(amount int64, currency string) string {
	if currency == "INR" {
		return fmt.Sprintf("₹%d", amount)
	}
	return fmt.Sprintf("%d %s", amount, currency)
}

// EnrollmentConfirmed is sent after a verified payment or a free enroll.
// amount is zero for free courses.
func (n *Notifier) EnrollmentConfirmed(to, courseTitle string, amount int64, currency string) {
	paid := "This course is free. Happy learning!"
	if amount > 0 {
		paid = fmt.Sprintf("We received your payment of <strong>%s</strong>.", formatAmount(amount, currency))
	}
	content := fmt.Sprintf(`
            <p>You are now enrolled in:</p>
            <div class="info"><p><strong>%s</strong></p></div>
            <p>%s</p>`, courseTitle, paid)
	n.send(to, "Enrollment confirmed: "+courseTitle, "#4CAF50", "You're enrolled!", content, "")
}

// PaymentFailed is sent when a checkout could not be verified.
func (n *Notifier) PaymentFailed(to, courseTitle string) {
	content := fmt.Sprintf(`
            <p>We could not verify your payment for <strong>%s</strong>.</p>
            <p>No enrollment was created. You can retry the payment from your purchase history.</p>`, courseTitle)
	n.send(to, "Payment failed: "+courseTitle, "#E53935", "Payment not completed", content, "")
}

// RefundProcessed is sent after a refund has been issued.
func (n *Notifier) RefundProcessed(to, courseTitle string, amount int64, currency, refundID string) {
	content := fmt.Sprintf(`
            <p>Your refund of <strong>%s</strong> for <strong>%s</strong> has been issued.</p>
            <div class="info"><p>Refund reference: %s</p></div>
            <p>Your access to the course has been removed.</p>`, formatAmount(amount, currency), courseTitle, refundID)
	n.send(to, "Refund processed: "+courseTitle, "#2196F3", "Refund issued", content, "")
}

// CertificateIssued is sent with the certificate PDF attached.
func (n *Notifier) CertificateIssued(to, courseTitle, certificatePath string) {
	content := fmt.Sprintf(`
            <p>Congratulations on completing <strong>%s</strong>!</p>
            <p>Your certificate is attached to this email.</p>`, courseTitle)
	n.send(to, "Your certificate: "+courseTitle, "#4CAF50", "Course completed", content, certificatePath)
}
