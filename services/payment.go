package services

import (
	"context"
	"io"
	"strings"
	"time"

	"course-marketplace/db"
	apperrors "course-marketplace/errors"
	"course-marketplace/logger"
	"course-marketplace/models"

	"github.com/google/uuid"
)

const unavailableMsg = "payments are not configured"

// PaymentConfig holds the checkout policy.
type PaymentConfig struct {
	Currency      string
	Expiry        time.Duration
	RefundWindow  time.Duration
	WebhookSecret string
}

// PaymentService drives checkout: order creation, verification, refunds,
// retries and history.
type PaymentService struct {
	store       db.Store
	gateway     Gateway
	enrollments *EnrollmentService
	events      *Dispatcher
	notifier    *Notifier
	webhooks    WebhookLog
	cfg         PaymentConfig
	now         func() time.Time
	log         *logger.Logger
}

func NewPaymentService(store db.Store, gateway Gateway, enrollments *EnrollmentService, events *Dispatcher, notifier *Notifier, webhooks WebhookLog, cfg PaymentConfig) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 30 * time.Minute
	}
	if cfg.RefundWindow <= 0 {
		cfg.RefundWindow = 7 * 24 * time.Hour
	}
	return &PaymentService{
		store:       store,
		gateway:     gateway,
		enrollments: enrollments,
		events:      events,
		notifier:    notifier,
		webhooks:    webhooks,
		cfg:         cfg,
		now:         time.Now,
		log:         logger.Default().With("component", "payments"),
	}
}

// VerifyRequest is the signed payload the checkout returns to the browser.
type VerifyRequest struct {
	OrderID   string `json:"razorpayOrderId" validate:"required"`
	PaymentID string `json:"razorpayPaymentId" validate:"required"`
	Signature string `json:"razorpaySignature" validate:"required"`
}

type VerifyResult struct {
	Payment    *models.Payment    `json:"payment"`
	Enrollment *models.Enrollment `json:"enrollment"`
}

type RefundResult struct {
	RefundID  string               `json:"refundId"`
	PaymentID string               `json:"paymentId"`
	Amount    int64                `json:"amount"`
	Currency  string               `json:"currency"`
	Status    models.PaymentStatus `json:"status"`
}

type HistoryResult struct {
	Payments    []models.Payment `json:"payments"`
	TotalAmount int64            `json:"totalAmount"`
}

func (s *PaymentService) ensureEnabled() error {
	if s.gateway == nil || !s.gateway.Enabled() {
		return apperrors.NewServiceUnavailableError(unavailableMsg)
	}
	return nil
}

// CreateOrder opens a checkout for a published paid course. An existing
// enrollment is rejected before the provider is contacted.
func (s *PaymentService) CreateOrder(ctx context.Context, actor models.Actor, courseID string) (*models.CheckoutOrder, error) {
	if err := s.ensureEnabled(); err != nil {
		return nil, err
	}

	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsPublished {
		return nil, apperrors.NewNotFoundError("course not found")
	}
	if course.IsFree() {
		return nil, apperrors.NewInvalidParamsError("course is free, enroll directly")
	}

	existing, err := s.store.FindEnrollment(ctx, actor.ID, course.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.NewConflictError("already enrolled in this course")
	}

	return s.openOrder(ctx, actor.ID, course.ID, course.TutorID, course.Price, course.Title)
}

// openOrder creates the provider order first and then the local pending
// row that points at it.
func (s *PaymentService) openOrder(ctx context.Context, studentID, courseID, tutorID string, amount int64, title string) (*models.CheckoutOrder, error) {
	paymentID := uuid.NewString()
	receipt := "rcpt_" + strings.ReplaceAll(paymentID, "-", "")[:20]

	orderID, err := s.gateway.CreateOrder(ctx, models.ToMinorUnits(amount), s.cfg.Currency, receipt, map[string]string{
		"payment_id": paymentID,
		"student_id": studentID,
		"course_id":  courseID,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &models.Payment{
		ID:              paymentID,
		RazorpayOrderID: orderID,
		StudentID:       studentID,
		CourseID:        courseID,
		TutorID:         tutorID,
		Amount:          amount,
		Currency:        s.cfg.Currency,
		Status:          models.PaymentStatusPending,
		ExpiresAt:       now.Add(s.cfg.Expiry),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreatePayment(ctx, p); err != nil {
		s.log.Error("Order %s created at provider but not stored: %v", orderID, err)
		return nil, err
	}

	s.log.Info("Checkout opened - Payment: %s, Order: %s, Student: %s, Course: %s", p.ID, orderID, studentID, courseID)
	s.events.PaymentEvent(models.PaymentEvent{
		Event:     models.EventPaymentInitiated,
		PaymentID: p.ID,
		OrderID:   orderID,
		StudentID: studentID,
		CourseID:  courseID,
		Amount:    amount,
		Status:    string(p.Status),
	})

	return &models.CheckoutOrder{
		PaymentID:   p.ID,
		OrderID:     orderID,
		Amount:      p.MinorAmount(),
		Currency:    p.Currency,
		KeyID:       s.gateway.KeyID(),
		CourseTitle: title,
	}, nil
}

// completion is the outcome of completing a payment inside a transaction.
type completion struct {
	payment    *models.Payment
	enrollment *models.Enrollment
	course     *models.Course
	created    bool
	duplicate  bool
}

// complete marks p completed and runs the ledger transition. When the pair
// is already enrolled (a second checkout also succeeded, possibly in a
// concurrent transaction) the payment stays completed and the existing
// enrollment is returned.
func (s *PaymentService) complete(ctx context.Context, tx db.Store, p *models.Payment, providerPaymentID, signature string) (*completion, error) {
	p.RazorpayPaymentID = providerPaymentID
	p.RazorpaySignature = signature
	p.Status = models.PaymentStatusCompleted
	p.FailureReason = ""
	p.UpdatedAt = s.now().UTC()
	if err := tx.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}

	course, err := tx.GetCourse(ctx, p.CourseID)
	if err != nil {
		return nil, err
	}

	c := &completion{payment: p, course: course}
	existing, err := s.enrollments.existing(ctx, tx, p.StudentID, p.CourseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		c.enrollment = existing
		c.duplicate = existing.PaymentID != p.ID
		return c, nil
	}

	c.enrollment, err = s.enrollments.enroll(ctx, tx, p.StudentID, course, p.ID)
	if err != nil {
		return nil, err
	}
	c.created = true
	return c, nil
}

func (s *PaymentService) completed(c *completion, email string) {
	p := c.payment
	s.events.PaymentEvent(models.PaymentEvent{
		Event:     models.EventPaymentVerified,
		PaymentID: p.ID,
		OrderID:   p.RazorpayOrderID,
		StudentID: p.StudentID,
		CourseID:  p.CourseID,
		Amount:    p.Amount,
		Status:    string(p.Status),
	})

	switch {
	case c.created:
		s.enrollments.enrolled(c.enrollment, c.course, email, p.Amount, p.Currency)
	case c.duplicate:
		s.log.Warn("Duplicate completed payment %s for student %s on course %s (enrollment %s backed by %s)",
			p.ID, p.StudentID, p.CourseID, c.enrollment.ID, c.enrollment.PaymentID)
		s.events.PaymentEvent(models.PaymentEvent{
			Event:     models.EventPaymentDuplicate,
			PaymentID: p.ID,
			OrderID:   p.RazorpayOrderID,
			StudentID: p.StudentID,
			CourseID:  p.CourseID,
			Amount:    p.Amount,
			Detail:    "enrollment " + c.enrollment.ID + " is backed by payment " + c.enrollment.PaymentID,
		})
	}
}

// VerifyPayment checks the checkout signature and, when it matches,
// completes the payment and enrolls the student in one transaction. A
// mismatch marks the payment failed. Repeating a successful verification
// returns the stored result without changing anything.
func (s *PaymentService) VerifyPayment(ctx context.Context, actor models.Actor, req VerifyRequest) (*VerifyResult, error) {
	if err := s.ensureEnabled(); err != nil {
		return nil, err
	}

	var (
		result       *completion
		replayed     *VerifyResult
		failed       *models.Payment
		signatureErr = apperrors.NewInvalidParamsError("payment verification failed")
	)

	err := s.store.InTx(ctx, func(tx db.Store) error {
		p, err := tx.GetPaymentByOrderID(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if p.StudentID != actor.ID {
			return apperrors.NewForbiddenError("not your payment")
		}

		valid := s.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature)

		switch p.Status {
		case models.PaymentStatusCompleted:
			if !valid || p.RazorpayPaymentID != req.PaymentID {
				return apperrors.NewInvalidParamsError("payment is already completed")
			}
			e, err := tx.FindEnrollment(ctx, p.StudentID, p.CourseID)
			if err != nil {
				return err
			}
			replayed = &VerifyResult{Payment: p, Enrollment: e}
			return nil

		case models.PaymentStatusFailed, models.PaymentStatusRefunded:
			return apperrors.NewInvalidParamsError("payment is " + string(p.Status) + ", start a new checkout")
		}

		if !valid {
			p.Status = models.PaymentStatusFailed
			p.FailureReason = "signature verification failed"
			p.UpdatedAt = s.now().UTC()
			if err := tx.UpdatePayment(ctx, p); err != nil {
				return err
			}
			failed = p
			return nil
		}

		result, err = s.complete(ctx, tx, p, req.PaymentID, req.Signature)
		return err
	})
	if err != nil {
		return nil, err
	}

	if replayed != nil {
		s.log.Info("Payment %s already verified, returning stored result", replayed.Payment.ID)
		return replayed, nil
	}

	if failed != nil {
		s.log.Warn("Signature mismatch for order %s (payment %s), marked failed", failed.RazorpayOrderID, failed.ID)
		s.events.PaymentEvent(models.PaymentEvent{
			Event:     models.EventPaymentFailed,
			PaymentID: failed.ID,
			OrderID:   failed.RazorpayOrderID,
			StudentID: failed.StudentID,
			CourseID:  failed.CourseID,
			Amount:    failed.Amount,
			Status:    string(failed.Status),
			Detail:    failed.FailureReason,
		})
		if course, err := s.store.GetCourse(ctx, failed.CourseID); err == nil {
			s.notifier.PaymentFailed(actor.Email, course.Title)
		}
		return nil, signatureErr
	}

	s.log.Info("Payment verified - Payment: %s, Order: %s", result.payment.ID, result.payment.RazorpayOrderID)
	s.completed(result, actor.Email)
	return &VerifyResult{Payment: result.payment, Enrollment: result.enrollment}, nil
}

// RequestRefund refunds a completed payment in full within the refund
// window. The payment row is locked and checked, the provider is called,
// and the local status change, enrollment removal and enrolled-set pull
// commit in the same transaction, so concurrent requests for one payment
// reach the provider once. If the commit fails after the provider accepted
// the refund a refund.reconcile event is raised for support.
func (s *PaymentService) RequestRefund(ctx context.Context, actor models.Actor, paymentID string) (*RefundResult, error) {
	if err := s.ensureEnabled(); err != nil {
		return nil, err
	}

	var (
		p        *models.Payment
		refundID string
	)
	err := s.store.InTx(ctx, func(tx db.Store) error {
		cur, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		p = cur
		if cur.StudentID != actor.ID {
			return apperrors.NewForbiddenError("only the paying student can request a refund")
		}
		if cur.Status != models.PaymentStatusCompleted {
			return apperrors.NewInvalidParamsError("only completed payments can be refunded")
		}
		if !s.RefundEligible(cur) {
			return apperrors.NewInvalidParamsError("refund window has expired")
		}

		refundID, err = s.gateway.Refund(ctx, cur.RazorpayPaymentID, cur.MinorAmount())
		if err != nil {
			return err
		}

		cur.Status = models.PaymentStatusRefunded
		cur.RazorpayRefundID = refundID
		cur.UpdatedAt = s.now().UTC()
		if err := tx.UpdatePayment(ctx, cur); err != nil {
			return err
		}

		e, err := tx.FindEnrollment(ctx, cur.StudentID, cur.CourseID)
		if err != nil {
			return err
		}
		// A duplicate payment does not back the enrollment; refunding it
		// leaves access in place.
		if e == nil || (e.PaymentID != "" && e.PaymentID != cur.ID) {
			return nil
		}
		if _, err := tx.DeleteEnrollment(ctx, cur.StudentID, cur.CourseID); err != nil {
			return err
		}
		return tx.RemoveEnrolledStudent(ctx, cur.CourseID, cur.StudentID)
	})
	if err != nil && refundID == "" {
		return nil, err
	}
	if err != nil {
		s.log.Error("Refund %s issued for payment %s but local update failed: %v", refundID, p.ID, err)
		s.events.PaymentEvent(models.PaymentEvent{
			Event:     models.EventRefundReconcile,
			PaymentID: p.ID,
			OrderID:   p.RazorpayOrderID,
			StudentID: p.StudentID,
			CourseID:  p.CourseID,
			Amount:    p.Amount,
			Detail:    "provider refund " + refundID + " not reflected locally: " + err.Error(),
		})
		return nil, apperrors.E(apperrors.Internal, "refund was issued but could not be recorded, support has been notified", err)
	}

	s.log.Info("Payment %s refunded (refund %s)", p.ID, refundID)
	s.events.PaymentEvent(models.PaymentEvent{
		Event:     models.EventPaymentRefunded,
		PaymentID: p.ID,
		OrderID:   p.RazorpayOrderID,
		StudentID: p.StudentID,
		CourseID:  p.CourseID,
		Amount:    p.Amount,
		Status:    string(p.Status),
		Detail:    refundID,
	})
	if course, err := s.store.GetCourse(ctx, p.CourseID); err == nil {
		s.notifier.RefundProcessed(actor.Email, course.Title, p.Amount, p.Currency, refundID)
	}

	return &RefundResult{
		RefundID:  refundID,
		PaymentID: p.ID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    p.Status,
	}, nil
}

// RefundEligible reports whether p is still inside the refund window. The
// window is inclusive of its last instant.
func (s *PaymentService) RefundEligible(p *models.Payment) bool {
	return s.now().Sub(p.CreatedAt) <= s.cfg.RefundWindow
}

// RetryPayment opens a fresh checkout for the same course and amount as a
// failed, expired or pending payment. The old row is left as it is.
func (s *PaymentService) RetryPayment(ctx context.Context, actor models.Actor, paymentID string) (*models.CheckoutOrder, error) {
	if err := s.ensureEnabled(); err != nil {
		return nil, err
	}

	p, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.StudentID != actor.ID {
		return nil, apperrors.NewForbiddenError("not your payment")
	}
	if !p.Status.Retryable() {
		return nil, apperrors.NewInvalidParamsError("payment cannot be retried from status " + string(p.Status))
	}

	existing, err := s.store.FindEnrollment(ctx, p.StudentID, p.CourseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.NewConflictError("already enrolled in this course")
	}

	var title string
	if course, err := s.store.GetCourse(ctx, p.CourseID); err == nil {
		title = course.Title
	}

	return s.openOrder(ctx, p.StudentID, p.CourseID, p.TutorID, p.Amount, title)
}

// History lists completed payments. Students see one row per course and
// tutors one row per student and course; the newest payment wins.
func (s *PaymentService) History(ctx context.Context, actor models.Actor) (*HistoryResult, error) {
	filter := models.PaymentFilter{Status: models.PaymentStatusCompleted}
	var key func(p models.Payment) string

	switch {
	case actor.IsStudent():
		filter.StudentID = actor.ID
		key = func(p models.Payment) string { return p.CourseID }
	case actor.IsTutor():
		filter.TutorID = actor.ID
		key = func(p models.Payment) string { return p.StudentID + "|" + p.CourseID }
	default:
		return nil, apperrors.NewForbiddenError("payment history is available to students and tutors")
	}

	payments, err := s.store.ListPayments(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &HistoryResult{Payments: []models.Payment{}}
	seen := make(map[string]bool, len(payments))
	for _, p := range payments {
		k := key(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		result.Payments = append(result.Payments, p)
		result.TotalAmount += p.Amount
	}
	return result, nil
}

// ExportHistory writes the caller's history as an xlsx workbook.
func (s *PaymentService) ExportHistory(ctx context.Context, actor models.Actor, w io.Writer) error {
	history, err := s.History(ctx, actor)
	if err != nil {
		return err
	}
	return WriteHistoryWorkbook(w, history)
}
