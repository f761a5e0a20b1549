package handlers

import (
	"context"
	"io"
	"net/http"

	apperrors "course-marketplace/errors"
	"course-marketplace/http/middleware"
	"course-marketplace/models"
	"course-marketplace/services"
	"course-marketplace/utils"
)

// Payments is the checkout surface the handlers drive.
type Payments interface {
	CreateOrder(ctx context.Context, actor models.Actor, courseID string) (*models.CheckoutOrder, error)
	VerifyPayment(ctx context.Context, actor models.Actor, req services.VerifyRequest) (*services.VerifyResult, error)
	History(ctx context.Context, actor models.Actor) (*services.HistoryResult, error)
	ExportHistory(ctx context.Context, actor models.Actor, w io.Writer) error
	RequestRefund(ctx context.Context, actor models.Actor, paymentID string) (*services.RefundResult, error)
	RetryPayment(ctx context.Context, actor models.Actor, paymentID string) (*models.CheckoutOrder, error)
	HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (*services.WebhookResult, error)
}

type Enrollments interface {
	EnrollFree(ctx context.Context, actor models.Actor, courseID string) (*models.Enrollment, error)
	GetEnrollment(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error)
	UpdateProgress(ctx context.Context, actor models.Actor, enrollmentID, lectureID string, completed bool) (*models.Enrollment, error)
	CertificateFile(ctx context.Context, actor models.Actor, enrollmentID string) (string, error)
}

type Courses interface {
	GetCourse(ctx context.Context, id string) (*models.Course, error)
}

// DeadLetters is the admin view of the dead letter queue.
type DeadLetters interface {
	List(ctx context.Context, limit int) ([]models.DLQMessage, error)
	Stats(ctx context.Context) (*models.DLQStats, error)
	Retry(ctx context.Context, messageID string) (bool, error)
	Resolve(ctx context.Context, messageID, notes string) error
}

// HealthCheck probes one dependency. A failing critical check turns the
// health endpoint into a 503.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

type Handler struct {
	payments    Payments
	enrollments Enrollments
	courses     Courses
	dlq         DeadLetters
	checks      []HealthCheck
}

func New(payments Payments, enrollments Enrollments, courses Courses, dlq DeadLetters, checks ...HealthCheck) *Handler {
	return &Handler{
		payments:    payments,
		enrollments: enrollments,
		courses:     courses,
		dlq:         dlq,
		checks:      checks,
	}
}

func actorFrom(r *http.Request) (models.Actor, error) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		return models.Actor{}, apperrors.NewUnauthorizedError("authentication required")
	}
	return actor, nil
}

func pathID(r *http.Request) (string, error) {
	id := r.PathValue("id")
	if err := utils.ValidateID("id", id); err != nil {
		return "", err
	}
	return id, nil
}
