package http

import (
	"net/http"

	"course-marketplace/http/handlers"
	"course-marketplace/http/middleware"
	"course-marketplace/models"
)

// SetupRoutes configures all HTTP routes and middleware. limiter may be nil.
func SetupRoutes(h *handlers.Handler, limiter *middleware.RateLimiter) http.Handler {
	mux := http.NewServeMux()

	student := middleware.RequireRole(models.RoleStudent)
	historyRoles := middleware.RequireRole(models.RoleStudent, models.RoleTutor)
	enrollmentRoles := middleware.RequireRole(models.RoleStudent, models.RoleAdmin)
	admin := middleware.RequireRole(models.RoleAdmin)

	// Payment APIs
	mux.Handle("POST /api/payments/create-order", student(http.HandlerFunc(h.CreateOrder)))
	mux.Handle("POST /api/payments/verify", student(http.HandlerFunc(h.VerifyPayment)))
	mux.Handle("GET /api/payments/history", historyRoles(http.HandlerFunc(h.PaymentHistory)))
	mux.Handle("GET /api/payments/history/export", historyRoles(http.HandlerFunc(h.ExportPaymentHistory)))
	mux.Handle("POST /api/payments/{id}/refund", student(http.HandlerFunc(h.RefundPayment)))
	mux.Handle("POST /api/payments/{id}/retry", student(http.HandlerFunc(h.RetryPayment)))
	mux.HandleFunc("POST /api/payments/webhook", h.RazorpayWebhook)

	// Course & enrollment APIs
	mux.HandleFunc("GET /api/courses/{id}", h.GetCourse)
	mux.Handle("POST /api/courses/{id}/enroll", student(http.HandlerFunc(h.EnrollFree)))
	mux.Handle("GET /api/enrollments/{id}", enrollmentRoles(http.HandlerFunc(h.GetEnrollment)))
	mux.Handle("PATCH /api/enrollments/{id}/progress", student(http.HandlerFunc(h.UpdateProgress)))
	mux.Handle("GET /api/enrollments/{id}/certificate", enrollmentRoles(http.HandlerFunc(h.DownloadCertificate)))

	// DLQ Management APIs
	mux.Handle("GET /api/dlq/messages", admin(http.HandlerFunc(h.GetDLQMessages)))
	mux.Handle("GET /api/dlq/stats", admin(http.HandlerFunc(h.GetDLQStats)))
	mux.Handle("POST /api/dlq/messages/{id}/retry", admin(http.HandlerFunc(h.RetryDLQMessage)))
	mux.Handle("POST /api/dlq/messages/{id}/resolve", admin(http.HandlerFunc(h.ResolveDLQMessage)))

	mux.HandleFunc("GET /health", h.Health)

	var handler http.Handler = middleware.Identity(mux)
	if limiter != nil {
		handler = limiter.Middleware(handler)
	}
	return middleware.RequestLogger(middleware.EnableCORS(handler))
}
