package handlers

import (
	"bytes"
	"io"
	"net/http"

	apperrors "course-marketplace/errors"
	"course-marketplace/http/response"
	"course-marketplace/services"
	"course-marketplace/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type createOrderRequest struct {
	CourseID string `json:"courseId" validate:"required,resource_id"`
}

// CreateOrder opens a checkout for a paid course.
// POST /api/payments/create-order
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req createOrderRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	order, err := h.payments.CreateOrder(r.Context(), actor, req.CourseID)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.SuccessResponse(w, http.StatusCreated, "Order created", order)
}

// VerifyPayment checks the checkout signature and enrolls the student.
// POST /api/payments/verify
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req services.VerifyRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	res, err := h.payments.VerifyPayment(r.Context(), actor, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "Payment verified", res)
}

// PaymentHistory lists completed payments for a student or tutor.
// GET /api/payments/history
func (h *Handler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	res, err := h.payments.History(r.Context(), actor)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "Payment history", res)
}

// ExportPaymentHistory downloads the history as an xlsx workbook.
// GET /api/payments/history/export
func (h *Handler) ExportPaymentHistory(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	// Buffer so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := h.payments.ExportHistory(r.Context(), actor, &buf); err != nil {
		response.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="payment-history.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// RefundPayment refunds a completed payment inside the refund window.
// POST /api/payments/{id}/refund
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	refund, err := h.payments.RequestRefund(r.Context(), actor, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "Refund issued", map[string]interface{}{
		"refund": refund,
	})
}

// RetryPayment opens a new checkout for a failed, expired or abandoned
// payment.
// POST /api/payments/{id}/retry
func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	order, err := h.payments.RetryPayment(r.Context(), actor, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.SuccessResponse(w, http.StatusCreated, "Order created", order)
}

// RazorpayWebhook receives provider callbacks. It is unauthenticated; the
// body signature is the only credential.
// POST /api/payments/webhook
func (h *Handler) RazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, utils.MaxBodyBytes))
	if err != nil {
		response.Error(w, r, apperrors.E(apperrors.Invalid, "failed to read request body", err))
		return
	}

	res, err := h.payments.HandleWebhook(r.Context(), body,
		r.Header.Get(utils.HeaderRazorpaySignature),
		r.Header.Get(utils.HeaderRazorpayEventID))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.SendJSON(w, http.StatusOK, res)
}
